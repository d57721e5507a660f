package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"N1", "N2"} {
		t.Setenv("ARBVOL_NETWORKS_"+key+"_RPC_URL", "ws://localhost:8546")
		t.Setenv("ARBVOL_NETWORKS_"+key+"_POOL", "0x0000000000000000000000000000000000000001")
		t.Setenv("ARBVOL_NETWORKS_"+key+"_QUOTER", "0x0000000000000000000000000000000000000002")
		t.Setenv("ARBVOL_NETWORKS_"+key+"_BASE_ADDRESS", "0x0000000000000000000000000000000000000003")
		t.Setenv("ARBVOL_NETWORKS_"+key+"_TRADED_ADDRESS", "0x0000000000000000000000000000000000000004")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Networks) != 2 {
		t.Fatalf("networks = %d, want 2", len(cfg.Networks))
	}
	if cfg.Arbitrage.MinProfitPercent != 1.5 {
		t.Errorf("min profit = %v, want 1.5", cfg.Arbitrage.MinProfitPercent)
	}
	if cfg.Arbitrage.BalancePercent != 0.5 {
		t.Errorf("balance threshold = %v, want 0.5", cfg.Arbitrage.BalancePercent)
	}
	if cfg.Arbitrage.SettleDelay != 5*time.Second {
		t.Errorf("settle delay = %v, want 5s", cfg.Arbitrage.SettleDelay)
	}
	if cfg.Queue.Capacity != 100 || cfg.Queue.TickInterval != 3*time.Second {
		t.Errorf("queue defaults wrong: %+v", cfg.Queue)
	}
	if cfg.Queue.MaxErrors != 5 || cfg.Queue.ErrorBackoff != 30*time.Second {
		t.Errorf("backoff defaults wrong: %+v", cfg.Queue)
	}
	if cfg.Volume.MaxAttempts != 10 || cfg.Volume.MaxDeficitFraction != 0.8 {
		t.Errorf("volume defaults wrong: %+v", cfg.Volume)
	}
	if cfg.Networks[0].GasPerSwap != 180000 {
		t.Errorf("gas per swap = %d, want 180000", cfg.Networks[0].GasPerSwap)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ARBVOL_ARBITRAGE_MIN_PROFIT_PERCENT", "2.5")
	t.Setenv("ARBVOL_QUEUE_COOLDOWN", "4s")
	t.Setenv("ARBVOL_PRIVATE_KEY", "0xabc123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Arbitrage.MinProfitPercent != 2.5 {
		t.Errorf("min profit = %v, want the override 2.5", cfg.Arbitrage.MinProfitPercent)
	}
	if cfg.Queue.Cooldown != 4*time.Second {
		t.Errorf("cooldown = %v, want the override 4s", cfg.Queue.Cooldown)
	}
	if cfg.PrivateKey != "abc123" {
		t.Errorf("private key = %q, want the 0x prefix stripped", cfg.PrivateKey)
	}
}

func TestLoadRejectsMissingEndpoints(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ARBVOL_NETWORKS_N2_RPC_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error for a network without an RPC endpoint")
	}
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ARBVOL_ARBITRAGE_BALANCE_PERCENT", "3.0")

	if _, err := Load(); err == nil {
		t.Error("expected an error when balance threshold exceeds min profit")
	}
}
