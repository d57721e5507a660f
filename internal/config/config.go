package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the bot. It is built once at startup
// and passed by reference into each component's constructor; there is no
// ambient global configuration.
type Config struct {
	Networks  []NetworkConfig
	Arbitrage ArbitrageConfig
	Queue     QueueConfig
	Volume    VolumeConfig
	PriceFeed PriceFeedConfig
	Analytics AnalyticsConfig
	Notify    NotifyConfig
	Metrics   MetricsConfig
	RPC       RPCConfig
	Logging   LoggingConfig

	// PrivateKey is the hex-encoded signing key, env-only. Empty means
	// read-only deployment: opportunities are logged but never executed.
	PrivateKey string
}

// TokenConfig describes one token of the monitored pair on one network.
type TokenConfig struct {
	Address  string
	Decimals uint8
	Symbol   string
}

// NetworkConfig holds one network's endpoints, contracts and token pair.
type NetworkConfig struct {
	Key           string
	Name          string
	ChainID       int64
	RPCURL        string
	GasPriceGwei  int64
	Pool          string
	Quoter        string
	Router        string
	Base          TokenConfig
	Traded        TokenConfig
	GasPerSwap    uint64
}

// ArbitrageConfig holds the dual-threshold policy and execution settings.
type ArbitrageConfig struct {
	// MinProfitPercent is the deviation at or above which execution is
	// considered.
	MinProfitPercent float64
	// BalancePercent is the deviation at or below which the markets are
	// treated as already equilibrated.
	BalancePercent float64
	// MaxTradeAmount caps the buy leg, in traded-token units.
	MaxTradeAmount float64
	// SlippagePercent sets amountOutMinimum on each leg.
	SlippagePercent float64
	SettleDelay     time.Duration
	PendingTTL      time.Duration
	Execute         bool
}

// QueueConfig holds the event queue / scheduler settings.
type QueueConfig struct {
	Capacity     int
	TickInterval time.Duration
	Cooldown     time.Duration
	MaxErrors    int
	ErrorBackoff time.Duration
}

// VolumeConfig holds the per-network volume rebalancer settings.
type VolumeConfig struct {
	Enabled           bool
	TargetVolumeUSD   float64
	CheckInterval     time.Duration
	ResetInterval     time.Duration
	MaxAttempts       int
	MinTradeUSD       float64
	MaxDeficitFraction float64
	MinMultiplier     float64
	MaxMultiplier     float64
	// MaxTradeBase is an absolute per-trade cap in base-asset units.
	// Zero disables the cap.
	MaxTradeBase float64
	// FallbackBlocks is the recent-block window scanned when the
	// analytics API is unavailable.
	FallbackBlocks uint64
}

// PriceFeedConfig holds the external USD price API settings.
type PriceFeedConfig struct {
	URL         string
	APIKeys     []string
	MinInterval time.Duration
	Timeout     time.Duration
}

// AnalyticsConfig holds the pair-analytics API settings.
type AnalyticsConfig struct {
	URL     string
	Timeout time.Duration
}

// NotifyConfig holds the outbound webhook settings.
type NotifyConfig struct {
	WebhookURL string
}

// MetricsConfig holds the prometheus endpoint settings.
type MetricsConfig struct {
	ListenAddr string
}

// RPCConfig holds retry behavior shared by all network clients.
type RPCConfig struct {
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from defaults, an optional config file and
// ARBVOL_-prefixed environment variables. A config file that exists but
// fails to parse aborts startup.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ARBVOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.arb-vol")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Networks: []NetworkConfig{
			networkFromViper(v, "n1"),
			networkFromViper(v, "n2"),
		},
		Arbitrage: ArbitrageConfig{
			MinProfitPercent: v.GetFloat64("arbitrage.min_profit_percent"),
			BalancePercent:   v.GetFloat64("arbitrage.balance_percent"),
			MaxTradeAmount:   v.GetFloat64("arbitrage.max_trade_amount"),
			SlippagePercent:  v.GetFloat64("arbitrage.slippage_percent"),
			SettleDelay:      v.GetDuration("arbitrage.settle_delay"),
			PendingTTL:       v.GetDuration("arbitrage.pending_ttl"),
			Execute:          v.GetBool("arbitrage.execute"),
		},
		Queue: QueueConfig{
			Capacity:     v.GetInt("queue.capacity"),
			TickInterval: v.GetDuration("queue.tick_interval"),
			Cooldown:     v.GetDuration("queue.cooldown"),
			MaxErrors:    v.GetInt("queue.max_errors"),
			ErrorBackoff: v.GetDuration("queue.error_backoff"),
		},
		Volume: VolumeConfig{
			Enabled:            v.GetBool("volume.enabled"),
			TargetVolumeUSD:    v.GetFloat64("volume.target_usd"),
			CheckInterval:      v.GetDuration("volume.check_interval"),
			ResetInterval:      v.GetDuration("volume.reset_interval"),
			MaxAttempts:        v.GetInt("volume.max_attempts"),
			MinTradeUSD:        v.GetFloat64("volume.min_trade_usd"),
			MaxDeficitFraction: v.GetFloat64("volume.max_deficit_fraction"),
			MinMultiplier:      v.GetFloat64("volume.min_multiplier"),
			MaxMultiplier:      v.GetFloat64("volume.max_multiplier"),
			MaxTradeBase:       v.GetFloat64("volume.max_trade_base"),
			FallbackBlocks:     v.GetUint64("volume.fallback_blocks"),
		},
		PriceFeed: PriceFeedConfig{
			URL:         v.GetString("pricefeed.url"),
			APIKeys:     v.GetStringSlice("pricefeed.api_keys"),
			MinInterval: v.GetDuration("pricefeed.min_interval"),
			Timeout:     v.GetDuration("pricefeed.timeout"),
		},
		Analytics: AnalyticsConfig{
			URL:     v.GetString("analytics.url"),
			Timeout: v.GetDuration("analytics.timeout"),
		},
		Notify: NotifyConfig{
			WebhookURL: v.GetString("notify.webhook_url"),
		},
		Metrics: MetricsConfig{
			ListenAddr: v.GetString("metrics.listen_addr"),
		},
		RPC: RPCConfig{
			RetryAttempts:  v.GetInt("rpc.retry_attempts"),
			RetryDelay:     v.GetDuration("rpc.retry_delay"),
			RequestTimeout: v.GetDuration("rpc.request_timeout"),
			ReconnectDelay: v.GetDuration("rpc.reconnect_delay"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		PrivateKey: strings.TrimPrefix(v.GetString("private_key"), "0x"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	for _, key := range []string{"n1", "n2"} {
		v.SetDefault("networks."+key+".name", key)
		v.SetDefault("networks."+key+".chain_id", 0)
		v.SetDefault("networks."+key+".rpc_url", "")
		v.SetDefault("networks."+key+".gas_price_gwei", 0)
		v.SetDefault("networks."+key+".pool", "")
		v.SetDefault("networks."+key+".quoter", "")
		v.SetDefault("networks."+key+".router", "")
		v.SetDefault("networks."+key+".base.decimals", 18)
		v.SetDefault("networks."+key+".traded.decimals", 18)
		v.SetDefault("networks."+key+".gas_per_swap", 180000)
	}

	v.SetDefault("arbitrage.min_profit_percent", 1.5)
	v.SetDefault("arbitrage.balance_percent", 0.5)
	v.SetDefault("arbitrage.max_trade_amount", 1000.0)
	v.SetDefault("arbitrage.slippage_percent", 1.0)
	v.SetDefault("arbitrage.settle_delay", "5s")
	v.SetDefault("arbitrage.pending_ttl", "5m")
	v.SetDefault("arbitrage.execute", true)

	v.SetDefault("queue.capacity", 100)
	v.SetDefault("queue.tick_interval", "3s")
	v.SetDefault("queue.cooldown", "1s")
	v.SetDefault("queue.max_errors", 5)
	v.SetDefault("queue.error_backoff", "30s")

	v.SetDefault("volume.enabled", true)
	v.SetDefault("volume.target_usd", 10000.0)
	v.SetDefault("volume.check_interval", "15m")
	v.SetDefault("volume.reset_interval", "24h")
	v.SetDefault("volume.max_attempts", 10)
	v.SetDefault("volume.min_trade_usd", 150.0)
	v.SetDefault("volume.max_deficit_fraction", 0.8)
	v.SetDefault("volume.min_multiplier", 0.5)
	v.SetDefault("volume.max_multiplier", 2.0)
	v.SetDefault("volume.max_trade_base", 0.0)
	v.SetDefault("volume.fallback_blocks", 5000)

	v.SetDefault("pricefeed.url", "https://min-api.cryptocompare.com/data/pricemulti")
	v.SetDefault("pricefeed.api_keys", []string{})
	v.SetDefault("pricefeed.min_interval", "10s")
	v.SetDefault("pricefeed.timeout", "10s")

	v.SetDefault("analytics.url", "https://api.dexscreener.com/latest/dex/pairs")
	v.SetDefault("analytics.timeout", "10s")

	v.SetDefault("notify.webhook_url", "")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "1s")
	v.SetDefault("rpc.request_timeout", "30s")
	v.SetDefault("rpc.reconnect_delay", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func networkFromViper(v *viper.Viper, key string) NetworkConfig {
	prefix := "networks." + key + "."
	return NetworkConfig{
		Key:          key,
		Name:         v.GetString(prefix + "name"),
		ChainID:      v.GetInt64(prefix + "chain_id"),
		RPCURL:       v.GetString(prefix + "rpc_url"),
		GasPriceGwei: v.GetInt64(prefix + "gas_price_gwei"),
		Pool:         v.GetString(prefix + "pool"),
		Quoter:       v.GetString(prefix + "quoter"),
		Router:       v.GetString(prefix + "router"),
		Base: TokenConfig{
			Address:  v.GetString(prefix + "base.address"),
			Decimals: uint8(v.GetUint(prefix + "base.decimals")),
			Symbol:   v.GetString(prefix + "base.symbol"),
		},
		Traded: TokenConfig{
			Address:  v.GetString(prefix + "traded.address"),
			Decimals: uint8(v.GetUint(prefix + "traded.decimals")),
			Symbol:   v.GetString(prefix + "traded.symbol"),
		},
		GasPerSwap: v.GetUint64(prefix + "gas_per_swap"),
	}
}

func (c *Config) validate() error {
	for _, n := range c.Networks {
		if n.RPCURL == "" {
			return fmt.Errorf("network %s: rpc_url is required", n.Key)
		}
		if n.Pool == "" {
			return fmt.Errorf("network %s: pool address is required", n.Key)
		}
		if n.Quoter == "" {
			return fmt.Errorf("network %s: quoter address is required", n.Key)
		}
		if n.Base.Address == "" || n.Traded.Address == "" {
			return fmt.Errorf("network %s: base and traded token addresses are required", n.Key)
		}
	}
	if c.Arbitrage.BalancePercent > c.Arbitrage.MinProfitPercent {
		return fmt.Errorf("arbitrage.balance_percent must not exceed arbitrage.min_profit_percent")
	}
	return nil
}
