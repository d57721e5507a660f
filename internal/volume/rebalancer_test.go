package volume

import (
	"math"
	"testing"

	"github.com/lohit-dev/arb-vol/internal/config"
)

func testRebalancer(cfg config.VolumeConfig) *Rebalancer {
	return &Rebalancer{
		cfg:         cfg,
		inProgress:  make(map[string]bool),
		accumulated: make(map[string]float64),
	}
}

func TestTradeSizeClamping(t *testing.T) {
	// $1000 deficit at $2000/base: floor is $150/2000 = 0.075 base,
	// ceiling is 80% of the deficit = 0.4 base. Every random draw must
	// land inside that band.
	r := testRebalancer(config.VolumeConfig{
		MinTradeUSD:        150,
		MaxDeficitFraction: 0.8,
		MinMultiplier:      0.5,
		MaxMultiplier:      2.0,
	})

	for i := 0; i < 1000; i++ {
		got := r.tradeSize(1000, 2000, 0)
		if got < 0.075 || got > 0.4 {
			t.Fatalf("trade size %v outside [0.075, 0.4]", got)
		}
	}
}

func TestTradeSizeShrinksWithAttempts(t *testing.T) {
	// With a fixed multiplier band the damping factor 1/sqrt(attempt+1)
	// must shrink the pre-clamp size.
	r := testRebalancer(config.VolumeConfig{
		MinTradeUSD:        1,
		MaxDeficitFraction: 10,
		MinMultiplier:      1.0,
		MaxMultiplier:      1.0,
	})

	first := r.tradeSize(1000, 2000, 0)
	ninth := r.tradeSize(1000, 2000, 8)
	want := first / math.Sqrt(9)
	if math.Abs(ninth-want) > 1e-9 {
		t.Errorf("attempt 8 size = %v, want %v", ninth, want)
	}
}

func TestTradeSizeAbsoluteCap(t *testing.T) {
	r := testRebalancer(config.VolumeConfig{
		MinTradeUSD:        150,
		MaxDeficitFraction: 0.8,
		MinMultiplier:      2.0,
		MaxMultiplier:      2.0,
		MaxTradeBase:       0.1,
	})

	for i := 0; i < 100; i++ {
		if got := r.tradeSize(1000, 2000, 0); got > 0.1 {
			t.Fatalf("trade size %v exceeds the absolute cap", got)
		}
	}
}

func TestTradeSizeDegenerateInputs(t *testing.T) {
	r := testRebalancer(config.VolumeConfig{
		MinTradeUSD:        150,
		MaxDeficitFraction: 0.8,
		MinMultiplier:      0.5,
		MaxMultiplier:      2.0,
	})

	if got := r.tradeSize(0, 2000, 0); got != 0 {
		t.Errorf("zero deficit should size to 0, got %v", got)
	}
	if got := r.tradeSize(1000, 0, 0); got != 0 {
		t.Errorf("zero price should size to 0, got %v", got)
	}
}

func TestTradeSizeTinyDeficitUsesCeiling(t *testing.T) {
	// When the USD floor exceeds the deficit-fraction ceiling the ceiling
	// wins; the rebalancer must not overshoot a nearly closed deficit.
	r := testRebalancer(config.VolumeConfig{
		MinTradeUSD:        150,
		MaxDeficitFraction: 0.8,
		MinMultiplier:      0.5,
		MaxMultiplier:      2.0,
	})

	got := r.tradeSize(100, 2000, 0) // floor 0.075, ceiling 0.04
	if math.Abs(got-0.04) > 1e-12 {
		t.Errorf("trade size = %v, want ceiling 0.04", got)
	}
}
