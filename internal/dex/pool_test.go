package dex

import (
	"math"
	"math/big"
	"testing"
)

func TestVirtualReservesRoundTrip(t *testing.T) {
	// The virtual reserve identity implies r0 * r1 == liquidity^2
	// regardless of price.
	cases := []struct {
		name      string
		sqrtP     *big.Int
		liquidity *big.Int
	}{
		{"price one", new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1e18)},
		{"price above one", new(big.Int).Lsh(big.NewInt(3), 96), big.NewInt(5e17)},
		{"price below one", new(big.Int).Rsh(new(big.Int).Lsh(big.NewInt(1), 96), 2), big.NewInt(7e12)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r0, r1 := virtualReserves(tc.sqrtP, tc.liquidity)

			product := new(big.Float).Mul(r0, r1)
			liqSq := new(big.Float).Mul(
				new(big.Float).SetInt(tc.liquidity),
				new(big.Float).SetInt(tc.liquidity),
			)

			p, _ := product.Float64()
			l, _ := liqSq.Float64()
			if math.Abs(p-l)/l > 1e-9 {
				t.Errorf("r0*r1 = %g, want liquidity^2 = %g", p, l)
			}
		})
	}
}

func TestVirtualReservesPriceOne(t *testing.T) {
	sqrtP := new(big.Int).Lsh(big.NewInt(1), 96)
	liq := big.NewInt(1e18)

	r0, r1 := virtualReserves(sqrtP, liq)
	f0, _ := r0.Float64()
	f1, _ := r1.Float64()
	if f0 != 1e18 || f1 != 1e18 {
		t.Errorf("at price 1 both reserves should equal liquidity: got %g, %g", f0, f1)
	}
}

func TestScaleDown(t *testing.T) {
	v := new(big.Float).SetInt(big.NewInt(1500000000000000000))
	if got := scaleDown(v, 18); got != 1.5 {
		t.Errorf("scaleDown(1.5e18, 18) = %v, want 1.5", got)
	}
	if got := scaleDown(new(big.Float).SetInt(big.NewInt(2500000)), 6); got != 2.5 {
		t.Errorf("scaleDown(2.5e6, 6) = %v, want 2.5", got)
	}
}
