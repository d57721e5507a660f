package arbitrage

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/lohit-dev/arb-vol/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Calculator turns a pair of quotes plus an external USD reference into a
// normalized Opportunity. Pure computation, no I/O.
//
// Profitability is expressed as the symmetric deviation between the two
// networks' USD prices (difference over midpoint). The directional
// sell-minus-buy-over-buy percentage is deliberately not used; the bot's
// goal is equalizing the two pools, and the symmetric form is invariant
// under swapping the network order.
type Calculator struct {
	// gasPerSwap maps network key to the flat per-leg gas estimate.
	gasPerSwap map[string]uint64
}

func NewCalculator(gasPerSwap map[string]uint64) *Calculator {
	return &Calculator{gasPerSwap: gasPerSwap}
}

// Evaluate computes the opportunity between two networks. Returns nil when
// either quote is missing or the USD reference is absent. Reserves may be
// nil, in which case OptimalAmount is zero and callers fall back to their
// configured sizing cap.
func (c *Calculator) Evaluate(q1, q2 *types.Quote, snap types.PriceSnapshot, reserves map[string]*types.PoolReserves) *types.Opportunity {
	if q1 == nil || q2 == nil || snap.BaseUSD <= 0 {
		return nil
	}

	baseUSD := decimal.NewFromFloat(snap.BaseUSD)
	price1 := decimal.NewFromFloat(q1.RateTokenToBase).Mul(baseUSD)
	price2 := decimal.NewFromFloat(q2.RateTokenToBase).Mul(baseUSD)
	if price1.IsZero() || price2.IsZero() {
		return nil
	}

	cheap, expensive := q1, q2
	cheapPrice, expensivePrice := price1, price2
	if price2.LessThan(price1) {
		cheap, expensive = q2, q1
		cheapPrice, expensivePrice = price2, price1
	}

	diff := expensivePrice.Sub(cheapPrice)
	mid := cheapPrice.Add(expensivePrice).Div(decimal.NewFromInt(2))
	deviation, _ := diff.Div(mid).Mul(hundred).Float64()
	absDiff, _ := diff.Float64()
	cheapUSD, _ := cheapPrice.Float64()
	expensiveUSD, _ := expensivePrice.Float64()

	opp := &types.Opportunity{
		CheapNetwork:      cheap.NetworkKey,
		ExpensiveNetwork:  expensive.NetworkKey,
		CheapPriceUSD:     cheapUSD,
		ExpensivePriceUSD: expensiveUSD,
		DeviationPercent:  deviation,
		AbsoluteDiff:      absDiff,
		EstimatedGas:      c.gasPerSwap[q1.NetworkKey] + c.gasPerSwap[q2.NetworkKey],
	}

	if reserves != nil {
		buy, sell := reserves[cheap.NetworkKey], reserves[expensive.NetworkKey]
		if buy != nil && sell != nil {
			opp.OptimalAmount = optimalTradeAmount(buy, sell)
		}
	}

	return opp
}

// optimalTradeAmount is the closed-form size, in buy-side traded-token
// units, that moves both pools toward a common marginal price: with a,d the
// buy pool's traded and base reserves and b,c the sell pool's base reserve
// read twice,
//
//	x = (sqrt(a*b*c*d) - b*c) / (a + c)
//
// A negative or non-finite result means no profitable size exists; zero is
// returned so the caller treats it as no opportunity.
func optimalTradeAmount(buy, sell *types.PoolReserves) float64 {
	a := buy.Traded.Reserve
	d := buy.Base.Reserve
	b := sell.Base.Reserve
	c := sell.Base.Reserve

	if a <= 0 || b <= 0 || c <= 0 || d <= 0 {
		return 0
	}

	x := (math.Sqrt(a*b*c*d) - b*c) / (a + c)
	if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
