package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// quoteParams mirrors IQuoterV2.QuoteExactInputSingleParams.
type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Quoter produces round-trip exchange rates by simulating swaps through the
// on-chain quoter contract. Rates reflect what a swap would actually return,
// fees and current tick range included, rather than the spot price.
type Quoter struct {
	pools *PoolResolver
}

func NewQuoter(pools *PoolResolver) *Quoter {
	return &Quoter{pools: pools}
}

// Quote probes both directions with a one-whole-token input at the pool's
// actual fee tier. Returns nil when the pool is invalid or either simulation
// fails; a nil quote excludes the network from the current scan only.
func (q *Quoter) Quote(ctx context.Context, net *eth.Network) *types.Quote {
	info := q.pools.Resolve(ctx, net)
	if !info.IsValid {
		return nil
	}

	oneTraded := pow10(net.Traded.Decimals)
	oneBase := pow10(net.Base.Decimals)

	outBase, err := q.simulate(ctx, net, net.Traded.Address, net.Base.Address, oneTraded, info.Fee)
	if err != nil {
		log.Warn().Err(err).Str("network", net.Key).Msg("Quote simulation failed (traded->base)")
		return nil
	}
	outTraded, err := q.simulate(ctx, net, net.Base.Address, net.Traded.Address, oneBase, info.Fee)
	if err != nil {
		log.Warn().Err(err).Str("network", net.Key).Msg("Quote simulation failed (base->traded)")
		return nil
	}

	return &types.Quote{
		NetworkKey:      net.Key,
		RateTokenToBase: toUnits(outBase, net.Base.Decimals),
		RateBaseToToken: toUnits(outTraded, net.Traded.Decimals),
		Pool:            info.Address,
		Fee:             info.Fee,
	}
}

func (q *Quoter) simulate(ctx context.Context, net *eth.Network, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (*big.Int, error) {
	client := net.Client()
	contract := bind.NewBoundContract(net.Quoter, quoterV2ABI, client.Raw(), client.Raw(), client.Raw())

	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "quoteExactInputSingle", quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func toUnits(raw *big.Int, decimals uint8) float64 {
	out, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetInt(pow10(decimals)),
	).Float64()
	return out
}
