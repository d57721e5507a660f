package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

var (
	q96       = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	maxUint24 = big.NewInt(1 << 24)
)

// PoolResolver reads live pool state and derives the virtual reserves the
// sizing math runs on. A resolver failure never aborts a scan; it is reported
// through PoolInfo.IsValid so callers can skip the network for one cycle.
type PoolResolver struct{}

func NewPoolResolver() *PoolResolver {
	return &PoolResolver{}
}

// Resolve fetches pool metadata and state for the configured pool on net.
// All five accessor reads run concurrently. Any RPC or consistency failure
// yields IsValid=false with the zero value elsewhere.
func (r *PoolResolver) Resolve(ctx context.Context, net *eth.Network) types.PoolInfo {
	client := net.Client()
	if client == nil {
		return types.PoolInfo{}
	}

	var (
		token0, token1 common.Address
		fee            *big.Int
		liquidity      *big.Int
		sqrtPriceX96   *big.Int
		errT0, errT1   error
		errFee, errLiq error
		errSlot0       error
	)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		token0, errT0 = callAddress(ctx, client, net.Pool, selToken0)
	}()
	go func() {
		defer wg.Done()
		token1, errT1 = callAddress(ctx, client, net.Pool, selToken1)
	}()
	go func() {
		defer wg.Done()
		fee, errFee = callUint(ctx, client, net.Pool, selFee)
	}()
	go func() {
		defer wg.Done()
		liquidity, errLiq = callUint(ctx, client, net.Pool, selLiquidity)
	}()
	go func() {
		defer wg.Done()
		sqrtPriceX96, errSlot0 = callSlot0Price(ctx, client, net.Pool)
	}()
	wg.Wait()

	for _, err := range []error{errT0, errT1, errFee, errLiq, errSlot0} {
		if err != nil {
			log.Warn().Err(err).
				Str("network", net.Key).
				Str("pool", net.Pool.Hex()).
				Msg("Pool state read failed")
			return types.PoolInfo{}
		}
	}

	info := types.PoolInfo{
		Address:      net.Pool,
		Token0:       token0,
		Token1:       token1,
		Fee:          uint32(fee.Uint64()),
		Liquidity:    liquidity,
		SqrtPriceX96: sqrtPriceX96,
	}

	if fee.Cmp(maxUint24) >= 0 {
		log.Warn().Str("network", net.Key).Str("fee", fee.String()).Msg("Pool fee out of range")
		return types.PoolInfo{}
	}
	if liquidity.Sign() == 0 || sqrtPriceX96.Sign() == 0 {
		log.Warn().Str("network", net.Key).Msg("Pool has no active liquidity")
		return types.PoolInfo{}
	}

	// The configured pair must match the pool's actual tokens, in either
	// order. Address comparison is case-insensitive.
	switch {
	case sameAddr(token0, net.Traded.Address) && sameAddr(token1, net.Base.Address):
		info.TradedIsToken0 = true
	case sameAddr(token0, net.Base.Address) && sameAddr(token1, net.Traded.Address):
		info.TradedIsToken0 = false
	default:
		log.Warn().
			Str("network", net.Key).
			Str("token0", token0.Hex()).
			Str("token1", token1.Hex()).
			Msg("Pool tokens do not match configured pair")
		return types.PoolInfo{}
	}

	r0, r1 := virtualReserves(sqrtPriceX96, liquidity)
	reserve0 := tokenReserve(ctx, net, token0, r0)
	reserve1 := tokenReserve(ctx, net, token1, r1)
	if info.TradedIsToken0 {
		info.Reserves = &types.PoolReserves{Traded: reserve0, Base: reserve1}
	} else {
		info.Reserves = &types.PoolReserves{Base: reserve0, Traded: reserve1}
	}

	info.IsValid = true
	return info
}

// tokenMetadata reads symbol and decimals for a token, falling back to "?"
// and 18 when the contract does not answer. Metadata failures are cosmetic
// and never invalidate a pool.
func tokenMetadata(ctx context.Context, client *eth.Client, token common.Address) (string, uint8) {
	symbol := "?"
	decimals := uint8(18)

	if out, err := viewCall(ctx, client, token, selDecimals); err == nil && len(out) >= 32 {
		decimals = uint8(new(big.Int).SetBytes(out).Uint64())
	}

	if out, err := viewCall(ctx, client, token, erc20SymbolABI.Methods["symbol"].ID); err == nil {
		var s string
		if uerr := erc20SymbolABI.UnpackIntoInterface(&s, "symbol", out); uerr == nil && s != "" {
			symbol = s
		}
	}

	return symbol, decimals
}

// virtualReserves derives the instantaneous reserve equivalents from the
// pool's price and active liquidity:
//
//	reserve0 = liquidity * 2^96 / sqrtPriceX96
//	reserve1 = liquidity * sqrtPriceX96 / 2^96
func virtualReserves(sqrtPriceX96, liquidity *big.Int) (*big.Float, *big.Float) {
	liq := new(big.Float).SetInt(liquidity)
	sqrtP := new(big.Float).SetInt(sqrtPriceX96)

	r0 := new(big.Float).Quo(new(big.Float).Mul(liq, q96), sqrtP)
	r1 := new(big.Float).Quo(new(big.Float).Mul(liq, sqrtP), q96)
	return r0, r1
}

func scaleDown(v *big.Float, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(v, scale).Float64()
	return out
}

func tokenReserve(ctx context.Context, net *eth.Network, addr common.Address, raw *big.Float) types.TokenReserve {
	symbol, decimals := "?", uint8(18)
	if t, ok := net.Token(addr); ok {
		symbol, decimals = t.Symbol, t.Decimals
	} else {
		symbol, decimals = tokenMetadata(ctx, net.Client(), addr)
	}
	return types.TokenReserve{
		Address:  addr,
		Symbol:   symbol,
		Decimals: decimals,
		Reserve:  scaleDown(raw, decimals),
	}
}

func sameAddr(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}

func viewCall(ctx context.Context, client *eth.Client, to common.Address, sel []byte) ([]byte, error) {
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: sel}, nil)
}

func callAddress(ctx context.Context, client *eth.Client, to common.Address, sel []byte) (common.Address, error) {
	out, err := viewCall(ctx, client, to, sel)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("short return: %d bytes", len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

func callUint(ctx context.Context, client *eth.Client, to common.Address, sel []byte) (*big.Int, error) {
	out, err := viewCall(ctx, client, to, sel)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// slot0 returns (sqrtPriceX96, tick, ...); only the first word matters here.
func callSlot0Price(ctx context.Context, client *eth.Client, to common.Address) (*big.Int, error) {
	out, err := viewCall(ctx, client, to, selSlot0)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
