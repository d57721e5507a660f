package volume

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/internal/dex"
	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/internal/metrics"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// NetworkSource enumerates configured network handles.
type NetworkSource interface {
	All() []*eth.Network
}

// VolumeSource reports a pair's trailing-period USD volume.
type VolumeSource interface {
	PairVolume24h(ctx context.Context, chainName, pairAddress string) (float64, error)
}

// PriceSource provides the USD reference used to size trades.
type PriceSource interface {
	Snapshot(ctx context.Context) (types.PriceSnapshot, error)
}

// QuoteService converts between base and traded amounts at pool rates.
type QuoteService interface {
	Quote(ctx context.Context, net *eth.Network) *types.Quote
}

// TradeService executes single swap legs.
type TradeService interface {
	ExecuteTrade(ctx context.Context, params types.TradeParams) types.TradeResult
}

// Rebalancer keeps each network's daily trading volume near a configured
// target by issuing small, randomized, alternating-direction trades when
// organic volume falls short. Sizing favors early attempts; later attempts
// shrink by 1/sqrt(attempt+1) so a stubborn deficit is approached, not
// slammed.
type Rebalancer struct {
	cfg       config.VolumeConfig
	networks  NetworkSource
	analytics VolumeSource
	prices    PriceSource
	quotes    QuoteService
	trader    TradeService

	tradeGate *sync.Mutex

	mu          sync.Mutex
	inProgress  map[string]bool
	accumulated map[string]float64
}

func NewRebalancer(
	cfg config.VolumeConfig,
	networks NetworkSource,
	analytics VolumeSource,
	prices PriceSource,
	quotes QuoteService,
	trader TradeService,
	tradeGate *sync.Mutex,
) *Rebalancer {
	return &Rebalancer{
		cfg:         cfg,
		networks:    networks,
		analytics:   analytics,
		prices:      prices,
		quotes:      quotes,
		trader:      trader,
		tradeGate:   tradeGate,
		inProgress:  make(map[string]bool),
		accumulated: make(map[string]float64),
	}
}

// Run drives periodic volume checks and the jittered daily reset until ctx
// is cancelled.
func (r *Rebalancer) Run(ctx context.Context) {
	if !r.cfg.Enabled {
		log.Info().Msg("Volume rebalancer disabled")
		return
	}

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	reset := time.NewTimer(r.jitteredReset())
	defer reset.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reset.C:
			r.resetPeriod()
			reset.Reset(r.jitteredReset())
		case <-ticker.C:
			for _, net := range r.networks.All() {
				if net.CanTrade() {
					go r.checkNetwork(ctx, net)
				}
			}
		}
	}
}

// jitteredReset spreads the period boundary by up to ten minutes so both
// networks' resets do not land on the same instant every day.
func (r *Rebalancer) jitteredReset() time.Duration {
	return r.cfg.ResetInterval + time.Duration(rand.Int63n(int64(10*time.Minute)))
}

func (r *Rebalancer) resetPeriod() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.accumulated {
		r.accumulated[key] = 0
		metrics.VolumeUSD.WithLabelValues(key).Set(0)
	}
	log.Info().Msg("Volume period reset")
}

// checkNetwork measures the network's volume and closes any deficit with a
// bounded run of randomized trades. Guarded per network so overlapping
// checks never double-trade.
func (r *Rebalancer) checkNetwork(ctx context.Context, net *eth.Network) {
	r.mu.Lock()
	if r.inProgress[net.Key] {
		r.mu.Unlock()
		return
	}
	r.inProgress[net.Key] = true
	done := r.accumulated[net.Key]
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inProgress[net.Key] = false
		r.mu.Unlock()
	}()

	snap, err := r.prices.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Str("network", net.Key).Msg("No USD reference, skipping volume check")
		return
	}

	measured, err := r.analytics.PairVolume24h(ctx, net.Name, net.Pool.Hex())
	if err != nil {
		log.Warn().Err(err).Str("network", net.Key).Msg("Analytics unavailable, counting on-chain swaps")
		measured, err = r.onChainVolume(ctx, net, snap.BaseUSD)
		if err != nil {
			log.Error().Err(err).Str("network", net.Key).Msg("Volume measurement failed")
			return
		}
	}
	if done > measured {
		measured = done
	}

	deficit := r.cfg.TargetVolumeUSD - measured
	log.Info().
		Str("network", net.Key).
		Float64("measured_usd", measured).
		Float64("target_usd", r.cfg.TargetVolumeUSD).
		Float64("deficit_usd", deficit).
		Msg("Volume check")

	if deficit <= r.cfg.MinTradeUSD {
		return
	}

	r.closeDeficit(ctx, net, deficit, snap)
}

func (r *Rebalancer) closeDeficit(ctx context.Context, net *eth.Network, deficit float64, snap types.PriceSnapshot) {
	for attempt := 0; attempt < r.cfg.MaxAttempts && deficit > r.cfg.MinTradeUSD; attempt++ {
		if ctx.Err() != nil {
			return
		}

		amountBase := r.tradeSize(deficit, snap.BaseUSD, attempt)
		if amountBase <= 0 {
			return
		}

		tradeUSD := amountBase * snap.BaseUSD
		if err := r.trade(ctx, net, amountBase, attempt); err != nil {
			log.Warn().Err(err).
				Str("network", net.Key).
				Int("attempt", attempt).
				Msg("Volume trade failed")
		} else {
			deficit -= tradeUSD
			r.mu.Lock()
			r.accumulated[net.Key] += tradeUSD
			metrics.VolumeUSD.WithLabelValues(net.Key).Set(r.accumulated[net.Key])
			r.mu.Unlock()
			log.Info().
				Str("network", net.Key).
				Int("attempt", attempt).
				Float64("trade_usd", tradeUSD).
				Float64("remaining_deficit_usd", deficit).
				Msg("Volume trade done")
		}

		// Organic spacing between attempts, also avoids nonce contention.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(800+rand.Intn(300)) * time.Millisecond):
		}
	}
}

// tradeSize picks the next trade's base-asset amount: a uniform random
// multiplier of the deficit, damped by 1/sqrt(attempt+1), then clamped to
// the USD floor, the deficit-fraction ceiling and the optional absolute
// cap.
func (r *Rebalancer) tradeSize(deficitUSD, baseUSD float64, attempt int) float64 {
	if baseUSD <= 0 || deficitUSD <= 0 {
		return 0
	}

	base := deficitUSD / baseUSD
	multiplier := r.cfg.MinMultiplier + rand.Float64()*(r.cfg.MaxMultiplier-r.cfg.MinMultiplier)
	amount := base * multiplier / math.Sqrt(float64(attempt+1))

	lo := r.cfg.MinTradeUSD / baseUSD
	hi := r.cfg.MaxDeficitFraction * deficitUSD / baseUSD
	if r.cfg.MaxTradeBase > 0 && hi > r.cfg.MaxTradeBase {
		hi = r.cfg.MaxTradeBase
	}
	if hi < lo {
		return hi
	}
	if amount < lo {
		return lo
	}
	if amount > hi {
		return hi
	}
	return amount
}

// trade executes one alternating-direction swap: even attempts buy the
// traded token with base, odd attempts sell it back.
func (r *Rebalancer) trade(ctx context.Context, net *eth.Network, amountBase float64, attempt int) error {
	quote := r.quotes.Quote(ctx, net)
	if quote == nil {
		return fmt.Errorf("no quote available for %s", net.Key)
	}

	params := types.TradeParams{
		NetworkKey: net.Key,
		Fee:        quote.Fee,
		// Round-trip volume trades accept the pool price; slippage shows
		// up as spread cost, not as a failure.
		MinAmountOut: big.NewInt(0),
	}
	if attempt%2 == 0 {
		params.TokenIn = net.Base.Address
		params.TokenOut = net.Traded.Address
		params.AmountIn = toWei(amountBase, net.Base.Decimals)
	} else {
		params.TokenIn = net.Traded.Address
		params.TokenOut = net.Base.Address
		params.AmountIn = toWei(amountBase*quote.RateBaseToToken, net.Traded.Decimals)
	}

	r.tradeGate.Lock()
	res := r.trader.ExecuteTrade(ctx, params)
	r.tradeGate.Unlock()

	metrics.TradesTotal.WithLabelValues(net.Key, tradeResult(res)).Inc()
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	return nil
}

// onChainVolume approximates recent volume by replaying the pool's swap
// logs over a bounded block window. Each swap contributes its larger token
// magnitude, in human units, valued at the base USD price.
func (r *Rebalancer) onChainVolume(ctx context.Context, net *eth.Network, baseUSD float64) (float64, error) {
	client := net.Client()
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	from := uint64(0)
	if head > r.cfg.FallbackBlocks {
		from = head - r.cfg.FallbackBlocks
	}

	logs, err := client.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{net.Pool},
		Topics:    [][]common.Hash{{dex.SwapEventSignature}},
	})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, vLog := range logs {
		ev, ok := dex.DecodeSwap(net.Key, vLog)
		if !ok {
			continue
		}
		dec0, dec1 := net.Base.Decimals, net.Traded.Decimals
		if tradedIsToken0(net) {
			dec0, dec1 = net.Traded.Decimals, net.Base.Decimals
		}
		m0 := fromWei(new(big.Int).Abs(ev.Amount0), dec0)
		m1 := fromWei(new(big.Int).Abs(ev.Amount1), dec1)
		total += math.Max(m0, m1) * baseUSD
	}
	return total, nil
}

// Pools order their tokens by address, which the config also knows.
func tradedIsToken0(net *eth.Network) bool {
	return bytes.Compare(net.Traded.Address.Bytes(), net.Base.Address.Bytes()) < 0
}

func tradeResult(res types.TradeResult) string {
	if res.Success {
		return "success"
	}
	return "failure"
}

func toWei(amount float64, decimals uint8) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Mul(big.NewFloat(amount), scale).Int(nil)
	return out
}

func fromWei(amount *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return out
}
