package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/internal/metrics"
	"github.com/lohit-dev/arb-vol/internal/notify"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// NetworkSource looks up configured network handles.
type NetworkSource interface {
	Get(key string) (*eth.Network, error)
	All() []*eth.Network
}

// PoolService resolves live pool state for a network.
type PoolService interface {
	Resolve(ctx context.Context, net *eth.Network) types.PoolInfo
}

// QuoteService produces round-trip exchange rates for a network.
type QuoteService interface {
	Quote(ctx context.Context, net *eth.Network) *types.Quote
}

// PriceSource provides external USD reference prices.
type PriceSource interface {
	Snapshot(ctx context.Context) (types.PriceSnapshot, error)
}

// TradeService executes single swap legs and reads token balances.
type TradeService interface {
	ExecuteTrade(ctx context.Context, params types.TradeParams) types.TradeResult
	TokenBalance(ctx context.Context, networkKey string, token common.Address) (*big.Int, error)
}

// Orchestrator sequences the scan-decide-execute pipeline between exactly
// two networks. A scan never overlaps itself and at most one two-leg
// execution is in flight per instance. The trade gate is shared with the
// volume rebalancer so both subsystems never sign transactions
// concurrently.
type Orchestrator struct {
	cfg      config.ArbitrageConfig
	networks NetworkSource
	pools    PoolService
	quotes   QuoteService
	prices   PriceSource
	trader   TradeService
	calc     *Calculator
	notifier *notify.Notifier

	tradeGate *sync.Mutex
	scanning  atomic.Bool

	mu      sync.Mutex
	pending map[string]*types.PendingArbitrage
}

func NewOrchestrator(
	cfg config.ArbitrageConfig,
	networks NetworkSource,
	pools PoolService,
	quotes QuoteService,
	prices PriceSource,
	trader TradeService,
	calc *Calculator,
	notifier *notify.Notifier,
	tradeGate *sync.Mutex,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		networks:  networks,
		pools:     pools,
		quotes:    quotes,
		prices:    prices,
		trader:    trader,
		calc:      calc,
		notifier:  notifier,
		tradeGate: tradeGate,
		pending:   make(map[string]*types.PendingArbitrage),
	}
}

// Scan runs one full pipeline pass. Re-entry while a scan is in flight
// returns immediately with no error. The returned error reflects execution
// failures only; an unavailable network or price feed skips the cycle
// silently.
func (o *Orchestrator) Scan(ctx context.Context) error {
	if !o.scanning.CompareAndSwap(false, true) {
		log.Debug().Msg("Scan already in flight, skipping")
		return nil
	}
	defer o.scanning.Store(false)

	nets := o.networks.All()

	var (
		wg      sync.WaitGroup
		snap    types.PriceSnapshot
		snapErr error
		quotes  = make([]*types.Quote, len(nets))
		infos   = make([]types.PoolInfo, len(nets))
	)

	wg.Add(1 + len(nets))
	go func() {
		defer wg.Done()
		snap, snapErr = o.prices.Snapshot(ctx)
	}()
	for i, net := range nets {
		go func(i int, net *eth.Network) {
			defer wg.Done()
			quotes[i] = o.quotes.Quote(ctx, net)
			infos[i] = o.pools.Resolve(ctx, net)
		}(i, net)
	}
	wg.Wait()

	if snapErr != nil {
		log.Warn().Err(snapErr).Msg("No USD reference price, skipping scan")
		return nil
	}
	for i, q := range quotes {
		if q == nil {
			log.Warn().Str("network", nets[i].Key).Msg("Network unavailable this cycle, skipping scan")
			return nil
		}
	}

	reserves := make(map[string]*types.PoolReserves, len(nets))
	for i, info := range infos {
		if info.IsValid {
			reserves[nets[i].Key] = info.Reserves
		}
	}

	opp := o.calc.Evaluate(quotes[0], quotes[1], snap, reserves)
	if opp == nil {
		return nil
	}
	metrics.ScansTotal.Inc()
	metrics.DeviationPercent.Set(opp.DeviationPercent)

	log.Info().
		Str("cheap", opp.CheapNetwork).
		Str("expensive", opp.ExpensiveNetwork).
		Float64("cheap_usd", opp.CheapPriceUSD).
		Float64("expensive_usd", opp.ExpensivePriceUSD).
		Float64("deviation_pct", opp.DeviationPercent).
		Float64("optimal_amount", opp.OptimalAmount).
		Msg("Scan complete")

	switch {
	case opp.DeviationPercent <= o.cfg.BalancePercent:
		log.Debug().Float64("deviation_pct", opp.DeviationPercent).Msg("Markets balanced, nothing to do")
		metrics.OpportunitiesTotal.WithLabelValues("balanced").Inc()
		return nil
	case opp.DeviationPercent < o.cfg.MinProfitPercent:
		metrics.OpportunitiesTotal.WithLabelValues("below_threshold").Inc()
		return nil
	}

	canTrade := true
	for _, net := range nets {
		if !net.CanTrade() {
			canTrade = false
		}
	}
	if !canTrade || !o.cfg.Execute {
		log.Info().
			Float64("deviation_pct", opp.DeviationPercent).
			Msg("Profitable deviation observed but trading is disabled")
		metrics.OpportunitiesTotal.WithLabelValues("observed_only").Inc()
		return nil
	}
	if opp.OptimalAmount <= 0 {
		log.Info().Msg("No profitable trade size for current reserves")
		metrics.OpportunitiesTotal.WithLabelValues("unsizable").Inc()
		return nil
	}

	metrics.OpportunitiesTotal.WithLabelValues("executed").Inc()
	return o.executeArbitrage(ctx, opp, quotes)
}

// executeArbitrage runs the two-leg trade: buy on the cheap network, wait
// for settlement, measure the actual received amount by balance delta, sell
// that exact amount on the expensive network.
func (o *Orchestrator) executeArbitrage(ctx context.Context, opp *types.Opportunity, quotes []*types.Quote) error {
	o.tradeGate.Lock()
	defer o.tradeGate.Unlock()

	buyNet, err := o.networks.Get(opp.CheapNetwork)
	if err != nil {
		return err
	}
	sellNet, err := o.networks.Get(opp.ExpensiveNetwork)
	if err != nil {
		return err
	}

	var buyQuote, sellQuote *types.Quote
	for _, q := range quotes {
		switch q.NetworkKey {
		case opp.CheapNetwork:
			buyQuote = q
		case opp.ExpensiveNetwork:
			sellQuote = q
		}
	}
	if buyQuote == nil || sellQuote == nil {
		return fmt.Errorf("missing quotes for arbitrage legs")
	}

	pa := o.newPending(opp)

	amount := opp.OptimalAmount
	if o.cfg.MaxTradeAmount > 0 && amount > o.cfg.MaxTradeAmount {
		amount = o.cfg.MaxTradeAmount
	}

	// The buy leg spends base to acquire roughly `amount` traded tokens.
	baseIn := toWei(amount*buyQuote.RateTokenToBase, buyNet.Base.Decimals)
	minOut := toWei(amount*(1-o.cfg.SlippagePercent/100), buyNet.Traded.Decimals)

	before, err := o.trader.TokenBalance(ctx, buyNet.Key, buyNet.Traded.Address)
	if err != nil {
		return o.fail(pa, fmt.Errorf("pre-trade balance read failed: %w", err))
	}

	o.transition(pa, types.StatusExecuting)

	buyRes := o.trader.ExecuteTrade(ctx, types.TradeParams{
		NetworkKey:   buyNet.Key,
		TokenIn:      buyNet.Base.Address,
		TokenOut:     buyNet.Traded.Address,
		Fee:          buyQuote.Fee,
		AmountIn:     baseIn,
		MinAmountOut: minOut,
	})
	metrics.TradesTotal.WithLabelValues(buyNet.Key, result(buyRes)).Inc()
	if !buyRes.Success {
		return o.fail(pa, fmt.Errorf("buy leg failed on %s: %s", buyNet.Key, buyRes.Error))
	}
	o.mu.Lock()
	pa.BuyTxHash = buyRes.TxHash
	o.mu.Unlock()

	// Confirmation propagation. The receipt is mined but balance reads can
	// lag on some providers.
	select {
	case <-ctx.Done():
		return o.fail(pa, ctx.Err())
	case <-time.After(o.cfg.SettleDelay):
	}

	after, err := o.trader.TokenBalance(ctx, buyNet.Key, buyNet.Traded.Address)
	if err != nil {
		return o.fail(pa, fmt.Errorf("post-trade balance read failed: %w", err))
	}

	// Sell exactly what the buy leg actually delivered, not the nominal
	// size; on-chain fees and slippage make the two differ.
	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return o.fail(pa, fmt.Errorf("buy leg confirmed but no traded tokens received"))
	}
	receivedHuman := fromWei(received, buyNet.Traded.Decimals)

	sellIn := toWei(receivedHuman, sellNet.Traded.Decimals)
	sellMinOut := toWei(receivedHuman*sellQuote.RateTokenToBase*(1-o.cfg.SlippagePercent/100), sellNet.Base.Decimals)

	sellRes := o.trader.ExecuteTrade(ctx, types.TradeParams{
		NetworkKey:   sellNet.Key,
		TokenIn:      sellNet.Traded.Address,
		TokenOut:     sellNet.Base.Address,
		Fee:          sellQuote.Fee,
		AmountIn:     sellIn,
		MinAmountOut: sellMinOut,
	})
	metrics.TradesTotal.WithLabelValues(sellNet.Key, result(sellRes)).Inc()
	if !sellRes.Success {
		return o.fail(pa, fmt.Errorf("sell leg failed on %s: %s", sellNet.Key, sellRes.Error))
	}
	o.mu.Lock()
	pa.SellTxHash = sellRes.TxHash
	o.mu.Unlock()

	o.transition(pa, types.StatusCompleted)

	log.Info().
		Str("id", pa.ID).
		Str("buy_tx", pa.BuyTxHash.Hex()).
		Str("sell_tx", pa.SellTxHash.Hex()).
		Float64("amount", receivedHuman).
		Msg("Arbitrage completed")
	o.notifier.Send("Arbitrage completed",
		fmt.Sprintf("bought %.6f on %s, sold on %s (deviation %.2f%%)",
			receivedHuman, buyNet.Key, sellNet.Key, opp.DeviationPercent))

	return nil
}

func (o *Orchestrator) newPending(opp *types.Opportunity) *types.PendingArbitrage {
	pa := &types.PendingArbitrage{
		ID:          fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), rand.Intn(10000)),
		BuyNetwork:  opp.CheapNetwork,
		SellNetwork: opp.ExpensiveNetwork,
		Status:      types.StatusPending,
		CreatedAt:   time.Now(),
	}
	o.mu.Lock()
	o.pending[pa.ID] = pa
	o.mu.Unlock()
	return pa
}

func (o *Orchestrator) transition(pa *types.PendingArbitrage, status types.ArbitrageStatus) {
	o.mu.Lock()
	pa.Status = status
	o.mu.Unlock()
}

func (o *Orchestrator) fail(pa *types.PendingArbitrage, err error) error {
	o.mu.Lock()
	pa.Status = types.StatusFailed
	pa.Error = err.Error()
	o.mu.Unlock()

	log.Error().Err(err).Str("id", pa.ID).Msg("Arbitrage failed")
	o.notifier.Send("Arbitrage failed", err.Error())
	return err
}

// Pending returns a snapshot of the in-memory attempt records, for stats
// logging.
func (o *Orchestrator) Pending() []types.PendingArbitrage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.PendingArbitrage, 0, len(o.pending))
	for _, pa := range o.pending {
		out = append(out, *pa)
	}
	return out
}

// RunGC removes attempt records once they outlive the configured TTL.
// These records are a diagnostic buffer, not a ledger; removal happens
// regardless of terminal state. Blocks until ctx is cancelled.
func (o *Orchestrator) RunGC(ctx context.Context) {
	interval := o.cfg.PendingTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			for id, pa := range o.pending {
				if time.Since(pa.CreatedAt) >= o.cfg.PendingTTL {
					delete(o.pending, id)
				}
			}
			o.mu.Unlock()
		}
	}
}

func result(res types.TradeResult) string {
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
