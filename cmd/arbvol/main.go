package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/arbitrage"
	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/internal/dex"
	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/internal/metrics"
	"github.com/lohit-dev/arb-vol/internal/notify"
	"github.com/lohit-dev/arb-vol/internal/output"
	"github.com/lohit-dev/arb-vol/internal/pricefeed"
	"github.com/lohit-dev/arb-vol/internal/queue"
	"github.com/lohit-dev/arb-vol/internal/trader"
	"github.com/lohit-dev/arb-vol/internal/volume"
)

const statsInterval = 30 * time.Second

func main() {
	// A missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	output.Setup(cfg.Logging)

	registry, err := eth.NewRegistry(cfg.Networks, cfg.RPC, cfg.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect networks")
	}
	defer registry.Close()

	for _, net := range registry.All() {
		log.Info().
			Str("network", net.Key).
			Str("chain_id", net.ChainID.String()).
			Str("pool", net.Pool.Hex()).
			Bool("can_trade", net.CanTrade()).
			Msg("Network ready")
	}

	pools := dex.NewPoolResolver()
	quoter := dex.NewQuoter(pools)
	feed := pricefeed.NewFeed(cfg.PriceFeed, cfg.Networks[0].Base.Symbol, cfg.Networks[0].Traded.Symbol)
	analytics := pricefeed.NewAnalytics(cfg.Analytics)
	notifier := notify.New(cfg.Notify)
	executor := trader.NewExecutor(registry, notifier)

	gasPerSwap := make(map[string]uint64)
	for _, net := range registry.All() {
		gasPerSwap[net.Key] = net.GasPerSwap
	}
	calc := arbitrage.NewCalculator(gasPerSwap)

	// One gate serializes every transaction-signing path across the
	// arbitrage and volume subsystems; both share a signer and nonce
	// collisions are not recoverable mid-flight.
	tradeGate := &sync.Mutex{}

	orch := arbitrage.NewOrchestrator(cfg.Arbitrage, registry, pools, quoter, feed, executor, calc, notifier, tradeGate)
	eventQueue := queue.New(cfg.Queue, orch.Scan)
	rebalancer := volume.NewRebalancer(cfg.Volume, registry, analytics, feed, quoter, executor, tradeGate)
	stats := output.NewStatsLogger(statsInterval, orch, eventQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	run(func(ctx context.Context) { metrics.Serve(ctx, cfg.Metrics.ListenAddr) })
	run(eventQueue.Run)
	run(orch.RunGC)
	run(rebalancer.Run)
	run(stats.Run)
	for _, net := range registry.All() {
		watcher := dex.NewWatcher(net, executor, eventQueue.OnEvent)
		run(watcher.Run)
	}

	notifier.Send("Bot started", fmt.Sprintf("monitoring %v", registry.Keys()))

	// Initial scan so a quiet market still gets one baseline observation.
	run(func(ctx context.Context) {
		if err := orch.Scan(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial scan failed")
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	eventQueue.Stop()
	cancel()
	wg.Wait()

	notifier.SendSync("Bot stopped", "shutdown complete")
	log.Info().Msg("Shutdown complete")
}
