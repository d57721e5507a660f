package output

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/internal/metrics"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// Setup configures the global logger. Console format is for humans at a
// terminal; json for log shippers.
func Setup(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// PendingSource exposes in-flight arbitrage records.
type PendingSource interface {
	Pending() []types.PendingArbitrage
}

// DepthSource exposes the event buffer depth.
type DepthSource interface {
	Len() int
}

// StatsLogger periodically emits a one-line operational summary so a quiet
// bot is distinguishable from a dead one.
type StatsLogger struct {
	interval time.Duration
	pending  PendingSource
	depth    DepthSource
}

func NewStatsLogger(interval time.Duration, pending PendingSource, depth DepthSource) *StatsLogger {
	return &StatsLogger{interval: interval, pending: pending, depth: depth}
}

// Run blocks until ctx is cancelled.
func (s *StatsLogger) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emit()
		}
	}
}

func (s *StatsLogger) emit() {
	records := s.pending.Pending()
	byStatus := make(map[types.ArbitrageStatus]int)
	for _, pa := range records {
		byStatus[pa.Status]++
	}

	depth := s.depth.Len()
	metrics.QueueDepth.Set(float64(depth))

	log.Info().
		Int("queue_depth", depth).
		Int("pending", byStatus[types.StatusPending]+byStatus[types.StatusExecuting]).
		Int("completed", byStatus[types.StatusCompleted]).
		Int("failed", byStatus[types.StatusFailed]).
		Msg("Status")
}
