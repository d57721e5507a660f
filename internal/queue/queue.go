package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// ScanFunc is the single consumer of queue wake-ups. A returned error
// counts toward the consecutive-error backoff; nil resets it.
type ScanFunc func(ctx context.Context) error

// Queue buffers swap-event wake-ups and drains them on a fixed tick into a
// single scan callback. Events are signals, not data: a drain discards the
// buffered payloads because the scan re-reads chain state anyway, so the
// bounded buffer may drop oldest entries on overflow without losing
// correctness.
type Queue struct {
	cfg  config.QueueConfig
	scan ScanFunc

	mu            sync.Mutex
	buffer        []types.SwapEvent
	processing    bool
	enabled       bool
	lastProcessed time.Time
	errorCount    int
	lastError     time.Time
}

func New(cfg config.QueueConfig, scan ScanFunc) *Queue {
	return &Queue{
		cfg:     cfg,
		scan:    scan,
		buffer:  make([]types.SwapEvent, 0, cfg.Capacity),
		enabled: true,
	}
}

// OnEvent buffers one wake-up signal. On overflow the oldest entry is
// dropped so the newest is always retained.
func (q *Queue) OnEvent(ev types.SwapEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.enabled {
		return
	}
	if len(q.buffer) >= q.cfg.Capacity {
		dropped := q.buffer[0]
		q.buffer = q.buffer[1:]
		log.Warn().
			Str("network", dropped.NetworkKey).
			Str("tx", dropped.TxHash.Hex()).
			Int("capacity", q.cfg.Capacity).
			Msg("Event buffer full, dropping oldest")
	}
	q.buffer = append(q.buffer, ev)
}

// Len returns the current buffer depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Run drives the drain loop until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

func (q *Queue) tick(ctx context.Context) {
	q.mu.Lock()
	if !q.enabled || len(q.buffer) == 0 || q.shouldSkipLocked() {
		q.mu.Unlock()
		return
	}
	drained := len(q.buffer)
	q.buffer = q.buffer[:0]
	q.processing = true
	q.mu.Unlock()

	log.Debug().Int("drained", drained).Msg("Draining event buffer")

	err := q.scan(ctx)

	q.mu.Lock()
	q.processing = false
	q.lastProcessed = time.Now()
	if err != nil {
		q.errorCount++
		q.lastError = time.Now()
		log.Warn().Err(err).Int("consecutive_errors", q.errorCount).Msg("Scan failed")
	} else {
		q.errorCount = 0
	}
	q.mu.Unlock()
}

// ShouldSkip reports whether new work must be deferred: a scan is in
// flight, the error backoff window is active, or the cooldown since the
// last scan has not elapsed. An expired backoff window resets the error
// counter as a side effect.
func (q *Queue) ShouldSkip() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shouldSkipLocked()
}

func (q *Queue) shouldSkipLocked() bool {
	if q.processing {
		return true
	}
	if q.errorCount >= q.cfg.MaxErrors {
		if time.Since(q.lastError) < q.cfg.ErrorBackoff {
			return true
		}
		log.Info().Int("errors", q.errorCount).Msg("Error backoff elapsed, resuming")
		q.errorCount = 0
	}
	if !q.lastProcessed.IsZero() && time.Since(q.lastProcessed) < q.cfg.Cooldown {
		return true
	}
	return false
}

// Stop disables the queue and clears the buffer. Idempotent; used only at
// shutdown.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled {
		return
	}
	q.enabled = false
	q.buffer = nil
	log.Info().Msg("Event queue stopped")
}
