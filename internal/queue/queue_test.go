package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

func testConfig() config.QueueConfig {
	return config.QueueConfig{
		Capacity:     100,
		TickInterval: 3 * time.Second,
		Cooldown:     time.Second,
		MaxErrors:    5,
		ErrorBackoff: 30 * time.Second,
	}
}

func event(i int) types.SwapEvent {
	return types.SwapEvent{
		NetworkKey: "n1",
		TxHash:     common.HexToHash(fmt.Sprintf("0x%064x", i)),
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 3
	q := New(cfg, func(context.Context) error { return nil })

	for i := 0; i < 5; i++ {
		q.OnEvent(event(i))
	}

	if got := q.Len(); got != 3 {
		t.Fatalf("buffer length = %d, want 3", got)
	}
	if q.buffer[0].TxHash != event(2).TxHash {
		t.Errorf("oldest surviving event = %s, want the third pushed", q.buffer[0].TxHash.Hex())
	}
	if q.buffer[2].TxHash != event(4).TxHash {
		t.Errorf("newest event = %s, want the last pushed", q.buffer[2].TxHash.Hex())
	}
}

func TestTickDrainsBufferIntoSingleScan(t *testing.T) {
	var calls int
	q := New(testConfig(), func(context.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 10; i++ {
		q.OnEvent(event(i))
	}
	q.tick(context.Background())

	if calls != 1 {
		t.Errorf("scan calls = %d, want 1 per drain", calls)
	}
	if q.Len() != 0 {
		t.Errorf("buffer length after drain = %d, want 0", q.Len())
	}
}

func TestShouldSkipDuringProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(testConfig(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	q.OnEvent(event(0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.tick(context.Background())
	}()

	<-started
	if !q.ShouldSkip() {
		t.Error("ShouldSkip() = false while a scan is in flight")
	}
	close(release)
	wg.Wait()
}

func TestErrorBackoff(t *testing.T) {
	q := New(testConfig(), func(context.Context) error { return nil })

	q.errorCount = 5
	q.lastError = time.Now().Add(-10 * time.Second)
	if !q.ShouldSkip() {
		t.Error("ShouldSkip() = false with 5 consecutive errors inside the 30s window")
	}
	if q.errorCount != 5 {
		t.Errorf("error count changed inside backoff window: %d", q.errorCount)
	}

	q.lastError = time.Now().Add(-31 * time.Second)
	if q.ShouldSkip() {
		t.Error("ShouldSkip() = true after the backoff window elapsed")
	}
	if q.errorCount != 0 {
		t.Errorf("error count = %d after backoff elapsed, want 0", q.errorCount)
	}
}

func TestCooldown(t *testing.T) {
	q := New(testConfig(), func(context.Context) error { return nil })

	q.lastProcessed = time.Now()
	if !q.ShouldSkip() {
		t.Error("ShouldSkip() = false inside the cooldown window")
	}

	q.lastProcessed = time.Now().Add(-2 * time.Second)
	if q.ShouldSkip() {
		t.Error("ShouldSkip() = true after the cooldown elapsed")
	}
}

func TestScanErrorsFeedTheCounter(t *testing.T) {
	q := New(testConfig(), func(context.Context) error { return errors.New("leg failed") })

	for i := 0; i < 3; i++ {
		q.OnEvent(event(i))
		q.lastProcessed = time.Time{}
		q.tick(context.Background())
	}
	if q.errorCount != 3 {
		t.Fatalf("error count = %d, want 3", q.errorCount)
	}

	q.scan = func(context.Context) error { return nil }
	q.OnEvent(event(9))
	q.lastProcessed = time.Time{}
	q.tick(context.Background())
	if q.errorCount != 0 {
		t.Errorf("error count = %d after a clean scan, want 0", q.errorCount)
	}
}

func TestStopClearsAndDisables(t *testing.T) {
	var calls int
	q := New(testConfig(), func(context.Context) error {
		calls++
		return nil
	})

	q.OnEvent(event(0))
	q.Stop()
	q.Stop() // idempotent

	if q.Len() != 0 {
		t.Errorf("buffer length after Stop = %d, want 0", q.Len())
	}

	q.OnEvent(event(1))
	q.tick(context.Background())
	if calls != 0 || q.Len() != 0 {
		t.Errorf("stopped queue still accepted or processed work: calls=%d len=%d", calls, q.Len())
	}
}
