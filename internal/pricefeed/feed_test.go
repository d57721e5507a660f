package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lohit-dev/arb-vol/internal/config"
)

func feedConfig(url string) config.PriceFeedConfig {
	return config.PriceFeedConfig{
		URL:         url,
		APIKeys:     []string{"key-a", "key-b"},
		MinInterval: 10 * time.Second,
		Timeout:     2 * time.Second,
	}
}

func TestSnapshotParsesPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"WETH":{"USD":2000.5},"TKN":{"USD":19.05}}`)
	}))
	defer srv.Close()

	f := NewFeed(feedConfig(srv.URL), "WETH", "TKN")
	snap, err := f.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.BaseUSD != 2000.5 {
		t.Errorf("base USD = %v, want 2000.5", snap.BaseUSD)
	}
	if snap.TradedUSD != 19.05 {
		t.Errorf("traded USD = %v, want 19.05", snap.TradedUSD)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("snapshot missing fetch timestamp")
	}
}

func TestSnapshotCachesWithinMinInterval(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"WETH":{"USD":2000}}`)
	}))
	defer srv.Close()

	f := NewFeed(feedConfig(srv.URL), "WETH", "TKN")
	for i := 0; i < 5; i++ {
		if _, err := f.Snapshot(context.Background()); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	}
	if hits != 1 {
		t.Errorf("upstream hits = %d within the throttle window, want 1", hits)
	}
}

func TestSnapshotRotatesKeyOnRateLimit(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.URL.Query().Get("api_key"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"WETH":{"USD":2000}}`)
	}))
	defer srv.Close()

	cfg := feedConfig(srv.URL)
	cfg.MinInterval = 0
	f := NewFeed(cfg, "WETH", "TKN")

	if _, err := f.Snapshot(context.Background()); err == nil {
		t.Fatal("expected an error on the rate-limited fetch")
	}
	if _, err := f.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() after rotation error = %v", err)
	}

	if len(keys) != 2 || keys[0] != "key-a" || keys[1] != "key-b" {
		t.Errorf("key sequence = %v, want [key-a key-b]", keys)
	}
}

func TestSnapshotServesStaleOnFailure(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"WETH":{"USD":1234}}`)
	}))
	defer srv.Close()

	cfg := feedConfig(srv.URL)
	cfg.MinInterval = 0
	f := NewFeed(cfg, "WETH", "TKN")

	if _, err := f.Snapshot(context.Background()); err != nil {
		t.Fatalf("warm-up Snapshot() error = %v", err)
	}

	fail = true
	snap, err := f.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() with warm cache error = %v", err)
	}
	if snap.BaseUSD != 1234 {
		t.Errorf("stale base USD = %v, want 1234", snap.BaseUSD)
	}
}

func TestSnapshotErrorsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFeed(feedConfig(srv.URL), "WETH", "TKN")
	if _, err := f.Snapshot(context.Background()); err == nil {
		t.Fatal("expected an error with no cached snapshot")
	}
}
