package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

const userAgent = "arb-vol/1.0"

// Feed fetches USD reference prices from an external multi-price API and
// caches them. Responses are throttled to one upstream request per
// MinInterval; concurrent callers within the window share the cached
// snapshot. API keys rotate on rate-limit responses.
type Feed struct {
	url         string
	keys        []string
	minInterval time.Duration
	client      *http.Client

	baseSymbol   string
	tradedSymbol string

	mu       sync.Mutex
	keyIndex int
	cached   types.PriceSnapshot
}

func NewFeed(cfg config.PriceFeedConfig, baseSymbol, tradedSymbol string) *Feed {
	return &Feed{
		url:          cfg.URL,
		keys:         cfg.APIKeys,
		minInterval:  cfg.MinInterval,
		client:       &http.Client{Timeout: cfg.Timeout},
		baseSymbol:   strings.ToUpper(baseSymbol),
		tradedSymbol: strings.ToUpper(tradedSymbol),
	}
}

// Snapshot returns current USD prices for the monitored pair. Within
// MinInterval of the last successful fetch the cached snapshot is returned
// without touching the network. A stale cache plus a failed fetch is an
// error; callers treat that as "skip this cycle", never as price zero.
func (f *Feed) Snapshot(ctx context.Context) (types.PriceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.cached.FetchedAt.IsZero() && time.Since(f.cached.FetchedAt) < f.minInterval {
		return f.cached, nil
	}

	snap, err := f.fetch(ctx)
	if err != nil {
		if !f.cached.FetchedAt.IsZero() {
			log.Warn().Err(err).Msg("Price fetch failed, serving last known prices")
			return f.cached, nil
		}
		return types.PriceSnapshot{}, err
	}

	f.cached = snap
	return snap, nil
}

func (f *Feed) fetch(ctx context.Context) (types.PriceSnapshot, error) {
	q := url.Values{}
	q.Set("fsyms", f.baseSymbol+","+f.tradedSymbol)
	q.Set("tsyms", "USD")
	if key := f.currentKey(); key != "" {
		q.Set("api_key", key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"?"+q.Encode(), nil)
	if err != nil {
		return types.PriceSnapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return types.PriceSnapshot{}, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		f.rotateKey()
		return types.PriceSnapshot{}, fmt.Errorf("price API rate limited (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return types.PriceSnapshot{}, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.PriceSnapshot{}, err
	}

	// Shape: {"ETH": {"USD": 2000.5}, "TOKEN": {"USD": 1.2}}
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return types.PriceSnapshot{}, fmt.Errorf("malformed price response: %w", err)
	}

	baseUSD := prices[f.baseSymbol]["USD"]
	if baseUSD <= 0 {
		return types.PriceSnapshot{}, fmt.Errorf("no USD price for %s in response", f.baseSymbol)
	}

	return types.PriceSnapshot{
		BaseUSD:   baseUSD,
		TradedUSD: prices[f.tradedSymbol]["USD"],
		FetchedAt: time.Now(),
	}, nil
}

func (f *Feed) currentKey() string {
	if len(f.keys) == 0 {
		return ""
	}
	return f.keys[f.keyIndex%len(f.keys)]
}

// rotateKey advances to the next configured key. Called under f.mu.
func (f *Feed) rotateKey() {
	if len(f.keys) < 2 {
		return
	}
	f.keyIndex = (f.keyIndex + 1) % len(f.keys)
	log.Info().Int("key_index", f.keyIndex).Msg("Rotated price API key")
}
