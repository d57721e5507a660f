package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lohit-dev/arb-vol/internal/config"
)

// Analytics reads per-pair trading statistics from an external indexer.
// Used by the volume rebalancer to learn how much volume the pool already
// did today; on failure callers fall back to counting on-chain swaps.
type Analytics struct {
	url    string
	client *http.Client
}

func NewAnalytics(cfg config.AnalyticsConfig) *Analytics {
	return &Analytics{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type pairStats struct {
	Pairs []struct {
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
	} `json:"pairs"`
}

// PairVolume24h returns the pair's trailing 24h USD volume.
func (a *Analytics) PairVolume24h(ctx context.Context, chainName, pairAddress string) (float64, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", a.url, strings.ToLower(chainName), strings.ToLower(pairAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("analytics API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var stats pairStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("malformed analytics response: %w", err)
	}
	if len(stats.Pairs) == 0 {
		return 0, fmt.Errorf("no pair data for %s on %s", pairAddress, chainName)
	}

	return stats.Pairs[0].Volume.H24, nil
}
