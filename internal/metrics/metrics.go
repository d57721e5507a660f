package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbvol_scans_total",
		Help: "Completed opportunity scans.",
	})

	OpportunitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbvol_opportunities_total",
		Help: "Detected opportunities by outcome.",
	}, []string{"outcome"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbvol_trades_total",
		Help: "Submitted trades by network and result.",
	}, []string{"network", "result"})

	DeviationPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbvol_deviation_percent",
		Help: "Last observed price deviation between networks.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbvol_queue_depth",
		Help: "Buffered swap events awaiting a scan.",
	})

	VolumeUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbvol_volume_usd",
		Help: "Accumulated rebalancer volume this period, by network.",
	}, []string{"network"})
)

// Serve exposes the prometheus endpoint until ctx is cancelled. No-op when
// addr is empty.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
