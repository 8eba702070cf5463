// Package metrics exports telemetry.Telemetry snapshots as Prometheus
// gauges, grounded on
// _examples/VictorVVedtion-perp-dex/metrics/prometheus.go's Collector
// pattern. Snapshotting happens on a periodic ticker rather than on every
// matching-core event, which is the decoupling spec.md §9 calls for: the
// hot path never touches Prometheus bookkeeping.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattice-markets/matchcore/internal/telemetry"
)

const namespace = "matchcore"

// collector holds one gauge per field of telemetry.Snapshot, plus a derived
// pool reuse ratio gauge.
type collector struct {
	ordersTotal       prometheus.Gauge
	matchesTotal      prometheus.Gauge
	cancelsTotal      prometheus.Gauge
	staleCancelsTotal prometheus.Gauge
	errorsTotal       prometheus.Gauge
	allocsTotal       prometheus.Gauge
	reusedAllocsTotal prometheus.Gauge
	reuseRatio        prometheus.Gauge
	avgLatencyNS      prometheus.Gauge
	maxLatencyNS      prometheus.Gauge
	p50LatencyNS      prometheus.Gauge
	p90LatencyNS      prometheus.Gauge
	p99LatencyNS      prometheus.Gauge
	p999LatencyNS     prometheus.Gauge
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func newCollector() *collector {
	return &collector{
		ordersTotal:       gauge("orders_total", "Total orders submitted"),
		matchesTotal:      gauge("matches_total", "Total match events"),
		cancelsTotal:      gauge("cancels_total", "Total successful cancels"),
		staleCancelsTotal: gauge("stale_cancels_total", "Total cancels of unknown or already-filled orders"),
		errorsTotal:       gauge("errors_total", "Total errors recorded by the matching core"),
		allocsTotal:       gauge("pool_allocs_total", "Total order pool allocations"),
		reusedAllocsTotal: gauge("pool_reused_allocs_total", "Order pool allocations served from the free list"),
		reuseRatio:        gauge("pool_reuse_ratio_percent", "Percentage of allocations served from the free list"),
		avgLatencyNS:      gauge("latency_avg_ns", "Average order processing latency in nanoseconds"),
		maxLatencyNS:      gauge("latency_max_ns", "Maximum observed order processing latency in nanoseconds"),
		p50LatencyNS:      gauge("latency_p50_ns", "p50 order processing latency in nanoseconds"),
		p90LatencyNS:      gauge("latency_p90_ns", "p90 order processing latency in nanoseconds"),
		p99LatencyNS:      gauge("latency_p99_ns", "p99 order processing latency in nanoseconds"),
		p999LatencyNS:     gauge("latency_p999_ns", "p999 order processing latency in nanoseconds"),
	}
}

func (c *collector) register(reg *prometheus.Registry) {
	reg.MustRegister(
		c.ordersTotal, c.matchesTotal, c.cancelsTotal, c.staleCancelsTotal, c.errorsTotal,
		c.allocsTotal, c.reusedAllocsTotal, c.reuseRatio,
		c.avgLatencyNS, c.maxLatencyNS, c.p50LatencyNS, c.p90LatencyNS, c.p99LatencyNS, c.p999LatencyNS,
	)
}

func (c *collector) update(snap telemetry.Snapshot) {
	c.ordersTotal.Set(float64(snap.TotalOrders))
	c.matchesTotal.Set(float64(snap.MatchedOrders))
	c.cancelsTotal.Set(float64(snap.CancelledOrders))
	c.staleCancelsTotal.Set(float64(snap.StaleCancels))
	c.errorsTotal.Set(float64(snap.Errors))
	c.allocsTotal.Set(float64(snap.TotalAllocs))
	c.reusedAllocsTotal.Set(float64(snap.ReusedAllocs))
	if snap.TotalAllocs > 0 {
		c.reuseRatio.Set(100 * float64(snap.ReusedAllocs) / float64(snap.TotalAllocs))
	}
	c.avgLatencyNS.Set(snap.AvgLatencyNS)
	c.maxLatencyNS.Set(float64(snap.MaxLatencyNS))
	c.p50LatencyNS.Set(float64(snap.P50NS))
	c.p90LatencyNS.Set(float64(snap.P90NS))
	c.p99LatencyNS.Set(float64(snap.P99NS))
	c.p999LatencyNS.Set(float64(snap.P999NS))
}

// Exporter periodically snapshots a telemetry.Telemetry and serves the
// result over /metrics.
type Exporter struct {
	tel       *telemetry.Telemetry
	collector *collector
	registry  *prometheus.Registry
	interval  time.Duration
	server    *http.Server
}

// NewExporter builds an Exporter bound to addr, snapshotting tel every
// interval.
func NewExporter(tel *telemetry.Telemetry, addr string, interval time.Duration) *Exporter {
	reg := prometheus.NewRegistry()
	c := newCollector()
	c.register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Exporter{
		tel:       tel,
		collector: c,
		registry:  reg,
		interval:  interval,
		server:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Handler returns the exporter's /metrics HTTP handler directly, mainly for
// tests that want to scrape without binding a real listener.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Run serves /metrics and snapshots tel on a ticker until ctx is done.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- e.server.ListenAndServe() }()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ticker.C:
			e.collector.update(e.tel.Snapshot())
		}
	}
}
