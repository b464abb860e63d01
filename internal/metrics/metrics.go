// Package metrics exposes the Prometheus /metrics endpoint named in the
// ambient stack: live connections, rejected connections, oversize
// rejections, per-state connection counts, and worker-pool rejected
// submissions, pulled from internal/httpserver.Server and
// internal/workerpool.Pool snapshots on every scrape rather than pushed
// per-event.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// ReactorStatter reports a point-in-time snapshot of the reactor's
// connection registry. Implemented by *httpserver.Server.
type ReactorStatter interface {
	Stats() httpserver.Stats
}

// PoolStatter reports worker-pool backpressure counters. Implemented by
// *workerpool.Pool.
type PoolStatter interface {
	Rejected() int64
}

// Collector is a prometheus.Collector that reads live gauges from the
// reactor and worker pool on every scrape.
type Collector struct {
	server ReactorStatter
	pool   PoolStatter

	connections         *prometheus.Desc
	rejectedConnections *prometheus.Desc
	oversizeRejections  *prometheus.Desc
	stateHistogram      *prometheus.Desc
	workerPoolRejected  *prometheus.Desc
}

// NewCollector builds a Collector. pool may be nil when no worker pool is
// configured, in which case worker_pool_rejected is omitted.
func NewCollector(server ReactorStatter, pool PoolStatter) *Collector {
	return &Collector{
		server: server,
		pool:   pool,
		connections: prometheus.NewDesc(
			"sentinelcore_connections", "Live registered connections.", nil, nil),
		rejectedConnections: prometheus.NewDesc(
			"sentinelcore_rejected_connections_total", "Connections rejected at the accept queue (over MaxConnections).", nil, nil),
		oversizeRejections: prometheus.NewDesc(
			"sentinelcore_oversize_rejections_total", "Requests rejected for exceeding a size limit (413).", nil, nil),
		stateHistogram: prometheus.NewDesc(
			"sentinelcore_connection_state", "Live connections currently holding a given StateSet flag.", []string{"state"}, nil),
		workerPoolRejected: prometheus.NewDesc(
			"sentinelcore_worker_pool_rejected_total", "Worker pool Submit calls dropped due to backlog pressure.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.rejectedConnections
	ch <- c.oversizeRejections
	ch <- c.stateHistogram
	ch <- c.workerPoolRejected
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.server.Stats()
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(stats.Connections))
	ch <- prometheus.MustNewConstMetric(c.rejectedConnections, prometheus.CounterValue, float64(stats.RejectedConnections))
	ch <- prometheus.MustNewConstMetric(c.oversizeRejections, prometheus.CounterValue, float64(stats.OversizeRejections))
	for state, count := range stats.StateHistogram {
		ch <- prometheus.MustNewConstMetric(c.stateHistogram, prometheus.GaugeValue, float64(count), state)
	}
	if c.pool != nil {
		ch <- prometheus.MustNewConstMetric(c.workerPoolRejected, prometheus.CounterValue, float64(c.pool.Rejected()))
	}
}

// Handler registers a Collector on a fresh registry and returns the
// standard promhttp.Handler, wrapped for serving via net/http (the
// metrics listener runs as its own net/http.Server on MetricsConfig.Addr,
// separate from the reactor-driven main listener, since Prometheus
// scraping is not latency-sensitive enough to justify a reactor-native
// implementation).
func Handler(collector *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
