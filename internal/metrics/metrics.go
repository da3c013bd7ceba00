// Package metrics exposes Prometheus instruments for the fetch pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Per-symbol request results.
const (
	ResultOK      = "ok"
	ResultNoData  = "no_data"
	ResultFailure = "transport_error"
)

// Metrics holds the instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	staleCycles    prometheus.Counter
	symbolRequests *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	snapshotQuotes prometheus.Gauge
}

// New registers all instruments under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "quoteboard"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cycles_total",
			Help:      "Fetch cycles by outcome.",
		}, []string{"outcome"}),
		staleCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_cycles_total",
			Help:      "Finished cycles whose result was discarded because a newer refresh superseded them.",
		}),
		symbolRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_requests_total",
			Help:      "Per-symbol provider requests by result.",
		}, []string{"provider", "result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_cycle_duration_seconds",
			Help:      "Wall time of a full fetch cycle.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		snapshotQuotes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_quotes",
			Help:      "Quotes in the current snapshot.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The methods below are nil-safe so components can run without metrics.

func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ObserveStale counts a cycle the board discarded. The cycle itself is already counted
// by ObserveCycle.
func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.staleCycles.Inc()
}

func (m *Metrics) ObserveSymbol(providerName, result string) {
	if m == nil {
		return
	}
	m.symbolRequests.WithLabelValues(providerName, result).Inc()
}

func (m *Metrics) SetSnapshotQuotes(n int) {
	if m == nil {
		return
	}
	m.snapshotQuotes.Set(float64(n))
}
