package migration

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run results recorded in sqlschema_runs_total.
const (
	ResultCurrent = "current"
	ResultApplied = "applied"
	ResultVetoed  = "vetoed"
	ResultFailed  = "failed"
)

// Metrics holds the Prometheus collectors for schema updates on a private
// registry.
type Metrics struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the schema update collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlschema_runs_total",
			Help: "Schema update runs by result.",
		}, []string{"dialect", "result"}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlschema_statements_total",
			Help: "DDL statements executed.",
		}, []string{"dialect", "table", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlschema_run_duration_seconds",
			Help:    "Duration of schema update runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dialect"}),
	}
	m.registry.MustRegister(m.runs, m.statements, m.duration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRun(dialectName, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(dialectName, result).Inc()
	m.duration.WithLabelValues(dialectName).Observe(elapsed.Seconds())
}

func (m *Metrics) observeStatement(dialectName string, s Statement) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(dialectName, s.Table, string(s.Kind)).Inc()
}
