package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sheetboard"

// Metrics holds the dashboard's Prometheus collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	loads     *prometheus.CounterVec
	exports   *prometheus.CounterVec
	edits     *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
	renders   prometheus.Histogram
	sessions  prometheus.Gauge
}

// NewMetrics registers every collector plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workbook_loads_total",
			Help:      "Workbook load attempts by outcome (hit, miss, error).",
		}, []string{"result"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Workbook exports by outcome (ok, error).",
		}, []string{"result"}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_ops_total",
			Help:      "Accepted edit operations by kind.",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		renders: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent deriving a dashboard view.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open dashboard sessions.",
		}),
	}
	m.registry.MustRegister(
		m.loads, m.exports, m.edits, m.toolCalls, m.renders, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLoad counts a loader outcome.
func (m *Metrics) ObserveLoad(result string) { m.loads.WithLabelValues(result).Inc() }

// ObserveExport counts an export outcome.
func (m *Metrics) ObserveExport(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exports.WithLabelValues(result).Inc()
}

// ObserveEdit counts an accepted edit operation.
func (m *Metrics) ObserveEdit(kind string) { m.edits.WithLabelValues(kind).Inc() }

// ObserveRender records how long a render took.
func (m *Metrics) ObserveRender(d time.Duration) { m.renders.Observe(d.Seconds()) }

// ObserveTool counts a tool call.
func (m *Metrics) ObserveTool(tool string, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// SetSessions reports the number of open sessions.
func (m *Metrics) SetSessions(n int) { m.sessions.Set(float64(n)) }
