package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chaimcp"

// Metrics owns a private registry so tests and multiple gateways never collide on
// prometheus.DefaultRegisterer.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls      *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	authRejects    *prometheus.CounterVec
	activeStreams  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "tools/call invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of Chia RPC calls by service, endpoint and outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"service", "endpoint", "outcome"}),
		authRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the authorization gate, by reason.",
		}, []string{"reason"}),
		activeStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open event streams by transport.",
		}, []string{"transport"}),
	}
	m.registry.MustRegister(
		m.toolCalls,
		m.backendLatency,
		m.authRejects,
		m.activeStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveBackend satisfies chiarpc.Observer.
func (m *Metrics) ObserveBackend(service, endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(service, endpoint, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ToolCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	m.authRejects.WithLabelValues(reason).Inc()
}

// StreamOpened increments the gauge and returns the matching decrement.
func (m *Metrics) StreamOpened(transport string) func() {
	if m == nil {
		return func() {}
	}
	g := m.activeStreams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
