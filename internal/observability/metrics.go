package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BrokerMetrics holds the broker's Prometheus instrumentation. Each core
// component gets its own labeled vector instead of ad-hoc counters so
// dashboards can slice by component and outcome uniformly.
type BrokerMetrics struct {
	ForegroundTransitions *prometheus.CounterVec
	RegistryResolutions   *prometheus.CounterVec
	ToolCalls             *prometheus.CounterVec
	ToolCallLatency       *prometheus.HistogramVec
	DispatchOutcomes      *prometheus.CounterVec
	RingSlotUsage         *prometheus.CounterVec
	WorkflowsProcessed    *prometheus.CounterVec
	ActiveToolClients     prometheus.Gauge
}

// NewBrokerMetricsWithRegisterer builds and registers the broker's metric
// vectors against the supplied registerer, following the teacher's
// NewXMetricsWithRegisterer(registerer) pattern so tests can pass an
// isolated prometheus.NewRegistry() instead of the global default.
func NewBrokerMetricsWithRegisterer(registerer prometheus.Registerer) *BrokerMetrics {
	m := &BrokerMetrics{
		ForegroundTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_foreground_transitions_total",
			Help: "Foreground app transitions observed by the scheduler poll.",
		}, []string{"source"}),
		RegistryResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_registry_resolutions_total",
			Help: "Registry resolutions by source and outcome.",
		}, []string{"source", "outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_tool_calls_total",
			Help: "JSON-RPC tool calls by server and outcome.",
		}, []string{"server", "outcome"}),
		ToolCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskbroker_tool_call_latency_seconds",
			Help:    "Latency of tools/call round trips.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_dispatch_outcomes_total",
			Help: "Dispatcher outcomes by action kind.",
		}, []string{"kind", "outcome"}),
		RingSlotUsage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_ring_slot_usage_total",
			Help: "Successful invocations per ring position.",
		}, []string{"app_name", "position"}),
		WorkflowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskbroker_workflows_processed_total",
			Help: "Workflow pipeline runs by outcome.",
		}, []string{"outcome"}),
		ActiveToolClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deskbroker_active_tool_clients",
			Help: "Currently pooled tool server child processes.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ForegroundTransitions, m.RegistryResolutions, m.ToolCalls,
		m.ToolCallLatency, m.DispatchOutcomes, m.RingSlotUsage,
		m.WorkflowsProcessed, m.ActiveToolClients,
	} {
		registerer.MustRegister(c)
	}
	return m
}

// ServeMetrics exposes the given registry on /metrics at the configured
// port. It blocks; callers should run it in a background goroutine.
func ServeMetrics(registry *prometheus.Registry, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
