package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the process-wide Prometheus registry the admin HTTP surface
// scrapes at /metrics, separate from the OTLP-exported traces/metrics
// above — a local scrape target needs no collector in the path.
var Registry = prometheus.NewRegistry()

var (
	// RateLimitAdmitted counts Admit() outcomes by model/tier/admitted.
	RateLimitAdmitted = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_ratelimit_admit_total",
		Help: "Count of rate limiter admission decisions.",
	}, []string{"model", "tier", "admitted"})

	// CircuitState reports 0=Closed, 1=Open, 2=HalfOpen per breaker name.
	CircuitState = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "alchemist_circuit_state",
		Help: "Current circuit breaker state (0=Closed, 1=Open, 2=HalfOpen).",
	}, []string{"breaker"})

	// RouterDelivered counts messages fanned out by the router per subject.
	RouterDelivered = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_router_delivered_total",
		Help: "Count of messages delivered by the router.",
	}, []string{"subject"})

	// EventLogAppended counts successful appends per stream.
	EventLogAppended = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_eventlog_appended_total",
		Help: "Count of records appended to the event log.",
	}, []string{"stream"})
)
