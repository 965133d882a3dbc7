// Package metrics provides Prometheus instrumentation for the MercyB
// moderation engine. It exposes counters for decisions, violations, and
// suspensions, a histogram for decision latency, and failure counters for the
// store and alert paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts moderation decisions by outcome:
	// "allow", "warn", or "suspend".
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercyb_moderation_decisions_total",
		Help: "Total number of moderation decisions by action",
	}, []string{"action"})

	// ViolationsTotal counts detected violations by severity and language.
	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercyb_moderation_violations_total",
		Help: "Total number of detected violations by severity and language",
	}, []string{"severity", "language"})

	// SuspensionsTotal counts users suspended by the escalation policy.
	SuspensionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercyb_moderation_suspensions_total",
		Help: "Total number of suspensions issued",
	})

	// DecisionLatency records end-to-end decision latency in seconds,
	// including store round trips on the violation path.
	DecisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mercyb_moderation_decision_latency_seconds",
		Help:    "Moderation decision latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// StoreFailures counts decisions that failed closed because the state
	// store could not complete the read-modify-write.
	StoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercyb_moderation_store_failures_total",
		Help: "Total number of decisions failed due to store errors",
	})

	// AlertFailures counts suspension alerts that could not be emitted.
	// Alert failures never fail the decision itself.
	AlertFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercyb_moderation_alert_failures_total",
		Help: "Total number of suspension alerts that failed to publish",
	})
)

func init() {
	prometheus.MustRegister(
		DecisionsTotal,
		ViolationsTotal,
		SuspensionsTotal,
		DecisionLatency,
		StoreFailures,
		AlertFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
