// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EscalationsProcessed tracks escalation rows handled per cycle by source and outcome.
	EscalationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_escalations_processed_total",
			Help: "Total escalations processed by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// EscalationsPurged tracks escalation rows deleted by the persistence step.
	EscalationsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_escalations_purged_total",
			Help: "Total escalations deleted by source",
		},
		[]string{"source"},
	)

	// CycleDuration tracks the duration of one processEscalations call.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escalator_cycle_duration_seconds",
			Help:    "Escalation processing cycle duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// CycleErrors tracks failed processing cycles.
	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_cycle_errors_total",
			Help: "Total failed escalation processing cycles by source",
		},
		[]string{"source"},
	)

	// AlertsQueued tracks alert ledger entries written by type and status.
	AlertsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_alerts_queued_total",
			Help: "Total alert ledger entries by type and status",
		},
		[]string{"type", "status"},
	)

	// CommandsExecuted tracks command invocations by script type and status.
	CommandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_commands_total",
			Help: "Total command invocations by script type and status",
		},
		[]string{"script_type", "status"},
	)

	// ConditionEvaluations tracks operation condition evaluations.
	ConditionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_condition_evaluations_total",
			Help: "Total operation condition evaluations by mode and result",
		},
		[]string{"mode", "result"},
	)

	// CatalogCache tracks catalog cache lookups.
	CatalogCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_catalog_cache_total",
			Help: "Total catalog cache lookups by kind and result (hit/miss)",
		},
		[]string{"kind", "result"},
	)

	// HTTPRequestsTotal tracks requests to the ops endpoint.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalator_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RecordEscalationProcessed records the outcome of one escalation row.
func RecordEscalationProcessed(source, outcome string) {
	EscalationsProcessed.WithLabelValues(source, outcome).Inc()
}

// RecordEscalationsPurged records deleted escalation rows.
func RecordEscalationsPurged(source string, count int) {
	if count <= 0 {
		return
	}
	EscalationsPurged.WithLabelValues(source).Add(float64(count))
}

// RecordCycleDuration records the duration of a processing cycle.
func RecordCycleDuration(source string, seconds float64) {
	CycleDuration.WithLabelValues(source).Observe(seconds)
}

// RecordCycleError records a failed processing cycle.
func RecordCycleError(source string) {
	CycleErrors.WithLabelValues(source).Inc()
}

// RecordAlertQueued records an alert ledger entry.
func RecordAlertQueued(alertType, status string) {
	AlertsQueued.WithLabelValues(alertType, status).Inc()
}

// RecordCommandExecuted records a command invocation.
func RecordCommandExecuted(scriptType, status string) {
	CommandsExecuted.WithLabelValues(scriptType, status).Inc()
}

// RecordConditionEvaluation records a condition evaluation result.
func RecordConditionEvaluation(mode string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	ConditionEvaluations.WithLabelValues(mode, result).Inc()
}

// RecordCatalogCache records a catalog cache lookup.
func RecordCatalogCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CatalogCache.WithLabelValues(kind, result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
