// Package metrics exposes Prometheus instrumentation for evaluation runs and
// the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/liamcoop/offerrules/rules"
)

var (
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offerrules_evaluations_total",
		Help: "Total number of scenario evaluation runs",
	})

	rulesFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offerrules_rules_fired_total",
		Help: "Total number of rules that fired across all evaluation runs",
	})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerrules_conditions_skipped_total",
		Help: "Total number of conditions or expressions skipped during evaluation, by reason",
	}, []string{"reason"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offerrules_evaluation_duration_seconds",
		Help:    "Duration of scenario evaluation runs",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerrules_http_errors_total",
		Help: "Total number of HTTP error responses by status class",
	}, []string{"class"})
)

// RecordEvaluation records one evaluation run
func RecordEvaluation(result *rules.ScenarioResult, elapsed time.Duration) {
	evaluationsTotal.Inc()
	evaluationDuration.Observe(elapsed.Seconds())
	rulesFiredTotal.Add(float64(len(result.Fired)))
	for _, d := range result.Diagnostics {
		diagnosticsTotal.WithLabelValues(normalizeReason(d.Reason)).Inc()
	}
}

// RecordHTTPError records an error response with the given status code
func RecordHTTPError(status int) {
	switch {
	case status >= 500:
		httpErrorsTotal.WithLabelValues("5xx").Inc()
	case status >= 400:
		httpErrorsTotal.WithLabelValues("4xx").Inc()
	}
}

func normalizeReason(reason rules.DiagnosticReason) string {
	switch reason {
	case rules.ReasonProductGroupNotFound, rules.ReasonUnknownCodeGroup,
		rules.ReasonUnknownRelationship, rules.ReasonExpressionFailed:
		return string(reason)
	default:
		return "unknown"
	}
}
