// Package metrics exposes the Prometheus collectors of the predictor.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// studentsTotal counts evaluated students by outcome (ok, failed).
	studentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_students_total",
		Help: "Students evaluated by outcome",
	}, []string{"major", "outcome"})

	// policyTotal counts selected policies per target.
	policyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_threshold_policy_total",
		Help: "Threshold policies selected by target",
	}, []string{"target", "policy"})

	// evaluationDuration tracks per-student evaluation latency.
	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_student_evaluation_duration_seconds",
		Help:    "Per-student evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// cacheTotal counts result-cache lookups by result (hit, miss, error, skipped).
	cacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_cache_lookups_total",
		Help: "Threshold result cache lookups by result",
	}, []string{"result"})

	// violationsTotal counts consistency audit findings.
	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_consistency_violations_total",
		Help: "Students with target-1 score below target-2 score",
	}, []string{"major"})

	// eventsTotal counts published domain events.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_events_published_total",
		Help: "Domain events published on the event bus",
	}, []string{"event_type"})

	// handlerFailures counts event handlers that returned an error or panicked.
	handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_event_handler_failures_total",
		Help: "Event handler failures by event type",
	}, []string{"event_type"})

	// httpRequests counts API requests by route pattern and status code.
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	// httpDuration tracks API latency by route pattern.
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predictor_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// StudentEvaluated records one finished student.
func StudentEvaluated(major string, ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	studentsTotal.WithLabelValues(major, outcome).Inc()
	evaluationDuration.Observe(d.Seconds())
}

// PolicySelected records the policy chosen for a target ("1" or "2").
func PolicySelected(target, policy string) {
	policyTotal.WithLabelValues(target, policy).Inc()
}

// CacheLookup records a cache result: hit, miss, error or skipped (breaker open).
func CacheLookup(result string) {
	cacheTotal.WithLabelValues(result).Inc()
}

// Violations adds n audit findings for major.
func Violations(major string, n int) {
	violationsTotal.WithLabelValues(major).Add(float64(n))
}

// EventPublished records a published event.
func EventPublished(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// HandlerFailed records a failed event handler.
func HandlerFailed(eventType string) {
	handlerFailures.WithLabelValues(eventType).Inc()
}

// HTTPRequest records one served request. route is the mux pattern, not the raw path.
func HTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
