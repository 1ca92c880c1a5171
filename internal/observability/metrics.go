package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec
	sessionsStarted   *prometheus.CounterVec
	sessionsFinalized *prometheus.CounterVec
	submissionsGraded *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the exam API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_requests_total",
			Help: "Total number of exam API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_api_latency_seconds",
			Help:    "Latency distribution for exam API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_errors_total",
			Help: "Total number of error responses returned by exam endpoints.",
		}, []string{"method", "route", "status"})

		sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_sessions_started_total",
			Help: "Number of exam sessions started, by difficulty level.",
		}, []string{"level"})

		sessionsFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_sessions_finalized_total",
			Help: "Number of exam sessions reaching a terminal status.",
		}, []string{"status"})

		submissionsGraded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_submissions_graded_total",
			Help: "Number of problem submissions graded, by final status.",
		}, []string{"status"})

		prometheus.MustRegister(apiRequestsTotal, apiLatencySeconds, apiErrorsTotal, sessionsStarted, sessionsFinalized, submissionsGraded)
	})
}

// APIRequests exposes the counter for exam API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for exam API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for exam API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SessionsStarted exposes the counter for started sessions.
func SessionsStarted() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionsStarted
}

// SessionsFinalized exposes the counter for finalized sessions.
func SessionsFinalized() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionsFinalized
}

// SubmissionsGraded exposes the counter for graded submissions.
func SubmissionsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsGraded
}
