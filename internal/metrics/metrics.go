// Package metrics defines Prometheus metrics for the outreach auth server.
//
// Metrics live in a dedicated registry served by Handler on /metrics.
// Naming follows Prometheus conventions: outreach_ prefix, _total for counters, _seconds for durations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes used with AuthEventsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// Registry holds every outreach metric plus the Go and process collectors.
	Registry = prometheus.NewRegistry()

	// AuthEventsTotal counts session gateway operations (login, token, refresh, logout) by outcome.
	AuthEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_auth_events_total",
			Help: "Total authentication operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// RequestFilterRejectionsTotal counts requests the bearer token filter turned away, by reason.
	RequestFilterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_request_filter_rejections_total",
			Help: "Total API requests rejected by the token filter.",
		},
		[]string{"reason"},
	)

	// RoleGuardDenialsTotal counts 403s by route.
	RoleGuardDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_role_guard_denials_total",
			Help: "Total requests denied by a role guard.",
		},
		[]string{"route"},
	)

	// HTTPRequestsTotal counts HTTP requests by route template, method and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_http_requests_total",
			Help: "Total HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	// HTTPRequestDurationSeconds is a histogram of request latency by route template and method.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		AuthEventsTotal,
		RequestFilterRejectionsTotal,
		RoleGuardDenialsTotal,
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAuth records one session gateway operation.
func RecordAuth(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	AuthEventsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRejection records one request turned away by the token filter.
func RecordRejection(reason string) {
	RequestFilterRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDenial records one role guard 403.
func RecordDenial(route string) {
	RoleGuardDenialsTotal.WithLabelValues(route).Inc()
}

// RecordRequest records a completed HTTP request.
func RecordRequest(route, method string, code int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}
