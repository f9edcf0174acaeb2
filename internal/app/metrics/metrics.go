package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vanitypay",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vanitypay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vanitypay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	accountsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vanitypay",
			Subsystem: "accounts",
			Name:      "created_total",
			Help:      "Total number of payment accounts created.",
		},
	)

	requestsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vanitypay",
			Subsystem: "requests",
			Name:      "created_total",
			Help:      "Total number of payment requests created.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vanitypay",
			Subsystem: "requests",
			Name:      "status_transitions_total",
			Help:      "Total number of payment request status transitions.",
		},
		[]string{"status"},
	)

	tokenRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vanitypay",
			Subsystem: "requests",
			Name:      "token_retries_total",
			Help:      "Total number of share token regenerations after a collision.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		accountsCreated,
		requestsCreated,
		statusTransitions,
		tokenRetries,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight marks a request as started.
func IncInFlight() { httpInFlight.Inc() }

// DecInFlight marks a request as finished.
func DecInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAccountCreated counts a new payment account.
func RecordAccountCreated() { accountsCreated.Inc() }

// RecordRequestCreated counts a new payment request.
func RecordRequestCreated() { requestsCreated.Inc() }

// RecordStatusTransition counts a payment request entering the given status.
func RecordStatusTransition(status string) {
	if status == "" {
		status = "unknown"
	}
	statusTransitions.WithLabelValues(status).Inc()
}

// RecordTokenRetry counts one token collision forcing a regeneration.
func RecordTokenRetry() { tokenRetries.Inc() }
