// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attendance core
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_sessions_created_total",
			Help: "Attendance sessions opened by faculty",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sessions_closed_total",
			Help: "Sessions transitioned to closed, by reason",
		},
		[]string{"reason"}, // "manual", "expired"
	)

	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_redemptions_total",
			Help: "QR redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	ManualMarks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_manual_marks_total",
			Help: "Manual attendance entries by result",
		},
		[]string{"result"}, // "created", "updated", "error"
	)

	CounterRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_counter_repairs_total",
			Help: "Session attendance counters corrected by the reconciler",
		},
	)

	// Document store
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operation_errors_total",
			Help: "Document store operations that returned an infrastructure error",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Queue
	QueuePublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_publish_errors_total",
			Help: "Messages that could not be published to the work queue",
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
