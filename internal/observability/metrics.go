package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool"

var (
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transitions_total", Help: "Committed booking state transitions by target status"},
		[]string{"to"},
	)
	BookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_conflicts_total", Help: "Booking operations refused on a state precondition"},
		[]string{"reason"},
	)
	ReviewsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "reviews_total", Help: "Total reviews recorded"})

	NotificationsEnqueued = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_enqueued_total", Help: "Notifications pushed onto the outbox"})
	NotificationsFailed   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_failed_total", Help: "Notifications dropped by stage"},
		[]string{"stage"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
