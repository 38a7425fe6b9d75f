package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/service"
	"github.com/notifyhub/dispatch/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsAdmitted    *prometheus.CounterVec
	NotificationsDuplicate   *prometheus.CounterVec
	NotificationsRateLimited prometheus.Counter
	NotificationsDelivered   *prometheus.CounterVec
	NotificationsFailed      *prometheus.CounterVec
	NotificationsRetried     *prometheus.CounterVec
	DeliveryLatency          *prometheus.HistogramVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_admitted_total",
			Help: "Total number of notifications accepted and published for delivery.",
		}, []string{"channel"}),

		NotificationsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_duplicate_total",
			Help: "Total number of idempotent replays answered from existing records.",
		}, []string{"channel"}),

		NotificationsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_rate_limited_total",
			Help: "Total number of submissions rejected by the per-user rate limit.",
		}),

		NotificationsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of successfully delivered notifications.",
		}, []string{"channel"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of permanently failed notifications (dead-lettered).",
		}, []string{"channel"}),

		NotificationsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_retried_total",
			Help: "Total number of delivery attempts requeued for retry.",
		}, []string{"channel"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Delivery latency from dequeue to provider ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.NotificationsAdmitted,
		m.NotificationsDuplicate,
		m.NotificationsRateLimited,
		m.NotificationsDelivered,
		m.NotificationsFailed,
		m.NotificationsRetried,
		m.DeliveryLatency,
	)

	return m
}

// AdmissionHooks returns the metric callbacks expected by service.Hooks.
// Centralises the prometheus observation calls so the service stays import-free.
func (m *Metrics) AdmissionHooks() service.Hooks {
	return service.Hooks{
		OnAdmitted: func(ch domain.Channel) {
			m.NotificationsAdmitted.WithLabelValues(string(ch)).Inc()
		},
		OnDuplicate: func(ch domain.Channel) {
			m.NotificationsDuplicate.WithLabelValues(string(ch)).Inc()
		},
		OnRateLimited: func() {
			m.NotificationsRateLimited.Inc()
		},
	}
}

// WorkerHooks returns the metric callbacks expected by worker.MetricHooks.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnDelivered: func(ch domain.Channel, latency time.Duration) {
			m.NotificationsDelivered.WithLabelValues(string(ch)).Inc()
			m.DeliveryLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
		},
		OnRetried: func(ch domain.Channel) {
			m.NotificationsRetried.WithLabelValues(string(ch)).Inc()
		},
		OnDeadLettered: func(ch domain.Channel) {
			m.NotificationsFailed.WithLabelValues(string(ch)).Inc()
		},
	}
}
