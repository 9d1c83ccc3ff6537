// Package observability provides Prometheus metrics, health checks, and logging.
//
// Uses github.com/prometheus/client_golang - the official Prometheus client.
// Chosen for its maturity, wide adoption, and seamless integration with
// the Prometheus ecosystem (Grafana, Alertmanager, etc.).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the webhook pipeline.
// Metrics are automatically registered via promauto.
//
// Key metrics for monitoring:
//   - webhooks_received_total: inbound webhook rate
//   - tasks_dropped_total: events lost after exhausting retries (alerts)
//   - notifications_sent_total vs notifications_skipped_total: confirmation health
//   - queue_depth: backlog of the in-process task queue
type Metrics struct {
	WebhooksReceived     prometheus.Counter
	EventsIgnored        prometheus.Counter
	BookingsPaid         prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationsSkipped *prometheus.CounterVec
	TasksRetried         prometheus.Counter
	TasksDropped         prometheus.Counter
	QueueDepth           prometheus.Gauge
	ProcessDuration      prometheus.Histogram
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
// The namespace prefixes all metric names (e.g., "vagafogo_webhooks_received_total").
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		WebhooksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Total number of webhook deliveries accepted from the payment gateway",
		}),
		EventsIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Total number of events rejected by the classifier",
		}),
		BookingsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_paid_total",
			Help:      "Total number of bookings transitioned to paid",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of confirmation messages successfully sent",
		}),
		NotificationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Total number of confirmations skipped for business reasons",
		}, []string{"reason"}),
		TasksRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_retried_total",
			Help:      "Total number of task processing retries",
		}),
		TasksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dropped_total",
			Help:      "Total number of tasks dropped after exhausting retries",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks waiting in the in-process queue",
		}),
		ProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Duration of one webhook task processing attempt in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and path",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
