// internal/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the marketplace collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	fulfillments    *prometheus.CounterVec
	downloads       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries by provider, event type and outcome.",
		}, []string{"provider", "type", "outcome"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_fulfillments_total",
			Help: "Order fulfillment attempts by outcome.",
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "download_authorizations_total",
			Help: "Download authorization decisions.",
		}, []string{"decision"}),
	}
	reg.MustRegister(m.requestDuration, m.checkouts, m.webhookEvents, m.fulfillments, m.downloads)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WebhookEvent(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *Metrics) Fulfillment(outcome string) {
	if m == nil {
		return
	}
	m.fulfillments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Download(decision string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(decision).Inc()
}
