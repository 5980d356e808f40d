package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the checkout pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	CheckoutRequests     *prometheus.CounterVec
	CheckoutDuration     prometheus.Histogram
	WebhookEvents        *prometheus.CounterVec
	OrderTransitions     *prometheus.CounterVec
	ReservationsReleased *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of checkout in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Applied order status transitions.",
		}, []string{"from", "to"}),
		ReservationsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_released_total",
			Help: "Orders whose stock reservations were released, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.CheckoutRequests, m.CheckoutDuration, m.WebhookEvents, m.OrderTransitions, m.ReservationsReleased)
	}
	return m
}

func (m *Metrics) Checkout(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.CheckoutRequests.WithLabelValues(outcome).Inc()
	m.CheckoutDuration.Observe(seconds)
}

func (m *Metrics) Webhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Released(reason string) {
	if m == nil {
		return
	}
	m.ReservationsReleased.WithLabelValues(reason).Inc()
}
