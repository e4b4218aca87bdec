package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tradein"

type Metrics struct {
	CheckoutRequests     *prometheus.CounterVec
	CheckoutDuration     prometheus.Histogram
	PaymentCompletions   *prometheus.CounterVec
	ReconcileEvents      *prometheus.CounterVec
	Returns              *prometheus.CounterVec
	TxRetries            prometheus.Counter
	ReservationsReleased *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkout_requests_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "checkout_duration_seconds",
			Help:    "Checkout latency including payment hand-off.",
			Buckets: prometheus.DefBuckets,
		}),
		PaymentCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_completions_total",
			Help: "Orders marked paid, by payment mode (stub, stub_fallback, processor).",
		}, []string{"mode"}),
		ReconcileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_events_total",
			Help: "Payment completion notifications by source and outcome.",
		}, []string{"source", "outcome"}),
		Returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "returns_total",
			Help: "Processed returns by outcome.",
		}, []string{"outcome"}),
		TxRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_tx_retries_total",
			Help: "Store transactions retried after an optimistic conflict.",
		}),
		ReservationsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reservations_released_total",
			Help: "Pending orders cancelled and their items relisted, by reason.",
		}, []string{"reason"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.CheckoutRequests, m.CheckoutDuration, m.PaymentCompletions, m.ReconcileEvents,
			m.Returns, m.TxRetries, m.ReservationsReleased, m.HTTPRequests, m.HTTPDuration,
		)
	}
	return m
}

// Discard returns unregistered collectors for tests and tools.
func Discard() *Metrics { return New(nil) }
