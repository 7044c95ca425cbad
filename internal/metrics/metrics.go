package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created.",
		},
	)

	paymentConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmation attempts by result.",
		},
		[]string{"result"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "cancellations_total",
			Help:      "Cancellations by scope (booking or participant).",
		},
		[]string{"scope"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "refunds_total",
			Help:      "Refund attempts by result.",
		},
		[]string{"result"},
	)

	sweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "sweeps_total",
			Help:      "Reconciler sweep runs.",
		},
	)

	sweptBookings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trekbook",
			Name:      "swept_bookings_total",
			Help:      "Expired bookings archived by the reconciler.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			paymentConfirmations,
			cancellations,
			refunds,
			sweeps,
			sweptBookings,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

func IncPaymentConfirmation(result string) {
	paymentConfirmations.WithLabelValues(result).Inc()
}

func IncCancellation(scope string) {
	cancellations.WithLabelValues(scope).Inc()
}

func IncRefund(result string) {
	refunds.WithLabelValues(result).Inc()
}

func IncSweep(swept int) {
	sweeps.Inc()
	sweptBookings.Add(float64(swept))
}
