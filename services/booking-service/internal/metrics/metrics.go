package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flows. A nil *BookingMetrics is a no-op.
type BookingMetrics struct {
	bookings      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	completions   prometheus.Counter
	slotLatency   prometheus.Histogram
	outbox        *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barberslot",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barberslot",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome",
		}, []string{"outcome"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barberslot",
			Subsystem: "booking",
			Name:      "completions_total",
			Help:      "Appointments marked completed by the sweeper",
		}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "barberslot",
			Subsystem: "availability",
			Name:      "query_seconds",
			Help:      "Latency of slot availability queries",
			Buckets:   prometheus.DefBuckets,
		}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barberslot",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events by publish status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.cancellations, m.completions, m.slotLatency, m.outbox)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCancellation(outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCompletions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.completions.Add(float64(n))
}

func (m *BookingMetrics) ObserveSlotQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.slotLatency.Observe(d.Seconds())
}

func (m *BookingMetrics) ObserveOutbox(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outbox.WithLabelValues(status).Add(float64(n))
}
