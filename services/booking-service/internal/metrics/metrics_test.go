package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("booked")
	m.ObserveBooking("booked")
	m.ObserveBooking("conflict")
	m.ObserveCancellation("cancelled")
	m.ObserveCompletions(3)
	m.ObserveCompletions(0)
	m.ObserveSlotQuery(20 * time.Millisecond)
	m.ObserveOutbox("published", 2)

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("booked")); got != 2 {
		t.Fatalf("expected 2 booked, got %v", got)
	}
	if got := testutil.ToFloat64(m.completions); got != 3 {
		t.Fatalf("expected 3 completions, got %v", got)
	}
	if got := testutil.CollectAndCount(m.slotLatency); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("booked")
	m.ObserveCancellation("forbidden")
	m.ObserveCompletions(1)
	m.ObserveSlotQuery(time.Second)
	m.ObserveOutbox("failed", 1)
}
