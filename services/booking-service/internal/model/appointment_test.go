package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestIntervalOverlapsIsHalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(30 * time.Minute)}
	touching := Interval{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}
	inside := Interval{Start: base.Add(15 * time.Minute), End: base.Add(45 * time.Minute)}

	if a.Overlaps(touching) || touching.Overlaps(a) {
		t.Fatal("adjacent intervals must not overlap")
	}
	if !a.Overlaps(inside) || !inside.Overlaps(a) {
		t.Fatal("expected overlap")
	}
}

func TestTotals(t *testing.T) {
	a := Appointment{Items: []Item{
		{ServiceID: "cut", DurationMinutes: 30, PriceMinor: 3000},
		{ServiceID: "beard", DurationMinutes: 15, PriceMinor: 1500},
	}}
	if a.TotalDurationMinutes() != 45 || a.TotalPriceMinor() != 4500 {
		t.Fatalf("unexpected totals %d %d", a.TotalDurationMinutes(), a.TotalPriceMinor())
	}
}
