package model

import "time"

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal statuses never transition again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransition reports whether from -> to is allowed. Only confirmed appointments move, and only
// into a terminal status.
func CanTransition(from, to Status) bool {
	return from == StatusConfirmed && to.Terminal()
}

// Item is one catalog service inside an appointment, priced at booking time.
type Item struct {
	ServiceID       string
	Name            string
	DurationMinutes int
	PriceMinor      int64
}

type Appointment struct {
	ID         string
	ClientID   string
	ResourceID string
	Items      []Item
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a Appointment) TotalDurationMinutes() int {
	total := 0
	for _, it := range a.Items {
		total += it.DurationMinutes
	}
	return total
}

func (a Appointment) TotalPriceMinor() int64 {
	var total int64
	for _, it := range a.Items {
		total += it.PriceMinor
	}
	return total
}

// Interval is a half-open [Start, End) range on a resource's timeline.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}
