package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
)

var ErrInvalidInput = errors.New("invalid availability query")

// MaxDurationMinutes bounds a single request; nothing longer than a day can be booked.
const MaxDurationMinutes = 24 * 60

// ComputeSlots returns the start times on date at which a booking of durationMinutes fits before
// close, does not start inside lunch and does not overlap any busy interval.
//
// Starts earlier than now, rounded up to the next granularity boundary counted from open, are
// skipped, so today yields only future slots and a past date yields none. The result is advisory:
// nothing is reserved.
func ComputeSlots(cfg schedule.Config, date time.Time, durationMinutes int, busy []model.Interval, now time.Time) ([]time.Time, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if durationMinutes <= 0 || durationMinutes > MaxDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidInput, MaxDurationMinutes)
	}
	if cfg.Granularity <= 0 {
		return nil, fmt.Errorf("%w: slot granularity must be positive", ErrInvalidInput)
	}

	day := cfg.Day(date)
	duration := time.Duration(durationMinutes) * time.Minute
	earliest := roundUp(now, day.Open, cfg.Granularity)

	var slots []time.Time
	candidate := day.Open
	for !candidate.Add(duration).After(day.Close) {
		if day.InLunch(candidate) {
			candidate = day.LunchEnd
			continue
		}
		slot := model.Interval{Start: candidate, End: candidate.Add(duration)}
		if !candidate.Before(earliest) && !overlapsAny(slot, busy) {
			slots = append(slots, candidate)
		}
		candidate = candidate.Add(cfg.Granularity)
	}
	return slots, nil
}

// FormatSlots renders slots as HH:MM in loc.
func FormatSlots(slots []time.Time, loc *time.Location) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(loc).Format("15:04"))
	}
	return out
}

// roundUp moves now forward to the next origin + k*step boundary. Instants before origin map to origin.
func roundUp(now, origin time.Time, step time.Duration) time.Time {
	if !now.After(origin) {
		return origin
	}
	elapsed := now.Sub(origin)
	k := elapsed / step
	if elapsed%step != 0 {
		k++
	}
	return origin.Add(k * step)
}

func overlapsAny(slot model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
