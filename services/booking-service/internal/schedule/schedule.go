package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant this clock reads on the calendar day of date, in loc.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// Config is the daily schedule of one bookable resource.
type Config struct {
	ResourceID  string
	Location    *time.Location
	Open        Clock
	Close       Clock
	LunchStart  Clock
	LunchEnd    Clock
	Granularity time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ResourceID) == "" {
		return errors.New("resource id is required")
	}
	if c.Location == nil {
		return errors.New("location is required")
	}
	if c.Open >= c.Close {
		return fmt.Errorf("open %s must be before close %s", c.Open, c.Close)
	}
	if c.LunchStart > c.LunchEnd {
		return fmt.Errorf("lunch start %s must not be after lunch end %s", c.LunchStart, c.LunchEnd)
	}
	if c.LunchStart != c.LunchEnd && (c.LunchStart < c.Open || c.LunchEnd > c.Close) {
		return fmt.Errorf("lunch %s-%s must fall within business hours", c.LunchStart, c.LunchEnd)
	}
	if c.Granularity < time.Minute || c.Granularity%time.Minute != 0 {
		return fmt.Errorf("slot granularity must be a positive whole number of minutes (got %s)", c.Granularity)
	}
	return nil
}

// Day is a Config resolved onto one calendar date.
type Day struct {
	Open       time.Time
	Close      time.Time
	LunchStart time.Time
	LunchEnd   time.Time
}

func (c Config) Day(date time.Time) Day {
	return Day{
		Open:       c.Open.On(date, c.Location),
		Close:      c.Close.On(date, c.Location),
		LunchStart: c.LunchStart.On(date, c.Location),
		LunchEnd:   c.LunchEnd.On(date, c.Location),
	}
}

// InLunch reports whether t falls inside the half-open lunch break.
func (d Day) InLunch(t time.Time) bool {
	return !t.Before(d.LunchStart) && t.Before(d.LunchEnd)
}

// Fits reports whether [start, end) lies inside business hours with a start outside the lunch
// break. Like the slot calculator, a booking may run into lunch but may not begin there.
func (d Day) Fits(start, end time.Time) bool {
	if start.Before(d.Open) || end.After(d.Close) {
		return false
	}
	return !d.InLunch(start)
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// Registry resolves resource ids to schedules.
type Registry struct {
	byID      map[string]Config
	defaultID string
}

// NewRegistry indexes configs by resource id. The first config is the default resource.
func NewRegistry(configs ...Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, errors.New("at least one resource schedule is required")
	}
	r := &Registry{byID: make(map[string]Config, len(configs)), defaultID: configs[0].ResourceID}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("resource %q: %w", c.ResourceID, err)
		}
		if _, dup := r.byID[c.ResourceID]; dup {
			return nil, fmt.Errorf("duplicate resource %q", c.ResourceID)
		}
		r.byID[c.ResourceID] = c
	}
	return r, nil
}

func (r *Registry) Lookup(resourceID string) (Config, bool) {
	c, ok := r.byID[resourceID]
	return c, ok
}

func (r *Registry) Default() Config {
	return r.byID[r.defaultID]
}
