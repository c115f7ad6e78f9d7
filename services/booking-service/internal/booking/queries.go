package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
)

func (s *Service) Services(ctx context.Context) ([]model.Service, error) {
	svcs, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return svcs, nil
}

// ClientAppointments splits a client's appointments into those starting now or later (soonest
// first) and the rest (most recent first).
func (s *Service) ClientAppointments(ctx context.Context, clientID string) (upcoming, history []model.Appointment, err error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, nil, invalidf("client id is required")
	}
	appts, err := s.store.ListByClient(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("list client appointments: %w", err)
	}
	now := s.now()
	upcoming = []model.Appointment{}
	history = []model.Appointment{}
	for _, a := range appts {
		if !a.StartTime.Before(now) {
			upcoming = append(upcoming, a)
		} else {
			history = append(history, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].StartTime.Before(upcoming[j].StartTime) })
	sort.SliceStable(history, func(i, j int) bool { return history[i].StartTime.After(history[j].StartTime) })
	return upcoming, history, nil
}

// Agenda lists every appointment of the resource starting on date (YYYY-MM-DD in the resource's
// location; empty means today), in start order.
func (s *Service) Agenda(ctx context.Context, resourceID, date string) (schedule.Config, time.Time, []model.Appointment, error) {
	cfg, err := s.Schedule(resourceID)
	if err != nil {
		return schedule.Config{}, time.Time{}, nil, err
	}
	var day time.Time
	if strings.TrimSpace(date) == "" {
		y, m, d := s.now().In(cfg.Location).Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, cfg.Location)
	} else if day, err = schedule.ParseDate(date, cfg.Location); err != nil {
		return schedule.Config{}, time.Time{}, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	appts, err := s.store.ListByResourceDay(ctx, cfg.ResourceID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return schedule.Config{}, time.Time{}, nil, fmt.Errorf("list agenda: %w", err)
	}
	sort.SliceStable(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
	return cfg, day, appts, nil
}
