// Package bookingtest provides an in-memory booking.Store for tests.
package bookingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
)

// Store holds one lock for the whole of each transaction, so transactions are serial and therefore
// serializable. Writes go to a copy that replaces the committed state only when fn succeeds.
type Store struct {
	mu       sync.Mutex
	services map[string]model.Service
	appts    map[string]model.Appointment
	events   []booking.Event

	// FailInsert, when set, is returned by InsertAppointment.
	FailInsert error
	// FailEvent, when set, is returned by RecordEvent.
	FailEvent error
	// BeforeCommit runs inside the transaction lock right before commit.
	BeforeCommit func()
}

func NewStore(services ...model.Service) *Store {
	s := &Store{
		services: map[string]model.Service{},
		appts:    map[string]model.Appointment{},
	}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return s
}

// Put inserts or replaces an appointment outside any transaction.
func (s *Store) Put(appt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[appt.ID] = cloneAppt(appt)
}

func (s *Store) Get(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	return cloneAppt(a), ok
}

func (s *Store) Events() []booking.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]booking.Event(nil), s.events...)
}

func (s *Store) InTx(ctx context.Context, _ booking.TxMode, fn func(booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s, appts: make(map[string]model.Appointment, len(s.appts))}
	for id, a := range s.appts {
		tx.appts[id] = a
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.BeforeCommit != nil {
		s.BeforeCommit()
	}
	s.appts = tx.appts
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *Store) ListConfirmed(_ context.Context, resourceID string, from, to time.Time) ([]model.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return confirmedOverlapping(s.appts, resourceID, from, to), nil
}

func (s *Store) ListServices(context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListByClient(_ context.Context, clientID string) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool { return a.ClientID == clientID }), nil
}

func (s *Store) ListByResourceDay(_ context.Context, resourceID string, from, to time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.ResourceID == resourceID && !a.StartTime.Before(from) && a.StartTime.Before(to)
	}), nil
}

func (s *Store) ListCompletable(_ context.Context, before time.Time, limit int) ([]model.Appointment, error) {
	out := s.filter(func(a model.Appointment) bool {
		return a.Status == model.StatusConfirmed && !a.EndTime.After(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) filter(keep func(model.Appointment) bool) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, cloneAppt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

type memTx struct {
	store  *Store
	appts  map[string]model.Appointment
	events []booking.Event
}

func (t *memTx) LookupServices(_ context.Context, ids []string) (map[string]model.Service, error) {
	out := make(map[string]model.Service, len(ids))
	for _, id := range ids {
		if svc, ok := t.store.services[id]; ok {
			out[id] = svc
		}
	}
	return out, nil
}

func (t *memTx) ListConfirmedOverlapping(_ context.Context, resourceID string, start, end time.Time) ([]model.Interval, error) {
	return confirmedOverlapping(t.appts, resourceID, start, end), nil
}

func (t *memTx) InsertAppointment(_ context.Context, appt *model.Appointment) (string, error) {
	if t.store.FailInsert != nil {
		return "", t.store.FailInsert
	}
	if appt.ID == "" {
		appt.ID = fmt.Sprintf("appt-%d", len(t.appts)+1)
	}
	if _, dup := t.appts[appt.ID]; dup {
		return "", fmt.Errorf("duplicate appointment id %s", appt.ID)
	}
	// Mirrors the exclusion constraint on confirmed rows.
	if appt.Status == model.StatusConfirmed {
		if len(confirmedOverlapping(t.appts, appt.ResourceID, appt.StartTime, appt.EndTime)) > 0 {
			return "", booking.ErrConflict
		}
	}
	t.appts[appt.ID] = cloneAppt(*appt)
	return appt.ID, nil
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	return cloneAppt(a), nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, id string, from, to model.Status, at time.Time) (int64, error) {
	a, ok := t.appts[id]
	if !ok || a.Status != from {
		return 0, nil
	}
	a.Status = to
	a.UpdatedAt = at
	t.appts[id] = a
	return 1, nil
}

func (t *memTx) RecordEvent(_ context.Context, evt booking.Event) error {
	if t.store.FailEvent != nil {
		return t.store.FailEvent
	}
	t.events = append(t.events, evt)
	return nil
}

func confirmedOverlapping(appts map[string]model.Appointment, resourceID string, start, end time.Time) []model.Interval {
	want := model.Interval{Start: start, End: end}
	var out []model.Interval
	for _, a := range appts {
		if a.ResourceID != resourceID || a.Status != model.StatusConfirmed {
			continue
		}
		iv := model.Interval{Start: a.StartTime, End: a.EndTime}
		if iv.Overlaps(want) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func cloneAppt(a model.Appointment) model.Appointment {
	a.Items = append([]model.Item(nil), a.Items...)
	return a
}
