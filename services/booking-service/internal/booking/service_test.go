package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking/bookingtest"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
	"github.com/stretchr/testify/require"
)

var (
	haircut = model.Service{ID: "haircut", Name: "Haircut", DurationMinutes: 30, PriceMinor: 3500}
	beard   = model.Service{ID: "beard", Name: "Beard trim", DurationMinutes: 15, PriceMinor: 2000}
	freebie = model.Service{ID: "consult", Name: "Consultation", DurationMinutes: 0, PriceMinor: 0}

	// Monday 2026-03-02, 08:00 UTC.
	now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

type fixture struct {
	svc   *booking.Service
	store *bookingtest.Store
}

func newFixture(t *testing.T, opts ...booking.Option) fixture {
	t.Helper()
	reg, err := schedule.NewRegistry(schedule.Config{
		ResourceID:  "barber-1",
		Location:    time.UTC,
		Open:        9 * 60,
		Close:       18 * 60,
		LunchStart:  12 * 60,
		LunchEnd:    13 * 60,
		Granularity: 15 * time.Minute,
	})
	require.NoError(t, err)

	store := bookingtest.NewStore(haircut, beard, freebie)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]booking.Option{booking.WithClock(func() time.Time { return now })}, opts...)
	return fixture{svc: booking.NewService(store, reg, logger, opts...), store: store}
}

func TestBook_CommitsAppointmentAndEvent(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), booking.BookRequest{
		ClientID:   "client-1",
		Start:      at(10, 0),
		ServiceIDs: []string{"haircut", "beard", "haircut"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, appt.ID)
	require.Equal(t, model.StatusConfirmed, appt.Status)
	require.Equal(t, "barber-1", appt.ResourceID)
	require.True(t, appt.EndTime.Equal(at(10, 45)), "end must be start + sum of distinct durations")
	require.Len(t, appt.Items, 2)
	require.Equal(t, "haircut", appt.Items[0].ServiceID)
	require.Equal(t, "beard", appt.Items[1].ServiceID)
	require.EqualValues(t, 5500, appt.TotalPriceMinor())

	stored, ok := f.store.Get(appt.ID)
	require.True(t, ok)
	require.Equal(t, model.StatusConfirmed, stored.Status)

	events := f.store.Events()
	require.Len(t, events, 1)
	require.Equal(t, booking.EventAppointmentBooked, events[0].Type)
	require.Equal(t, appt.ID, events[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Equal(t, appt.ID, payload["appointment_id"])
	require.EqualValues(t, 5500, payload["total_price_minor"])
}

func TestBook_InvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]booking.BookRequest{
		"no services":      {ClientID: "c", Start: at(10, 0)},
		"unknown service":  {ClientID: "c", Start: at(10, 0), ServiceIDs: []string{"haircut", "perm"}},
		"blank service":    {ClientID: "c", Start: at(10, 0), ServiceIDs: []string{" "}},
		"zero duration":    {ClientID: "c", Start: at(10, 0), ServiceIDs: []string{"consult"}},
		"no client":        {Start: at(10, 0), ServiceIDs: []string{"haircut"}},
		"no start":         {ClientID: "c", ServiceIDs: []string{"haircut"}},
		"unknown resource": {ClientID: "c", ResourceID: "chair-9", Start: at(10, 0), ServiceIDs: []string{"haircut"}},
		"before open":      {ClientID: "c", Start: at(8, 45), ServiceIDs: []string{"haircut"}},
		"starts in lunch":  {ClientID: "c", Start: at(12, 30), ServiceIDs: []string{"haircut"}},
		"ends after close": {ClientID: "c", Start: at(17, 45), ServiceIDs: []string{"haircut"}},
		"in the past":      {ClientID: "c", Start: at(9, 0).Add(-24 * time.Hour), ServiceIDs: []string{"haircut"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), req)
			require.ErrorIs(t, err, booking.ErrInvalidInput)
		})
	}
	require.Empty(t, f.store.Events(), "nothing may be written for rejected requests")
}

func TestBook_BusinessHoursGuardCanBeDisabled(t *testing.T) {
	f := newFixture(t, booking.WithBusinessHours(false))
	_, err := f.svc.Book(context.Background(), booking.BookRequest{ClientID: "c", Start: at(12, 30), ServiceIDs: []string{"haircut"}})
	require.NoError(t, err)
}

func TestBook_OverlapIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, booking.BookRequest{ClientID: "a", Start: at(9, 0), ServiceIDs: []string{"haircut"}})
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, booking.BookRequest{ClientID: "b", Start: at(9, 15), ServiceIDs: []string{"haircut"}})
	require.ErrorIs(t, err, booking.ErrConflict)

	_, err = f.svc.Book(ctx, booking.BookRequest{ClientID: "b", Start: at(9, 30), ServiceIDs: []string{"haircut"}})
	require.NoError(t, err, "back-to-back bookings do not overlap")
}

func TestBook_ConcurrentOverlappingRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	const racers = 8

	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Staggered starts that all overlap 10:00-10:30.
			offset := time.Duration(i%3) * 5 * time.Minute
			_, errs[i] = f.svc.Book(context.Background(), booking.BookRequest{
				ClientID:   "client",
				Start:      at(10, 0).Add(offset),
				ServiceIDs: []string{"haircut"},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, booking.ErrConflict)
	}
	require.Equal(t, 1, wins)

	busy, err := f.store.ListConfirmed(context.Background(), "barber-1", at(9, 0), at(18, 0))
	require.NoError(t, err)
	require.Len(t, busy, 1)
}

func TestBook_RollsBackOnEventFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailEvent = errors.New("outbox down")

	_, err := f.svc.Book(context.Background(), booking.BookRequest{ClientID: "c", Start: at(10, 0), ServiceIDs: []string{"haircut"}})
	require.Error(t, err)
	require.NotErrorIs(t, err, booking.ErrConflict)

	busy, _ := f.store.ListConfirmed(context.Background(), "barber-1", at(9, 0), at(18, 0))
	require.Empty(t, busy, "a failed transaction must leave no appointment behind")
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.svc.Availability(ctx, booking.AvailabilityQuery{Date: "2026-03-02", DurationMinutes: 30})
	require.NoError(t, err)
	require.Equal(t, at(9, 0), slots.Starts[0])
	require.Equal(t, at(17, 30), slots.Starts[len(slots.Starts)-1])

	_, err = f.svc.Book(ctx, booking.BookRequest{ClientID: "c", Start: at(9, 0), ServiceIDs: []string{"haircut"}})
	require.NoError(t, err)

	slots, err = f.svc.Availability(ctx, booking.AvailabilityQuery{Date: "2026-03-02", ServiceIDs: []string{"haircut"}})
	require.NoError(t, err)
	require.NotContains(t, slots.Starts, at(9, 15))
	require.Contains(t, slots.Starts, at(9, 30))
}

func TestAvailability_InvalidInput(t *testing.T) {
	f := newFixture(t)
	for _, q := range []booking.AvailabilityQuery{
		{Date: "2026-13-01", DurationMinutes: 30},
		{Date: "", DurationMinutes: 30},
		{Date: "2026-03-02"},
		{Date: "2026-03-02", DurationMinutes: -5},
		{Date: "2026-03-02", ServiceIDs: []string{"nope"}},
	} {
		_, err := f.svc.Availability(context.Background(), q)
		require.ErrorIs(t, err, booking.ErrInvalidInput, "query %+v", q)
	}
}
