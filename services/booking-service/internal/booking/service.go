package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking")

type Service struct {
	store     Store
	schedules *schedule.Registry
	logger    *slog.Logger
	metrics   *metrics.BookingMetrics
	now       func() time.Time

	enforceHours bool
}

type Option func(*Service)

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBusinessHours toggles the guard that rejects bookings starting before open, starting in
// lunch or ending after close. It is on by default.
func WithBusinessHours(enforce bool) Option {
	return func(s *Service) { s.enforceHours = enforce }
}

func NewService(store Store, schedules *schedule.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		schedules:    schedules,
		logger:       logger,
		now:          time.Now,
		enforceHours: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule resolves a resource id; empty means the default resource.
func (s *Service) Schedule(resourceID string) (schedule.Config, error) {
	if strings.TrimSpace(resourceID) == "" {
		return s.schedules.Default(), nil
	}
	cfg, ok := s.schedules.Lookup(resourceID)
	if !ok {
		return schedule.Config{}, invalidf("unknown resource %q", resourceID)
	}
	return cfg, nil
}

type BookRequest struct {
	ClientID   string
	ResourceID string
	Start      time.Time
	ServiceIDs []string
}

// Book validates the requested slot and commits a confirmed appointment, or fails with
// ErrInvalidInput or ErrConflict. It never retries.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("booking.client_id", req.ClientID),
		attribute.Int("booking.service_count", len(req.ServiceIDs)),
	))
	defer func() {
		s.metrics.ObserveBooking(outcome(err, "booked"))
		endSpan(span, err)
	}()

	if strings.TrimSpace(req.ClientID) == "" {
		return model.Appointment{}, invalidf("client id is required")
	}
	if req.Start.IsZero() {
		return model.Appointment{}, invalidf("start time is required")
	}
	ids, err := dedupeIDs(req.ServiceIDs)
	if err != nil {
		return model.Appointment{}, err
	}
	cfg, err := s.Schedule(req.ResourceID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := s.now()
	start := req.Start.In(cfg.Location)

	err = s.store.InTx(ctx, Serializable, func(tx Tx) error {
		catalog, err := tx.LookupServices(ctx, ids)
		if err != nil {
			return fmt.Errorf("lookup services: %w", err)
		}
		items, err := resolveItems(ids, catalog)
		if err != nil {
			return err
		}

		appt = model.Appointment{
			ID:         uuid.NewString(),
			ClientID:   req.ClientID,
			ResourceID: cfg.ResourceID,
			Items:      items,
			StartTime:  start,
			Status:     model.StatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		appt.EndTime = start.Add(time.Duration(appt.TotalDurationMinutes()) * time.Minute)

		if s.enforceHours {
			if err := checkBusinessHours(cfg, appt.StartTime, appt.EndTime, now); err != nil {
				return err
			}
		}

		overlapping, err := tx.ListConfirmedOverlapping(ctx, cfg.ResourceID, appt.StartTime, appt.EndTime)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrConflict
		}

		id, err := tx.InsertAppointment(ctx, &appt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		appt.ID = id

		evt, err := newAppointmentEvent(EventAppointmentBooked, appt, req.ClientID, now)
		if err != nil {
			return fmt.Errorf("build booked event: %w", err)
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return fmt.Errorf("record booked event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	span.SetAttributes(attribute.String("booking.appointment_id", appt.ID))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"client_id", appt.ClientID,
		"resource_id", appt.ResourceID,
		"start_time", appt.StartTime.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

// dedupeIDs collapses repeated service ids, keeping first occurrences in order.
func dedupeIDs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, invalidf("at least one service is required")
	}
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, invalidf("service ids must not be blank")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolveItems(ids []string, catalog map[string]model.Service) ([]model.Item, error) {
	var missing []string
	items := make([]model.Item, 0, len(ids))
	total := 0
	for _, id := range ids {
		svc, ok := catalog[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		items = append(items, model.Item{
			ServiceID:       svc.ID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			PriceMinor:      svc.PriceMinor,
		})
		total += svc.DurationMinutes
	}
	if len(missing) > 0 {
		return nil, invalidf("unknown services: %s", strings.Join(missing, ", "))
	}
	if total <= 0 {
		return nil, invalidf("total duration must be positive")
	}
	return items, nil
}

func checkBusinessHours(cfg schedule.Config, start, end, now time.Time) error {
	if start.Before(now) {
		return invalidf("start time is in the past")
	}
	if !cfg.Day(start).Fits(start, end) {
		return invalidf("requested time is outside business hours (%s-%s, no starts during %s-%s)",
			cfg.Open, cfg.Close, cfg.LunchStart, cfg.LunchEnd)
	}
	return nil
}

type AvailabilityQuery struct {
	ResourceID string
	// Date is YYYY-MM-DD in the resource's location.
	Date string
	// DurationMinutes wins over ServiceIDs when both are set.
	DurationMinutes int
	ServiceIDs      []string
}

type Slots struct {
	Schedule        schedule.Config
	Date            time.Time
	DurationMinutes int
	Starts          []time.Time
}

// Availability lists free start times. The answer is advisory and may be stale by the time the
// caller books.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (out Slots, err error) {
	ctx, span := tracer.Start(ctx, "booking.Availability", trace.WithAttributes(attribute.String("booking.date", q.Date)))
	start := time.Now()
	defer func() {
		s.metrics.ObserveSlotQuery(time.Since(start))
		endSpan(span, err)
	}()

	cfg, err := s.Schedule(q.ResourceID)
	if err != nil {
		return Slots{}, err
	}
	date, err := schedule.ParseDate(q.Date, cfg.Location)
	if err != nil {
		return Slots{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	duration := q.DurationMinutes
	if duration == 0 && len(q.ServiceIDs) > 0 {
		if duration, err = s.durationFor(ctx, q.ServiceIDs); err != nil {
			return Slots{}, err
		}
	}

	day := cfg.Day(date)
	busy, err := s.store.ListConfirmed(ctx, cfg.ResourceID, day.Open, day.Close)
	if err != nil {
		return Slots{}, fmt.Errorf("list confirmed: %w", err)
	}
	starts, err := availability.ComputeSlots(cfg, date, duration, busy, s.now())
	if err != nil {
		if errors.Is(err, availability.ErrInvalidInput) {
			return Slots{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Slots{}, err
	}
	return Slots{Schedule: cfg, Date: date, DurationMinutes: duration, Starts: starts}, nil
}

func (s *Service) durationFor(ctx context.Context, raw []string) (int, error) {
	ids, err := dedupeIDs(raw)
	if err != nil {
		return 0, err
	}
	var total int
	err = s.store.InTx(ctx, ReadCommitted, func(tx Tx) error {
		catalog, err := tx.LookupServices(ctx, ids)
		if err != nil {
			return fmt.Errorf("lookup services: %w", err)
		}
		items, err := resolveItems(ids, catalog)
		if err != nil {
			return err
		}
		total = model.Appointment{Items: items}.TotalDurationMinutes()
		return nil
	})
	return total, err
}

func outcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
