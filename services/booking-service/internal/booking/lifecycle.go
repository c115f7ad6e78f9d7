package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CancelRequest struct {
	AppointmentID string
	ActorID       string
	ActorIsAdmin  bool
}

// Cancel moves a confirmed appointment to cancelled. Only the owning client or an admin may cancel.
// A second cancel fails with ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("booking.appointment_id", req.AppointmentID),
		attribute.Bool("booking.actor_is_admin", req.ActorIsAdmin),
	))
	defer func() {
		s.metrics.ObserveCancellation(outcome(err, "cancelled"))
		endSpan(span, err)
	}()

	if strings.TrimSpace(req.AppointmentID) == "" {
		return model.Appointment{}, invalidf("appointment id is required")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return model.Appointment{}, invalidf("actor id is required")
	}

	appt, err = s.transition(ctx, req.AppointmentID, model.StatusCancelled, func(current model.Appointment) error {
		if !req.ActorIsAdmin && current.ClientID != req.ActorID {
			return ErrForbidden
		}
		return nil
	}, req.ActorID)
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"actor_id", req.ActorID,
		"actor_is_admin", req.ActorIsAdmin,
	)
	return appt, nil
}

// Complete marks a confirmed appointment completed. It performs no authorization and is only
// reachable from the completion sweeper.
func (s *Service) Complete(ctx context.Context, appointmentID string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Complete", trace.WithAttributes(attribute.String("booking.appointment_id", appointmentID)))
	appt, err := s.transition(ctx, appointmentID, model.StatusCompleted, nil, "")
	endSpan(span, err)
	return appt, err
}

// CompleteElapsed completes up to limit confirmed appointments that ended at least grace before
// now, each in its own transaction. Appointments that reached a terminal state concurrently are
// skipped. It returns how many were completed.
func (s *Service) CompleteElapsed(ctx context.Context, now time.Time, grace time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := s.store.ListCompletable(ctx, now.Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list completable: %w", err)
	}

	completed := 0
	var errs []error
	for _, appt := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.Complete(ctx, appt.ID)
		switch {
		case err == nil:
			completed++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			s.logger.Debug("skip completion", "appointment_id", appt.ID, "err", err)
		default:
			errs = append(errs, fmt.Errorf("complete %s: %w", appt.ID, err))
		}
	}
	s.metrics.ObserveCompletions(completed)
	return completed, errors.Join(errs...)
}

// transition locks the appointment row, runs authorize, and applies a confirmed -> to change with
// its outbox event in one read-committed transaction.
func (s *Service) transition(ctx context.Context, id string, to model.Status, authorize func(model.Appointment) error, actorID string) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.InTx(ctx, ReadCommitted, func(tx Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if authorize != nil {
			if err := authorize(current); err != nil {
				return err
			}
		}
		if err := terminalError(current.Status, to); err != nil {
			return err
		}

		at := s.now()
		n, err := tx.UpdateAppointmentStatus(ctx, current.ID, model.StatusConfirmed, to, at)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: appointment is no longer confirmed", ErrInvalidState)
		}
		current.Status = to
		current.UpdatedAt = at

		evt, err := newAppointmentEvent(eventFor(to), current, actorID, at)
		if err != nil {
			return fmt.Errorf("build %s event: %w", to, err)
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return fmt.Errorf("record %s event: %w", to, err)
		}
		appt = current
		return nil
	})
	return appt, err
}

func terminalError(current, to model.Status) error {
	if model.CanTransition(current, to) {
		return nil
	}
	switch current {
	case model.StatusCancelled:
		if to == model.StatusCancelled {
			return ErrAlreadyCancelled
		}
		return fmt.Errorf("%w: appointment was cancelled", ErrInvalidState)
	case model.StatusCompleted:
		if to == model.StatusCancelled {
			return ErrAlreadyCompleted
		}
		return fmt.Errorf("%w: appointment already completed", ErrInvalidState)
	default:
		return fmt.Errorf("%w: cannot move %s appointment to %s", ErrInvalidState, current, to)
	}
}

func eventFor(to model.Status) string {
	if to == model.StatusCompleted {
		return EventAppointmentCompleted
	}
	return EventAppointmentCancelled
}
