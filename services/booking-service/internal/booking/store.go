package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
)

type TxMode int

const (
	// Serializable spans the overlap re-check and the insert of a booking.
	Serializable TxMode = iota
	// ReadCommitted is enough for status changes, which lock the row they change.
	ReadCommitted
)

// Store is the persistence boundary. Reads outside InTx are advisory.
type Store interface {
	// InTx runs fn in one transaction and commits when fn returns nil. Any error rolls back.
	// Implementations report serialization failures and exclusion violations as ErrConflict.
	InTx(ctx context.Context, mode TxMode, fn func(Tx) error) error

	ListConfirmed(ctx context.Context, resourceID string, from, to time.Time) ([]model.Interval, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Appointment, error)
	ListByResourceDay(ctx context.Context, resourceID string, from, to time.Time) ([]model.Appointment, error)
	// ListCompletable returns confirmed appointments that ended at or before before, oldest first.
	ListCompletable(ctx context.Context, before time.Time, limit int) ([]model.Appointment, error)
}

type Tx interface {
	LookupServices(ctx context.Context, ids []string) (map[string]model.Service, error)
	ListConfirmedOverlapping(ctx context.Context, resourceID string, start, end time.Time) ([]model.Interval, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) (string, error)
	// GetAppointmentForUpdate locks the row until the transaction ends. Missing rows are ErrNotFound.
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// UpdateAppointmentStatus changes status only when it still equals from and returns the rows changed.
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (int64, error)
	RecordEvent(ctx context.Context, evt Event) error
}
