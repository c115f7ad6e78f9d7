package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/barberslot/libs/db"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/outbox"
)

// DB is satisfied by *pgxpool.Pool and pgxmock.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store on PostgreSQL.
type Store struct {
	db     DB
	outbox *outbox.Repository
}

func NewStore(db DB, outboxRepo *outbox.Repository) *Store {
	return &Store{db: db, outbox: outboxRepo}
}

var _ booking.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, mode booking.TxMode, fn func(booking.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	if mode == booking.Serializable {
		opts.IsoLevel = pgx.Serializable
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// translate maps the errors a concurrent writer can cause onto booking.ErrConflict.
func translate(err error) error {
	if db.IsRetryableConflict(err) {
		return fmt.Errorf("%w (sqlstate %s): %v", booking.ErrConflict, db.PgCode(err), err)
	}
	return err
}

const appointmentColumns = `a.id::text, a.client_id, a.resource_id, a.start_time, a.end_time, a.status, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	if err := row.Scan(&a.ID, &a.ClientID, &a.ResourceID, &a.StartTime, &a.EndTime, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// listAppointments runs an appointment query and attaches items with a second query.
func listAppointments(ctx context.Context, q querier, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		appts = append(appts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return appts, nil
	}
	if err := attachItems(ctx, q, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

func attachItems(ctx context.Context, q querier, appts []model.Appointment) error {
	ids := make([]string, 0, len(appts))
	index := make(map[string]int, len(appts))
	for i, a := range appts {
		ids = append(ids, a.ID)
		index[a.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT appointment_id::text, service_id, name, duration_minutes, price_minor
		FROM appointment_items
		WHERE appointment_id = ANY($1::uuid[])
		ORDER BY appointment_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var apptID string
		var it model.Item
		if err := rows.Scan(&apptID, &it.ServiceID, &it.Name, &it.DurationMinutes, &it.PriceMinor); err != nil {
			return err
		}
		if i, ok := index[apptID]; ok {
			appts[i].Items = append(appts[i].Items, it)
		}
	}
	return rows.Err()
}

func listIntervals(ctx context.Context, q querier, sql string, args ...any) ([]model.Interval, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var iv model.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) ListConfirmed(ctx context.Context, resourceID string, from, to time.Time) ([]model.Interval, error) {
	return listIntervals(ctx, s.db, `
		SELECT start_time, end_time
		FROM appointments
		WHERE resource_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, resourceID, from, to)
}

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, duration_minutes, price_minor
		FROM services
		WHERE active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.PriceMinor); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) ListByClient(ctx context.Context, clientID string) ([]model.Appointment, error) {
	return listAppointments(ctx, s.db, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.client_id = $1
		ORDER BY a.start_time ASC
	`, clientID)
}

func (s *Store) ListByResourceDay(ctx context.Context, resourceID string, from, to time.Time) ([]model.Appointment, error) {
	return listAppointments(ctx, s.db, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.resource_id = $1
			AND a.start_time >= $2
			AND a.start_time < $3
		ORDER BY a.start_time ASC
	`, resourceID, from, to)
}

func (s *Store) ListCompletable(ctx context.Context, before time.Time, limit int) ([]model.Appointment, error) {
	return listAppointments(ctx, s.db, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.status = 'confirmed'
			AND a.end_time <= $1
		ORDER BY a.end_time ASC
		LIMIT $2
	`, before, limit)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LookupServices(ctx context.Context, ids []string) (map[string]model.Service, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, duration_minutes, price_minor
		FROM services
		WHERE id = ANY($1) AND active
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.Service, len(ids))
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.PriceMinor); err != nil {
			return nil, err
		}
		out[svc.ID] = svc
	}
	return out, rows.Err()
}

func (t *pgTx) ListConfirmedOverlapping(ctx context.Context, resourceID string, start, end time.Time) ([]model.Interval, error) {
	return listIntervals(ctx, t.tx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE resource_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		FOR UPDATE
	`, resourceID, start, end)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, client_id, resource_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id::text
	`, appt.ID, appt.ClientID, appt.ResourceID, appt.StartTime, appt.EndTime, string(appt.Status), appt.CreatedAt).Scan(&id)
	if err != nil {
		return "", err
	}

	n := len(appt.Items)
	serviceIDs, names := make([]string, 0, n), make([]string, 0, n)
	durations, prices := make([]int32, 0, n), make([]int64, 0, n)
	for _, it := range appt.Items {
		serviceIDs = append(serviceIDs, it.ServiceID)
		names = append(names, it.Name)
		durations = append(durations, int32(it.DurationMinutes))
		prices = append(prices, it.PriceMinor)
	}
	// One round trip for all items; position keeps the requested order.
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_items (appointment_id, position, service_id, name, duration_minutes, price_minor)
		SELECT $1::uuid, t.ord - 1, t.service_id, t.name, t.duration_minutes, t.price_minor
		FROM unnest($2::text[], $3::text[], $4::int[], $5::bigint[])
			WITH ORDINALITY AS t(service_id, name, duration_minutes, price_minor, ord)
	`, id, serviceIDs, names, durations, prices); err != nil {
		return "", fmt.Errorf("insert items: %w", err)
	}
	return id, nil
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if db.IsNotFound(err) || db.PgCode(err) == db.CodeInvalidTextRepresentation {
			return model.Appointment{}, booking.ErrNotFound
		}
		return model.Appointment{}, err
	}
	appts := []model.Appointment{appt}
	if err := attachItems(ctx, t.tx, appts); err != nil {
		return model.Appointment{}, err
	}
	return appts[0], nil
}

func (t *pgTx) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) RecordEvent(ctx context.Context, evt booking.Event) error {
	return t.outbox.Insert(ctx, t.tx, outbox.Event{
		EventID:       evt.ID,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.Type,
		Payload:       evt.Payload,
	})
}
