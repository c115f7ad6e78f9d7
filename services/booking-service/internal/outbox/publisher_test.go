package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberslot/libs/kafkax"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var outboxColumns = []string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func TestRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("evt-1", "appointment", "appt-1", "booking.appointment.booked.v1", []byte(`{}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewRepository().Insert(context.Background(), mock, Event{
		EventID:       "evt-1",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     "booking.appointment.booked.v1",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id::text").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(1), "evt-1", "appointment", "appt-1", "booking.appointment.booked.v1", []byte(`{"a":1}`), "", "", created).
			AddRow(int64(2), "evt-2", "appointment", "appt-1", "booking.appointment.cancelled.v1", []byte(`{"a":2}`), "", "", created))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	w := &fakeWriter{}
	p := NewPublisher(mock, NewRepository(), w, discardLogger(), nil, PublisherConfig{BatchSize: 10})
	n, err := p.PublishBatch(context.Background())
	if err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}
	if n != 2 || len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got n=%d written=%d", n, len(w.msgs))
	}
	if w.msgs[1].Topic != "booking.appointment.cancelled.v1" || string(w.msgs[1].Key) != "appt-1" {
		t.Fatalf("unexpected message %+v", w.msgs[1])
	}
	if kafkax.HeaderValue(w.msgs[0].Headers, kafkax.HeaderEventID) != "evt-1" {
		t.Fatal("expected event_id header")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatchWriteFailureLeavesRowsPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id::text").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(7), "evt-7", "appointment", "appt-7", "booking.appointment.booked.v1", []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	p := NewPublisher(mock, NewRepository(), &fakeWriter{err: errors.New("broker down")}, discardLogger(), nil, PublisherConfig{})
	if _, err := p.PublishBatch(context.Background()); err == nil {
		t.Fatal("expected write error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatchEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id::text").WithArgs(50).WillReturnRows(pgxmock.NewRows(outboxColumns))
	mock.ExpectCommit()

	w := &fakeWriter{}
	n, err := NewPublisher(mock, NewRepository(), w, discardLogger(), nil, PublisherConfig{}).PublishBatch(context.Background())
	if err != nil || n != 0 || len(w.msgs) != 0 {
		t.Fatalf("expected empty batch, n=%d err=%v", n, err)
	}
}
