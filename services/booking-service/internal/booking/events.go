package booking

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"

	AggregateAppointment = "appointment"
)

// Event is written to the outbox in the same transaction as the change it describes.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	ClientID        string    `json:"client_id"`
	ResourceID      string    `json:"resource_id"`
	Status          string    `json:"status"`
	ServiceIDs      []string  `json:"service_ids"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	TotalPriceMinor int64     `json:"total_price_minor"`
	ActorID         string    `json:"actor_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func newAppointmentEvent(eventType string, appt model.Appointment, actorID string, at time.Time) (Event, error) {
	ids := make([]string, 0, len(appt.Items))
	for _, it := range appt.Items {
		ids = append(ids, it.ServiceID)
	}
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		ClientID:        appt.ClientID,
		ResourceID:      appt.ResourceID,
		Status:          string(appt.Status),
		ServiceIDs:      ids,
		StartTime:       appt.StartTime.UTC(),
		EndTime:         appt.EndTime.UTC(),
		TotalPriceMinor: appt.TotalPriceMinor(),
		ActorID:         actorID,
		OccurredAt:      at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.NewString(),
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		Type:          eventType,
		Payload:       payload,
	}, nil
}
