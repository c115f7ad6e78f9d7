package handlers

import (
	"time"

	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
)

type createAppointmentRequest struct {
	ResourceID string   `json:"resource_id"`
	StartTime  string   `json:"start_time" validate:"required"`
	ServiceIDs []string `json:"service_ids" validate:"required,min=1,max=20,dive,required,max=64"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,max=64"`
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceMinor      int64  `json:"price_minor"`
}

type slotsResponse struct {
	ResourceID      string   `json:"resource_id"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Slots           []string `json:"slots"`
}

type itemResponse struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceMinor      int64  `json:"price_minor"`
}

type appointmentResponse struct {
	AppointmentID   string         `json:"appointment_id"`
	ClientID        string         `json:"client_id,omitempty"`
	ResourceID      string         `json:"resource_id"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	Status          string         `json:"status"`
	TotalPriceMinor int64          `json:"total_price_minor"`
	Items           []itemResponse `json:"items"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

type clientAppointmentsResponse struct {
	Upcoming []appointmentResponse `json:"upcoming"`
	History  []appointmentResponse `json:"history"`
}

type agendaResponse struct {
	ResourceID   string                `json:"resource_id"`
	Date         string                `json:"date"`
	Appointments []appointmentResponse `json:"appointments"`
}

// toResponse renders times in loc so clients see the resource's wall clock.
func toResponse(a model.Appointment, loc *time.Location, withClient bool) appointmentResponse {
	items := make([]itemResponse, 0, len(a.Items))
	for _, it := range a.Items {
		items = append(items, itemResponse{
			ServiceID:       it.ServiceID,
			Name:            it.Name,
			DurationMinutes: it.DurationMinutes,
			PriceMinor:      it.PriceMinor,
		})
	}
	resp := appointmentResponse{
		AppointmentID:   a.ID,
		ResourceID:      a.ResourceID,
		StartTime:       a.StartTime.In(loc).Format(time.RFC3339),
		EndTime:         a.EndTime.In(loc).Format(time.RFC3339),
		Status:          string(a.Status),
		TotalPriceMinor: a.TotalPriceMinor(),
		Items:           items,
	}
	if withClient {
		resp.ClientID = a.ClientID
	}
	if !a.UpdatedAt.IsZero() {
		resp.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toResponses(appts []model.Appointment, loc *time.Location, withClient bool) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a, loc, withClient))
	}
	return out
}
