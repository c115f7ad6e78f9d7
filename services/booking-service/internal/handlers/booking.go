package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/barberslot/libs/auth"
	"github.com/md-rashed-zaman/barberslot/libs/httpx"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
)

// localLayout is accepted for start_time and read in the resource's location.
const localLayout = "2006-01-02T15:04"

type BookingHandler struct {
	svc      *booking.Service
	logger   *slog.Logger
	validate *validator.Validate
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		svc:      svc,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the routes. authn must put an auth.Identity in the request context; writeLimit
// may be nil.
func (h *BookingHandler) Register(mux *http.ServeMux, authn, writeLimit httpx.Middleware) {
	mux.HandleFunc("/api/v1/public/services", h.Services)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.Handle("/api/v1/appointments", httpx.Chain(http.HandlerFunc(h.Appointments), authn, writeLimit))
	mux.Handle("/api/v1/appointments/cancel", httpx.Chain(http.HandlerFunc(h.Cancel), authn, writeLimit))
	mux.Handle("/api/v1/admin/agenda", httpx.Chain(http.HandlerFunc(h.Agenda), authn, auth.RequireAdmin))
}

func (h *BookingHandler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	svcs, err := h.svc.Services(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	items := make([]serviceItem, 0, len(svcs))
	for _, s := range svcs {
		items = append(items, serviceItem{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, PriceMinor: s.PriceMinor})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": items})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	query := booking.AvailabilityQuery{
		ResourceID: strings.TrimSpace(q.Get("resource_id")),
		Date:       strings.TrimSpace(q.Get("date")),
		ServiceIDs: splitCSV(q.Get("service_ids")),
	}
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "duration must be a positive number of minutes")
			return
		}
		query.DurationMinutes = n
	}
	if query.Date == "" || (query.DurationMinutes == 0 && len(query.ServiceIDs) == 0) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "date and one of duration or service_ids are required")
		return
	}

	slots, err := h.svc.Availability(r.Context(), query)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ResourceID:      slots.Schedule.ResourceID,
		Date:            slots.Date.Format(time.DateOnly),
		DurationMinutes: slots.DurationMinutes,
		Slots:           availability.FormatSlots(slots.Starts, slots.Schedule.Location),
	})
}

// Appointments serves POST (book) and GET (the caller's appointments) on one path.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, err := h.svc.Schedule(strings.TrimSpace(req.ResourceID))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	start, err := parseStartTime(req.StartTime, cfg.Location)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		ClientID:   id.UserID,
		ResourceID: cfg.ResourceID,
		Start:      start,
		ServiceIDs: req.ServiceIDs,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt, cfg.Location, false))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req cancelAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.Cancel(r.Context(), booking.CancelRequest{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		ActorID:       id.UserID,
		ActorIsAdmin:  id.IsAdmin,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt, h.location(appt.ResourceID), false))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	upcoming, history, err := h.svc.ClientAppointments(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, clientAppointmentsResponse{
		Upcoming: h.renderOwn(upcoming),
		History:  h.renderOwn(history),
	})
}

func (h *BookingHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	cfg, day, appts, err := h.svc.Agenda(r.Context(), strings.TrimSpace(q.Get("resource_id")), strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, agendaResponse{
		ResourceID:   cfg.ResourceID,
		Date:         day.Format(time.DateOnly),
		Appointments: toResponses(appts, cfg.Location, true),
	})
}

// renderOwn renders each appointment in its own resource's zone.
func (h *BookingHandler) renderOwn(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a, h.location(a.ResourceID), false))
	}
	return out
}

// location falls back to the default resource's zone for resources no longer configured.
func (h *BookingHandler) location(resourceID string) *time.Location {
	cfg, err := h.svc.Schedule(resourceID)
	if err != nil {
		cfg, _ = h.svc.Schedule("")
	}
	return cfg.Location
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.UserID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

// parseStartTime accepts RFC 3339 or a zone-less YYYY-MM-DDTHH:MM read in loc.
func parseStartTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("start_time %q must be RFC 3339 or YYYY-MM-DDTHH:MM", raw)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
