package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberslot/libs/auth"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking/bookingtest"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type testServer struct {
	mux   *http.ServeMux
	store *bookingtest.Store
}

func barber(id string, loc *time.Location) schedule.Config {
	return schedule.Config{
		ResourceID:  id,
		Location:    loc,
		Open:        9 * 60,
		Close:       18 * 60,
		LunchStart:  12 * 60,
		LunchEnd:    13 * 60,
		Granularity: 15 * time.Minute,
	}
}

// newTestServer serves barber-1 (UTC, the default) plus any extra resources.
func newTestServer(t *testing.T, extra ...schedule.Config) testServer {
	t.Helper()
	reg, err := schedule.NewRegistry(append([]schedule.Config{barber("barber-1", time.UTC)}, extra...)...)
	require.NoError(t, err)

	store := bookingtest.NewStore(
		model.Service{ID: "haircut", Name: "Haircut", DurationMinutes: 30, PriceMinor: 3500},
		model.Service{ID: "beard", Name: "Beard trim", DurationMinutes: 15, PriceMinor: 2000},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	svc := booking.NewService(store, reg, logger, booking.WithClock(clock))

	v, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewBookingHandler(svc, logger).Register(mux, auth.RequireBearer(v), nil)
	return testServer{mux: mux, store: store}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(testSecret, sub, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			rdr = bytes.NewBufferString(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			rdr = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServices(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/public/services", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Services []serviceItem `json:"services"`
	}](t, rec)
	require.Len(t, body.Services, 2)

	rec = s.do(t, http.MethodPost, "/api/v1/public/services", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSlots(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/public/slots?date=2026-03-02&duration=30", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[slotsResponse](t, rec)
	require.Equal(t, "barber-1", body.ResourceID)
	require.Len(t, body.Slots, 31)
	require.Equal(t, "09:00", body.Slots[0])

	rec = s.do(t, http.MethodGet, "/api/v1/public/slots?date=2026-03-02&service_ids=haircut,beard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[slotsResponse](t, rec)
	require.Equal(t, 45, body.DurationMinutes)
	require.Equal(t, "17:15", body.Slots[len(body.Slots)-1])

	for _, path := range []string{
		"/api/v1/public/slots?duration=30",
		"/api/v1/public/slots?date=2026-03-02",
		"/api/v1/public/slots?date=2026-03-02&duration=abc",
		"/api/v1/public/slots?date=03/02/2026&duration=30",
		"/api/v1/public/slots?date=2026-03-02&duration=30&resource_id=nobody",
	} {
		rec = s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestCreateAppointment(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	rec := s.do(t, http.MethodPost, "/api/v1/appointments", alice, map[string]any{
		"start_time":  "2026-03-02T10:00",
		"service_ids": []string{"haircut", "beard"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[appointmentResponse](t, rec)
	require.NotEmpty(t, created.AppointmentID)
	require.Equal(t, "2026-03-02T10:45:00Z", created.EndTime)
	require.Equal(t, int64(5500), created.TotalPriceMinor)
	require.Equal(t, "confirmed", created.Status)

	stored, ok := s.store.Get(created.AppointmentID)
	require.True(t, ok)
	require.Equal(t, "alice", stored.ClientID)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments", token(t, "bob", ""), map[string]any{
		"start_time":  "2026-03-02T10:30:00Z",
		"service_ids": []string{"haircut"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", decodeBody[map[string]string](t, rec)["error"])
}

func TestCreateAppointment_Rejections(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	cases := []struct {
		name string
		tok  string
		body any
		want int
	}{
		{"no token", "", map[string]any{"start_time": "2026-03-02T10:00", "service_ids": []string{"haircut"}}, http.StatusUnauthorized},
		{"bad token", "nope", map[string]any{"start_time": "2026-03-02T10:00", "service_ids": []string{"haircut"}}, http.StatusUnauthorized},
		{"malformed json", alice, `{"start_time":`, http.StatusBadRequest},
		{"missing services", alice, map[string]any{"start_time": "2026-03-02T10:00"}, http.StatusBadRequest},
		{"bad time", alice, map[string]any{"start_time": "tomorrow", "service_ids": []string{"haircut"}}, http.StatusBadRequest},
		{"unknown service", alice, map[string]any{"start_time": "2026-03-02T10:00", "service_ids": []string{"perm"}}, http.StatusBadRequest},
		{"starts in lunch", alice, map[string]any{"start_time": "2026-03-02T12:15", "service_ids": []string{"haircut"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/appointments", tc.tok, tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListAndCancel(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	rec := s.do(t, http.MethodPost, "/api/v1/appointments", alice, map[string]any{
		"start_time":  "2026-03-02T14:00",
		"service_ids": []string{"haircut"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[appointmentResponse](t, rec).AppointmentID

	rec = s.do(t, http.MethodGet, "/api/v1/appointments", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[clientAppointmentsResponse](t, rec)
	require.Len(t, list.Upcoming, 1)
	require.Empty(t, list.History)
	require.Empty(t, list.Upcoming[0].ClientID)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments/cancel", token(t, "mallory", ""), map[string]string{"appointment_id": id})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments/cancel", alice, map[string]string{"appointment_id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decodeBody[appointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments/cancel", alice, map[string]string{"appointment_id": id})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments/cancel", alice, map[string]string{"appointment_id": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/appointments/cancel", alice, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListRendersEachResourceInItsOwnZone(t *testing.T) {
	s := newTestServer(t, barber("barber-2", time.FixedZone("BRT", -3*3600)))
	alice := token(t, "alice", "")

	for _, body := range []map[string]any{
		{"start_time": "2026-03-02T10:00", "service_ids": []string{"haircut"}},
		{"resource_id": "barber-2", "start_time": "2026-03-02T10:00", "service_ids": []string{"haircut"}},
	} {
		rec := s.do(t, http.MethodPost, "/api/v1/appointments", alice, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/v1/appointments", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[clientAppointmentsResponse](t, rec)
	require.Len(t, list.Upcoming, 2)

	starts := map[string]string{}
	for _, a := range list.Upcoming {
		starts[a.ResourceID] = a.StartTime
	}
	require.Equal(t, "2026-03-02T10:00:00Z", starts["barber-1"])
	require.Equal(t, "2026-03-02T10:00:00-03:00", starts["barber-2"])
}

func TestAgenda(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/appointments", token(t, "alice", ""), map[string]any{
		"start_time":  "2026-03-02T09:00",
		"service_ids": []string{"beard"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/agenda?date=2026-03-02", token(t, "alice", ""), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/agenda", token(t, "boss", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agenda := decodeBody[agendaResponse](t, rec)
	require.Equal(t, "2026-03-02", agenda.Date)
	require.Len(t, agenda.Appointments, 1)
	require.Equal(t, "alice", agenda.Appointments[0].ClientID)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/agenda?date=2026-03-03", token(t, "boss", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody[agendaResponse](t, rec).Appointments)
}

func TestParseStartTime(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)

	got, err := parseStartTime("2026-03-02T10:00", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseStartTime("2026-03-02T10:00:00Z", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), got.UTC())

	_, err = parseStartTime("10:00", loc)
	require.Error(t, err)
}
