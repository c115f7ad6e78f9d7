package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/barberslot/libs/httpx"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
)

// writeDomainError is the single place booking errors become HTTP responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", booking.ErrConflict.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "not allowed to modify this appointment")
	case errors.Is(err, booking.ErrInvalidState):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	default:
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
