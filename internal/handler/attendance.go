package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
)

// CheckInProcessor records attendance from a scanned token.
type CheckInProcessor interface {
	CheckIn(ctx context.Context, caller *model.Identity, token string) (*model.CheckInResult, error)
}

// AttendanceHandler serves the check-in endpoint.
type AttendanceHandler struct {
	svc CheckInProcessor
	log *slog.Logger
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(svc CheckInProcessor, log *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, log: log}
}

// CheckIn handles POST /attendance/check-in
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.CheckIn(r.Context(), IdentityFrom(r.Context()), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "You must be logged in.")
		case errors.Is(err, service.ErrInvalidToken):
			writeError(w, http.StatusNotFound, "Invalid QR Code.")
		case errors.Is(err, service.ErrTokenNotLinked):
			writeError(w, http.StatusConflict, "QR Code is not linked to any event.")
		case errors.Is(err, service.ErrNotRegistered):
			writeError(w, http.StatusNotFound, "You are not registered for this event.")
		case errors.Is(err, service.ErrAttendanceMissing):
			writeError(w, http.StatusInternalServerError, "Attendance record missing.")
		default:
			h.log.Error("check-in failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Check-in failed. Please try again.")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
