// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
)

// EventManager is the event management surface of the service layer.
type EventManager interface {
	CreateEvent(ctx context.Context, caller *model.Identity, req model.CreateEventRequest) (*model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	ReviewEvent(ctx context.Context, caller *model.Identity, id string, req model.ReviewEventRequest) (*model.Event, error)
	FinalizeQRToken(ctx context.Context, caller *model.Identity, eventID string, png []byte) (*model.QRToken, error)
	ListRegistrations(ctx context.Context, caller *model.Identity, eventID string) ([]model.Registration, error)
	ListMyRegistrations(ctx context.Context, caller *model.Identity) ([]model.Registration, error)
}

// EventHandler holds the HTTP handlers for events and registrations.
type EventHandler struct {
	svc EventManager
	log *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc EventManager, log *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

const maxJSONBody = 1 << 20 // 1 MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// inputMessage strips the sentinel prefix so the client sees only the field problem.
func inputMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
}

// writeServiceError maps service and repository errors to a status and a
// human-readable message. Anything unrecognised is logged and reported as fallback.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err))
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "You must be logged in.")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "you are not allowed to do that")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, service.ErrEventFull), errors.Is(err, repository.ErrEventFull):
		writeError(w, http.StatusConflict, "event full")
	case errors.Is(err, service.ErrEventNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "event has already been reviewed")
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	default:
		log.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a pending event and mints its QR token id.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), IdentityFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, model.NewOrganizerEvent(event))
}

// ListEvents handles GET /events
// Returns the accepted events that are still upcoming.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ReviewEvent handles PATCH /events/{id}/status
func (h *EventHandler) ReviewEvent(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.ReviewEvent(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to review event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// FinalizeQRToken handles PUT /events/{id}/qr
// The body is the PNG rendered by the client, or empty to have the server render it.
func (h *EventHandler) FinalizeQRToken(w http.ResponseWriter, r *http.Request) {
	png, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "qr image too large")
		return
	}

	token, err := h.svc.FinalizeQRToken(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), png)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to save qr code")
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns the attendance list of an event.
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListRegistrations(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ListMyRegistrations handles GET /me/registrations
func (h *EventHandler) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListMyRegistrations(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
