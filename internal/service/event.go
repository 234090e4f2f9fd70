package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

// EventService contains business logic for organizing, reviewing and listing events.
type EventService struct {
	events EventStore
	regs   RegistrationStore
	issuer *QRIssuer
	log    *slog.Logger
	now    func() time.Time
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, regs RegistrationStore, issuer *QRIssuer, log *slog.Logger) *EventService {
	return &EventService{events: events, regs: regs, issuer: issuer, log: log, now: time.Now}
}

// CreateEvent validates the request and stores a pending event together with a
// freshly minted QR token id.
func (s *EventService) CreateEvent(ctx context.Context, caller *model.Identity, req model.CreateEventRequest) (*model.Event, error) {
	if err := requireRole(caller, model.RoleOrganizer); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid("event name is required")
	}
	if len(req.Name) > 255 {
		return nil, invalid("event name must be 255 characters or fewer")
	}
	now := s.now().UTC()
	if req.StartsAt.IsZero() || !req.StartsAt.After(now) {
		return nil, invalid("event date must be in the future")
	}
	if req.MaxParticipants < 0 {
		return nil, invalid("max_participants must be zero (unlimited) or positive")
	}
	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) || req.Price < 0 {
		return nil, invalid("price must be a non-negative number")
	}
	if req.Price >= 1e6 || model.CentsFromPrice(req.Price) > model.MaxPriceCents {
		return nil, invalid("price must not exceed 999999.99")
	}

	e := &model.Event{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		StartsAt:        req.StartsAt.UTC(),
		OrganizerID:     caller.UserID,
		Address:         strings.TrimSpace(req.Address),
		CategoryID:      req.CategoryID,
		InstitutionID:   req.InstitutionID,
		MaxParticipants: req.MaxParticipants,
		PriceCents:      model.CentsFromPrice(req.Price),
		Status:          model.EventPending,
		QRTokenID:       s.issuer.Mint(),
		CreatedAt:       now,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("event created", "event_id", e.ID, "organizer_id", e.OrganizerID, "qr_token_id", e.QRTokenID)
	return e, nil
}

// GetEvent returns an event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.events.GetByID(ctx, id)
}

// ListEvents returns the accepted events that have not started yet.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.ListOpen(ctx, s.now())
}

// ReviewEvent lets an admin accept or decline a pending event.
func (s *EventService) ReviewEvent(ctx context.Context, caller *model.Identity, id string, req model.ReviewEventRequest) (*model.Event, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}
	to, err := model.ParseEventStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, invalid("%v", err)
	}
	if to == model.EventPending {
		return nil, invalid("status must be accepted or declined")
	}
	e, err := s.events.Review(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.log.Info("event reviewed", "event_id", e.ID, "status", string(e.Status), "admin_id", caller.UserID)
	return e, nil
}

// FinalizeQRToken persists the QR token record for an event the caller owns.
func (s *EventService) FinalizeQRToken(ctx context.Context, caller *model.Identity, eventID string, png []byte) (*model.QRToken, error) {
	if err := requireRole(caller, model.RoleOrganizer); err != nil {
		return nil, err
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != caller.UserID {
		return nil, fmt.Errorf("%w: event belongs to another organizer", ErrForbidden)
	}
	return s.issuer.Finalize(ctx, ev, png)
}

// ListRegistrations returns the attendance list of an event to its organizer or an admin.
func (s *EventService) ListRegistrations(ctx context.Context, caller *model.Identity, eventID string) ([]model.Registration, error) {
	if caller == nil || caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoleAdmin && (caller.Role != model.RoleOrganizer || ev.OrganizerID != caller.UserID) {
		return nil, ErrForbidden
	}
	return s.regs.ListByEvent(ctx, ev.ID)
}

// ListMyRegistrations returns the caller's own registration history.
func (s *EventService) ListMyRegistrations(ctx context.Context, caller *model.Identity) ([]model.Registration, error) {
	if caller == nil || caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.regs.ListByParticipant(ctx, caller.UserID)
}

func requireRole(caller *model.Identity, role model.Role) error {
	if caller == nil || caller.UserID == "" {
		return ErrUnauthenticated
	}
	if caller.Role != role {
		return fmt.Errorf("%w: requires %s role", ErrForbidden, role)
	}
	return nil
}
