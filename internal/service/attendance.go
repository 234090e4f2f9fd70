package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/queue"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

// AttendanceService records physical check-ins from scanned QR tokens.
type AttendanceService struct {
	tokens  QRTokenStore
	events  EventStore
	regs    RegistrationStore
	pub     Publisher
	metrics *metrics.Recorder
	log     *slog.Logger
	now     func() time.Time
}

// NewAttendanceService constructs an AttendanceService. pub may be nil.
func NewAttendanceService(tokens QRTokenStore, events EventStore, regs RegistrationStore, pub Publisher, m *metrics.Recorder, log *slog.Logger) *AttendanceService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &AttendanceService{
		tokens:  tokens,
		events:  events,
		regs:    regs,
		pub:     pub,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// CheckIn marks the caller present at the event the token is bound to. Repeat scans
// succeed with CheckInAlready and change nothing.
func (s *AttendanceService) CheckIn(ctx context.Context, caller *model.Identity, rawToken string) (*model.CheckInResult, error) {
	res, err := s.checkIn(ctx, caller, rawToken)
	switch {
	case err == nil:
		s.metrics.CheckIn(res.Status)
	case errors.Is(err, ErrUnauthenticated):
		s.metrics.CheckIn("unauthenticated")
	case errors.Is(err, ErrInvalidToken):
		s.metrics.CheckIn("invalid_token")
	case errors.Is(err, ErrTokenNotLinked):
		s.metrics.CheckIn("token_not_linked")
	case errors.Is(err, ErrNotRegistered):
		s.metrics.CheckIn("not_registered")
	case errors.Is(err, ErrAttendanceMissing):
		s.metrics.CheckIn("attendance_missing")
	default:
		s.metrics.CheckIn("error")
	}
	return res, err
}

func (s *AttendanceService) checkIn(ctx context.Context, caller *model.Identity, rawToken string) (*model.CheckInResult, error) {
	if caller == nil || caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	tokenID := strings.TrimSpace(rawToken)
	if _, err := uuid.Parse(tokenID); err != nil {
		return nil, ErrInvalidToken
	}

	token, err := s.tokens.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load qr token: %w", err)
	}
	if token.EventID == "" {
		return nil, ErrTokenNotLinked
	}
	ev, err := s.events.GetByID(ctx, token.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotLinked
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if ev.QRTokenID != token.ID {
		return nil, ErrTokenNotLinked
	}

	reg, err := s.regs.FindForParticipant(ctx, ev.ID, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg.Attendance == nil {
		s.log.Error("registration has no attendance record", "registration_id", reg.ID, "event_id", ev.ID)
		return nil, ErrAttendanceMissing
	}
	if reg.Attendance.Status == model.AttendancePresent {
		return checkInResult(model.CheckInAlready, ev, reg.Attendance), nil
	}

	now := s.now().UTC()
	flipped, err := s.regs.MarkPresent(ctx, reg.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark present: %w", err)
	}
	if !flipped {
		// A concurrent scan won the transition; report what it wrote.
		reg, err = s.regs.FindForParticipant(ctx, ev.ID, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("reload registration: %w", err)
		}
		if reg.Attendance == nil {
			return nil, ErrAttendanceMissing
		}
		if reg.Attendance.Status != model.AttendancePresent {
			return nil, fmt.Errorf("attendance for registration %s was not updated", reg.ID)
		}
		return checkInResult(model.CheckInAlready, ev, reg.Attendance), nil
	}

	s.log.Info("participant checked in", "event_id", ev.ID, "participant_id", caller.UserID, "registration_id", reg.ID)
	msg := queue.AttendanceCheckedIn{
		RegistrationID: reg.ID,
		EventID:        ev.ID,
		ParticipantID:  caller.UserID,
		CheckedInAt:    now,
	}
	if err := s.pub.PublishJSON(ctx, queue.KeyAttendanceCheckedIn, msg); err != nil {
		s.log.Warn("publish attendance.checked_in failed", "registration_id", reg.ID, "error", err)
	}
	return checkInResult(model.CheckInFresh, ev, &model.Attendance{Status: model.AttendancePresent, CheckInTime: &now}), nil
}

func checkInResult(status string, ev *model.Event, att *model.Attendance) *model.CheckInResult {
	return &model.CheckInResult{
		Status:      status,
		EventID:     ev.ID,
		EventName:   ev.Name,
		CheckInTime: att.CheckInTime,
	}
}
