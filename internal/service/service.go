// Package service implements the registration workflow: checkout initiation, the payment
// webhook commit, attendance check-in and event management. Storage and external systems
// are reached through the small interfaces declared here.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
)

var (
	// ErrInvalidInput marks a malformed request; the wrapped message says which field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEventNotOpen means the event is not accepted or has already started.
	ErrEventNotOpen = errors.New("event is not open for registration")
	// ErrProvider wraps payment provider failures.
	ErrProvider = errors.New("payment provider error")
	// ErrForbidden means the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated means no caller identity was supplied.
	ErrUnauthenticated = errors.New("you must be logged in")

	ErrInvalidToken      = errors.New("invalid QR code")
	ErrTokenNotLinked    = errors.New("QR code is not linked to any event")
	ErrNotRegistered     = errors.New("you are not registered for this event")
	ErrAttendanceMissing = errors.New("attendance record missing")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListOpen(ctx context.Context, from time.Time) ([]model.Event, error)
	Review(ctx context.Context, id string, to model.EventStatus) (*model.Event, error)
}

// RegistrationStore persists registrations and their attendance.
type RegistrationStore interface {
	CommitPaid(ctx context.Context, reg *model.Registration) error
	FindForParticipant(ctx context.Context, eventID, participantID string) (*model.Registration, error)
	MarkPresent(ctx context.Context, registrationID string, at time.Time) (bool, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error)
}

// QRTokenStore persists issued QR token records.
type QRTokenStore interface {
	Get(ctx context.Context, id string) (*model.QRToken, error)
	Create(ctx context.Context, t *model.QRToken) error
}

// CheckoutProvider creates hosted payment sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, intent model.CheckoutIntent) (*payment.Session, error)
}

// Refunder returns money for a payment that could not be turned into a registration.
type Refunder interface {
	Refund(ctx context.Context, paymentIntentID, idempotencyKey string) error
}

// WebhookVerifier authenticates raw webhook deliveries.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string) (*payment.Event, error)
}

// Ledger remembers provider event ids that need no further work.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

// Publisher emits domain events.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// ImageStore keeps rendered QR images and returns where they can be fetched.
type ImageStore interface {
	PutQRImage(ctx context.Context, organizerID, tokenID string, png []byte) (string, error)
}

type nopLedger struct{}

func (nopLedger) Seen(context.Context, string) (bool, error) { return false, nil }
func (nopLedger) Remember(context.Context, string) error       { return nil }

type nopPublisher struct{}

func (nopPublisher) PublishJSON(context.Context, string, any) error { return nil }
