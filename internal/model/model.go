// Package model defines the core domain types for the campus event registration system.
package model

import (
	"fmt"
	"time"
)

// EventStatus is the admin review state of an event.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventAccepted EventStatus = "accepted"
	EventDeclined EventStatus = "declined"
)

// ParseEventStatus accepts the status names used by the admin review screen.
func ParseEventStatus(s string) (EventStatus, error) {
	switch EventStatus(s) {
	case EventPending, EventAccepted, EventDeclined:
		return EventStatus(s), nil
	case "Pending":
		return EventPending, nil
	case "Accepted":
		return EventAccepted, nil
	case "Declined":
		return EventDeclined, nil
	}
	return "", fmt.Errorf("unknown event status %q", s)
}

// Event represents an organized activity participants may register for.
// MaxParticipants of zero means unlimited. QRTokenID is never serialized here;
// it only reaches the owning organizer through OrganizerEvent.
type Event struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	StartsAt        time.Time   `json:"starts_at"`
	OrganizerID     string      `json:"organizer_id"`
	Address         string      `json:"address"`
	CategoryID      string      `json:"category_id"`
	InstitutionID   string      `json:"institution_id"`
	MaxParticipants int         `json:"max_participants"`
	PriceCents      int64       `json:"price_cents"`
	Status          EventStatus `json:"status"`
	QRTokenID       string      `json:"-"`
	RegisteredCount int         `json:"registered_count"`
	CreatedAt       time.Time   `json:"created_at"`
}

// OrganizerEvent is the owner's view of an event, including its check-in token id.
type OrganizerEvent struct {
	*Event
	QRTokenID string `json:"qr_token_id"`
}

// NewOrganizerEvent exposes e's token id.
func NewOrganizerEvent(e *Event) OrganizerEvent {
	return OrganizerEvent{Event: e, QRTokenID: e.QRTokenID}
}

// RegistrationStatus only has one value: failed or abandoned checkouts are never stored.
type RegistrationStatus string

const RegistrationPaid RegistrationStatus = "paid"

// AttendanceStatus is the physical check-in state of a registration.
type AttendanceStatus string

const (
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendancePresent AttendanceStatus = "present"
)

// Attendance is embedded in its registration. CheckInTime is nil until present.
type Attendance struct {
	Status      AttendanceStatus `json:"status"`
	CheckInTime *time.Time       `json:"check_in_time"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Registration is a participant's paid claim on one event.
type Registration struct {
	ID               string             `json:"id"`
	EventID          string             `json:"event_id"`
	ParticipantID    string             `json:"participant_id"`
	ParticipantEmail string             `json:"participant_email"`
	AmountPaidCents  int64              `json:"amount_paid_cents"`
	Currency         string             `json:"currency"`
	PaymentRef       string             `json:"payment_ref"`
	Status           RegistrationStatus `json:"status"`
	// Attendance is nil when the row has no attendance record, which is a data-integrity fault.
	Attendance *Attendance `json:"attendance"`
	CreatedAt  time.Time   `json:"created_at"`
}

// QRToken is the persisted record behind a scannable event code.
type QRToken struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	OrganizerID string    `json:"organizer_id"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ─── Requests / responses ────────────────────────────────────────────────────

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	StartsAt        time.Time `json:"starts_at"`
	Address         string    `json:"address"`
	CategoryID      string    `json:"category_id"`
	InstitutionID   string    `json:"institution_id"`
	MaxParticipants int       `json:"max_participants"`
	Price           float64   `json:"price"`
}

// ReviewEventRequest is the admin payload for accepting or declining an event.
type ReviewEventRequest struct {
	Status string `json:"status"`
}

// CheckoutRequest is the body sent by the client to start a paid registration.
type CheckoutRequest struct {
	EventID   string   `json:"eventId"`
	UserID    string   `json:"userId"`
	UserEmail string   `json:"userEmail"`
	Price     *float64 `json:"price"`
}

// CheckoutResponse carries the hosted payment page URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CheckInRequest carries the raw string read from a scanned code.
type CheckInRequest struct {
	Token string `json:"token"`
}

// CheckInResult is what a participant sees after scanning.
type CheckInResult struct {
	Status      string     `json:"status"`
	EventID     string     `json:"eventId"`
	EventName   string     `json:"eventName"`
	CheckInTime *time.Time `json:"checkInTime"`
}

const (
	CheckInFresh   = "checked_in"
	CheckInAlready = "already_checked_in"
)

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MaxPriceCents is the largest amount the payment provider accepts for one charge.
const MaxPriceCents = 99_999_999

// CentsFromPrice converts a decimal price to the smallest currency unit.
func CentsFromPrice(price float64) int64 {
	if price >= 0 {
		return int64(price*100 + 0.5)
	}
	return int64(price*100 - 0.5)
}
