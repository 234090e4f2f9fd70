// Package queue defines the domain events published to RabbitMQ and the consumer that
// hands them to the notification boundary.
package queue

import "time"

// Routing keys on the topic exchange.
const (
	KeyRegistrationConfirmed = "registration.confirmed"
	KeyAttendanceCheckedIn   = "attendance.checked_in"
)

// RegistrationConfirmed is published once a paid registration has been committed.
// It carries enough for a notifier to email the participant without querying the database.
type RegistrationConfirmed struct {
	RegistrationID   string    `json:"registration_id"`
	EventID          string    `json:"event_id"`
	ParticipantID    string    `json:"participant_id"`
	ParticipantEmail string    `json:"participant_email"`
	AmountPaidCents  int64     `json:"amount_paid_cents"`
	Currency         string    `json:"currency"`
	PaymentRef       string    `json:"payment_ref"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// AttendanceCheckedIn is published on the absent→present transition only.
type AttendanceCheckedIn struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	ParticipantID  string    `json:"participant_id"`
	CheckedInAt    time.Time `json:"checked_in_at"`
}
