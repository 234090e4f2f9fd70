// Package repository implements all database queries for the campus event registration system.
// It uses pgx directly (no ORM) so every lock and conditional write is visible in the SQL.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrAlreadyRegistered is returned when the participant already holds a registration
// for the event under a different payment.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrDuplicatePayment is returned when the payment reference has already been committed.
var ErrDuplicatePayment = errors.New("payment already recorded")

// ErrInvalidTransition is returned when a state change is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrAlreadyExists is returned when an immutable record has already been written.
var ErrAlreadyExists = errors.New("already exists")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
