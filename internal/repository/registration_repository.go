package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

const registrationColumns = `id, event_id, participant_id, participant_email, amount_paid_cents, currency,
	payment_ref, status, attendance_status, checked_in_at, attendance_created_at, created_at`

// RegistrationRepository handles persistence for registrations and their attendance.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		reg          model.Registration
		attStatus    *string
		checkedInAt  *time.Time
		attCreatedAt *time.Time
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.ParticipantEmail,
		&reg.AmountPaidCents, &reg.Currency, &reg.PaymentRef, &reg.Status,
		&attStatus, &checkedInAt, &attCreatedAt, &reg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if attStatus != nil {
		reg.Attendance = &model.Attendance{
			Status:      model.AttendanceStatus(*attStatus),
			CheckInTime: checkedInAt,
		}
		if attCreatedAt != nil {
			reg.Attendance.CreatedAt = *attCreatedAt
		}
	}
	return &reg, nil
}

// CommitPaid records a paid registration together with its absent attendance record.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY THE EVENT ROW IS LOCKED
// ─────────────────────────────────────────────────────────────────────────────
//
// Payment webhooks arrive at least once and in any order. Two hazards meet here:
//
//	replay:   the same checkout is delivered twice, both deliveries see "no
//	          registration yet", both insert.
//	capacity: two participants paid for the last place, both deliveries see
//	          registered_count = max-1, both insert.
//
// SELECT … FOR UPDATE on the event row serialises every commit for one event,
// so the duplicate check, the capacity re-check, the counter increment and the
// insert behave as a single step. The UNIQUE constraints on (event_id,
// participant_id) and payment_ref back the check up.
//
// ─────────────────────────────────────────────────────────────────────────────
func (r *RegistrationRepository) CommitPaid(ctx context.Context, reg *model.Registration) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// ── Step 1: Lock the event row. ─────────────────────────────────────────
	var maxParticipants, registered int
	err = tx.QueryRow(ctx,
		`SELECT max_participants, registered_count
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		reg.EventID,
	).Scan(&maxParticipants, &registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	// ── Step 2: Suppress replays by payment reference or participant. ──────
	var existingRef string
	err = tx.QueryRow(ctx,
		`SELECT payment_ref FROM registrations
		 WHERE payment_ref = $3 OR (event_id = $1 AND participant_id = $2)
		 ORDER BY (payment_ref = $3) DESC
		 LIMIT 1`,
		reg.EventID, reg.ParticipantID, reg.PaymentRef,
	).Scan(&existingRef)
	switch {
	case err == nil && existingRef == reg.PaymentRef:
		return ErrDuplicatePayment
	case err == nil:
		return ErrAlreadyRegistered
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("check duplicate: %w", err)
	}
	err = nil

	// ── Step 3: Re-check capacity under the lock. ──────────────────────────
	if !capacity.HasRoom(maxParticipants, registered) {
		return ErrEventFull
	}

	// ── Step 4: Increment the counter in the same transaction. ─────────────
	_, err = tx.Exec(ctx,
		`UPDATE events SET registered_count = registered_count + 1 WHERE id = $1`,
		reg.EventID,
	)
	if err != nil {
		return fmt.Errorf("increment registered_count: %w", err)
	}

	// ── Step 5: Insert the registration and its attendance. ────────────────
	attendanceCreated := reg.CreatedAt
	if reg.Attendance != nil {
		attendanceCreated = reg.Attendance.CreatedAt
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10, $11)`,
		reg.ID, reg.EventID, reg.ParticipantID, reg.ParticipantEmail, reg.AmountPaidCents,
		reg.Currency, reg.PaymentRef, reg.Status, model.AttendanceAbsent,
		attendanceCreated, reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "registrations_payment_ref_key" {
				return ErrDuplicatePayment
			}
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindForParticipant returns the participant's registration for an event or ErrNotFound.
func (r *RegistrationRepository) FindForParticipant(ctx context.Context, eventID, participantID string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND participant_id = $2`,
		eventID, participantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// MarkPresent flips attendance from absent to present. It reports false when the
// row was not absent, which is how a losing concurrent scan learns it lost.
func (r *RegistrationRepository) MarkPresent(ctx context.Context, registrationID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET attendance_status = $2, checked_in_at = $3
		 WHERE id = $1 AND attendance_status = $4`,
		registrationID, model.AttendancePresent, at, model.AttendanceAbsent,
	)
	if err != nil {
		return false, fmt.Errorf("mark present: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByEvent returns all registrations for an event, oldest first.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID)
}

// ListByParticipant returns a participant's registrations, newest first.
func (r *RegistrationRepository) ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE participant_id = $1
		 ORDER BY created_at DESC`,
		participantID)
}

func (r *RegistrationRepository) list(ctx context.Context, query string, arg string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}
