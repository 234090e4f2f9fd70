package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

const eventColumns = `id, name, description, starts_at, organizer_id, address, category_id, institution_id,
	max_participants, price_cents, status, qr_token_id, registered_count, created_at`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.StartsAt, &e.OrganizerID, &e.Address,
		&e.CategoryID, &e.InstitutionID, &e.MaxParticipants, &e.PriceCents, &e.Status,
		&e.QRTokenID, &e.RegisteredCount, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event. The event row and its QR token id are written by one
// statement, so the binding exists exactly when the event does.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.Name, e.Description, e.StartsAt, e.OrganizerID, e.Address, e.CategoryID,
		e.InstitutionID, e.MaxParticipants, e.PriceCents, e.Status, e.QRTokenID,
		e.RegisteredCount, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert event: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListOpen returns accepted events starting after from, soonest first.
func (r *EventRepository) ListOpen(ctx context.Context, from time.Time) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = $1 AND starts_at > $2
		 ORDER BY starts_at ASC`,
		model.EventAccepted, from,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Review moves a pending event to accepted or declined. Any other starting state
// yields ErrInvalidTransition; the WHERE clause makes the check and the write one step.
func (r *EventRepository) Review(ctx context.Context, id string, to model.EventStatus) (*model.Event, error) {
	if to != model.EventAccepted && to != model.EventDeclined {
		return nil, ErrInvalidTransition
	}
	e, err := scanEvent(r.db.QueryRow(ctx,
		`UPDATE events SET status = $2
		 WHERE id = $1 AND status = $3
		 RETURNING `+eventColumns,
		id, to, model.EventPending,
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review event: %w", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}
