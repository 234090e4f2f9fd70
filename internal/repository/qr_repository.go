package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

// QRTokenRepository handles persistence for issued QR tokens.
type QRTokenRepository struct {
	db *pgxpool.Pool
}

// NewQRTokenRepository constructs a QRTokenRepository.
func NewQRTokenRepository(db *pgxpool.Pool) *QRTokenRepository {
	return &QRTokenRepository{db: db}
}

// Get returns the token record or ErrNotFound. A NULL event_id comes back as "".
func (r *QRTokenRepository) Get(ctx context.Context, id string) (*model.QRToken, error) {
	var (
		t       model.QRToken
		eventID *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, organizer_id, image_url, created_at
		 FROM qr_tokens WHERE id = $1`,
		id,
	).Scan(&t.ID, &eventID, &t.OrganizerID, &t.ImageURL, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get qr token: %w", err)
	}
	if eventID != nil {
		t.EventID = *eventID
	}
	return &t, nil
}

// Create persists a token record once; a second write for the same id returns ErrAlreadyExists.
func (r *QRTokenRepository) Create(ctx context.Context, t *model.QRToken) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO qr_tokens (id, event_id, organizer_id, image_url, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.EventID, t.OrganizerID, t.ImageURL, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert qr token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}
