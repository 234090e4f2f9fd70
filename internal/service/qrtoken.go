package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

const qrImageSize = 256

// QRIssuer mints event token ids and later persists the token record with its image.
// A token id is only ever handed out inside the event that binds it.
type QRIssuer struct {
	tokens QRTokenStore
	images ImageStore
	render func(content string) ([]byte, error)
	log    *slog.Logger
	now    func() time.Time
}

// NewQRIssuer constructs a QRIssuer.
func NewQRIssuer(tokens QRTokenStore, images ImageStore, log *slog.Logger) *QRIssuer {
	return &QRIssuer{tokens: tokens, images: images, render: RenderQR, log: log, now: time.Now}
}

// Mint returns a new globally unique token id.
func (q *QRIssuer) Mint() string {
	return uuid.NewString()
}

// RenderQR encodes content as a PNG QR code.
func RenderQR(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, qrImageSize)
}

// Finalize stores the image and the token record for ev. The record is immutable:
// when it already exists it is returned as is and png is ignored. An empty png is
// rendered from the token id.
func (q *QRIssuer) Finalize(ctx context.Context, ev *model.Event, png []byte) (*model.QRToken, error) {
	existing, err := q.tokens.Get(ctx, ev.QRTokenID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load qr token: %w", err)
	}

	if len(png) == 0 {
		if png, err = q.render(ev.QRTokenID); err != nil {
			return nil, fmt.Errorf("render qr code: %w", err)
		}
	} else if http.DetectContentType(png) != "image/png" {
		return nil, invalid("qr image must be a PNG")
	}

	url, err := q.images.PutQRImage(ctx, ev.OrganizerID, ev.QRTokenID, png)
	if err != nil {
		return nil, fmt.Errorf("store qr image: %w", err)
	}

	token := &model.QRToken{
		ID:          ev.QRTokenID,
		EventID:     ev.ID,
		OrganizerID: ev.OrganizerID,
		ImageURL:    url,
		CreatedAt:   q.now().UTC(),
	}
	if err := q.tokens.Create(ctx, token); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return q.tokens.Get(ctx, ev.QRTokenID)
		}
		return nil, fmt.Errorf("save qr token: %w", err)
	}
	q.log.Info("qr token finalized", "event_id", ev.ID, "qr_token_id", token.ID, "image_url", url)
	return token, nil
}
