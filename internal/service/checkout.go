package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

// ErrEventFull is returned when the capacity evaluator finds no room left.
var ErrEventFull = errors.New(string(capacity.ReasonFull))

// CheckoutService arranges hosted payment sessions. It writes nothing locally; the
// registration only appears once the provider reports the payment through the webhook.
type CheckoutService struct {
	events   EventStore
	provider CheckoutProvider
	metrics  *metrics.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(events EventStore, provider CheckoutProvider, m *metrics.Recorder, log *slog.Logger) *CheckoutService {
	return &CheckoutService{events: events, provider: provider, metrics: m, log: log, now: time.Now}
}

// Start validates the request, evaluates capacity and returns the payment page URL.
func (s *CheckoutService) Start(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResponse, error) {
	eventID := strings.TrimSpace(req.EventID)
	userID := strings.TrimSpace(req.UserID)
	if eventID == "" || userID == "" {
		s.metrics.Checkout("invalid")
		return nil, invalid("Missing eventId or userId")
	}
	if req.Price != nil && (math.IsNaN(*req.Price) || math.IsInf(*req.Price, 0) || *req.Price < 0) {
		s.metrics.Checkout("invalid")
		return nil, invalid("price must be a non-negative number")
	}

	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Checkout("not_found")
		} else {
			s.metrics.Checkout("error")
		}
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}

	decision := capacity.Evaluate(ev, ev.RegisteredCount, s.now())
	if !decision.Admit {
		s.metrics.Checkout("rejected")
		if decision.Reason == capacity.ReasonFull {
			return nil, ErrEventFull
		}
		return nil, fmt.Errorf("%w: %s", ErrEventNotOpen, decision.Reason)
	}

	// The stored price is charged; the client's figure is only compared.
	if req.Price != nil && model.CentsFromPrice(*req.Price) != ev.PriceCents {
		s.log.Warn("checkout price differs from event price",
			"event_id", ev.ID,
			"client_price_cents", model.CentsFromPrice(*req.Price),
			"event_price_cents", ev.PriceCents,
		)
	}

	intent := model.NewCheckoutIntent(ev.ID, userID, strings.TrimSpace(req.UserEmail), ev.PriceCents)
	sess, err := s.provider.CreateCheckoutSession(ctx, intent)
	if err != nil {
		s.metrics.Checkout("provider_error")
		s.log.Error("create checkout session", "event_id", ev.ID, "participant_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	s.metrics.Checkout("created")
	s.log.Info("checkout session created", "event_id", ev.ID, "participant_id", userID, "session_id", sess.ID)
	return &model.CheckoutResponse{URL: sess.URL}, nil
}
