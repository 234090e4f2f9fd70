package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/queue"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

// Outcome is the terminal state of one webhook delivery.
type Outcome string

const (
	OutcomeSignatureInvalid  Outcome = "signature_invalid"
	OutcomeUnhandledType     Outcome = "unhandled_event_type"
	OutcomeMetadataMismatch  Outcome = "metadata_mismatch"
	OutcomeMetadataInvalid   Outcome = "metadata_invalid"
	OutcomeCommitted         Outcome = "committed"
	OutcomeDuplicate         Outcome = "duplicate_suppressed"
	OutcomeCapacityExceeded  Outcome = "capacity_exceeded"
	OutcomeAlreadyRegistered Outcome = "already_registered"
	OutcomeEventMissing      Outcome = "event_missing"
	OutcomeStorageFailure    Outcome = "storage_failure"
	OutcomeRefundFailure     Outcome = "refund_failure"
)

// Acknowledged reports whether the provider should be told the delivery is done.
func (o Outcome) Acknowledged() bool {
	switch o {
	case OutcomeSignatureInvalid, OutcomeStorageFailure, OutcomeRefundFailure:
		return false
	}
	return true
}

// ErrStorage marks a commit that failed for infrastructure reasons; the provider should retry.
var ErrStorage = errors.New("storage failure")

// WebhookProcessor turns verified checkout-completed deliveries into paid registrations.
type WebhookProcessor struct {
	verifier WebhookVerifier
	regs     RegistrationStore
	refunder Refunder
	ledger   Ledger
	pub      Publisher
	metrics  *metrics.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewWebhookProcessor constructs a WebhookProcessor. ledger and pub may be nil.
func NewWebhookProcessor(v WebhookVerifier, regs RegistrationStore, refunder Refunder, ledger Ledger, pub Publisher, m *metrics.Recorder, log *slog.Logger) *WebhookProcessor {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	return &WebhookProcessor{
		verifier: v,
		regs:     regs,
		refunder: refunder,
		ledger:   ledger,
		pub:      pub,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Handle runs one delivery through verify, classify, validate and commit.
// The returned error is non-nil exactly when the outcome is not acknowledged.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	outcome, err := p.handle(ctx, payload, sigHeader)
	p.metrics.Webhook(string(outcome))
	return outcome, err
}

func (p *WebhookProcessor) handle(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	ev, err := p.verifier.Verify(payload, sigHeader)
	if err != nil {
		p.log.Warn("webhook signature rejected", "error", err)
		return OutcomeSignatureInvalid, err
	}
	log := p.log.With("stripe_event_id", ev.ID, "stripe_event_type", ev.Type)

	if ev.Type != payment.EventCheckoutCompleted {
		log.Debug("webhook event type ignored")
		return OutcomeUnhandledType, nil
	}

	if seen, err := p.ledger.Seen(ctx, ev.ID); err != nil {
		log.Warn("webhook ledger lookup failed", "error", err)
	} else if seen {
		log.Info("webhook replay suppressed by ledger")
		return OutcomeDuplicate, nil
	}

	if ev.Session == nil {
		log.Info("checkout session payload missing")
		return OutcomeMetadataMismatch, nil
	}
	intent, err := model.ParseCheckoutIntent(ev.Session.Metadata)
	if errors.Is(err, model.ErrIntentInvalid) {
		// Our own checkout with unusable metadata: the money was taken, so give it back.
		log = log.With("session_id", ev.Session.ID)
		log.Error("registration metadata malformed", "error", err)
		return p.refund(ctx, log, ev, OutcomeMetadataInvalid)
	}
	if err != nil {
		log.Info("checkout metadata does not describe a registration", "error", err)
		return OutcomeMetadataMismatch, nil
	}
	log = log.With("session_id", ev.Session.ID, "event_id", intent.EventID, "participant_id", intent.ParticipantID)

	now := p.now().UTC()
	reg := &model.Registration{
		ID:               uuid.NewString(),
		EventID:          intent.EventID,
		ParticipantID:    intent.ParticipantID,
		ParticipantEmail: intent.ParticipantEmail,
		AmountPaidCents:  intent.PriceCents,
		Currency:         ev.Session.Currency,
		PaymentRef:       ev.Session.ID,
		Status:           model.RegistrationPaid,
		Attendance:       &model.Attendance{Status: model.AttendanceAbsent, CreatedAt: now},
		CreatedAt:        now,
	}

	start := time.Now()
	err = p.regs.CommitPaid(ctx, reg)
	p.metrics.ObserveCommit(time.Since(start))

	switch {
	case err == nil:
		log.Info("registration committed", "registration_id", reg.ID)
		p.remember(ctx, log, ev.ID)
		p.publishConfirmed(ctx, log, reg)
		return OutcomeCommitted, nil

	case errors.Is(err, repository.ErrDuplicatePayment):
		log.Info("duplicate payment suppressed")
		p.remember(ctx, log, ev.ID)
		return OutcomeDuplicate, nil

	case errors.Is(err, repository.ErrEventFull):
		return p.refund(ctx, log, ev, OutcomeCapacityExceeded)

	case errors.Is(err, repository.ErrAlreadyRegistered):
		return p.refund(ctx, log, ev, OutcomeAlreadyRegistered)

	case errors.Is(err, repository.ErrNotFound):
		return p.refund(ctx, log, ev, OutcomeEventMissing)
	}

	log.Error("registration commit failed", "error", err)
	return OutcomeStorageFailure, fmt.Errorf("%w: %v", ErrStorage, err)
}

// refund returns the payment of a checkout that cannot become a registration.
// The idempotency key is derived from the session so provider retries refund once.
func (p *WebhookProcessor) refund(ctx context.Context, log *slog.Logger, ev *payment.Event, outcome Outcome) (Outcome, error) {
	if ev.Session.PaymentIntentID == "" || ev.Session.AmountTotal == 0 {
		log.Warn("paid checkout rejected, nothing to refund", "reason", string(outcome))
		p.remember(ctx, log, ev.ID)
		return outcome, nil
	}
	if err := p.refunder.Refund(ctx, ev.Session.PaymentIntentID, "refund-"+ev.Session.ID); err != nil {
		log.Error("refund failed", "reason", string(outcome), "payment_intent", ev.Session.PaymentIntentID, "error", err)
		return OutcomeRefundFailure, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	log.Warn("paid checkout rejected and refunded", "reason", string(outcome), "payment_intent", ev.Session.PaymentIntentID)
	p.remember(ctx, log, ev.ID)
	return outcome, nil
}

func (p *WebhookProcessor) remember(ctx context.Context, log *slog.Logger, eventID string) {
	if err := p.ledger.Remember(ctx, eventID); err != nil {
		log.Warn("webhook ledger write failed", "error", err)
	}
}

func (p *WebhookProcessor) publishConfirmed(ctx context.Context, log *slog.Logger, reg *model.Registration) {
	msg := queue.RegistrationConfirmed{
		RegistrationID:   reg.ID,
		EventID:          reg.EventID,
		ParticipantID:    reg.ParticipantID,
		ParticipantEmail: reg.ParticipantEmail,
		AmountPaidCents:  reg.AmountPaidCents,
		Currency:         reg.Currency,
		PaymentRef:       reg.PaymentRef,
		ConfirmedAt:      reg.CreatedAt,
	}
	if err := p.pub.PublishJSON(ctx, queue.KeyRegistrationConfirmed, msg); err != nil {
		log.Warn("publish registration.confirmed failed", "error", err)
	}
}
