package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// EventCheckoutCompleted is the only event type that commits registrations.
const EventCheckoutCompleted = string(stripe.EventTypeCheckoutSessionCompleted)

// ErrSignature wraps every verification failure.
var ErrSignature = errors.New("signature verification failed")

// Event is a verified webhook delivery.
type Event struct {
	ID   string
	Type string
	// Session is set for checkout-completed events whose payload decoded.
	Session *CompletedSession
}

// CompletedSession is the verified checkout session attached to a completed event.
type CompletedSession struct {
	ID              string
	Currency        string
	PaymentIntentID string
	AmountTotal     int64
	Metadata        map[string]string
}

// WebhookVerifier checks the Stripe-Signature header against the endpoint secret.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier returns a verifier for the endpoint secret (whsec_...).
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify authenticates payload and decodes it. Nothing in an unverified payload is trusted.
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		// A verified but undecodable object is treated like one with no metadata.
		return out, nil
	}
	out.Session = &CompletedSession{
		ID:          cs.ID,
		Currency:    string(cs.Currency),
		AmountTotal: cs.AmountTotal,
		Metadata:    cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.Session.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out, nil
}
