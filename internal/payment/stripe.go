// Package payment talks to Stripe: hosted checkout sessions, refunds and webhook verification.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

const (
	ticketName        = "Event Registration Ticket"
	ticketDescription = "Standard Entry"
)

// Session is the part of a created checkout session the caller needs.
type Session struct {
	ID  string
	URL string
}

// StripeProvider creates hosted checkout sessions and refunds.
type StripeProvider struct {
	sessions   session.Client
	refunds    refund.Client
	successURL string
	cancelURL  string
	currency   string
}

// NewStripeProvider builds a provider using the given secret key.
func NewStripeProvider(secretKey, successURL, cancelURL, currency string) *StripeProvider {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeProvider{
		sessions:   session.Client{B: backend, Key: secretKey},
		refunds:    refund.Client{B: backend, Key: secretKey},
		successURL: successURL,
		cancelURL:  cancelURL,
		currency:   currency,
	}
}

// CreateCheckoutSession asks Stripe for a single-ticket payment page carrying the intent as metadata.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, intent model.CheckoutIntent) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(ticketName),
						Description: stripe.String(ticketDescription),
					},
					UnitAmount: stripe.Int64(intent.PriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(intent.ParticipantID),
	}
	if intent.ParticipantEmail != "" {
		params.CustomerEmail = stripe.String(intent.ParticipantEmail)
	}
	for k, v := range intent.Metadata() {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// Refund returns the full amount of a payment intent. idempotencyKey makes retries safe.
func (p *StripeProvider) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) error {
	if paymentIntentID == "" {
		return errors.New("refund: payment intent id is required")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := p.refunds.New(params); err != nil {
		return fmt.Errorf("refund %s: %w", paymentIntentID, err)
	}
	return nil
}
