package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
)

// Stripe sends events up to a few kilobytes; anything bigger is not a real delivery.
const maxWebhookBody = 65536

// CheckoutStarter starts hosted checkouts.
type CheckoutStarter interface {
	Start(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResponse, error)
}

// WebhookHandler processes raw payment provider deliveries.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, sigHeader string) (service.Outcome, error)
}

// PaymentHandler serves the checkout and webhook endpoints.
type PaymentHandler struct {
	checkout CheckoutStarter
	webhook  WebhookHandler
	log      *slog.Logger
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(checkout CheckoutStarter, webhook WebhookHandler, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, webhook: webhook, log: log}
}

// Checkout handles POST /checkout
// Returns the hosted payment page URL; nothing is stored until the webhook arrives.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// A signed-in caller can only pay for themselves.
	if caller := IdentityFrom(r.Context()); caller != nil && req.UserID != "" && req.UserID != caller.UserID {
		writeServiceError(w, h.log, service.ErrForbidden, "failed to create checkout session")
		return
	}

	resp, err := h.checkout.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrProvider) {
			writeError(w, http.StatusInternalServerError, "failed to create checkout session")
			return
		}
		writeServiceError(w, h.log, err, "failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// StripeWebhook handles POST /webhooks/stripe
// The provider only reads the status code: 400 for a bad signature, 500 to ask for
// a retry, 200 for everything that needs no retry.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := h.webhook.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrSignature):
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
	case err != nil:
		http.Error(w, "Database Error", http.StatusInternalServerError)
	default:
		h.log.Debug("webhook acknowledged", "outcome", string(outcome))
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
