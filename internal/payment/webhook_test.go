package payment

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

const completedPayload = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_1",
      "object": "checkout.session",
      "currency": "myr",
      "amount_total": 2500,
      "payment_intent": "pi_1",
      "metadata": {"kind": "event_registration", "eventId": "E1", "participantId": "P1", "participantEmail": "p1@uni.edu", "price": "25.00"}
    }
  }
}`

func sign(payload string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestVerifyCompletedSession(t *testing.T) {
	v := NewWebhookVerifier(testSecret)

	ev, err := v.Verify([]byte(completedPayload), sign(completedPayload))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_1", ev.Session.ID)
	assert.Equal(t, "myr", ev.Session.Currency)
	assert.Equal(t, "pi_1", ev.Session.PaymentIntentID)
	assert.Equal(t, int64(2500), ev.Session.AmountTotal)
	assert.Equal(t, "E1", ev.Session.Metadata["eventId"])
}

func TestVerifyOtherType(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_2","object":"payment_intent"}}}`
	ev, err := NewWebhookVerifier(testSecret).Verify([]byte(payload), sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.created", ev.Type)
	assert.Nil(t, ev.Session)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewWebhookVerifier(testSecret)

	_, err := v.Verify([]byte(completedPayload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrSignature)

	_, err = v.Verify([]byte(completedPayload), "")
	assert.ErrorIs(t, err, ErrSignature)

	tampered := completedPayload + " "
	_, err = v.Verify([]byte(tampered), sign(completedPayload))
	assert.ErrorIs(t, err, ErrSignature)

	_, err = NewWebhookVerifier("whsec_other").Verify([]byte(completedPayload), sign(completedPayload))
	assert.ErrorIs(t, err, ErrSignature)
}
