package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/queue"
)

type webhookFixture struct {
	store    *memStore
	refunder *fakeRefunder
	ledger   *memLedger
	pub      *fakePublisher
}

func newWebhookFixture() *webhookFixture {
	return &webhookFixture{
		store:    newMemStore(),
		refunder: &fakeRefunder{},
		ledger:   &memLedger{},
		pub:      &fakePublisher{},
	}
}

func (f *webhookFixture) processor(ev *payment.Event) *WebhookProcessor {
	p := NewWebhookProcessor(fakeVerifier{ev: ev}, f.store, f.refunder, f.ledger, f.pub, nil, discardLogger())
	p.now = fixedClock
	return p
}

func completed(stripeEventID, sessionID, eventID, participantID string) *payment.Event {
	intent := model.NewCheckoutIntent(eventID, participantID, participantID+"@campus.test", 2550)
	return &payment.Event{
		ID:   stripeEventID,
		Type: payment.EventCheckoutCompleted,
		Session: &payment.CompletedSession{
			ID:              sessionID,
			Currency:        "myr",
			PaymentIntentID: "pi_" + sessionID,
			AmountTotal:     2550,
			Metadata:        intent.Metadata(),
		},
	}
}

func TestWebhookCommitsRegistration(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)

	outcome, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), []byte("{}"), "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	assert.True(t, outcome.Acknowledged())

	regs := f.store.registrationsFor(ev.ID)
	require.Len(t, regs, 1)
	reg := regs[0]
	assert.Equal(t, "P1", reg.ParticipantID)
	assert.Equal(t, "P1@campus.test", reg.ParticipantEmail)
	assert.Equal(t, int64(2550), reg.AmountPaidCents)
	assert.Equal(t, "myr", reg.Currency)
	assert.Equal(t, "cs_1", reg.PaymentRef)
	assert.Equal(t, model.RegistrationPaid, reg.Status)
	assert.Equal(t, testNow, reg.CreatedAt)
	require.NotNil(t, reg.Attendance)
	assert.Equal(t, model.AttendanceAbsent, reg.Attendance.Status)
	assert.Nil(t, reg.Attendance.CheckInTime)
	assert.Equal(t, testNow, reg.Attendance.CreatedAt)

	assert.Equal(t, []string{queue.KeyRegistrationConfirmed}, f.pub.keys())
	assert.True(t, f.ledger.seen["evt_1"])
}

func TestWebhookBadSignatureWritesNothing(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)

	outcome, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), []byte("{}"), "forged")
	require.ErrorIs(t, err, payment.ErrSignature)
	assert.Equal(t, OutcomeSignatureInvalid, outcome)
	assert.False(t, outcome.Acknowledged())
	assert.Empty(t, f.store.registrationsFor(ev.ID))
	assert.Empty(t, f.pub.keys())
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)
	other := completed("evt_1", "cs_1", ev.ID, "P1")
	other.Type = "payment_intent.succeeded"

	outcome, err := f.processor(other).Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnhandledType, outcome)
	assert.Empty(t, f.store.registrationsFor(ev.ID))
}

func TestWebhookMetadataMismatchIsNoop(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		session  bool
	}{
		{name: "no session", session: false},
		{name: "no metadata", session: true, metadata: nil},
		{name: "other kind", session: true, metadata: map[string]string{"kind": "subscription", "eventId": "evt-1", "participantId": "P1", "price": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture()
			ev := seedEvent(f.store, 1)
			delivery := completed("evt_1", "cs_1", ev.ID, "P1")
			if tt.session {
				delivery.Session.Metadata = tt.metadata
			} else {
				delivery.Session = nil
			}

			outcome, err := f.processor(delivery).Handle(context.Background(), nil, "good")
			require.NoError(t, err)
			assert.Equal(t, OutcomeMetadataMismatch, outcome)
			assert.Empty(t, f.store.registrationsFor(ev.ID))
			assert.Zero(t, f.refunder.count())
		})
	}
}

func TestWebhookMalformedRegistrationMetadataIsRefunded(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
	}{
		{name: "missing participant", metadata: map[string]string{"kind": model.IntentKindRegistration, "eventId": "evt-1", "price": "1"}},
		{name: "bad price", metadata: map[string]string{"kind": model.IntentKindRegistration, "eventId": "evt-1", "participantId": "P1", "price": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture()
			ev := seedEvent(f.store, 1)
			delivery := completed("evt_1", "cs_1", ev.ID, "P1")
			delivery.Session.Metadata = tt.metadata

			outcome, err := f.processor(delivery).Handle(context.Background(), nil, "good")
			require.NoError(t, err)
			assert.Equal(t, OutcomeMetadataInvalid, outcome)
			assert.True(t, outcome.Acknowledged())
			assert.Empty(t, f.store.registrationsFor(ev.ID))
			assert.Equal(t, []string{"refund-cs_1"}, f.refunder.keys)
			assert.True(t, f.ledger.seen["evt_1"])
		})
	}
}

func TestWebhookMalformedMetadataRefundFailureAsksForRetry(t *testing.T) {
	f := newWebhookFixture()
	delivery := completed("evt_1", "cs_1", "evt-1", "P1")
	delivery.Session.Metadata = map[string]string{"kind": model.IntentKindRegistration, "eventId": "evt-1", "price": "1"}
	f.refunder.err = errBoom

	outcome, err := f.processor(delivery).Handle(context.Background(), nil, "good")
	require.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, OutcomeRefundFailure, outcome)
}

func TestWebhookReplayIsSuppressed(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 5)
	p := f.processor(completed("evt_1", "cs_1", ev.ID, "P1"))

	first, err := p.Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, first)

	second, err := p.Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second)

	assert.Len(t, f.store.registrationsFor(ev.ID), 1)
	assert.Equal(t, 1, f.store.events[ev.ID].RegisteredCount)
	assert.Zero(t, f.refunder.count())
}

func TestWebhookReplayWithoutLedgerIsSuppressedByStore(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 5)
	delivery := completed("evt_1", "cs_1", ev.ID, "P1")
	p := NewWebhookProcessor(fakeVerifier{ev: delivery}, f.store, f.refunder, nil, nil, nil, discardLogger())

	for range 3 {
		_, err := p.Handle(context.Background(), nil, "good")
		require.NoError(t, err)
	}
	assert.Len(t, f.store.registrationsFor(ev.ID), 1)
	assert.Zero(t, f.refunder.count())
}

func TestWebhookConcurrentDuplicateDeliveries(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 0)
	// Ledger errors force every delivery through the store.
	f.ledger.err = errBoom
	p := f.processor(completed("evt_1", "cs_1", ev.ID, "P1"))

	const n = 20
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], _ = p.Handle(context.Background(), nil, "good")
		}()
	}
	wg.Wait()

	committed := 0
	for _, o := range outcomes {
		assert.True(t, o == OutcomeCommitted || o == OutcomeDuplicate, "unexpected outcome %s", o)
		if o == OutcomeCommitted {
			committed++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Len(t, f.store.registrationsFor(ev.ID), 1)
}

func TestWebhookCapacityRaceRefundsLosers(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delivery := completed(fmt.Sprintf("evt_%d", i), fmt.Sprintf("cs_%d", i), ev.ID, fmt.Sprintf("P%d", i))
			outcomes[i], _ = f.processor(delivery).Handle(context.Background(), nil, "good")
		}()
	}
	wg.Wait()

	assert.Len(t, f.store.registrationsFor(ev.ID), 1)
	assert.Equal(t, 1, f.store.events[ev.ID].RegisteredCount)
	assert.Equal(t, n-1, f.refunder.count())
	for _, o := range outcomes {
		assert.Contains(t, []Outcome{OutcomeCommitted, OutcomeCapacityExceeded}, o)
	}
}

func TestWebhookSecondPaymentForSameParticipantIsRefunded(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 5)

	_, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.NoError(t, err)

	outcome, err := f.processor(completed("evt_2", "cs_2", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRegistered, outcome)
	assert.Equal(t, []string{"refund-cs_2"}, f.refunder.keys)
	assert.Len(t, f.store.registrationsFor(ev.ID), 1)
}

func TestWebhookRefundFailureAsksForRetry(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)
	f.store.events[ev.ID].RegisteredCount = 1
	f.refunder.err = errBoom

	outcome, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, OutcomeRefundFailure, outcome)
	assert.False(t, outcome.Acknowledged())
	assert.False(t, f.ledger.seen["evt_1"])
}

func TestWebhookUnknownEventIsRefunded(t *testing.T) {
	f := newWebhookFixture()

	outcome, err := f.processor(completed("evt_1", "cs_1", "deleted-event", "P1")).Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEventMissing, outcome)
	assert.Equal(t, 1, f.refunder.count())
}

func TestWebhookStorageFailureAsksForRetry(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)
	f.store.commitErr = errBoom

	outcome, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, OutcomeStorageFailure, outcome)
	assert.Empty(t, f.pub.keys())
	assert.False(t, f.ledger.seen["evt_1"])

	f.store.commitErr = nil
	outcome, err = f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
}

func TestWebhookPublishFailureDoesNotFailCommit(t *testing.T) {
	f := newWebhookFixture()
	ev := seedEvent(f.store, 1)
	f.pub.err = errBoom

	outcome, err := f.processor(completed("evt_1", "cs_1", ev.ID, "P1")).Handle(context.Background(), nil, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
}
