package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

func newCheckout(t *testing.T, store *memStore, provider *fakeProvider) *CheckoutService {
	t.Helper()
	svc := NewCheckoutService(store, provider, nil, discardLogger())
	svc.now = fixedClock
	return svc
}

func price(v float64) *float64 { return &v }

func TestCheckoutStart(t *testing.T) {
	store := newMemStore()
	ev := seedEvent(store, 10)
	provider := &fakeProvider{}
	svc := newCheckout(t, store, provider)

	resp, err := svc.Start(context.Background(), model.CheckoutRequest{
		EventID:   ev.ID,
		UserID:    "stu-1",
		UserEmail: "stu1@campus.test",
		Price:     price(25.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", resp.URL)

	require.Len(t, provider.intents, 1)
	in := provider.intents[0]
	assert.Equal(t, ev.ID, in.EventID)
	assert.Equal(t, "stu-1", in.ParticipantID)
	assert.Equal(t, "stu1@campus.test", in.ParticipantEmail)
	assert.Equal(t, int64(2550), in.PriceCents)
	assert.Equal(t, model.IntentKindRegistration, in.Kind)
}

func TestCheckoutChargesStoredPrice(t *testing.T) {
	store := newMemStore()
	ev := seedEvent(store, 0)
	provider := &fakeProvider{}
	svc := newCheckout(t, store, provider)

	_, err := svc.Start(context.Background(), model.CheckoutRequest{EventID: ev.ID, UserID: "stu-1", Price: price(1)})
	require.NoError(t, err)
	require.Len(t, provider.intents, 1)
	assert.Equal(t, ev.PriceCents, provider.intents[0].PriceCents)
}

func TestCheckoutRejectsBeforeProvider(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Event)
		req    model.CheckoutRequest
		want   error
	}{
		{
			name: "missing event id",
			req:  model.CheckoutRequest{UserID: "stu-1"},
			want: ErrInvalidInput,
		},
		{
			name: "missing user id",
			req:  model.CheckoutRequest{EventID: "evt-1", UserID: "  "},
			want: ErrInvalidInput,
		},
		{
			name: "negative price",
			req:  model.CheckoutRequest{EventID: "evt-1", UserID: "stu-1", Price: price(-1)},
			want: ErrInvalidInput,
		},
		{
			name: "unknown event",
			req:  model.CheckoutRequest{EventID: "nope", UserID: "stu-1"},
			want: repository.ErrNotFound,
		},
		{
			name:   "event full",
			mutate: func(e *model.Event) { e.MaxParticipants, e.RegisteredCount = 1, 1 },
			req:    model.CheckoutRequest{EventID: "evt-1", UserID: "stu-1"},
			want:   ErrEventFull,
		},
		{
			name:   "pending event",
			mutate: func(e *model.Event) { e.Status = model.EventPending },
			req:    model.CheckoutRequest{EventID: "evt-1", UserID: "stu-1"},
			want:   ErrEventNotOpen,
		},
		{
			name:   "past event",
			mutate: func(e *model.Event) { e.StartsAt = testNow.Add(-1) },
			req:    model.CheckoutRequest{EventID: "evt-1", UserID: "stu-1"},
			want:   ErrEventNotOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			ev := seedEvent(store, 10)
			if tt.mutate != nil {
				tt.mutate(store.events[ev.ID])
			}
			provider := &fakeProvider{}
			svc := newCheckout(t, store, provider)

			_, err := svc.Start(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, provider.intents)
		})
	}
}

func TestCheckoutMissingIDsMessage(t *testing.T) {
	svc := newCheckout(t, newMemStore(), &fakeProvider{})
	_, err := svc.Start(context.Background(), model.CheckoutRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing eventId or userId")
}

func TestCheckoutProviderFailure(t *testing.T) {
	store := newMemStore()
	ev := seedEvent(store, 10)
	svc := newCheckout(t, store, &fakeProvider{err: errBoom})

	_, err := svc.Start(context.Background(), model.CheckoutRequest{EventID: ev.ID, UserID: "stu-1"})
	require.ErrorIs(t, err, ErrProvider)
	assert.Empty(t, store.registrationsFor(ev.ID), "checkout never writes a registration")
}
