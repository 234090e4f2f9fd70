package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the three repositories. One mutex plays the
// role of the event row lock in CommitPaid.
type memStore struct {
	mu     sync.Mutex
	events map[string]*model.Event
	regs   map[string]*model.Registration
	tokens map[string]*model.QRToken

	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		events: map[string]*model.Event{},
		regs:   map[string]*model.Registration{},
		tokens: map[string]*model.QRToken{},
	}
}

func (m *memStore) Create(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListOpen(_ context.Context, from time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if e.Status == model.EventAccepted && e.StartsAt.After(from) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) Review(_ context.Context, id string, to model.EventStatus) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Status != model.EventPending {
		return nil, repository.ErrInvalidTransition
	}
	e.Status = to
	cp := *e
	return &cp, nil
}

func (m *memStore) CommitPaid(_ context.Context, reg *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	e, ok := m.events[reg.EventID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, r := range m.regs {
		if r.PaymentRef == reg.PaymentRef {
			return repository.ErrDuplicatePayment
		}
	}
	for _, r := range m.regs {
		if r.EventID == reg.EventID && r.ParticipantID == reg.ParticipantID {
			return repository.ErrAlreadyRegistered
		}
	}
	if !capacity.HasRoom(e.MaxParticipants, e.RegisteredCount) {
		return repository.ErrEventFull
	}
	e.RegisteredCount++
	cp := *reg
	att := *reg.Attendance
	cp.Attendance = &att
	m.regs[reg.ID] = &cp
	return nil
}

func (m *memStore) FindForParticipant(_ context.Context, eventID, participantID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.EventID == eventID && r.ParticipantID == participantID {
			return copyReg(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) MarkPresent(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok || r.Attendance == nil || r.Attendance.Status != model.AttendanceAbsent {
		return false, nil
	}
	r.Attendance.Status = model.AttendancePresent
	r.Attendance.CheckInTime = &at
	return true, nil
}

func (m *memStore) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	return m.filter(func(r *model.Registration) bool { return r.EventID == eventID }), nil
}

func (m *memStore) ListByParticipant(_ context.Context, participantID string) ([]model.Registration, error) {
	return m.filter(func(r *model.Registration) bool { return r.ParticipantID == participantID }), nil
}

func (m *memStore) filter(keep func(*model.Registration) bool) []model.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if keep(r) {
			out = append(out, *copyReg(r))
		}
	}
	return out
}

func (m *memStore) registrationsFor(eventID string) []model.Registration {
	return m.filter(func(r *model.Registration) bool { return r.EventID == eventID })
}

func copyReg(r *model.Registration) *model.Registration {
	cp := *r
	if r.Attendance != nil {
		att := *r.Attendance
		if att.CheckInTime != nil {
			t := *att.CheckInTime
			att.CheckInTime = &t
		}
		cp.Attendance = &att
	}
	return &cp
}

// tokenStore adapts memStore to QRTokenStore; the method names collide with EventStore.
type tokenStore struct{ m *memStore }

func (t tokenStore) Get(_ context.Context, id string) (*model.QRToken, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	tok, ok := t.m.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (t tokenStore) Create(_ context.Context, tok *model.QRToken) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.tokens[tok.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *tok
	t.m.tokens[tok.ID] = &cp
	return nil
}

type fakeProvider struct {
	mu      sync.Mutex
	intents []model.CheckoutIntent
	err     error
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, intent model.CheckoutIntent) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.intents = append(p.intents, intent)
	return &payment.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

type fakeRefunder struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (r *fakeRefunder) Refund(_ context.Context, paymentIntentID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, key)
	return nil
}

func (r *fakeRefunder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// fakeVerifier accepts the signature "good" and returns a copy of ev.
type fakeVerifier struct {
	ev *payment.Event
}

func (v fakeVerifier) Verify(_ []byte, sig string) (*payment.Event, error) {
	if sig != "good" {
		return nil, payment.ErrSignature
	}
	cp := *v.ev
	return &cp, nil
}

type memLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (l *memLedger) Seen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.seen[id], nil
}

func (l *memLedger) Remember(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	l.seen[id] = true
	return nil
}

type published struct {
	key string
	msg any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, msg: v})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.key)
	}
	return out
}

type fakeImages struct {
	mu    sync.Mutex
	puts  int
	err   error
	bytes []byte
}

func (f *fakeImages) PutQRImage(_ context.Context, organizerID, tokenID string, png []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.puts++
	f.bytes = png
	return "https://qr.test/qrcodes/" + organizerID + "/" + tokenID + ".png", nil
}

var errBoom = errors.New("boom")

func seedEvent(m *memStore, max int) *model.Event {
	e := &model.Event{
		ID:              "evt-1",
		Name:            "Robotics Workshop",
		StartsAt:        testNow.Add(48 * time.Hour),
		OrganizerID:     "org-1",
		MaxParticipants: max,
		PriceCents:      2550,
		Status:          model.EventAccepted,
		QRTokenID:       "7a1c9f5e-2a43-4d8e-9d3c-0f4b2b8f6e11",
		CreatedAt:       testNow.Add(-24 * time.Hour),
	}
	_ = m.Create(context.Background(), e)
	return e
}
