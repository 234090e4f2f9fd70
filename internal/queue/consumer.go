package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier is the notification boundary: it is told about confirmed registrations
// and check-ins. Delivering the actual email or push message is its business.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, ev RegistrationConfirmed) error
	AttendanceCheckedIn(ctx context.Context, ev AttendanceCheckedIn) error
}

// Consumer binds a durable queue to the exchange and feeds deliveries to a Notifier.
type Consumer struct {
	url      string
	exchange string
	queue    string
	notifier Notifier
	log      *slog.Logger
}

// NewConsumer constructs a Consumer. Nothing is dialled until Run.
func NewConsumer(url, exchange, queue string, n Notifier, log *slog.Logger) *Consumer {
	return &Consumer{url: url, exchange: exchange, queue: queue, notifier: n, log: log}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("notification consumer: dial failed", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("notification consumer: loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("notification consumer: set QoS failed", "error", err)
	}
	if err := declareExchange(ch, c.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range []string{KeyRegistrationConfirmed, KeyAttendanceCheckedIn} {
		if err := ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("notification consumer started", "queue", q.Name, "exchange", c.exchange)

	for d := range msgs {
		if err := c.dispatch(ctx, d.RoutingKey, d.Body); err != nil {
			c.log.Error("notification consumer: handle message failed", "routing_key", d.RoutingKey, "error", err)
			// Poison messages are dropped rather than requeued into a tight loop.
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) dispatch(ctx context.Context, key string, body []byte) error {
	switch key {
	case KeyRegistrationConfirmed:
		var ev RegistrationConfirmed
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return c.notifier.RegistrationConfirmed(ctx, ev)
	case KeyAttendanceCheckedIn:
		var ev AttendanceCheckedIn
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return c.notifier.AttendanceCheckedIn(ctx, ev)
	}
	return fmt.Errorf("unexpected routing key %q", key)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// LogNotifier writes every notification as a structured log line.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) RegistrationConfirmed(_ context.Context, ev RegistrationConfirmed) error {
	n.Log.Info("registration confirmed",
		"registration_id", ev.RegistrationID,
		"event_id", ev.EventID,
		"participant_id", ev.ParticipantID,
		"participant_email", ev.ParticipantEmail,
		"amount_paid_cents", ev.AmountPaidCents,
		"currency", ev.Currency,
		"confirmed_at", ev.ConfirmedAt,
	)
	return nil
}

func (n LogNotifier) AttendanceCheckedIn(_ context.Context, ev AttendanceCheckedIn) error {
	n.Log.Info("attendance checked in",
		"registration_id", ev.RegistrationID,
		"event_id", ev.EventID,
		"participant_id", ev.ParticipantID,
		"checked_in_at", ev.CheckedInAt,
	)
	return nil
}
