// Package cache holds the Redis client and the webhook dedupe ledger built on it.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/config"
)

// NewRedisClient connects and pings with a short timeout. It returns nil when the
// server is unreachable; callers then run without rate limiting and without the ledger.
func NewRedisClient(ctx context.Context, cfg config.Redis, log *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, rate limiting and webhook ledger disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return client
}

// Ledger remembers payment provider event ids that have been fully handled. It only
// short-circuits replays; the database remains the authority on duplicates.
type Ledger struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewLedger returns a ledger on rdb. A nil client gives a ledger that remembers nothing.
func NewLedger(rdb *redis.Client, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Ledger{rdb: rdb, ttl: ttl, prefix: "webhook:stripe:"}
}

// Seen reports whether eventID was remembered earlier.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, nil
	}
	n, err := l.rdb.Exists(ctx, l.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return n == 1, nil
}

// Remember records eventID for the ledger TTL. Remembering twice is harmless.
func (l *Ledger) Remember(ctx context.Context, eventID string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	if err := l.rdb.SetNX(ctx, l.prefix+eventID, time.Now().UTC().Format(time.RFC3339), l.ttl).Err(); err != nil {
		return fmt.Errorf("ledger write: %w", err)
	}
	return nil
}
