// Package ratelimit implements a Redis-backed token bucket as net/http middleware.
package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/config"
)

// The bucket state lives in one hash per key; refill and take happen in one script
// so concurrent requests on different instances cannot overdraw it.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// SubjectFunc names the caller of a request for keying; "" means anonymous.
type SubjectFunc func(r *http.Request) string

// Result is one bucket decision.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter takes tokens from per-key buckets.
type Limiter struct {
	rdb *redis.Client
	cfg config.RateLimit
	now func() time.Time
}

// New returns a limiter, or nil when limiting is disabled or Redis is unavailable.
func New(cfg config.RateLimit, rdb *redis.Client) *Limiter {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &Limiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Take removes one token from key's bucket.
func (l *Limiter) Take(r *http.Request, key string) (Result, error) {
	vals, err := bucketScript.Run(r.Context(), l.rdb, []string{key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(l.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("run bucket script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("unexpected bucket script result %v", vals)
	}
	return Result{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Middleware limits each (client IP, caller, route) triple. A nil limiter passes
// everything through, and so does a Redis error.
func Middleware(l *Limiter, subject SubjectFunc, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(r, subject)
			res, err := l.Take(r, key)
			if err != nil {
				log.Warn("rate limit check failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`+"\n", secs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) key(r *http.Request, subject SubjectFunc) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	uid := ""
	if subject != nil {
		uid = subject(r)
	}
	if uid == "" {
		uid = "anon"
	}
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			route = p
		}
	}
	return strings.Join([]string{l.cfg.Prefix, "ip", ip, "user", uid, "route", r.Method + " " + route}, ":")
}
