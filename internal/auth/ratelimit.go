package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureLimiter limits failed bearer authentication attempts per client IP
// using Redis INCR + EXPIRE.
type FailureLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewFailureLimiter creates a limiter. maxAttempt is the max failed attempts
// allowed per IP within the given window.
func NewFailureLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *FailureLimiter {
	return &FailureLimiter{
		redis:      rdb,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

func failureKey(ip string) string {
	return fmt.Sprintf("auth_failures:%s", ip)
}

// Check returns whether the given IP may attempt bearer authentication.
func (l *FailureLimiter) Check(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := failureKey(ip)

	count, err := l.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking auth failure limit: %w", err)
	}

	if count >= l.maxAttempt {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   time.Now().Add(ttl),
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: l.maxAttempt - count,
	}, nil
}

// Record records a failed attempt for the given IP. The window starts at the
// first failure.
func (l *FailureLimiter) Record(ctx context.Context, ip string) error {
	key := failureKey(ip)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("recording auth failure: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("setting auth failure window: %w", err)
		}
	}
	return nil
}

// Reset clears the failure counter for a given IP.
func (l *FailureLimiter) Reset(ctx context.Context, ip string) error {
	return l.redis.Del(ctx, failureKey(ip)).Err()
}

// ClientIP returns the caller address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
