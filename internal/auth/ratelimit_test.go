package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, max int, window time.Duration) (*FailureLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFailureLimiter(rdb, max, window), mr
}

func TestFailureLimiter(t *testing.T) {
	limiter, mr := newTestLimiter(t, 3, 5*time.Minute)
	ctx := context.Background()
	ip := "10.0.0.1"

	res, err := limiter.Check(ctx, ip)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed || res.Remaining != 3 {
		t.Errorf("fresh result = %+v", res)
	}

	for i := 0; i < 3; i++ {
		if err := limiter.Record(ctx, ip); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if ttl := mr.TTL(failureKey(ip)); ttl != 5*time.Minute {
		t.Errorf("window TTL = %v, want 5m", ttl)
	}

	res, err = limiter.Check(ctx, ip)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Error("expected limit to be reached")
	}
	if res.RetryAt.Before(time.Now().Add(4 * time.Minute)) {
		t.Errorf("RetryAt = %v, want about 5m from now", res.RetryAt)
	}

	// Other clients are unaffected.
	if res, _ := limiter.Check(ctx, "10.0.0.2"); !res.Allowed {
		t.Error("unrelated IP was limited")
	}

	mr.FastForward(5 * time.Minute)
	if res, _ := limiter.Check(ctx, ip); !res.Allowed {
		t.Error("limit should lift after the window")
	}
}

func TestFailureLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Record(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if res, _ := limiter.Check(ctx, "10.0.0.1"); res.Allowed {
		t.Fatal("expected limit to be reached")
	}
	if err := limiter.Reset(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, _ := limiter.Check(ctx, "10.0.0.1"); !res.Allowed {
		t.Error("expected reset to lift the limit")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.10:4321", nil, "192.0.2.10"},
		{"forwarded for", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "198.51.100.2"},
		{"no port", "192.0.2.10", nil, "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
