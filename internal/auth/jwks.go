package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"github.com/wisbric/todoapi/internal/telemetry"
)

const (
	// DefaultJWKSTTL is how long a fetched key set is served without refetching.
	DefaultJWKSTTL = 15 * time.Minute
	// DefaultJWKSFetchTimeout bounds a single request to the JWKS endpoint.
	DefaultJWKSFetchTimeout = 5 * time.Second
	// DefaultMinRefreshInterval throttles forced refreshes triggered by
	// unknown key identifiers.
	DefaultMinRefreshInterval = 10 * time.Second

	maxJWKSBody = 1 << 20
)

// KeySet is an immutable snapshot of the provider's public signing keys.
type KeySet struct {
	keys      map[string]jose.JSONWebKey
	FetchedAt time.Time
}

// Key returns the signing key with the given key identifier.
func (s *KeySet) Key(kid string) (jose.JSONWebKey, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of usable signing keys.
func (s *KeySet) Len() int { return len(s.keys) }

// ParseKeySet decodes a JWKS document. Keys that are not public signing keys
// with a key identifier are skipped; a document without any usable key is an
// error.
func ParseKeySet(data []byte, fetchedAt time.Time) (*KeySet, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(doc.Keys))
	for _, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			// Unsupported key types (e.g. encryption-only curves) are not fatal.
			continue
		}
		if k.KeyID == "" || !k.IsPublic() || !k.Valid() {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		keys[k.KeyID] = k
	}

	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable signing keys")
	}

	return &KeySet{keys: keys, FetchedAt: fetchedAt}, nil
}

// Fetcher retrieves the raw JWKS document from the identity provider.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPFetcher fetches the JWKS document over HTTP(S).
type HTTPFetcher struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher creates a fetcher for the given JWKS URL. A zero timeout
// uses DefaultJWKSFetchTimeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultJWKSFetchTimeout
	}
	return &HTTPFetcher{
		URL:     url,
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Fetch performs a GET against the JWKS endpoint.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("reading JWKS response: %w", err)
	}
	return body, nil
}

// JWKSCacheOptions configures a JWKSCache. Zero values pick the defaults.
type JWKSCacheOptions struct {
	TTL                time.Duration
	MinRefreshInterval time.Duration
	Clock              clock.Clock
	Logger             *slog.Logger
	// Shared is an optional second-level cache shared between replicas.
	Shared SharedKeyStore
}

// JWKSCache serves the provider's key set from an in-memory snapshot and
// refreshes it on TTL expiry or on demand. Readers always observe a complete
// snapshot: refreshes build a new KeySet and swap the pointer.
type JWKSCache struct {
	fetcher    Fetcher
	shared     SharedKeyStore
	ttl        time.Duration
	minRefresh time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	current atomic.Pointer[KeySet]
	group   singleflight.Group
}

// NewJWKSCache creates a cache in front of the given fetcher.
func NewJWKSCache(fetcher Fetcher, opts JWKSCacheOptions) *JWKSCache {
	c := &JWKSCache{
		fetcher:    fetcher,
		shared:     opts.Shared,
		ttl:        opts.TTL,
		minRefresh: opts.MinRefreshInterval,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultJWKSTTL
	}
	if c.minRefresh <= 0 {
		c.minRefresh = DefaultMinRefreshInterval
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Keys returns the current key set. A non-forced call is served from memory
// while the snapshot is younger than the TTL. A forced call refetches unless
// the snapshot was refreshed within the minimum refresh interval.
//
// When a refresh fails and a previous snapshot exists, the stale snapshot is
// returned. Without one the call fails with ErrKeySourceUnavailable.
func (c *JWKSCache) Keys(ctx context.Context, force bool) (*KeySet, error) {
	snap := c.current.Load()
	if snap != nil {
		age := c.clock.Now().Sub(snap.FetchedAt)
		if !force && age < c.ttl {
			return snap, nil
		}
		if force && age < c.minRefresh {
			return snap, nil
		}
	}

	// Forced refreshes never join a plain one, which may be answered from
	// the shared copy instead of the provider.
	flight := "jwks"
	if force {
		flight = "jwks:force"
	}

	// The fetch runs detached from the caller so one cancelled request does
	// not fail everyone waiting on the same refresh; HTTPFetcher bounds it.
	ch := c.group.DoChan(flight, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if stale := c.current.Load(); stale != nil {
				c.logger.Warn("JWKS refresh failed, serving stale key set",
					"error", res.Err,
					"fetched_at", stale.FetchedAt,
				)
				return stale, nil
			}
			return nil, newError(ReasonKeySourceUnavailable, res.Err)
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, newError(ReasonUpstreamTimeout, fmt.Errorf("waiting for JWKS refresh: %w", ctx.Err()))
	}
}

// Warm populates the cache. Failure is logged and otherwise ignored so that
// an unreachable provider never blocks startup.
func (c *JWKSCache) Warm(ctx context.Context) {
	set, err := c.Keys(ctx, false)
	if err != nil {
		c.logger.Warn("JWKS warm-up failed", "error", err)
		return
	}
	c.logger.Info("JWKS cache warmed", "keys", set.Len())
}

func (c *JWKSCache) refresh(ctx context.Context, force bool) (*KeySet, error) {
	if !force && c.shared != nil {
		if set := c.loadShared(ctx); set != nil {
			c.current.Store(set)
			telemetry.JWKSRefreshTotal.WithLabelValues("shared", "ok").Inc()
			return set, nil
		}
	}

	data, err := c.fetcher.Fetch(ctx)
	if err != nil {
		telemetry.JWKSRefreshTotal.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	now := c.clock.Now()
	set, err := ParseKeySet(data, now)
	if err != nil {
		telemetry.JWKSRefreshTotal.WithLabelValues("http", "invalid").Inc()
		return nil, err
	}

	c.current.Store(set)
	telemetry.JWKSRefreshTotal.WithLabelValues("http", "ok").Inc()
	c.logger.Debug("JWKS refreshed", "keys", set.Len(), "forced", force)

	if c.shared != nil {
		if err := c.shared.Save(ctx, data, now, c.ttl); err != nil {
			c.logger.Warn("storing JWKS in shared cache", "error", err)
		}
	}

	return set, nil
}

func (c *JWKSCache) loadShared(ctx context.Context) *KeySet {
	data, fetchedAt, err := c.shared.Load(ctx)
	if err != nil {
		c.logger.Warn("loading JWKS from shared cache", "error", err)
		return nil
	}
	if data == nil || c.clock.Now().Sub(fetchedAt) >= c.ttl {
		return nil
	}
	set, err := ParseKeySet(data, fetchedAt)
	if err != nil {
		c.logger.Warn("shared JWKS entry is unusable", "error", err)
		return nil
	}
	return set
}
