package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedKeyStore is a second-level JWKS cache shared between replicas.
// Load returns a nil document on a miss.
type SharedKeyStore interface {
	Load(ctx context.Context) (data []byte, fetchedAt time.Time, err error)
	Save(ctx context.Context, data []byte, fetchedAt time.Time, ttl time.Duration) error
}

// RedisKeyStore keeps the raw JWKS document in Redis under one key per issuer.
type RedisKeyStore struct {
	redis *redis.Client
	key   string
}

// NewRedisKeyStore creates a shared key store for the given issuer.
func NewRedisKeyStore(rdb *redis.Client, issuer string) *RedisKeyStore {
	return &RedisKeyStore{
		redis: rdb,
		key:   fmt.Sprintf("jwks:%s", issuer),
	}
}

type sharedJWKS struct {
	FetchedAt time.Time       `json:"fetched_at"`
	JWKS      json.RawMessage `json:"jwks"`
}

// Load reads the shared document.
func (s *RedisKeyStore) Load(ctx context.Context) ([]byte, time.Time, error) {
	raw, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading shared JWKS: %w", err)
	}

	var entry sharedJWKS
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding shared JWKS: %w", err)
	}
	return entry.JWKS, entry.FetchedAt, nil
}

// Save writes the document with the cache TTL as expiry.
func (s *RedisKeyStore) Save(ctx context.Context, data []byte, fetchedAt time.Time, ttl time.Duration) error {
	raw, err := json.Marshal(sharedJWKS{FetchedAt: fetchedAt.UTC(), JWKS: data})
	if err != nil {
		return fmt.Errorf("encoding shared JWKS: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("writing shared JWKS: %w", err)
	}
	return nil
}
