package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/juju/clock/testclock"
)

const (
	testIssuer   = "https://sso.example.com/realms/todo"
	testAudience = "todo-api"
)

var testT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	return testKey{kid: kid, priv: priv}
}

func (k testKey) jwk(alg string) jose.JSONWebKey {
	return jose.JSONWebKey{Key: &k.priv.PublicKey, KeyID: k.kid, Algorithm: alg, Use: "sig"}
}

func jwksDoc(t *testing.T, keys ...jose.JSONWebKey) []byte {
	t.Helper()
	data, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		t.Fatalf("marshalling JWKS: %v", err)
	}
	return data
}

// sign mints a compact JWS over the given claim sets.
func sign(t *testing.T, alg jose.SignatureAlgorithm, key any, kid string, claims ...any) string {
	t.Helper()
	sk := jose.SigningKey{Algorithm: alg, Key: key}
	if kid != "" {
		sk.Key = jose.JSONWebKey{Key: key, KeyID: kid}
	}
	signer, err := jose.NewSigner(sk, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	b := jwt.Signed(signer)
	for _, c := range claims {
		b = b.Claims(c)
	}
	raw, err := b.Serialize()
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return raw
}

func (k testKey) token(t *testing.T, claims ...any) string {
	t.Helper()
	return sign(t, jose.RS256, k.priv, k.kid, claims...)
}

// registered returns standard claims valid at now for the test issuer and
// audience.
func registered(now time.Time, sub string) jwt.Claims {
	return jwt.Claims{
		Subject:  sub,
		Issuer:   testIssuer,
		Audience: jwt.Audience{testAudience, "account"},
		Expiry:   jwt.NewNumericDate(now.Add(5 * time.Minute)),
		IssuedAt: jwt.NewNumericDate(now),
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
	// block, when non-nil, is waited on before answering.
	block chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

func (f *fakeFetcher) set(data []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data, f.err = data, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errUpstream = errors.New("jwks endpoint returned status 500")

func newTestCache(f Fetcher, clk *testclock.Clock) *JWKSCache {
	return NewJWKSCache(f, JWKSCacheOptions{Clock: clk, Logger: discardLogger()})
}

func newTestVerifier(t *testing.T, keys KeySource, clk *testclock.Clock) *Verifier {
	t.Helper()
	v, err := NewVerifier(keys, VerifierConfig{
		Issuer:    testIssuer,
		Audiences: []string{testAudience},
		Leeway:    DefaultLeeway,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}
