package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/juju/clock"
)

// DefaultLeeway is the clock-skew tolerance applied to exp/nbf/iat.
const DefaultLeeway = 10 * time.Second

// parseAlgorithms is every JWS algorithm go-jose understands. Tokens are
// parsed against this list so a disallowed algorithm can be reported as such
// instead of as a malformed token; the allow-list is enforced afterwards.
var parseAlgorithms = []jose.SignatureAlgorithm{
	jose.EdDSA,
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

var asymmetricAlgorithms = []jose.SignatureAlgorithm{
	jose.EdDSA,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

// KeySource provides the signing keys used to verify tokens.
type KeySource interface {
	Keys(ctx context.Context, force bool) (*KeySet, error)
}

// VerifierConfig holds the provider trust settings.
type VerifierConfig struct {
	Issuer string
	// Audiences lists the accepted aud values; a token must carry at least one.
	Audiences []string
	// SkipAudienceCheck disables the audience check. It must be chosen
	// explicitly per deployment.
	SkipAudienceCheck bool
	Leeway            time.Duration
	// Algorithms is the asymmetric allow-list. Defaults to RS256.
	Algorithms []jose.SignatureAlgorithm
	Clock      clock.Clock
}

// Verifier validates bearer tokens against the provider's key set.
type Verifier struct {
	keys KeySource
	cfg  VerifierConfig
}

// NewVerifier creates a Verifier. It rejects configurations that would
// silently weaken verification.
func NewVerifier(keys KeySource, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("verifier requires a key source")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("verifier requires an expected issuer")
	}
	if !cfg.SkipAudienceCheck && len(cfg.Audiences) == 0 {
		return nil, errors.New("verifier requires at least one audience unless the audience check is disabled")
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("leeway must not be negative, got %s", cfg.Leeway)
	}
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []jose.SignatureAlgorithm{jose.RS256}
	}
	for _, alg := range cfg.Algorithms {
		if !slices.Contains(asymmetricAlgorithms, alg) {
			return nil, fmt.Errorf("algorithm %s is not an asymmetric signature algorithm", alg)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Verifier{keys: keys, cfg: cfg}, nil
}

// Verify checks the token signature and trust claims and returns the typed
// claim set. The only side effect is at most one forced key refresh when the
// token names a key identifier the cached set does not know.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*VerifiedClaims, error) {
	tok, err := jwt.ParseSigned(rawToken, parseAlgorithms)
	if err != nil {
		return nil, newError(ReasonMalformedToken, fmt.Errorf("parsing token: %w", err))
	}
	if len(tok.Headers) != 1 {
		return nil, newError(ReasonMalformedToken, fmt.Errorf("token has %d signatures", len(tok.Headers)))
	}

	header := tok.Headers[0]
	alg := jose.SignatureAlgorithm(header.Algorithm)
	if !slices.Contains(v.cfg.Algorithms, alg) {
		return nil, newError(ReasonAlgorithmNotAllowed, fmt.Errorf("algorithm %q not in allow-list", header.Algorithm))
	}

	keys, err := v.resolveKeys(ctx, header.KeyID, alg)
	if err != nil {
		return nil, err
	}

	var (
		signer    *jose.JSONWebKey
		verifyErr error
	)
	for i := range keys {
		// Claims without destinations only checks the signature.
		if verifyErr = tok.Claims(keys[i].Key); verifyErr == nil {
			signer = &keys[i]
			break
		}
	}
	if signer == nil {
		return nil, newError(ReasonSignatureInvalid, verifyErr)
	}

	var (
		registered jwt.Claims
		kc         keycloakClaims
		raw        map[string]any
	)
	if err := tok.Claims(signer.Key, &registered, &kc, &raw); err != nil {
		return nil, newError(ReasonMalformedToken, fmt.Errorf("decoding claims: %w", err))
	}

	switch {
	case registered.Expiry == nil:
		return nil, NewMissingClaim("exp")
	case registered.IssuedAt == nil:
		return nil, NewMissingClaim("iat")
	case registered.Issuer == "":
		return nil, NewMissingClaim("iss")
	}

	expected := jwt.Expected{
		Issuer: v.cfg.Issuer,
		Time:   v.cfg.Clock.Now(),
	}
	if !v.cfg.SkipAudienceCheck {
		expected.AnyAudience = jwt.Audience(v.cfg.Audiences)
	}

	if err := registered.ValidateWithLeeway(expected, v.cfg.Leeway); err != nil {
		return nil, claimError(err)
	}

	return newVerifiedClaims(registered, kc, raw), nil
}

// resolveKeys finds the candidate verification keys for a token. A known kid
// yields exactly one key; an unknown kid triggers one forced refresh. Tokens
// without a kid are tried against every key declared for the algorithm.
func (v *Verifier) resolveKeys(ctx context.Context, kid string, alg jose.SignatureAlgorithm) ([]jose.JSONWebKey, error) {
	set, err := v.keys.Keys(ctx, false)
	if err != nil {
		return nil, err
	}

	if kid == "" {
		candidates := set.candidates(alg)
		if len(candidates) == 0 {
			return nil, newError(ReasonUnknownSigningKey, fmt.Errorf("no %s key available for token without kid", alg))
		}
		return candidates, nil
	}

	key, ok := set.Key(kid)
	if !ok {
		set, err = v.keys.Keys(ctx, true)
		if err != nil {
			return nil, err
		}
		if key, ok = set.Key(kid); !ok {
			return nil, newError(ReasonUnknownSigningKey, fmt.Errorf("kid %q not in key set", kid))
		}
	}

	if key.Algorithm != "" && key.Algorithm != string(alg) {
		return nil, newError(ReasonAlgorithmNotAllowed,
			fmt.Errorf("token algorithm %s does not match key %q algorithm %s", alg, kid, key.Algorithm))
	}
	return []jose.JSONWebKey{key}, nil
}

func (s *KeySet) candidates(alg jose.SignatureAlgorithm) []jose.JSONWebKey {
	var out []jose.JSONWebKey
	for _, k := range s.keys {
		if k.Algorithm == "" || k.Algorithm == string(alg) {
			out = append(out, k)
		}
	}
	return out
}

func claimError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return newError(ReasonTokenExpired, err)
	case errors.Is(err, jwt.ErrNotValidYet), errors.Is(err, jwt.ErrIssuedInTheFuture):
		return newError(ReasonTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return newError(ReasonIssuerMismatch, err)
	case errors.Is(err, jwt.ErrInvalidAudience):
		return newError(ReasonAudienceMismatch, err)
	default:
		return newError(ReasonMalformedToken, err)
	}
}
