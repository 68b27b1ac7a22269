package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderMetadata is the subset of the provider's discovery document the
// service needs.
type ProviderMetadata struct {
	Issuer   string
	JWKSURL  string
	Endpoint oauth2.Endpoint
}

// DiscoverProvider reads <issuer>/.well-known/openid-configuration. go-oidc
// verifies that the advertised issuer matches the one requested.
func DiscoverProvider(ctx context.Context, issuerURL string) (*ProviderMetadata, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}

	var doc struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&doc); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}
	if doc.JWKSURL == "" {
		return nil, errors.New("discovery document has no jwks_uri")
	}

	return &ProviderMetadata{
		Issuer:   issuerURL,
		JWKSURL:  doc.JWKSURL,
		Endpoint: provider.Endpoint(),
	}, nil
}

// KeycloakMetadata builds the metadata from Keycloak's conventional endpoint
// layout under the realm issuer.
func KeycloakMetadata(issuerURL string) *ProviderMetadata {
	base := strings.TrimRight(issuerURL, "/") + "/protocol/openid-connect"
	return &ProviderMetadata{
		Issuer:  issuerURL,
		JWKSURL: base + "/certs",
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + "/auth",
			TokenURL: base + "/token",
		},
	}
}

// ResolveProvider returns the provider metadata. An explicit JWKS URL wins;
// otherwise discovery is attempted and, when it fails, the Keycloak layout
// is assumed so that a provider outage at startup is not fatal.
func ResolveProvider(ctx context.Context, issuerURL, jwksURL string, logger *slog.Logger) *ProviderMetadata {
	md, err := DiscoverProvider(ctx, issuerURL)
	if err != nil {
		logger.Warn("OIDC discovery failed, using Keycloak endpoint layout", "issuer", issuerURL, "error", err)
		md = KeycloakMetadata(issuerURL)
	}
	if jwksURL != "" {
		md.JWKSURL = jwksURL
	}
	return md
}
