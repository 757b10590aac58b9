package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// jwksRefreshInterval is the minimum interval between JWKS refetches; key
// rotation at the provider propagates within this window.
const jwksRefreshInterval = 15 * time.Minute

// JWTValidator validates tokens against a provider's JWKS endpoint. The key
// set is cached and refreshed in the background.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTValidator fetches the JWKS once to validate the configuration and
// registers it for auto-refresh. An empty issuer or audience skips that
// check.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(jwksRefreshInterval)); err != nil {
		return nil, fmt.Errorf("registering JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer and audience, and maps
// the claims the orchestrator cares about.
func (v *JWTValidator) ValidateToken(ctx context.Context, raw string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("getting JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Subject() == "" {
		return nil, ErrMissingClaims
	}

	claims := &Claims{Subject: token.Subject()}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if orgs, ok := token.Get("org_ids"); ok {
		claims.OrgIDs = stringSliceClaim(orgs)
	}
	return claims, nil
}

// Close releases the validator. The cache refresher stops with the context
// it was created under.
func (v *JWTValidator) Close() error { return nil }

// stringSliceClaim converts a decoded JSON claim into a string slice,
// accepting a single string for providers that emit scalar memberships.
func stringSliceClaim(value any) []string {
	switch vs := value.(type) {
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vs
	case string:
		if vs == "" {
			return nil
		}
		return []string{vs}
	default:
		return nil
	}
}
