// Package auth validates the identity on agent-facing requests.
//
// Production deployments hand out JWTs from an external identity provider;
// the validator fetches and caches the provider's JWKS and checks signature,
// expiry, issuer and audience on every request. The extracted claims carry
// the end-user id and organization memberships the handler authorizes case
// access against. Payment webhooks do not pass through here; they are
// authenticated by HMAC signature in the server package.
package auth

import (
	"context"
	"errors"
)

// Claims is the validated identity of the caller.
type Claims struct {
	// Subject is the end-user id (sub claim) cases are owned by.
	Subject string `json:"sub"`

	// Email, when the provider includes it.
	Email string `json:"email,omitempty"`

	// OrgIDs lists the organizations the user belongs to (org_ids claim).
	// A case owned by an organization is accessible to its members.
	OrgIDs []string `json:"org_ids,omitempty"`
}

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	Close() error
}

var (
	// ErrInvalidToken is returned when a token cannot be validated.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingClaims is returned when a valid token lacks a subject.
	ErrMissingClaims = errors.New("token has no subject claim")
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var claimsKey contextKey

// ContextWithClaims returns a context carrying the given claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts claims from a context, or nil when the request
// did not pass through an identity middleware.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsKey).(*Claims); ok {
		return claims
	}
	return nil
}
