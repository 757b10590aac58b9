package auth

import (
	"fmt"

	"github.com/causahq/causa/pkg/config"
)

// FromConfig builds the validator the server configuration asks for. Disabled
// auth returns nil; the server then falls back to header identity, which is
// for development only.
func FromConfig(cfg config.AuthConfig) (TokenValidator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	validator, err := NewJWTValidator(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("creating JWT validator: %w", err)
	}
	return validator, nil
}
