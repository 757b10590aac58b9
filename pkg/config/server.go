package config

import "fmt"

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,default=0.0.0.0"`

	// Port to listen on. Default: 8080
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,minimum=1,maximum=65535,default=8080"`

	// RequestTimeoutSeconds is the hard processing deadline per agent
	// request. The orchestrator suspends cooperatively before it expires.
	// Default: 300
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds,omitempty" json:"request_timeout_seconds,omitempty" jsonschema:"title=Request Timeout,minimum=1,default=300"`

	// CORSEnabled toggles permissive CORS headers. Default: true
	CORSEnabled *bool `yaml:"cors_enabled,omitempty" json:"cors_enabled,omitempty" jsonschema:"title=CORS Enabled,default=true"`

	// Auth configures JWT validation on the agent endpoints.
	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// AuthConfig configures JWT validation for agent-facing endpoints. Webhook
// endpoints authenticate by HMAC signature instead (see WebhooksConfig).
type AuthConfig struct {
	// Enabled turns on JWT validation. When off, requests pass through
	// with the user id taken from the X-User-ID header (dev only).
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=false"`

	// JWKSURL is the JWKS endpoint used to fetch signing keys.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty" jsonschema:"title=JWKS URL"`

	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty" jsonschema:"title=Issuer"`

	// Audience is the expected aud claim. Empty skips the check.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" jsonschema:"title=Audience"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 300
	}
	if c.CORSEnabled == nil {
		c.CORSEnabled = BoolPtr(true)
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.Auth.Enabled && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth is enabled")
	}
	return nil
}
