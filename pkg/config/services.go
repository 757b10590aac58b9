package config

import "fmt"

// BillingConfig configures the external billing/quota service client.
type BillingConfig struct {
	// BaseURL of the billing API. Empty selects the in-memory fake
	// (development only).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// APIKey sent as a bearer token.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// TimeoutSeconds bounds a single request. Default: 10
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"title=Timeout,minimum=1,default=10"`
}

// SetDefaults applies default values.
func (c *BillingConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the billing configuration.
func (c *BillingConfig) Validate() error {
	if c.BaseURL != "" && c.APIKey == "" {
		return fmt.Errorf("api_key is required when base_url is set")
	}
	return nil
}

// TicketingConfig configures the external support ticket service client.
type TicketingConfig struct {
	// BaseURL of the ticketing API. Empty selects the in-memory fake.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// APIKey sent as a bearer token.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// TimeoutSeconds bounds a single request. Default: 10
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"title=Timeout,minimum=1,default=10"`
}

// SetDefaults applies default values.
func (c *TicketingConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the ticketing configuration.
func (c *TicketingConfig) Validate() error {
	if c.BaseURL != "" && c.APIKey == "" {
		return fmt.Errorf("api_key is required when base_url is set")
	}
	return nil
}

// IdempotencyBackend identifies a webhook idempotency backend.
type IdempotencyBackend string

const (
	IdempotencyBackendRedis  IdempotencyBackend = "redis"
	IdempotencyBackendMemory IdempotencyBackend = "memory"
)

// WebhooksConfig configures inbound webhook verification and replay
// protection.
type WebhooksConfig struct {
	// PaymentSigningSecret verifies the X-Causa-Signature HMAC on payment
	// webhooks. Empty disables verification (development only).
	PaymentSigningSecret string `yaml:"payment_signing_secret,omitempty" json:"payment_signing_secret,omitempty" jsonschema:"title=Payment Signing Secret"`

	// Idempotency configures replay protection keyed by event id.
	Idempotency IdempotencyConfig `yaml:"idempotency,omitempty" json:"idempotency,omitempty"`
}

// IdempotencyConfig configures the seen-event store.
type IdempotencyConfig struct {
	// Backend selects the implementation. Default: memory
	Backend IdempotencyBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=redis,enum=memory,default=memory"`

	// TTLHours is how long processed event ids are remembered.
	// Default: 72
	TTLHours int `yaml:"ttl_hours,omitempty" json:"ttl_hours,omitempty" jsonschema:"title=TTL Hours,minimum=1,default=72"`

	// Redis connection settings (redis backend).
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// SetDefaults applies default values.
func (c *WebhooksConfig) SetDefaults() {
	if c.Idempotency.Backend == "" {
		c.Idempotency.Backend = IdempotencyBackendMemory
	}
	if c.Idempotency.TTLHours == 0 {
		c.Idempotency.TTLHours = 72
	}
	if c.Idempotency.Redis.Addr == "" {
		c.Idempotency.Redis.Addr = "localhost:6379"
	}
}

// Validate checks the webhooks configuration.
func (c *WebhooksConfig) Validate() error {
	switch c.Idempotency.Backend {
	case IdempotencyBackendRedis, IdempotencyBackendMemory:
	default:
		return fmt.Errorf("invalid idempotency backend %q (valid: redis, memory)", c.Idempotency.Backend)
	}
	if c.Idempotency.TTLHours < 1 {
		return fmt.Errorf("idempotency.ttl_hours must be positive, got %d", c.Idempotency.TTLHours)
	}
	return nil
}
