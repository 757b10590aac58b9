package config

import "fmt"

// LockBackend identifies a case lock backend.
type LockBackend string

const (
	LockBackendRedis  LockBackend = "redis"
	LockBackendMemory LockBackend = "memory"
)

// LockConfig configures the per-case single-writer lease lock.
type LockConfig struct {
	// Backend selects the lock implementation. Default: memory
	Backend LockBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=redis,enum=memory,default=memory"`

	// LeaseSeconds is the lease duration. An expired lease may be stolen
	// by the next request. Default: 600
	LeaseSeconds int `yaml:"lease_seconds,omitempty" json:"lease_seconds,omitempty" jsonschema:"title=Lease Seconds,minimum=1,default=600"`

	// Redis connection settings (redis backend).
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig is a redis connection block shared by the lock and webhook
// idempotency sections.
type RedisConfig struct {
	// Addr is host:port. Default: localhost:6379
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty" jsonschema:"title=Addr,default=localhost:6379"`

	// Password, empty for no auth.
	Password string `yaml:"password,omitempty" json:"password,omitempty" jsonschema:"title=Password"`

	// DB is the redis database index.
	DB int `yaml:"db,omitempty" json:"db,omitempty" jsonschema:"title=DB,minimum=0,default=0"`
}

// SetDefaults applies default values.
func (c *LockConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = LockBackendMemory
	}
	if c.LeaseSeconds == 0 {
		c.LeaseSeconds = 600
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// Validate checks the lock configuration.
func (c *LockConfig) Validate() error {
	switch c.Backend {
	case LockBackendRedis, LockBackendMemory:
	default:
		return fmt.Errorf("invalid backend %q (valid: redis, memory)", c.Backend)
	}
	if c.LeaseSeconds < 1 {
		return fmt.Errorf("lease_seconds must be positive, got %d", c.LeaseSeconds)
	}
	return nil
}
