// Package config defines causa's configuration tree and the koanf-based
// loader that populates it from a YAML file, Consul, etcd or ZooKeeper.
//
// Every section follows the same contract: SetDefaults fills what the
// operator left out, Validate rejects what cannot work. The loader expands
// ${ENV_VAR} references, strict-validates the raw structure against the
// struct tree (typos fail fast) and only then unmarshals.
package config

import (
	"fmt"

	"github.com/causahq/causa/pkg/observability"
)

// Config is the root of the configuration tree.
type Config struct {
	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logging configures the slog backend.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Observability configures tracing and metrics.
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`

	// LLM binds the assistant and reasoner roles to providers.
	LLM LLMRolesConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Stores configures the case and party document stores.
	Stores StoresConfig `yaml:"stores,omitempty" json:"stores,omitempty"`

	// Lock configures the per-case single-writer lock.
	Lock LockConfig `yaml:"lock,omitempty" json:"lock,omitempty"`

	// ObjectStore configures draft and attachment blob storage.
	ObjectStore ObjectStoreConfig `yaml:"objectstore,omitempty" json:"objectstore,omitempty"`

	// KB configures the legal knowledge base used by research.
	KB KBConfig `yaml:"kb,omitempty" json:"kb,omitempty"`

	// Billing configures the external quota/billing service client.
	Billing BillingConfig `yaml:"billing,omitempty" json:"billing,omitempty"`

	// Ticketing configures the external support ticket service client.
	Ticketing TicketingConfig `yaml:"ticketing,omitempty" json:"ticketing,omitempty"`

	// Webhooks configures inbound webhook verification and idempotency.
	Webhooks WebhooksConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`

	// Orchestrator configures loop budgets and language policy.
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty" json:"orchestrator,omitempty"`

	// Maintenance configures the background cron jobs.
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty"`
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Observability.SetDefaults()
	c.LLM.SetDefaults()
	c.Stores.SetDefaults()
	c.Lock.SetDefaults()
	c.ObjectStore.SetDefaults()
	c.KB.SetDefaults()
	c.Billing.SetDefaults()
	c.Ticketing.SetDefaults()
	c.Webhooks.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Maintenance.SetDefaults()
}

// Validate checks the whole tree. Call after SetDefaults.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"logging", c.Logging.Validate},
		{"observability", c.Observability.Validate},
		{"llm", c.LLM.Validate},
		{"stores", c.Stores.Validate},
		{"lock", c.Lock.Validate},
		{"objectstore", c.ObjectStore.Validate},
		{"kb", c.KB.Validate},
		{"billing", c.Billing.Validate},
		{"ticketing", c.Ticketing.Validate},
		{"webhooks", c.Webhooks.Validate},
		{"orchestrator", c.Orchestrator.Validate},
		{"maintenance", c.Maintenance.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Process runs the defaults-then-validate pipeline on a freshly unmarshaled
// config.
func Process(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
