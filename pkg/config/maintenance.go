package config

import "fmt"

// MaintenanceConfig configures the background cron jobs: expired lease
// sweeping, inactivity archival and draft reconciliation.
type MaintenanceConfig struct {
	// Enabled turns the maintenance scheduler on. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`

	// LeaseSweepSchedule releases expired case locks.
	// Default: "*/1 * * * *"
	LeaseSweepSchedule string `yaml:"lease_sweep_schedule,omitempty" json:"lease_sweep_schedule,omitempty" jsonschema:"title=Lease Sweep Schedule"`

	// ArchiveSchedule archives cases inactive beyond ArchiveAfterDays.
	// Default: "0 3 * * *"
	ArchiveSchedule string `yaml:"archive_schedule,omitempty" json:"archive_schedule,omitempty" jsonschema:"title=Archive Schedule"`

	// ArchiveAfterDays is the inactivity window. Default: 90
	ArchiveAfterDays int `yaml:"archive_after_days,omitempty" json:"archive_after_days,omitempty" jsonschema:"title=Archive After Days,minimum=1,default=90"`

	// DraftReconcileSchedule verifies drafts listed in case context exist
	// in the object store and flags orphans. Default: "*/15 * * * *"
	DraftReconcileSchedule string `yaml:"draft_reconcile_schedule,omitempty" json:"draft_reconcile_schedule,omitempty" jsonschema:"title=Draft Reconcile Schedule"`
}

// SetDefaults applies default values.
func (c *MaintenanceConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.LeaseSweepSchedule == "" {
		c.LeaseSweepSchedule = "*/1 * * * *"
	}
	if c.ArchiveSchedule == "" {
		c.ArchiveSchedule = "0 3 * * *"
	}
	if c.ArchiveAfterDays == 0 {
		c.ArchiveAfterDays = 90
	}
	if c.DraftReconcileSchedule == "" {
		c.DraftReconcileSchedule = "*/15 * * * *"
	}
}

// Validate checks the maintenance configuration. Schedule strings are
// validated by the cron parser at scheduler start.
func (c *MaintenanceConfig) Validate() error {
	if c.ArchiveAfterDays < 1 {
		return fmt.Errorf("archive_after_days must be positive, got %d", c.ArchiveAfterDays)
	}
	return nil
}
