package config

import "fmt"

// LoggingConfig configures logging behavior.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-file, --log-format)
//  2. Config file (logging section)
//  3. Defaults (info level, simple format, stderr)
type LoggingConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"title=Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// Format specifies the log format: "simple" (level + message) or
	// "verbose" (time + level + message). Default: simple
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"title=Format,default=simple"`

	// File specifies the log file path. If empty, logs go to stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty" jsonschema:"title=File"`
}

// SetDefaults applies default values.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}
	if c.Level != "" && !validLevels[c.Level] {
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	return nil
}
