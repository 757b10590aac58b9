package config

import "fmt"

// OrchestratorConfig bounds the node loop and sets the language policy.
type OrchestratorConfig struct {
	// MaxNodesPerRequest caps node runs in a single request, counting
	// error-handling hops. Default: 20
	MaxNodesPerRequest int `yaml:"max_nodes_per_request,omitempty" json:"max_nodes_per_request,omitempty" jsonschema:"title=Max Nodes Per Request,minimum=1,default=20"`

	// DeadlineSlackSeconds is how long before the request deadline the
	// orchestrator stops starting new nodes and checkpoints instead.
	// Default: 20
	DeadlineSlackSeconds int `yaml:"deadline_slack_seconds,omitempty" json:"deadline_slack_seconds,omitempty" jsonschema:"title=Deadline Slack,minimum=1,default=20"`

	// ResearchSummaryLimit caps knowledge base results per query.
	// Default: 10
	ResearchSummaryLimit int `yaml:"research_summary_limit,omitempty" json:"research_summary_limit,omitempty" jsonschema:"title=Research Summary Limit,minimum=1,default=10"`

	// ConsiderationPruneThreshold is the research entry count above which
	// stale considered-only entries are pruned from the digest (never
	// from the store). Default: 20
	ConsiderationPruneThreshold int `yaml:"consideration_prune_threshold,omitempty" json:"consideration_prune_threshold,omitempty" jsonschema:"title=Consideration Prune Threshold,minimum=1,default=20"`

	// AssistantContextBudgetBytes caps the case digest handed to the
	// assistant. Default: 65536
	AssistantContextBudgetBytes int `yaml:"assistant_context_budget_bytes,omitempty" json:"assistant_context_budget_bytes,omitempty" jsonschema:"title=Assistant Context Budget,minimum=1024,default=65536"`

	// RetryAttemptsTransient is the total attempts for a transient
	// failure before escalation. Default: 3
	RetryAttemptsTransient int `yaml:"retry_attempts_transient,omitempty" json:"retry_attempts_transient,omitempty" jsonschema:"title=Transient Retry Attempts,minimum=1,default=3"`

	// SupportedUserLanguages is the closed set of languages users may
	// receive text in. Default: [ro, en, hu, de, fr]
	SupportedUserLanguages []string `yaml:"supported_user_languages,omitempty" json:"supported_user_languages,omitempty" jsonschema:"title=Supported User Languages"`

	// DefaultLanguage is used when a case has no user_language.
	// Default: ro
	DefaultLanguage string `yaml:"default_language,omitempty" json:"default_language,omitempty" jsonschema:"title=Default Language,default=ro"`
}

// SetDefaults applies default values.
func (c *OrchestratorConfig) SetDefaults() {
	if c.MaxNodesPerRequest == 0 {
		c.MaxNodesPerRequest = 20
	}
	if c.DeadlineSlackSeconds == 0 {
		c.DeadlineSlackSeconds = 20
	}
	if c.ResearchSummaryLimit == 0 {
		c.ResearchSummaryLimit = 10
	}
	if c.ConsiderationPruneThreshold == 0 {
		c.ConsiderationPruneThreshold = 20
	}
	if c.AssistantContextBudgetBytes == 0 {
		c.AssistantContextBudgetBytes = 65536
	}
	if c.RetryAttemptsTransient == 0 {
		c.RetryAttemptsTransient = 3
	}
	if len(c.SupportedUserLanguages) == 0 {
		c.SupportedUserLanguages = []string{"ro", "en", "hu", "de", "fr"}
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "ro"
	}
}

// Validate checks the orchestrator configuration.
func (c *OrchestratorConfig) Validate() error {
	if c.MaxNodesPerRequest < 1 {
		return fmt.Errorf("max_nodes_per_request must be positive, got %d", c.MaxNodesPerRequest)
	}
	if c.AssistantContextBudgetBytes < 1024 {
		return fmt.Errorf("assistant_context_budget_bytes must be at least 1024, got %d", c.AssistantContextBudgetBytes)
	}
	if !c.SupportsLanguage(c.DefaultLanguage) {
		return fmt.Errorf("default_language %q is not in supported_user_languages", c.DefaultLanguage)
	}
	return nil
}

// SupportsLanguage reports whether lang is in the supported set.
func (c *OrchestratorConfig) SupportsLanguage(lang string) bool {
	for _, l := range c.SupportedUserLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
