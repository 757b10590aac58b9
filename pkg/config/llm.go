package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderGemini    LLMProvider = "gemini"
)

// LLMRolesConfig binds the two model roles. The assistant drives the node
// loop and may call tools; the reasoner is the stronger text-only model
// consulted for hard questions.
type LLMRolesConfig struct {
	Assistant LLMConfig `yaml:"assistant,omitempty" json:"assistant,omitempty"`
	Reasoner  LLMConfig `yaml:"reasoner,omitempty" json:"reasoner,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMRolesConfig) SetDefaults() {
	c.Assistant.SetDefaults()
	c.Reasoner.SetDefaults()
}

// Validate checks both roles.
func (c *LLMRolesConfig) Validate() error {
	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant: %w", err)
	}
	if err := c.Reasoner.Validate(); err != nil {
		return fmt.Errorf("reasoner: %w", err)
	}
	return nil
}

// LLMConfig configures one LLM provider binding.
type LLMConfig struct {
	// Provider type (openai, anthropic, gemini).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=anthropic,enum=gemini,default=openai"`

	// Model name (e.g. "gpt-4o", "claude-sonnet-4-20250514").
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model"`

	// APIKey for authentication. Supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// BaseURL overrides the default API endpoint. For openai this also
	// covers OpenAI-compatible local gateways.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,minimum=0,maximum=2,default=0.2"`

	// MaxTokens limits response length. Default: 4096
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,minimum=1,default=4096"`

	// TimeoutSeconds bounds a single request. Default: 120
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"title=Timeout,minimum=1,default=120"`

	// MaxRetries bounds retry attempts on transient failures. Default: 3
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0,default=3"`

	// RetryBaseMs is the exponential backoff base. Default: 500
	RetryBaseMs int `yaml:"retry_base_ms,omitempty" json:"retry_base_ms,omitempty" jsonschema:"title=Retry Base,minimum=1,default=500"`

	// RetryCapMs caps a single backoff delay. Default: 8000
	RetryCapMs int `yaml:"retry_cap_ms,omitempty" json:"retry_cap_ms,omitempty" jsonschema:"title=Retry Cap,minimum=1,default=8000"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}

	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Model = "gpt-4o"
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderGemini:
			c.Model = "gemini-2.0-flash"
		}
	}

	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(string(c.Provider))
	}

	if c.Temperature == nil {
		temp := 0.2
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseMs == 0 {
		c.RetryBaseMs = 500
	}
	if c.RetryCapMs == 0 {
		c.RetryCapMs = 8000
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validProviders := map[LLMProvider]bool{
		LLMProviderOpenAI:    true,
		LLMProviderAnthropic: true,
		LLMProviderGemini:    true,
	}

	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q (valid: openai, anthropic, gemini)", c.Provider)
	}

	// Local OpenAI-compatible gateways run without a key.
	if c.APIKey == "" && !(c.Provider == LLMProviderOpenAI && c.BaseURL != "") {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	return nil
}

// detectProviderFromEnv detects provider based on available API keys.
func detectProviderFromEnv() LLMProvider {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return LLMProviderOpenAI
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return LLMProviderAnthropic
	}
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return LLMProviderGemini
	}
	return LLMProviderOpenAI
}
