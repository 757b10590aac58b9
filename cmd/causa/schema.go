package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/causahq/causa/pkg/config"
)

// SchemaCmd generates the JSON Schema for the configuration file, for
// editor completion and config linting in CI.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		// Unknown keys are a startup error, so the schema rejects them too.
		AllowAdditionalProperties: false,
		// Inline all definitions (no $ref) so single-document tooling works.
		DoNotReference: true,
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://causahq.com/schemas/config.json"
	schema.Title = "Causa Configuration Schema"
	schema.Description = "Configuration schema for the Causa lawyer agent orchestrator"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"server": map[string]interface{}{
				"port": 8080,
			},
			"llm": map[string]interface{}{
				"assistant": map[string]interface{}{
					"provider": "openai",
					"model":    "gpt-4o",
					"api_key":  "${OPENAI_API_KEY}",
				},
				"reasoner": map[string]interface{}{
					"provider": "anthropic",
					"model":    "claude-sonnet-4-20250514",
					"api_key":  "${ANTHROPIC_API_KEY}",
				},
			},
			"stores": map[string]interface{}{
				"case": map[string]interface{}{
					"backend":  "mongo",
					"uri":      "${MONGO_URI}",
					"database": "causa",
				},
			},
			"kb": map[string]interface{}{
				"backend":    "chromem",
				"corpus_dir": "./corpus",
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return nil
}
