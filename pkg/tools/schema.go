package tools

import (
	"bytes"
	"encoding/json"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/causahq/causa/pkg/fault"
)

// mustSchema reflects a parameter or result struct into a plain JSON schema
// map. Definitions are inlined so the same document serves both the schema
// compiler and the providers' tool declarations. Reflection runs once per
// tool at construction, on hand-written structs, so a failure here is a
// build mistake and panics.
func mustSchema(v any) map[string]any {
	r := invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic("tools: reflecting schema: " + err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic("tools: decoding schema: " + err.Error())
	}
	return m
}

// compiledSchema validates argument maps against one tool's parameter
// schema.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles the reflected schema document for runtime
// validation.
func compileSchema(name string, doc map[string]any) (*compiledSchema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fault.New(fault.Validation, component, "compile_schema",
			"encoding schema for "+name, err)
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fault.New(fault.Validation, component, "compile_schema",
			"decoding schema for "+name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "tool:///" + name + ".json"
	if err := compiler.AddResource(url, decoded); err != nil {
		return nil, fault.New(fault.Validation, component, "compile_schema",
			"adding schema resource for "+name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fault.New(fault.Validation, component, "compile_schema",
			"compiling schema for "+name, err)
	}
	return &compiledSchema{schema: schema}, nil
}

func (c *compiledSchema) validate(args map[string]any) error {
	if c == nil || c.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator wants plain decoded JSON; arguments already are, being
	// the decoded model output.
	return c.schema.Validate(normalizeInstance(args))
}

// normalizeInstance rewrites an argument tree into the shapes the validator
// understands, mainly map[string]any at every level.
func normalizeInstance(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeInstance(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeInstance(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
