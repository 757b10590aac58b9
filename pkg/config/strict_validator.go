package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// StrictValidationResult contains validation errors from strict
// unmarshaling.
type StrictValidationResult struct {
	UnknownFields []string
	TypeErrors    []string
}

// Valid returns true if there are no validation errors.
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// FormatErrors returns a human-readable error message.
func (r *StrictValidationResult) FormatErrors() string {
	if r.Valid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation errors:\n\n")

	if len(r.UnknownFields) > 0 {
		sb.WriteString("unknown fields (not recognized):\n")
		for _, field := range r.UnknownFields {
			sb.WriteString(fmt.Sprintf("   • %s\n", field))
		}
		sb.WriteString("\n")
		sb.WriteString("   Common causes: typos, incorrect nesting level, removed fields.\n\n")
	}

	if len(r.TypeErrors) > 0 {
		sb.WriteString("type errors:\n")
		for _, err := range r.TypeErrors {
			sb.WriteString(fmt.Sprintf("   • %s\n", err))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Use 'causa validate <file>' to check a config before deploying.\n")

	return sb.String()
}

// ValidateConfigStructure strictly checks raw config data against the
// Config struct tree, catching typos and unknown fields before unmarshaling
// proceeds.
func ValidateConfigStructure(k *koanf.Koanf) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}

	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		ErrorUnused: true, // error on unknown fields
		TagName:     "yaml",
		// Weak type coercion disabled so type mismatches surface here.
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	rawMap := k.Raw()
	if err := decoder.Decode(rawMap); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "unused key") || strings.Contains(errStr, "has invalid keys:") {
			result.UnknownFields = extractUnknownFields(errStr)
		} else {
			result.TypeErrors = append(result.TypeErrors, errStr)
		}
	}

	return result, nil
}

// extractUnknownFields parses mapstructure error messages to extract field
// names.
func extractUnknownFields(errMsg string) []string {
	var fields []string

	// mapstructure error format: "...has invalid keys: key1, key2"
	if idx := strings.Index(errMsg, "has invalid keys:"); idx != -1 {
		keysStr := strings.TrimSpace(errMsg[idx+len("has invalid keys:"):])
		for _, key := range strings.Split(keysStr, ",") {
			if key = strings.TrimSpace(key); key != "" {
				fields = append(fields, key)
			}
		}
	}

	if len(fields) == 0 {
		fields = []string{errMsg}
	}

	return fields
}
