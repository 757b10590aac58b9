package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: 127.0.0.1
  port: 9090
logging:
  level: debug
llm:
  assistant:
    provider: openai
    api_key: sk-assistant-test
  reasoner:
    provider: anthropic
    api_key: sk-reasoner-test
kb:
  embedder:
    api_key: sk-embed-test
orchestrator:
  max_nodes_per_request: 5
`)

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Orchestrator.MaxNodesPerRequest)

	// Everything the file left out comes from SetDefaults.
	assert.Equal(t, 300, cfg.Server.RequestTimeoutSeconds)
	assert.Equal(t, "gpt-4o", cfg.LLM.Assistant.Model)
	assert.Equal(t, StoreBackendMemory, cfg.Stores.Case.Backend)
	assert.Equal(t, 65536, cfg.Orchestrator.AssistantContextBudgetBytes)
	assert.Equal(t, 72, cfg.Webhooks.Idempotency.TTLHours)
}

func TestLoadConfigRejectsUnknownKey(t *testing.T) {
	path := writeConfigFile(t, `
server:
  porrt: 9090
`)

	_, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structural errors")
	assert.Contains(t, err.Error(), "porrt")
}

func TestLoadConfigRejectsWrongType(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: not-a-number
`)

	_, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structural errors")
	assert.Contains(t, err.Error(), "type errors")
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("CAUSA_TEST_PORT", "9191")
	t.Setenv("CAUSA_TEST_DB", "dosare")
	t.Setenv("CAUSA_TEST_TABLE", "dosare_active")
	t.Setenv("CAUSA_TEST_COLLECTION", "")

	path := writeConfigFile(t, `
server:
  port: ${CAUSA_TEST_PORT}
stores:
  case:
    backend: memory
    database: ${CAUSA_TEST_DB:-fallback}
    collection: $CAUSA_TEST_TABLE
kb:
  collection: ${CAUSA_TEST_COLLECTION:-legal-kb-test}
  embedder:
    api_key: sk-embed-test
llm:
  assistant:
    provider: openai
    api_key: sk-assistant-test
  reasoner:
    provider: anthropic
    api_key: sk-reasoner-test
`)

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)

	// "9191" lands in the int field after coercion.
	assert.Equal(t, 9191, cfg.Server.Port)
	// A set variable wins over its fallback; an empty one falls back.
	assert.Equal(t, "dosare", cfg.Stores.Case.Database)
	assert.Equal(t, "legal-kb-test", cfg.KB.Collection)
	// The bare $VAR form expands too.
	assert.Equal(t, "dosare_active", cfg.Stores.Case.Collection)
}

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("CAUSA_TEST_FLAG", "true")
	t.Setenv("CAUSA_TEST_RATE", "0.25")

	out := ExpandEnvVarsInData(map[string]interface{}{
		"enabled": "${CAUSA_TEST_FLAG}",
		"rate":    "${CAUSA_TEST_RATE}",
		"note":    "plain text stays a string",
		"nested":  []interface{}{"${CAUSA_TEST_FLAG}"},
	})

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, m["enabled"])
	assert.Equal(t, 0.25, m["rate"])
	assert.Equal(t, "plain text stays a string", m["note"])
	assert.Equal(t, []interface{}{true}, m["nested"])
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(LoaderOptions{
		Type: ConfigTypeFile,
		Path: filepath.Join(t.TempDir(), "absent.yaml"),
	})
	require.Error(t, err)
}

func TestNewLoaderRequiresPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Type: ConfigTypeFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path is required")
}

func TestNewLoaderFillsDefaults(t *testing.T) {
	l, err := NewLoader(LoaderOptions{Type: ConfigTypeConsul, Path: "causa/config"})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:8500"}, l.options.Endpoints)

	l, err = NewLoader(LoaderOptions{Path: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, ConfigTypeFile, l.options.Type)
}

func TestParseConfigType(t *testing.T) {
	cases := []struct {
		in      string
		want    ConfigType
		wantErr bool
	}{
		{in: "file", want: ConfigTypeFile},
		{in: "FILE", want: ConfigTypeFile},
		{in: " consul ", want: ConfigTypeConsul},
		{in: "etcd", want: ConfigTypeEtcd},
		{in: "zookeeper", want: ConfigTypeZookeeper},
		{in: "zk", want: ConfigTypeZookeeper},
		{in: "redis", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseConfigType(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
