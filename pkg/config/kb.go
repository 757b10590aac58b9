package config

import "fmt"

// KBBackend identifies a knowledge base backend.
type KBBackend string

const (
	KBBackendChromem  KBBackend = "chromem"
	KBBackendQdrant   KBBackend = "qdrant"
	KBBackendPinecone KBBackend = "pinecone"
	KBBackendMCP      KBBackend = "mcp"
)

// EmbedderProvider identifies an embedding provider.
type EmbedderProvider string

const (
	EmbedderProviderOpenAI EmbedderProvider = "openai"
	EmbedderProviderGemini EmbedderProvider = "gemini"
)

// KBConfig configures the legal knowledge base the research tool queries.
// Vector backends (chromem, qdrant, pinecone) embed and search a local
// corpus; the mcp backend delegates search to an external MCP server.
type KBConfig struct {
	// Backend selects the implementation. Default: chromem
	Backend KBBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=chromem,enum=qdrant,enum=pinecone,enum=mcp,default=chromem"`

	// Collection names the vector collection/index. Default: legal-kb
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"title=Collection,default=legal-kb"`

	// CorpusDir is a directory of legal texts ingested at startup
	// (vector backends only). Empty disables ingestion.
	CorpusDir string `yaml:"corpus_dir,omitempty" json:"corpus_dir,omitempty" jsonschema:"title=Corpus Dir"`

	// Watch re-ingests files when the corpus directory changes.
	Watch bool `yaml:"watch,omitempty" json:"watch,omitempty" jsonschema:"title=Watch,default=false"`

	// QueryRateLimit caps knowledge base queries per second for the whole
	// process. Zero disables limiting.
	QueryRateLimit float64 `yaml:"query_rate_limit,omitempty" json:"query_rate_limit,omitempty" jsonschema:"title=Query Rate Limit,minimum=0"`

	// Embedder configures the embedding model (vector backends).
	Embedder EmbedderConfig `yaml:"embedder,omitempty" json:"embedder,omitempty"`

	// Chromem settings (chromem backend).
	Chromem ChromemConfig `yaml:"chromem,omitempty" json:"chromem,omitempty"`

	// Qdrant settings (qdrant backend).
	Qdrant QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`

	// Pinecone settings (pinecone backend).
	Pinecone PineconeConfig `yaml:"pinecone,omitempty" json:"pinecone,omitempty"`

	// MCP settings (mcp backend).
	MCP MCPConfig `yaml:"mcp,omitempty" json:"mcp,omitempty"`
}

// EmbedderConfig configures the embedding model.
type EmbedderConfig struct {
	// Provider is the embedding provider (openai, gemini).
	Provider EmbedderProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=gemini,default=openai"`

	// Model is the embedding model name. Default: text-embedding-3-small
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,default=text-embedding-3-small"`

	// APIKey for the embedding provider.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// Dimension of the produced vectors. Default: 1536
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"title=Dimension,minimum=1,default=1536"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// PersistPath enables file persistence. Empty keeps the index in memory.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty" jsonschema:"title=Persist Path"`

	// Compress gzips persisted segments.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty" jsonschema:"title=Compress,default=false"`
}

// QdrantConfig configures the qdrant backend.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,default=localhost"`
	Port   int    `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,default=6334"`
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`
	UseTLS bool   `yaml:"use_tls,omitempty" json:"use_tls,omitempty" jsonschema:"title=Use TLS,default=false"`
}

// PineconeConfig configures the pinecone backend.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`
	IndexHost string `yaml:"index_host,omitempty" json:"index_host,omitempty" jsonschema:"title=Index Host"`
}

// MCPConfig configures the mcp backend: search is delegated to a tool on an
// external MCP server, reached over streamable HTTP (URL) or stdio (Command).
type MCPConfig struct {
	// URL of a remote MCP server (streamable HTTP transport).
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"title=URL"`

	// Command launches a local MCP server over stdio.
	Command string `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Command"`

	// Args for the stdio command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Args"`

	// Env for the stdio command.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"title=Environment Variables"`

	// ToolName is the search tool exposed by the server. Default: search
	ToolName string `yaml:"tool_name,omitempty" json:"tool_name,omitempty" jsonschema:"title=Tool Name,default=search"`
}

// SetDefaults applies default values.
func (c *KBConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = KBBackendChromem
	}
	if c.Collection == "" {
		c.Collection = "legal-kb"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = EmbedderProviderOpenAI
	}
	if c.Embedder.Model == "" {
		switch c.Embedder.Provider {
		case EmbedderProviderGemini:
			c.Embedder.Model = "text-embedding-004"
		default:
			c.Embedder.Model = "text-embedding-3-small"
		}
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = GetProviderAPIKey(string(c.Embedder.Provider))
	}
	if c.Embedder.Dimension == 0 {
		switch c.Embedder.Provider {
		case EmbedderProviderGemini:
			c.Embedder.Dimension = 768
		default:
			c.Embedder.Dimension = 1536
		}
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.MCP.ToolName == "" {
		c.MCP.ToolName = "search"
	}
}

// Validate checks the KB configuration.
func (c *KBConfig) Validate() error {
	switch c.Backend {
	case KBBackendChromem:
	case KBBackendQdrant:
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant.host is required for the qdrant backend")
		}
	case KBBackendPinecone:
		if c.Pinecone.APIKey == "" || c.Pinecone.IndexHost == "" {
			return fmt.Errorf("pinecone.api_key and pinecone.index_host are required for the pinecone backend")
		}
	case KBBackendMCP:
		if c.MCP.URL == "" && c.MCP.Command == "" {
			return fmt.Errorf("mcp.url or mcp.command is required for the mcp backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: chromem, qdrant, pinecone, mcp)", c.Backend)
	}

	if c.Backend != KBBackendMCP {
		switch c.Embedder.Provider {
		case EmbedderProviderOpenAI, EmbedderProviderGemini:
		default:
			return fmt.Errorf("invalid embedder provider %q (valid: openai, gemini)", c.Embedder.Provider)
		}
		if c.Embedder.APIKey == "" && c.Embedder.BaseURL == "" {
			return fmt.Errorf("embedder.api_key is required for the %s backend", c.Backend)
		}
	}

	return nil
}
