package config

import "fmt"

// StoreBackend identifies a document store backend.
type StoreBackend string

const (
	StoreBackendMongo    StoreBackend = "mongo"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendMySQL    StoreBackend = "mysql"
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendMemory   StoreBackend = "memory"
)

// StoresConfig configures the two document stores. The case store holds
// case records and context trees; the party store holds PII and is only
// read by the draft-generation path.
type StoresConfig struct {
	Case  StoreConfig `yaml:"case,omitempty" json:"case,omitempty"`
	Party StoreConfig `yaml:"party,omitempty" json:"party,omitempty"`
}

// SetDefaults applies default values.
func (c *StoresConfig) SetDefaults() {
	c.Case.SetDefaults("cases")
	c.Party.SetDefaults("parties")
}

// Validate checks both stores.
func (c *StoresConfig) Validate() error {
	if err := c.Case.Validate(); err != nil {
		return fmt.Errorf("case: %w", err)
	}
	if err := c.Party.Validate(); err != nil {
		return fmt.Errorf("party: %w", err)
	}
	return nil
}

// StoreConfig configures one document store.
type StoreConfig struct {
	// Backend selects the store implementation.
	Backend StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=mongo,enum=postgres,enum=mysql,enum=sqlite,enum=memory,default=memory"`

	// URI is the MongoDB connection string (mongo backend).
	URI string `yaml:"uri,omitempty" json:"uri,omitempty" jsonschema:"title=URI"`

	// DSN is the SQL data source name (postgres, mysql, sqlite backends).
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" jsonschema:"title=DSN"`

	// Database is the MongoDB database name. Default: causa
	Database string `yaml:"database,omitempty" json:"database,omitempty" jsonschema:"title=Database,default=causa"`

	// Collection is the MongoDB collection / SQL table name.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"title=Collection"`

	// MaxConns caps the SQL connection pool. Default: 10
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"title=Max Conns,minimum=1,default=10"`

	// MaxIdle caps idle SQL connections. Default: 5
	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"title=Max Idle,minimum=0,default=5"`
}

// SetDefaults applies default values. collection is the per-store default
// collection/table name.
func (c *StoreConfig) SetDefaults(collection string) {
	if c.Backend == "" {
		c.Backend = StoreBackendMemory
	}
	if c.Database == "" {
		c.Database = "causa"
	}
	if c.Collection == "" {
		c.Collection = collection
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StoreBackendMongo:
		if c.URI == "" {
			return fmt.Errorf("uri is required for the mongo backend")
		}
	case StoreBackendPostgres, StoreBackendMySQL, StoreBackendSQLite:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for the %s backend", c.Backend)
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("invalid backend %q (valid: mongo, postgres, mysql, sqlite, memory)", c.Backend)
	}
	if c.MaxIdle > c.MaxConns {
		return fmt.Errorf("max_idle (%d) cannot exceed max_conns (%d)", c.MaxIdle, c.MaxConns)
	}
	return nil
}
