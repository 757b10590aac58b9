package config

import "fmt"

// ObjectStoreBackend identifies a blob storage backend.
type ObjectStoreBackend string

const (
	ObjectStoreS3    ObjectStoreBackend = "s3"
	ObjectStoreGCS   ObjectStoreBackend = "gcs"
	ObjectStoreLocal ObjectStoreBackend = "local"
)

// ObjectStoreConfig configures where generated drafts and uploaded
// attachments live.
type ObjectStoreConfig struct {
	// Backend selects the implementation. Default: local
	Backend ObjectStoreBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=s3,enum=gcs,enum=local,default=local"`

	// SignedURLTTLSeconds bounds the lifetime of download links returned
	// to users. Default: 900
	SignedURLTTLSeconds int `yaml:"signed_url_ttl_seconds,omitempty" json:"signed_url_ttl_seconds,omitempty" jsonschema:"title=Signed URL TTL,minimum=1,default=900"`

	// S3 settings (s3 backend). Endpoint and path-style cover
	// S3-compatible stores like MinIO.
	S3 S3Config `yaml:"s3,omitempty" json:"s3,omitempty"`

	// GCS settings (gcs backend).
	GCS GCSConfig `yaml:"gcs,omitempty" json:"gcs,omitempty"`

	// Local settings (local backend).
	Local LocalStoreConfig `yaml:"local,omitempty" json:"local,omitempty"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty" jsonschema:"title=Bucket"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty" jsonschema:"title=Region,default=eu-central-1"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" jsonschema:"title=Endpoint"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty" jsonschema:"title=Access Key ID"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty" jsonschema:"title=Secret Access Key"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty" jsonschema:"title=Use Path Style,default=false"`
}

// GCSConfig configures the Google Cloud Storage backend. Credentials come
// from the ambient service account.
type GCSConfig struct {
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty" jsonschema:"title=Bucket"`
}

// LocalStoreConfig configures the local filesystem backend.
type LocalStoreConfig struct {
	// Dir is the root directory. Default: ./data/objects
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"title=Dir,default=./data/objects"`
}

// SetDefaults applies default values.
func (c *ObjectStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = ObjectStoreLocal
	}
	if c.SignedURLTTLSeconds == 0 {
		c.SignedURLTTLSeconds = 900
	}
	if c.S3.Region == "" {
		c.S3.Region = "eu-central-1"
	}
	if c.Local.Dir == "" {
		c.Local.Dir = "./data/objects"
	}
}

// Validate checks the object store configuration.
func (c *ObjectStoreConfig) Validate() error {
	switch c.Backend {
	case ObjectStoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	case ObjectStoreGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("gcs.bucket is required for the gcs backend")
		}
	case ObjectStoreLocal:
		if c.Local.Dir == "" {
			return fmt.Errorf("local.dir is required for the local backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: s3, gcs, local)", c.Backend)
	}
	if c.SignedURLTTLSeconds < 1 {
		return fmt.Errorf("signed_url_ttl_seconds must be positive, got %d", c.SignedURLTTLSeconds)
	}
	return nil
}
