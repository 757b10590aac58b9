// Package objectstore holds the binary objects attached to cases: generated
// draft PDFs and uploaded attachments. Object paths are case-scoped and
// deterministic so the maintenance reconciler can walk them:
//
//	cases/{case_id}/drafts/{draft_name}/rev-{n}.pdf
//	cases/{case_id}/attachments/{file_name}
//
// Users never get raw bytes through the agent surface; they get signed URLs
// with a bounded lifetime.
package objectstore

import (
	"context"
	"time"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const component = "objectstore"

// Store is the blob storage surface. Paths are slash-separated keys relative
// to the store root.
type Store interface {
	// Put writes an object, replacing any previous content.
	Put(ctx context.Context, path string, data []byte, contentType string) error

	// Get reads an object. Missing objects are a not-found fault.
	Get(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether an object is stored under the path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all objects under the prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// SignedURL returns a time-limited download link for the object. The
	// lifetime comes from configuration.
	SignedURL(ctx context.Context, path string) (string, error)

	Close() error
}

// New builds a store for the configured backend.
func New(ctx context.Context, cfg *config.ObjectStoreConfig) (Store, error) {
	ttl := time.Duration(cfg.SignedURLTTLSeconds) * time.Second
	switch cfg.Backend {
	case config.ObjectStoreLocal:
		return NewLocalStore(&cfg.Local, ttl)
	case config.ObjectStoreS3:
		return NewS3Store(ctx, &cfg.S3, ttl)
	case config.ObjectStoreGCS:
		return NewGCSStore(ctx, &cfg.GCS, ttl)
	default:
		return nil, fault.New(fault.Validation, component, "new",
			"unknown object store backend '"+string(cfg.Backend)+"'", nil)
	}
}

// notFound builds the canonical missing-object error.
func notFound(op, path string) error {
	return fault.New(fault.NotFound, component, op, "object "+path+" not found", nil)
}
