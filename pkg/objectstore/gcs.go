package objectstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// GCSStore talks to Google Cloud Storage with ambient credentials.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	ttl    time.Duration
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore builds the client against the configured bucket.
func NewGCSStore(ctx context.Context, cfg *config.GCSConfig, ttl time.Duration) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "new_gcs", "create storage client", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		ttl:    ttl,
	}, nil
}

func (g *GCSStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	w := g.bucket.Object(path).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fault.New(fault.TransientBackend, component, "put", "write gcs object", err)
	}
	if err := w.Close(); err != nil {
		return fault.New(fault.TransientBackend, component, "put", "close gcs writer", err)
	}
	return nil
}

func (g *GCSStore) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.bucket.Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound("get", path)
	}
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "get", "open gcs object", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "get", "read gcs object", err)
	}
	return data, nil
}

func (g *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.bucket.Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fault.New(fault.TransientBackend, component, "exists", "stat gcs object", err)
	}
	return true, nil
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fault.New(fault.TransientBackend, component, "list", "iterate gcs objects", err)
		}
		out = append(out, attrs.Name)
	}
	sort.Strings(out)
	return out, nil
}

func (g *GCSStore) SignedURL(_ context.Context, path string) (string, error) {
	url, err := g.bucket.SignedURL(path, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(g.ttl),
	})
	if err != nil {
		return "", fault.New(fault.TransientBackend, component, "signed_url", "sign gcs url", err)
	}
	return url, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
