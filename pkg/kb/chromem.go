package kb

import (
	"context"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// chromemStore is the embedded vector store. It needs no external service
// and optionally persists to disk, which makes it the default backend.
type chromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

func newChromemStore(cfg config.ChromemConfig, collection string) (*chromemStore, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fault.New(fault.PermanentBackend, "kb.chromem", "open",
				"opening persistent store failed", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.chromem", "open",
			"creating collection failed", err)
	}
	return &chromemStore{db: db, col: col}, nil
}

func (s *chromemStore) Upsert(ctx context.Context, docs []indexedDoc) error {
	batch := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		metadata := make(map[string]string, len(doc.Metadata))
		var content string
		for key, value := range doc.Metadata {
			text, ok := value.(string)
			if !ok {
				continue
			}
			// Full text lives on the document itself, not in metadata.
			if key == metaContent {
				content = text
				continue
			}
			metadata[key] = text
		}
		batch = append(batch, chromem.Document{
			ID:        doc.ID,
			Content:   content,
			Metadata:  metadata,
			Embedding: doc.Vector,
		})
	}

	if err := s.col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fault.New(fault.TransientBackend, "kb.chromem", "upsert",
			"adding documents failed", err)
	}
	return nil
}

func (s *chromemStore) Search(ctx context.Context, vector []float32, topK int, source Source) ([]searchHit, error) {
	// chromem rejects result counts above the collection size.
	if count := s.col.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	where := map[string]string{metaSource: string(source)}
	results, err := s.col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.chromem", "search",
			"query failed", err)
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			ID:       res.ID,
			Score:    res.Similarity,
			Metadata: hitMetadata(res.Metadata, res.Content),
		})
	}
	return hits, nil
}

func (s *chromemStore) Fetch(ctx context.Context, ids []string) ([]searchHit, error) {
	hits := make([]searchHit, 0, len(ids))
	for _, id := range ids {
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			// Unknown ids are skipped rather than failing the lookup.
			continue
		}
		hits = append(hits, searchHit{
			ID:       doc.ID,
			Metadata: hitMetadata(doc.Metadata, doc.Content),
		})
	}
	return hits, nil
}

func (s *chromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fault.New(fault.TransientBackend, "kb.chromem", "delete",
			"deleting documents failed", err)
	}
	return nil
}

func (s *chromemStore) Close() error { return nil }

func hitMetadata(metadata map[string]string, content string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for key, value := range metadata {
		out[key] = value
	}
	out[metaContent] = content
	return out
}
