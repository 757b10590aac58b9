package kb

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/causahq/causa/pkg/observability"
)

// indexedDoc is a corpus document ready for a vector store: embedded and
// carrying its searchable metadata.
type indexedDoc struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// searchHit is one scored result from a vector store.
type searchHit struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// vectorStore is the slice of a vector database the knowledge base needs.
type vectorStore interface {
	Upsert(ctx context.Context, docs []indexedDoc) error
	Search(ctx context.Context, vector []float32, topK int, source Source) ([]searchHit, error)
	Fetch(ctx context.Context, ids []string) ([]searchHit, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// vectorKB answers queries from an embedded corpus in a vector store.
type vectorKB struct {
	store    vectorStore
	embedder Embedder
	watcher  *corpusWatcher
}

func newVectorKB(store vectorStore, embedder Embedder) *vectorKB {
	return &vectorKB{store: store, embedder: embedder}
}

func (v *vectorKB) Query(ctx context.Context, q QueryDescriptor) ([]Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	tracer := observability.GetTracer("causa.kb")
	ctx, span := tracer.Start(ctx, "kb.query",
		trace.WithAttributes(
			attribute.String("kb.source", string(q.Source)),
			attribute.String("kb.mode", string(q.Mode)),
		),
	)
	defer span.End()

	records, err := v.query(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("kb.records", len(records)))
	span.SetStatus(codes.Ok, "")
	return records, nil
}

func (v *vectorKB) query(ctx context.Context, q QueryDescriptor) ([]Record, error) {
	if q.Mode == ModeFullText {
		hits, err := v.store.Fetch(ctx, q.DocIDs)
		if err != nil {
			return nil, err
		}
		return recordsFromHits(hits, ModeFullText), nil
	}

	vector, err := v.embedder.Embed(ctx, strings.Join(q.Keywords, " "))
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	hits, err := v.store.Search(ctx, vector, limit, q.Source)
	if err != nil {
		return nil, err
	}
	return recordsFromHits(hits, ModeSummaries), nil
}

// Ingest embeds documents and upserts them into the store. Existing ids are
// replaced.
func (v *vectorKB) Ingest(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = embedText(doc)
	}
	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	indexed := make([]indexedDoc, len(docs))
	for i, doc := range docs {
		indexed[i] = indexedDoc{
			ID:     doc.DocID,
			Vector: vectors[i],
			Metadata: map[string]any{
				metaDocID:   doc.DocID,
				metaSource:  string(doc.Source),
				metaTitle:   doc.Title,
				metaSummary: doc.Summary,
				metaContent: doc.Text,
			},
		}
	}
	return v.store.Upsert(ctx, indexed)
}

func (v *vectorKB) deleteDocs(ctx context.Context, ids []string) error {
	return v.store.Delete(ctx, ids)
}

// loadCorpus indexes the corpus directory and optionally keeps watching it.
func (v *vectorKB) loadCorpus(ctx context.Context, dir string, watch bool) error {
	fileDocs, err := ingestDir(ctx, v, dir)
	if err != nil {
		return err
	}
	if watch {
		watcher, err := watchCorpus(v, dir, fileDocs)
		if err != nil {
			return err
		}
		v.watcher = watcher
	}
	return nil
}

func (v *vectorKB) Close() error {
	if v.watcher != nil {
		v.watcher.Stop()
	}
	storeErr := v.store.Close()
	if err := v.embedder.Close(); err != nil {
		return err
	}
	return storeErr
}

// embedText is the searchable surface of a document: the title and summary,
// falling back to a text prefix for documents without a summary.
func embedText(doc Document) string {
	if doc.Summary != "" {
		return doc.Title + "\n" + doc.Summary
	}
	text := doc.Text
	const maxEmbedText = 2000
	if len(text) > maxEmbedText {
		text = text[:maxEmbedText]
	}
	return doc.Title + "\n" + text
}

func recordsFromHits(hits []searchHit, mode Mode) []Record {
	records := make([]Record, 0, len(hits))
	for _, hit := range hits {
		rec := Record{
			DocID:   metaString(hit.Metadata, metaDocID),
			Title:   metaString(hit.Metadata, metaTitle),
			Summary: metaString(hit.Metadata, metaSummary),
		}
		if rec.DocID == "" {
			rec.DocID = hit.ID
		}
		if mode == ModeFullText {
			rec.FullText = metaString(hit.Metadata, metaContent)
		}
		records = append(records, rec)
	}
	return records
}

func metaString(metadata map[string]any, key string) string {
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}
