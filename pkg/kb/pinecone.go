package kb

import (
	"context"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// pineconeStore keeps the corpus in a hosted pinecone index.
type pineconeStore struct {
	client    *pinecone.Client
	indexConn *pinecone.IndexConnection
}

func newPineconeStore(ctx context.Context, cfg config.PineconeConfig) (*pineconeStore, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.pinecone", "connect",
			"creating client failed", err)
	}

	indexConn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      cfg.IndexHost,
		Namespace: "",
	})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.pinecone", "connect",
			"connecting to index failed", err)
	}
	return &pineconeStore{client: client, indexConn: indexConn}, nil
}

func (s *pineconeStore) Upsert(ctx context.Context, docs []indexedDoc) error {
	vectors := make([]*pinecone.Vector, 0, len(docs))
	for _, doc := range docs {
		metadata, err := structpb.NewStruct(doc.Metadata)
		if err != nil {
			return fault.New(fault.Validation, "kb.pinecone", "upsert",
				"converting metadata failed", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       doc.ID,
			Values:   doc.Vector,
			Metadata: metadata,
		})
	}

	if _, err := s.indexConn.UpsertVectors(ctx, vectors); err != nil {
		return fault.New(fault.TransientBackend, "kb.pinecone", "upsert",
			"upserting vectors failed", err)
	}
	return nil
}

func (s *pineconeStore) Search(ctx context.Context, vector []float32, topK int, source Source) ([]searchHit, error) {
	filter, err := structpb.NewStruct(map[string]any{metaSource: string(source)})
	if err != nil {
		return nil, fault.New(fault.Validation, "kb.pinecone", "search",
			"building filter failed", err)
	}

	resp, err := s.indexConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.pinecone", "search",
			"querying vectors failed", err)
	}

	hits := make([]searchHit, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		hits = append(hits, searchHit{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Metadata: pineconeMeta(match.Vector.Metadata),
		})
	}
	return hits, nil
}

func (s *pineconeStore) Fetch(ctx context.Context, ids []string) ([]searchHit, error) {
	resp, err := s.indexConn.FetchVectors(ctx, ids)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.pinecone", "fetch",
			"fetching vectors failed", err)
	}

	// Preserve the requested order; pinecone returns a map.
	hits := make([]searchHit, 0, len(resp.Vectors))
	for _, id := range ids {
		vector, ok := resp.Vectors[id]
		if !ok {
			continue
		}
		hits = append(hits, searchHit{
			ID:       vector.Id,
			Metadata: pineconeMeta(vector.Metadata),
		})
	}
	return hits, nil
}

func (s *pineconeStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.indexConn.DeleteVectorsById(ctx, ids); err != nil {
		return fault.New(fault.TransientBackend, "kb.pinecone", "delete",
			"deleting vectors failed", err)
	}
	return nil
}

func (s *pineconeStore) Close() error { return s.indexConn.Close() }

func pineconeMeta(metadata *pinecone.Metadata) map[string]any {
	if metadata == nil {
		return nil
	}
	return metadata.AsMap()
}
