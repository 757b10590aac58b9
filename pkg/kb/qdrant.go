package kb

import (
	"context"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// qdrantStore keeps the corpus in a qdrant collection reached over gRPC.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
}

func newQdrantStore(cfg config.QdrantConfig, collection string, dimension int) (*qdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.qdrant", "connect",
			"creating client failed", err)
	}

	store := &qdrantStore{client: client, collection: collection}
	if err := store.ensureCollection(context.Background(), dimension); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fault.New(fault.TransientBackend, "kb.qdrant", "ensure_collection",
			"checking collection failed", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fault.New(fault.TransientBackend, "kb.qdrant", "ensure_collection",
			"creating collection failed", err)
	}
	return nil
}

// pointID derives the qdrant point id for a document. Point ids must be
// UUIDs, document ids are arbitrary strings, so each document gets a
// name-based UUID and keeps its real id in the payload.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

func (s *qdrantStore) Upsert(ctx context.Context, docs []indexedDoc) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		payload := make(map[string]*qdrant.Value, len(doc.Metadata))
		for key, value := range doc.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fault.New(fault.Validation, "kb.qdrant", "upsert",
					"converting metadata value for key "+key+" failed", err)
			}
			payload[key] = val
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fault.New(fault.TransientBackend, "kb.qdrant", "upsert",
			"upserting points failed", err)
	}
	return nil
}

func (s *qdrantStore) Search(ctx context.Context, vector []float32, topK int, source Source) ([]searchHit, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: metaSource,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: string(source)},
						},
					},
				},
			}},
		},
	}

	result, err := s.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.qdrant", "search",
			"searching points failed", err)
	}

	hits := make([]searchHit, 0, len(result.Result))
	for _, point := range result.Result {
		hits = append(hits, searchHit{
			ID:       point.Id.GetUuid(),
			Score:    point.Score,
			Metadata: qdrantPayloadMeta(point.Payload),
		})
	}
	return hits, nil
}

func (s *qdrantStore) Fetch(ctx context.Context, ids []string) ([]searchHit, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(pointID(id))
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.qdrant", "fetch",
			"fetching points failed", err)
	}

	hits := make([]searchHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, searchHit{
			ID:       point.Id.GetUuid(),
			Metadata: qdrantPayloadMeta(point.Payload),
		})
	}
	return hits, nil
}

func (s *qdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(pointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fault.New(fault.TransientBackend, "kb.qdrant", "delete",
			"deleting points failed", err)
	}
	return nil
}

func (s *qdrantStore) Close() error { return s.client.Close() }

func qdrantPayloadMeta(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		switch kind := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			metadata[key] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[key] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[key] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[key] = kind.BoolValue
		}
	}
	return metadata
}
