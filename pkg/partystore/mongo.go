package partystore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// mongoBackend stores one document per party.
type mongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type partyDoc struct {
	PartyID   string    `bson:"party_id"`
	Kind      string    `bson:"kind"`
	Party     bson.M    `bson:"party"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func newMongoBackend(ctx context.Context, cfg *config.StoreConfig) (*mongoBackend, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "new_mongo", "connect", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fault.New(fault.TransientBackend, component, "new_mongo", "ping", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "party_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fault.New(fault.PermanentBackend, component, "new_mongo", "ensure indexes", err)
	}
	return &mongoBackend{client: client, coll: coll}, nil
}

func (m *mongoBackend) get(ctx context.Context, partyID string) (Party, error) {
	var doc partyDoc
	err := m.coll.FindOne(ctx, bson.M{"party_id": partyID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Party{}, notFound("get", partyID)
	}
	if err != nil {
		return Party{}, fault.New(fault.TransientBackend, component, "get", "find party", err)
	}

	raw, err := bson.MarshalExtJSON(doc.Party, false, false)
	if err != nil {
		return Party{}, fault.New(fault.PermanentBackend, component, "get", "decode party", err)
	}
	var p Party
	if err := json.Unmarshal(raw, &p); err != nil {
		return Party{}, fault.New(fault.PermanentBackend, component, "get", "decode party", err)
	}
	return p, nil
}

func (m *mongoBackend) put(ctx context.Context, p Party) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "put", "encode party", err)
	}
	var sub bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &sub); err != nil {
		return fault.New(fault.PermanentBackend, component, "put", "encode party", err)
	}
	doc := partyDoc{
		PartyID:   p.PartyID,
		Kind:      string(p.Kind),
		Party:     sub,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = m.coll.ReplaceOne(ctx, bson.M{"party_id": p.PartyID}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fault.New(fault.TransientBackend, component, "put", "upsert party", err)
	}
	return nil
}

func (m *mongoBackend) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
