package casestore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// caseDoc is the per-case document. The record and both trees are stored as
// subdocuments; status, owner and updated_at are projected to the top level
// for the maintenance queries, mirroring the SQL backend's columns.
type caseDoc struct {
	CaseID     string    `bson:"case_id"`
	OwnerKind  string    `bson:"owner_kind"`
	OwnerID    string    `bson:"owner_id"`
	Status     string    `bson:"status"`
	Tier       int       `bson:"tier"`
	Case       bson.M    `bson:"case_record"`
	Details    bson.M    `bson:"case_details"`
	Processing bson.M    `bson:"case_processing_state,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per case. Targeted writes use dot-path
// $set/$push/$unset so concurrent maintenance reads never observe a
// half-written document.
type MongoStore struct {
	client *mongo.Client
	cases  *mongo.Collection
}

func NewMongoStore(ctx context.Context, cfg *config.StoreConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "new_mongo", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fault.New(fault.TransientBackend, component, "new_mongo", "ping", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	s := &MongoStore{client: client, cases: coll}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "case_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}},
		},
	}
	for _, model := range indexes {
		if _, err := s.cases.Indexes().CreateOne(ctx, model); err != nil {
			return fault.New(fault.TransientBackend, component, "ensure_indexes", "create index", err)
		}
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, c casefile.Case) error {
	if c.ID == "" {
		return fault.New(fault.Validation, component, "create", "case id is required", nil)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	caseRecord, err := toDoc(c)
	if err != nil {
		return err
	}
	detailsDoc, err := toDoc(casefile.Details{})
	if err != nil {
		return err
	}

	// Pure $setOnInsert keeps Create idempotent: retried webhooks and races
	// never clobber an existing case.
	filter := bson.M{"case_id": c.ID}
	update := bson.M{"$setOnInsert": bson.M{
		"case_id":      c.ID,
		"owner_kind":   string(c.Owner.Kind),
		"owner_id":     c.Owner.ID,
		"status":       string(c.Status),
		"tier":         c.Tier,
		"case_record":  caseRecord,
		"case_details": detailsDoc,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}}
	if _, err := s.cases.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fault.New(fault.TransientBackend, component, "create", "upsert case", err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, caseID string) (casefile.Case, casefile.Details, *casefile.ProcessingState, error) {
	var doc caseDoc
	if err := s.cases.FindOne(ctx, bson.M{"case_id": caseID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return casefile.Case{}, casefile.Details{}, nil, notFound("load", caseID)
		}
		return casefile.Case{}, casefile.Details{}, nil, fault.New(fault.TransientBackend, component, "load", "find case", err)
	}

	var c casefile.Case
	if err := fromDoc(doc.Case, &c); err != nil {
		return casefile.Case{}, casefile.Details{}, nil, err
	}
	var details casefile.Details
	if err := fromDoc(doc.Details, &details); err != nil {
		return casefile.Case{}, casefile.Details{}, nil, err
	}
	var ps *casefile.ProcessingState
	if len(doc.Processing) > 0 {
		ps = &casefile.ProcessingState{}
		if err := fromDoc(doc.Processing, ps); err != nil {
			return casefile.Case{}, casefile.Details{}, nil, err
		}
	}
	return c, details, ps, nil
}

func (s *MongoStore) ApplyUpdates(ctx context.Context, caseID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	_, details, _, err := s.Load(ctx, caseID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := applyBatch(&details, updates, now); err != nil {
		return err
	}
	newDoc, err := toDoc(details)
	if err != nil {
		return err
	}

	// Write only the touched subtrees plus the journal. The per-case lock
	// serializes writers; scoping $set to changed roots keeps the oplog
	// entries proportional to the batch.
	roots := map[string]bool{"agent_interactions": true, "last_updated": true}
	for path := range updates {
		root, _, _ := strings.Cut(path, ".")
		roots[root] = true
	}
	set := bson.M{
		"updated_at":             now,
		"case_record.updated_at": now.Format(time.RFC3339Nano),
	}
	unset := bson.M{}
	for root := range roots {
		if v, ok := newDoc[root]; ok {
			set["case_details."+root] = v
		} else {
			unset["case_details."+root] = ""
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.cases.UpdateOne(ctx, bson.M{"case_id": caseID}, update)
	if err != nil {
		return fault.New(fault.TransientBackend, component, "apply_updates", "update case", err)
	}
	if res.MatchedCount == 0 {
		return notFound("apply_updates", caseID)
	}
	return nil
}

func (s *MongoStore) SaveProcessingState(ctx context.Context, caseID string, ps casefile.ProcessingState) error {
	doc, err := toDoc(ps)
	if err != nil {
		return err
	}
	return s.setFields(ctx, "save_processing_state", caseID, bson.M{"case_processing_state": doc}, nil)
}

func (s *MongoStore) ClearProcessingState(ctx context.Context, caseID string) error {
	return s.setFields(ctx, "clear_processing_state", caseID, nil, bson.M{"case_processing_state": ""})
}

func (s *MongoStore) SetStatus(ctx context.Context, caseID string, status casefile.Status) error {
	c, _, _, err := s.Load(ctx, caseID)
	if err != nil {
		return err
	}
	if err := checkTransition(c.Status, status); err != nil {
		return err
	}
	return s.setFields(ctx, "set_status", caseID, bson.M{
		"status":             string(status),
		"case_record.status": string(status),
	}, nil)
}

func (s *MongoStore) SetTier(ctx context.Context, caseID string, tier int) error {
	return s.setFields(ctx, "set_tier", caseID, bson.M{
		"tier":             tier,
		"case_record.tier": tier,
	}, nil)
}

func (s *MongoStore) SetSessionIDs(ctx context.Context, caseID, assistantSessionID, reasonerSessionID string) error {
	set := bson.M{}
	if assistantSessionID != "" {
		set["case_record.assistant_session_id"] = assistantSessionID
	}
	if reasonerSessionID != "" {
		set["case_record.reasoner_session_id"] = reasonerSessionID
	}
	if len(set) == 0 {
		return nil
	}
	return s.setFields(ctx, "set_session_ids", caseID, set, nil)
}

func (s *MongoStore) RecordPayment(ctx context.Context, caseID string, p casefile.PaymentRecord) error {
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	doc, err := toDoc(p)
	if err != nil {
		return err
	}
	filter := bson.M{
		"case_id":                       caseID,
		"case_record.payments.event_id": bson.M{"$ne": p.EventID},
	}
	now := time.Now().UTC()
	update := bson.M{
		"$push": bson.M{"case_record.payments": doc},
		"$set": bson.M{
			"updated_at":             now,
			"case_record.updated_at": now.Format(time.RFC3339Nano),
		},
	}
	res, err := s.cases.UpdateOne(ctx, filter, update)
	if err != nil {
		return fault.New(fault.TransientBackend, component, "record_payment", "push payment", err)
	}
	if res.MatchedCount == 0 {
		// Either the case is unknown or the event was already recorded.
		n, err := s.cases.CountDocuments(ctx, bson.M{"case_id": caseID})
		if err != nil {
			return fault.New(fault.TransientBackend, component, "record_payment", "existence check", err)
		}
		if n == 0 {
			return notFound("record_payment", caseID)
		}
	}
	return nil
}

func (s *MongoStore) ListByStatus(ctx context.Context, status casefile.Status, updatedBefore time.Time, limit int) ([]casefile.Case, error) {
	filter := bson.M{"status": string(status)}
	if !updatedBefore.IsZero() {
		filter["updated_at"] = bson.M{"$lt": updatedBefore}
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.cases.Find(ctx, filter, opts)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "list_by_status", "find cases", err)
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []casefile.Case
	for cur.Next(ctx) {
		var doc caseDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fault.New(fault.TransientBackend, component, "list_by_status", "decode case", err)
		}
		var c casefile.Case
		if err := fromDoc(doc.Case, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := cur.Err(); err != nil {
		return nil, fault.New(fault.TransientBackend, component, "list_by_status", "iterate cursor", err)
	}
	return out, nil
}

func (s *MongoStore) Touch(ctx context.Context, caseID string) error {
	return s.setFields(ctx, "touch", caseID, bson.M{}, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// setFields issues one targeted update; updated_at rides on every write.
func (s *MongoStore) setFields(ctx context.Context, op, caseID string, set, unset bson.M) error {
	if set == nil {
		set = bson.M{}
	}
	now := time.Now().UTC()
	set["updated_at"] = now
	set["case_record.updated_at"] = now.Format(time.RFC3339Nano)
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.cases.UpdateOne(ctx, bson.M{"case_id": caseID}, update)
	if err != nil {
		return fault.New(fault.TransientBackend, component, op, "update case", err)
	}
	if res.MatchedCount == 0 {
		return notFound(op, caseID)
	}
	return nil
}

// toDoc converts a casefile value to a BSON subdocument through its JSON
// form, so the stored shape matches the wire shape field for field.
func toDoc(v any) (bson.M, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "to_doc", "marshal", err)
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "to_doc", "to bson", err)
	}
	return doc, nil
}

func fromDoc(doc bson.M, out any) error {
	if doc == nil {
		return nil
	}
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "from_doc", "from bson", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.New(fault.PermanentBackend, component, "from_doc", "unmarshal", err)
	}
	return nil
}
