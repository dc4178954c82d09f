package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/centosci/kaijs-bridge/bridgeerr"
)

// MongoStore is the primary DocStore adapter, matching spec.md's "originally
// MongoDB" backend.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri and selects dbName. Connection, auth, and
// parse failures surface as DocstoreFatalError since the updater has no
// retry path around them.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &bridgeerr.DocstoreFatalError{Op: "mongo connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, &bridgeerr.DocstoreFatalError{Op: "mongo ping", Err: err}
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

// OpenCollection ensures the collection exists (Mongo creates it lazily on
// first write, so this mainly reconciles indexes) and drops any index not
// named in want, except the primary _id_ index.
func (m *MongoStore) OpenCollection(ctx context.Context, name string, want []IndexSpec) error {
	coll := m.db.Collection(name)

	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("store: listing indexes for %s: %w", name, err)
	}
	var existing []bson.M
	if err := cursor.All(ctx, &existing); err != nil {
		return fmt.Errorf("store: decoding index list for %s: %w", name, err)
	}

	wanted := make(map[string]bool, len(want))
	for _, idx := range want {
		wanted[idx.Name] = true
	}

	for _, idx := range existing {
		idxName, _ := idx["name"].(string)
		if idxName == "" || idxName == "_id_" || wanted[idxName] {
			continue
		}
		if _, err := coll.Indexes().DropOne(ctx, idxName); err != nil {
			return fmt.Errorf("store: dropping stale index %s on %s: %w", idxName, name, err)
		}
	}

	existingNames := make(map[string]bool, len(existing))
	for _, idx := range existing {
		if n, ok := idx["name"].(string); ok {
			existingNames[n] = true
		}
	}

	for _, idx := range want {
		if existingNames[idx.Name] {
			continue
		}
		keys := bson.D{}
		for field, dir := range idx.Keys {
			keys = append(keys, bson.E{Key: field, Value: dir})
		}
		model := mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(idx.Name).SetUnique(idx.Unique),
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("store: creating index %s on %s: %w", idx.Name, name, err)
		}
	}

	return nil
}

// FindOrCreateByKey upserts on key, seeding onCreate plus _version: 1 the
// first time, and returns the post-state document.
func (m *MongoStore) FindOrCreateByKey(ctx context.Context, collection string, key map[string]interface{}, onCreate map[string]interface{}) (map[string]interface{}, bool, error) {
	coll := m.db.Collection(collection)

	setOnInsert := bson.M{"_version": int64(1)}
	for k, v := range onCreate {
		setOnInsert[k] = v
	}
	for k, v := range key {
		if _, present := setOnInsert[k]; !present {
			setOnInsert[k] = v
		}
	}

	update := bson.M{"$setOnInsert": setOnInsert}
	result, err := coll.UpdateOne(ctx, bson.M(key), update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, false, &bridgeerr.DocstoreFatalError{Op: "findOrCreateByKey", Err: err}
	}
	created := result.UpsertedCount == 1

	var doc bson.M
	if err := coll.FindOne(ctx, bson.M(key)).Decode(&doc); err != nil {
		return nil, false, &bridgeerr.DocstoreFatalError{Op: "findOrCreateByKey:reread", Err: err}
	}

	return bsonMToMap(doc), created, nil
}

// CASUpdate performs filter={_id, _version: expectedVersion}, $set: setOps,
// $inc: {_version: 1}, and reports whether exactly one document was modified.
func (m *MongoStore) CASUpdate(ctx context.Context, collection string, id interface{}, expectedVersion int64, setOps map[string]interface{}) (bool, error) {
	coll := m.db.Collection(collection)

	filter := bson.M{"_id": id, "_version": expectedVersion}
	update := bson.M{
		"$set": setOps,
		"$inc": bson.M{"_version": int64(1)},
	}

	result, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, &bridgeerr.DocstoreFatalError{Op: "casUpdate", Err: err}
	}

	return result.ModifiedCount == 1, nil
}

// Insert writes doc as a new document, used by the sideline stores.
func (m *MongoStore) Insert(ctx context.Context, collection string, doc map[string]interface{}) error {
	coll := m.db.Collection(collection)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return &bridgeerr.DocstoreFatalError{Op: "insert", Err: err}
	}
	return nil
}

// BulkUpsert issues one ReplaceOne-with-upsert write model per op, executed
// as a single ordered bulk write.
func (m *MongoStore) BulkUpsert(ctx context.Context, collection string, ops []UpsertOp) error {
	if len(ops) == 0 {
		return nil
	}

	coll := m.db.Collection(collection)
	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M(op.Filter)).
			SetReplacement(op.Doc).
			SetUpsert(true))
	}

	if _, err := coll.BulkWrite(ctx, models); err != nil {
		return &bridgeerr.BulkFlushError{Count: len(ops), Err: err}
	}
	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func bsonMToMap(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// newExpireAt returns the TTL deadline for a sideline document.
func newExpireAt(ttl time.Duration) time.Time {
	return time.Now().Add(ttl)
}
