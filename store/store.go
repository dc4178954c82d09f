// Package store defines the document-store abstraction the updater writes
// through, and its two concrete adapters: MongoDB (the primary backend) and
// OpenSearch (the indexed-store, bulk-upsert variant).
package store

import "context"

// IndexSpec names one index a collection is expected to carry. Index
// reconciliation at startup keeps the primary index and every index named
// here, dropping everything else.
type IndexSpec struct {
	Name   string
	Keys   map[string]int // field -> direction (1 asc, -1 desc)
	Unique bool
}

// UpsertOp is one operation in a bulk-upsert batch: find doc matching Filter
// (typically (type, aid)) and replace it whole with Doc, inserting Doc if
// nothing matches.
type UpsertOp struct {
	Filter map[string]interface{}
	Doc    map[string]interface{}
}

// DocStore is the document-store abstraction described by the bridge's
// component design: collection lifecycle, index reconciliation, and the
// upsert/CAS primitives the updater and sideline stores build on.
type DocStore interface {
	// OpenCollection ensures a collection exists and reconciles its indexes
	// against want: indexes not in want are dropped (except the primary),
	// indexes in want but missing are created.
	OpenCollection(ctx context.Context, name string, want []IndexSpec) error

	// FindOrCreateByKey upserts a document matching key, returning the
	// post-state and whether it was newly created (with _version = 1).
	FindOrCreateByKey(ctx context.Context, collection string, key map[string]interface{}, onCreate map[string]interface{}) (doc map[string]interface{}, created bool, err error)

	// CASUpdate performs a conditional update: filter = {_id: id, _version:
	// expectedVersion}, $set: setOps, $inc: {_version: 1}. Returns whether
	// exactly one existing document was modified.
	CASUpdate(ctx context.Context, collection string, id interface{}, expectedVersion int64, setOps map[string]interface{}) (bool, error)

	// Insert writes doc as a new document, used by the sideline stores.
	Insert(ctx context.Context, collection string, doc map[string]interface{}) error

	// BulkUpsert performs an atomic-per-op bulk write, used by the
	// indexed-store variant's bulk-mode path.
	BulkUpsert(ctx context.Context, collection string, ops []UpsertOp) error

	Close(ctx context.Context) error
}
