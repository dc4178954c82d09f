package store

import (
	"context"
	"fmt"
	"sync"
)

// MockDocStore is a hand-written in-memory DocStore for tests, mirroring the
// broker package's mock-collaborator pattern: simple state plus call
// tracking, no mocking framework.
type MockDocStore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]interface{} // collection -> id -> doc
	seq  int64

	OpenedCollections []string
	Inserted          []map[string]interface{}
	CASCalls          int
	BulkCalls         int

	CASUpdateErr error
	BulkErr      error
}

// NewMockDocStore returns an empty MockDocStore ready for use.
func NewMockDocStore() *MockDocStore {
	return &MockDocStore{docs: make(map[string]map[string]map[string]interface{})}
}

func (m *MockDocStore) collection(name string) map[string]map[string]interface{} {
	c, ok := m.docs[name]
	if !ok {
		c = make(map[string]map[string]interface{})
		m.docs[name] = c
	}
	return c
}

func keyID(key map[string]interface{}) string {
	return fmt.Sprintf("%v:%v", key["type"], key["aid"])
}

func (m *MockDocStore) OpenCollection(_ context.Context, name string, _ []IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenedCollections = append(m.OpenedCollections, name)
	m.collection(name)
	return nil
}

func (m *MockDocStore) FindOrCreateByKey(_ context.Context, collection string, key map[string]interface{}, onCreate map[string]interface{}) (map[string]interface{}, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	id := keyID(key)
	if doc, ok := coll[id]; ok {
		return cloneDoc(doc), false, nil
	}

	m.seq++
	doc := map[string]interface{}{"_id": m.seq, "_version": int64(1)}
	for k, v := range onCreate {
		doc[k] = v
	}
	for k, v := range key {
		doc[k] = v
	}
	coll[id] = doc
	return cloneDoc(doc), true, nil
}

func (m *MockDocStore) CASUpdate(_ context.Context, collection string, id interface{}, expectedVersion int64, setOps map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CASCalls++
	if m.CASUpdateErr != nil {
		return false, m.CASUpdateErr
	}

	coll := m.collection(collection)
	for _, doc := range coll {
		if fmt.Sprintf("%v", doc["_id"]) != fmt.Sprintf("%v", id) {
			continue
		}
		current, _ := doc["_version"].(int64)
		if current != expectedVersion {
			return false, nil
		}
		for k, v := range setOps {
			doc[k] = v
		}
		doc["_version"] = current + 1
		return true, nil
	}
	return false, nil
}

func (m *MockDocStore) Insert(_ context.Context, collection string, doc map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Inserted = append(m.Inserted, doc)
	coll := m.collection(collection)
	m.seq++
	coll[fmt.Sprintf("sideline-%d", m.seq)] = doc
	return nil
}

func (m *MockDocStore) BulkUpsert(_ context.Context, collection string, ops []UpsertOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BulkCalls++
	if m.BulkErr != nil {
		return m.BulkErr
	}
	coll := m.collection(collection)
	for _, op := range ops {
		coll[keyID(op.Filter)] = op.Doc
	}
	return nil
}

func (m *MockDocStore) Close(_ context.Context) error { return nil }

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
