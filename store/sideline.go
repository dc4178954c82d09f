package store

import (
	"context"
	"fmt"
	"time"
)

// sidelineTTL is the retention window for both sideline collections.
const sidelineTTL = 15 * 24 * time.Hour

// InvalidStore records messages the validator rejected. Write-only; this
// system never reads its own sideline collections back.
type InvalidStore struct {
	docStore   DocStore
	collection string
}

// NewInvalidStore wraps docStore for the named collection.
func NewInvalidStore(docStore DocStore, collection string) *InvalidStore {
	return &InvalidStore{docStore: docStore, collection: collection}
}

// Record persists one invalid-message entry with errMsg describing why
// validation failed.
func (s *InvalidStore) Record(ctx context.Context, brokerMsg map[string]interface{}, brokerTopic, errMsg string) error {
	now := time.Now()
	doc := map[string]interface{}{
		"timestamp":   now.Unix(),
		"time":        now.UTC().Format(time.RFC3339),
		"broker_msg":  brokerMsg,
		"broker_topic": brokerTopic,
		"errmsg":      errMsg,
		"expire_at":   newExpireAt(sidelineTTL),
	}
	if err := s.docStore.Insert(ctx, s.collection, doc); err != nil {
		return fmt.Errorf("invalidstore: recording %s: %w", brokerTopic, err)
	}
	return nil
}

// UnknownTopicStore records messages the router could not route.
type UnknownTopicStore struct {
	docStore   DocStore
	collection string
}

// NewUnknownTopicStore wraps docStore for the named collection.
func NewUnknownTopicStore(docStore DocStore, collection string) *UnknownTopicStore {
	return &UnknownTopicStore{docStore: docStore, collection: collection}
}

// Record persists one unroutable-message entry.
func (s *UnknownTopicStore) Record(ctx context.Context, brokerMsg map[string]interface{}, brokerTopic string) error {
	now := time.Now()
	doc := map[string]interface{}{
		"timestamp":   now.Unix(),
		"time":        now.UTC().Format(time.RFC3339),
		"broker_msg":  brokerMsg,
		"broker_topic": brokerTopic,
		"expire_at":   newExpireAt(sidelineTTL),
	}
	if err := s.docStore.Insert(ctx, s.collection, doc); err != nil {
		return fmt.Errorf("unknowntopicstore: recording %s: %w", brokerTopic, err)
	}
	return nil
}
