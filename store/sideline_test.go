package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidStore_Record(t *testing.T) {
	mock := NewMockDocStore()
	s := NewInvalidStore(mock, "invalid")

	err := s.Record(context.Background(), map[string]interface{}{"broker_topic": "a.b.c"}, "a.b.c", "schema validation failed at /test")
	require.NoError(t, err)

	require.Len(t, mock.Inserted, 1)
	assert.Equal(t, "a.b.c", mock.Inserted[0]["broker_topic"])
	assert.Contains(t, mock.Inserted[0]["errmsg"], "schema validation failed")
	assert.NotNil(t, mock.Inserted[0]["expire_at"])
}

func TestUnknownTopicStore_Record(t *testing.T) {
	mock := NewMockDocStore()
	s := NewUnknownTopicStore(mock, "unknown-topic")

	err := s.Record(context.Background(), map[string]interface{}{}, "org.centos.prod.ci.unhandled")
	require.NoError(t, err)
	require.Len(t, mock.Inserted, 1)
	assert.Equal(t, "org.centos.prod.ci.unhandled", mock.Inserted[0]["broker_topic"])
}

func TestMockDocStore_FindOrCreateByKey_IdempotentOnSecondCall(t *testing.T) {
	mock := NewMockDocStore()
	key := map[string]interface{}{"type": "koji-build", "aid": "42"}

	doc1, created1, err := mock.FindOrCreateByKey(context.Background(), "artifacts", key, nil)
	require.NoError(t, err)
	assert.True(t, created1)

	doc2, created2, err := mock.FindOrCreateByKey(context.Background(), "artifacts", key, nil)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, doc1["_id"], doc2["_id"])
}

func TestMockDocStore_CASUpdate_RejectsStaleVersion(t *testing.T) {
	mock := NewMockDocStore()
	key := map[string]interface{}{"type": "koji-build", "aid": "42"}
	doc, _, err := mock.FindOrCreateByKey(context.Background(), "artifacts", key, nil)
	require.NoError(t, err)

	ok, err := mock.CASUpdate(context.Background(), "artifacts", doc["_id"], 1, map[string]interface{}{"rpm_build.nvr": "x"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mock.CASUpdate(context.Background(), "artifacts", doc["_id"], 1, map[string]interface{}{"rpm_build.nvr": "y"})
	require.NoError(t, err)
	assert.False(t, ok, "stale expected version should fail")
}
