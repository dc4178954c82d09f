package updater

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/store"
)

func popForTest(t *testing.T, q *fqueue.Queue) *fqueue.Popped {
	t.Helper()
	popped, err := q.Tpop(context.Background())
	require.NoError(t, err)
	return popped
}

func TestBulkAccumulator_FlushesAtMaxOps(t *testing.T) {
	mock := store.NewMockDocStore()
	acc := NewBulkAccumulator(mock, "artifacts", 0)
	acc.MaxOps = 2

	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()

	for i := 0; i < 2; i++ {
		require.NoError(t, q.Push(&model.FileQueueMessage{Body: map[string]interface{}{}}))
	}

	var popped []*fqueue.Popped
	for i := 0; i < 2; i++ {
		p := popForTest(t, q)
		popped = append(popped, p)
		acc.Add(store.UpsertOp{Filter: map[string]interface{}{"aid": i}, Doc: map[string]interface{}{"aid": i}}, p)
	}

	assert.True(t, acc.ShouldFlush())
	require.NoError(t, acc.Flush(context.Background()))
	assert.Equal(t, 1, mock.BulkCalls)
	assert.Equal(t, 0, acc.Len())

	ids, err := q.VisibleIDs()
	require.NoError(t, err)
	assert.Empty(t, ids, "committed envelopes must be removed from the file-queue")
}

func TestBulkAccumulator_IdleExceeded(t *testing.T) {
	acc := NewBulkAccumulator(store.NewMockDocStore(), "artifacts", 0)
	acc.IdleGap = 10 * time.Millisecond

	assert.False(t, acc.IdleExceeded(), "nothing pending yet")

	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()
	require.NoError(t, q.Push(&model.FileQueueMessage{Body: map[string]interface{}{}}))
	p := popForTest(t, q)

	acc.Add(store.UpsertOp{Doc: map[string]interface{}{"a": 1}}, p)
	assert.False(t, acc.IdleExceeded())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, acc.IdleExceeded())
}

func TestBulkAccumulator_FlushFailureRollsBackAll(t *testing.T) {
	mock := store.NewMockDocStore()
	mock.BulkErr = assert.AnError
	acc := NewBulkAccumulator(mock, "artifacts", 0)

	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()
	require.NoError(t, q.Push(&model.FileQueueMessage{Body: map[string]interface{}{}}))
	p := popForTest(t, q)

	acc.Add(store.UpsertOp{Doc: map[string]interface{}{"a": 1}}, p)

	err = acc.Flush(context.Background())
	require.Error(t, err)

	ids, err := q.VisibleIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 1, "a failed flush must roll the envelope back to visible")
}
