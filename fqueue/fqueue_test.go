package fqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centosci/kaijs-bridge/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := Make(filepath.Join(dir, "q"), Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { q.Stop() })
	return q
}

func testMessage(topic string) *model.FileQueueMessage {
	return &model.FileQueueMessage{
		BrokerMsgID: "broker-1",
		BrokerTopic: topic,
		Body:        map[string]interface{}{"build_id": float64(1728223)},
	}
}

func TestPushTpopCommit_RemovesEnvelope(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Push(testMessage("org.fedoraproject.prod.buildsys.tag")))

	n, err := q.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	popped, err := q.Tpop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org.fedoraproject.prod.buildsys.tag", popped.Message.BrokerTopic)

	n, err = q.Length()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "popped message is hidden while in-flight")

	require.NoError(t, popped.Commit())

	ids, err := q.VisibleIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTpopRollback_Redelivers(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(testMessage("topic-a")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	popped, err := q.Tpop(ctx)
	require.NoError(t, err)
	require.NoError(t, popped.Rollback())

	n, err := q.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	popped2, err := q.Tpop(ctx)
	require.NoError(t, err)
	assert.Equal(t, popped.Message.FQMsgID, popped2.Message.FQMsgID)
}

func TestFIFOOrdering(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(testMessage("first")))
	require.NoError(t, q.Push(testMessage("second")))
	require.NoError(t, q.Push(testMessage("third")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"first", "second", "third"} {
		popped, err := q.Tpop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, popped.Message.BrokerTopic)
		require.NoError(t, popped.Commit())
	}
}

func TestTpop_BlocksUntilPush(t *testing.T) {
	q := newTestQueue(t)

	type result struct {
		popped *Popped
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		popped, err := q.Tpop(ctx)
		resultCh <- result{popped, err}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Push(testMessage("late-arrival")))

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, "late-arrival", r.popped.Message.BrokerTopic)
	case <-time.After(2 * time.Second):
		t.Fatal("Tpop did not unblock after push")
	}
}

func TestStop_UnblocksWaitingTpop(t *testing.T) {
	q := newTestQueue(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Tpop(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Stop())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Tpop did not unblock after Stop")
	}
}

func TestRecoverInFlight_OnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q")

	q, err := Make(path, Options{})
	require.NoError(t, err)
	require.NoError(t, q.Push(testMessage("crash-before-commit")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = q.Tpop(ctx)
	require.NoError(t, err)
	// Simulate an unclean shutdown: close the index without commit/rollback.
	require.NoError(t, q.index.Close())

	reopened, err := Make(path, Options{})
	require.NoError(t, err)
	defer reopened.Stop()

	n, err := reopened.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "in-flight entry from unclean shutdown becomes visible again")
}
