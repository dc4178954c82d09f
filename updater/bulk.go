package updater

import (
	"context"
	"encoding/json"
	"time"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/store"
)

const (
	defaultMaxOps   = 100
	defaultIdleGap  = 3 * time.Second
)

// pendingOp pairs a bulk upsert operation with the file-queue pop it came
// from, so a flush outcome can commit or roll back the right envelopes.
type pendingOp struct {
	op     store.UpsertOp
	popped *fqueue.Popped
}

// BulkAccumulator batches upserts for the indexed-store variant and flushes
// on size, byte, or idle-gap triggers. On flush failure it rolls back every
// accumulated envelope and reports a fatal error; on success it commits
// them all. An accumulator must never be abandoned mid-batch: Flush must be
// called before process exit, and rolls the batch back itself if it fails.
type BulkAccumulator struct {
	DocStore   store.DocStore
	Collection string
	MaxOps     int
	MaxBytes   int
	IdleGap    time.Duration

	pending    []pendingOp
	bytes      int
	lastAppend time.Time
}

// NewBulkAccumulator builds an accumulator with spec.md's defaults: flush
// at 100 ops or a caller-supplied byte ceiling, whichever comes first, or
// after a 3s idle gap since the last Add.
func NewBulkAccumulator(docStore store.DocStore, collection string, maxBytes int) *BulkAccumulator {
	return &BulkAccumulator{
		DocStore:   docStore,
		Collection: collection,
		MaxOps:     defaultMaxOps,
		MaxBytes:   maxBytes,
		IdleGap:    defaultIdleGap,
	}
}

// Add appends one operation. ShouldFlush reports whether the size or byte
// trigger now holds; the caller decides when to act on it (typically
// immediately).
func (b *BulkAccumulator) Add(op store.UpsertOp, popped *fqueue.Popped) {
	size := 0
	if encoded, err := json.Marshal(op.Doc); err == nil {
		size = len(encoded)
	}

	b.pending = append(b.pending, pendingOp{op: op, popped: popped})
	b.bytes += size
	b.lastAppend = time.Now()
}

// ShouldFlush reports whether a size or byte-size trigger has been reached.
// A flush triggered exactly at MaxOps happens before the 101st append, so
// callers must check after every Add, not only between polls.
func (b *BulkAccumulator) ShouldFlush() bool {
	return len(b.pending) >= b.MaxOps || (b.MaxBytes > 0 && b.bytes >= b.MaxBytes)
}

// IdleExceeded reports whether IdleGap has elapsed since the last Add and
// there is something pending to flush on that basis.
func (b *BulkAccumulator) IdleExceeded() bool {
	if len(b.pending) == 0 {
		return false
	}
	return time.Since(b.lastAppend) >= b.IdleGap
}

// Len reports the number of accumulated operations.
func (b *BulkAccumulator) Len() int {
	return len(b.pending)
}

// Flush writes the accumulated batch in one bulk call. On success every
// accumulated envelope is committed; on failure every one is rolled back
// and a BulkFlushError is returned (fatal: the caller must exit non-zero).
func (b *BulkAccumulator) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	ops := make([]store.UpsertOp, len(b.pending))
	for i, p := range b.pending {
		ops[i] = p.op
	}

	if err := b.DocStore.BulkUpsert(ctx, b.Collection, ops); err != nil {
		b.rollbackAll()
		return &bridgeerr.BulkFlushError{Count: len(ops), Err: err}
	}

	for _, p := range b.pending {
		if err := p.popped.Commit(); err != nil {
			// The bulk write already succeeded; a commit failure here is a
			// file-queue bookkeeping problem, not a data-loss one, but it is
			// still fatal since the envelope may be redelivered after a
			// successful write (violating at-most-one-effect, not at-least-once).
			b.reset()
			return &bridgeerr.DocstoreFatalError{Op: "fqueue commit after bulk flush", Err: err}
		}
	}

	b.reset()
	return nil
}

func (b *BulkAccumulator) rollbackAll() {
	for _, p := range b.pending {
		p.popped.Rollback()
	}
	b.reset()
}

func (b *BulkAccumulator) reset() {
	b.pending = nil
	b.bytes = 0
}
