// Package fqueue implements the durable on-disk file-queue that hands
// envelopes off between a broker-facing listener and a database-facing
// loader: FIFO within one writer, crash-safe, with transactional pop/commit/
// rollback semantics.
//
// Bookkeeping (which fq_msg_id is visible, in-flight, or gone) lives in a
// bbolt B+tree, itself ACID. Envelope bodies are
// written as individual files using temp-write + fsync + rename so a crash
// mid-write never produces a half-written record.
package fqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/centosci/kaijs-bridge/model"
)

var (
	bucketVisible  = []byte("visible")
	bucketInflight = []byte("inflight")

	// ErrStopped is returned by Tpop once the queue has been Stop()ed and no
	// message is available.
	ErrStopped = errors.New("fqueue: stopped")
)

// Options configures a Queue.
type Options struct {
	// PollInterval bounds how long Tpop waits between checks for newly
	// visible entries when no push notification has arrived yet. Zero
	// selects a 1s default.
	PollInterval time.Duration
}

// Queue is a durable, directory-backed FIFO. Safe for concurrent use by
// multiple pushers and poppers within one process. Only one process can have
// the queue open at a time: bbolt holds an exclusive file lock on the index
// while it is open, so a second Make on the same path fails after 1s.
type Queue struct {
	dir       string
	bodiesDir string
	index     *bolt.DB
	opts      Options

	notify chan struct{}
	stopCh chan struct{}

	seqMu   sync.Mutex
	lastSec int64
	seq     int
}

// Make opens (creating if missing) a file-queue rooted at path.
func Make(path string, opts Options) (*Queue, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	bodiesDir := filepath.Join(path, "bodies")
	if err := os.MkdirAll(bodiesDir, 0o755); err != nil {
		return nil, fmt.Errorf("fqueue: creating bodies dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(path, "index.bolt"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("fqueue: opening index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketVisible); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketInflight)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("fqueue: creating buckets: %w", err)
	}

	q := &Queue{
		dir:       path,
		bodiesDir: bodiesDir,
		index:     db,
		opts:      opts,
		notify:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}

	if err := q.recoverInFlight(); err != nil {
		db.Close()
		return nil, err
	}

	return q, nil
}

// recoverInFlight treats every entry still marked in-flight at open time as
// an unclean shutdown: it is a rollback that never happened, so it goes
// back to the visible head of the queue.
func (q *Queue) recoverInFlight() error {
	return q.index.Update(func(tx *bolt.Tx) error {
		inflight := tx.Bucket(bucketInflight)
		visible := tx.Bucket(bucketVisible)

		var keys [][]byte
		c := inflight.Cursor()
		for txnID, fqMsgID := c.First(); txnID != nil; txnID, fqMsgID = c.Next() {
			keys = append(keys, append([]byte(nil), txnID...))
			if err := visible.Put(append([]byte(nil), fqMsgID...), []byte{}); err != nil {
				return err
			}
		}
		for _, txnID := range keys {
			if err := inflight.Delete(txnID); err != nil {
				return err
			}
		}
		return nil
	})
}

// nextFQMsgID generates a unique, time-prefixed, monotonic-per-second id.
func (q *Queue) nextFQMsgID() string {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()

	now := time.Now().Unix()
	if now != q.lastSec {
		q.lastSec = now
		q.seq = 0
	} else {
		q.seq++
	}
	return fmt.Sprintf("%020d.%06d", now, q.seq)
}

func (q *Queue) bodyPath(fqMsgID string) string {
	return filepath.Join(q.bodiesDir, fqMsgID+".json")
}

// Push persists one envelope atomically: the body is written to a temp
// file, fsynced, and renamed into place, then the bodies directory itself
// is fsynced so the rename is durable, before the id is recorded as visible
// in the index. Push assigns msg.FQMsgID if it is empty.
func (q *Queue) Push(msg *model.FileQueueMessage) error {
	if msg.FQMsgID == "" {
		msg.FQMsgID = q.nextFQMsgID()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("fqueue: marshaling envelope %s: %w", msg.FQMsgID, err)
	}

	final := q.bodyPath(msg.FQMsgID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fqueue: creating temp file for %s: %w", msg.FQMsgID, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fqueue: writing temp file for %s: %w", msg.FQMsgID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fqueue: fsyncing temp file for %s: %w", msg.FQMsgID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fqueue: closing temp file for %s: %w", msg.FQMsgID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fqueue: renaming envelope %s into place: %w", msg.FQMsgID, err)
	}
	if err := syncDir(q.bodiesDir); err != nil {
		return fmt.Errorf("fqueue: fsyncing bodies dir after %s: %w", msg.FQMsgID, err)
	}

	err = q.index.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVisible).Put([]byte(msg.FQMsgID), []byte{})
	})
	if err != nil {
		return fmt.Errorf("fqueue: recording %s visible: %w", msg.FQMsgID, err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Popped is a transactional pop: the message is hidden from other callers
// but remains on disk until Commit or Rollback is called.
type Popped struct {
	Message *model.FileQueueMessage

	q     *Queue
	txnID []byte
	key   []byte
}

// Commit removes the envelope permanently: the index entry and the body
// file on disk.
func (p *Popped) Commit() error {
	err := p.q.index.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInflight).Delete(p.txnID)
	})
	if err != nil {
		return fmt.Errorf("fqueue: committing %s: %w", p.Message.FQMsgID, err)
	}
	if err := os.Remove(p.q.bodyPath(p.Message.FQMsgID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fqueue: removing body for %s: %w", p.Message.FQMsgID, err)
	}
	return nil
}

// Rollback returns the envelope to the visible head of the queue at its
// original position, so it is redelivered on a future Tpop.
func (p *Popped) Rollback() error {
	err := p.q.index.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketInflight).Delete(p.txnID); err != nil {
			return err
		}
		return tx.Bucket(bucketVisible).Put(p.key, []byte{})
	})
	if err != nil {
		return fmt.Errorf("fqueue: rolling back %s: %w", p.Message.FQMsgID, err)
	}
	select {
	case p.q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Tpop blocks until an envelope is available, ctx is cancelled, or the
// queue is stopped, whichever comes first.
func (q *Queue) Tpop(ctx context.Context) (*Popped, error) {
	for {
		popped, err := q.tryPop()
		if err != nil {
			return nil, err
		}
		if popped != nil {
			return popped, nil
		}

		select {
		case <-q.notify:
		case <-time.After(q.opts.PollInterval):
		case <-q.stopCh:
			return nil, ErrStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) tryPop() (*Popped, error) {
	var key []byte
	var txnID []byte

	err := q.index.Update(func(tx *bolt.Tx) error {
		visible := tx.Bucket(bucketVisible)
		c := visible.Cursor()
		k, _ := c.First()
		if k == nil {
			return nil
		}
		key = append([]byte(nil), k...)

		if err := visible.Delete(key); err != nil {
			return err
		}

		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("generating transaction id: %w", err)
		}
		txnID = []byte(id.String())

		return tx.Bucket(bucketInflight).Put(txnID, key)
	})
	if err != nil {
		return nil, fmt.Errorf("fqueue: popping: %w", err)
	}
	if key == nil {
		return nil, nil
	}

	var msg model.FileQueueMessage
	data, err := os.ReadFile(q.bodyPath(string(key)))
	if err != nil {
		return nil, fmt.Errorf("fqueue: reading body for %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("fqueue: unmarshaling body for %s: %w", key, err)
	}

	return &Popped{Message: &msg, q: q, txnID: txnID, key: key}, nil
}

// Length returns the number of visible (not in-flight) envelopes.
func (q *Queue) Length() (int, error) {
	var n int
	err := q.index.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketVisible).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fqueue: counting visible entries: %w", err)
	}
	return n, nil
}

// VisibleIDs returns the fq_msg_ids currently visible, in FIFO order.
// Intended for diagnostics and tests, not the hot path.
func (q *Queue) VisibleIDs() ([]string, error) {
	var ids []string
	err := q.index.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVisible).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Stop stops background waiters; in-flight transactional pops remain valid
// until Commit or Rollback is called. Stop then closes the index.
func (q *Queue) Stop() error {
	select {
	case <-q.stopCh:
	default:
		close(q.stopCh)
	}
	return q.index.Close()
}
