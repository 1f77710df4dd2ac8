package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

const taskPrefix = "task/"

// taskRow is the JSON representation of a pending task.
type taskRow struct {
	RecordID    string    `json:"record_id"`
	Fingerprint string    `json:"fingerprint"`
	Attempts    int       `json:"attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Outbox is a durable queue of sync tasks, one per record.
// A newer task for the same record replaces the pending one.
type Outbox struct {
	db *badger.DB
}

// zapAdapter bridges badger's logger onto zap.
type zapAdapter struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*zapAdapter)(nil)

func (a *zapAdapter) Errorf(msg string, items ...any)   { a.logger.Errorf(msg, items...) }
func (a *zapAdapter) Warningf(msg string, items ...any) { a.logger.Warnf(msg, items...) }
func (a *zapAdapter) Infof(msg string, items ...any)    { a.logger.Debugf(msg, items...) }
func (a *zapAdapter) Debugf(msg string, items ...any)   { a.logger.Debugf(msg, items...) }

// Open opens the outbox at path. An empty path keeps it in memory (tests, local runs).
func Open(path string, logger *zap.Logger) (*Outbox, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create outbox dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = &zapAdapter{logger: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &Outbox{db: db}, nil
}

// Close closes the underlying database.
func (o *Outbox) Close() error {
	return o.db.Close() //nolint:wrapcheck // transparent
}

func taskKey(recordID string) []byte { return []byte(taskPrefix + recordID) }

// Put persists a task, replacing any pending task for the same record.
func (o *Outbox) Put(_ context.Context, t semantic.Task) error {
	raw, err := json.Marshal(taskRow{
		RecordID:    t.RecordID,
		Fingerprint: t.Fingerprint,
		Attempts:    t.Attempts,
		EnqueuedAt:  t.EnqueuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := o.db.Update(func(tx *badger.Txn) error {
		return tx.Set(taskKey(t.RecordID), raw)
	}); err != nil {
		return fmt.Errorf("put task %s: %w", t.RecordID, err)
	}
	return nil
}

// Ack removes the task of a record if it still carries the given fingerprint.
// A task replaced by a newer fingerprint in the meantime is kept.
func (o *Outbox) Ack(_ context.Context, recordID, fingerprint string) error {
	err := o.db.Update(func(tx *badger.Txn) error {
		item, err := tx.Get(taskKey(recordID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var row taskRow
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
			return err
		}
		if row.Fingerprint != fingerprint {
			return nil
		}
		return tx.Delete(taskKey(recordID))
	})
	if err != nil {
		return fmt.Errorf("ack task %s: %w", recordID, err)
	}
	return nil
}

// MarkFailed counts a failed sync round on the task of a record if it still carries the given fingerprint.
func (o *Outbox) MarkFailed(_ context.Context, recordID, fingerprint string) (int, error) {
	attempts := 0
	err := o.db.Update(func(tx *badger.Txn) error {
		item, err := tx.Get(taskKey(recordID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var row taskRow
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
			return err
		}
		if row.Fingerprint != fingerprint {
			return nil
		}
		row.Attempts++
		attempts = row.Attempts
		raw, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return tx.Set(taskKey(recordID), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("mark task %s failed: %w", recordID, err)
	}
	return attempts, nil
}

// Pending returns up to limit pending tasks in key order. A limit <= 0 returns all of them.
func (o *Outbox) Pending(_ context.Context, limit int) ([]semantic.Task, error) {
	var out []semantic.Task
	err := o.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var row taskRow
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
				return err
			}
			out = append(out, semantic.Task{
				RecordID:    row.RecordID,
				Fingerprint: row.Fingerprint,
				Attempts:    row.Attempts,
				EnqueuedAt:  row.EnqueuedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return out, nil
}

// Len returns the number of pending tasks.
func (o *Outbox) Len(_ context.Context) (int, error) {
	n := 0
	err := o.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskPrefix)
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return n, nil
}
