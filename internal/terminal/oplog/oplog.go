// Package oplog is the terminal's durable local operation log. Every action
// taken at the till is appended here first and pushed to the central server
// later, so the terminal keeps working while offline.
package oplog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/id"
)

// Key prefixes. Pending keys embed a UUIDv7, so iterating the prefix yields
// creation order. Applied entries are kept as the local audit trail.
const (
	prefixPending = "pending:"
	prefixApplied = "applied:"
)

// markChunk bounds the entries moved in one badger transaction.
const markChunk = 500

var (
	ErrClosed   = errors.New("oplog: closed")
	ErrNotFound = errors.New("oplog: entry not found")
)

// Entry is one locally recorded operation.
type Entry struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	OpType     string          `json:"op_type"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	AppliedAt  *time.Time      `json:"applied_at,omitempty"`
}

type Stats struct {
	Pending int64 `json:"pending"`
	Applied int64 `json:"applied"`
	// OldestPending is when the oldest unacknowledged entry was enqueued.
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// Log is a BadgerDB-backed operation log.
type Log struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

// Open opens (or creates) the log under dir with synchronous writes.
func Open(dir string) (*Log, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Log{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func (l *Log) checkOpen() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// Enqueue appends an operation and returns its id. It never touches the network.
func (l *Log) Enqueue(ctx context.Context, deviceID, opType, entityType, entityID string, payload []byte) (string, error) {
	if err := l.checkOpen(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deviceID = strings.TrimSpace(deviceID)
	opType = strings.TrimSpace(opType)
	if deviceID == "" {
		return "", apperror.NewValidation("device_id is required")
	}
	if opType == "" {
		return "", apperror.NewValidation("op_type is required")
	}

	if len(payload) == 0 {
		payload = []byte("{}")
	} else if !json.Valid(payload) {
		// Kept as a JSON string; the central server rejects it without blocking the queue.
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return "", fmt.Errorf("quote payload: %w", err)
		}
		payload = quoted
	}

	entry := Entry{
		ID:         id.NewString(),
		DeviceID:   deviceID,
		OpType:     opType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  l.now(),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixPending+entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("write entry: %w", err)
	}
	return entry.ID, nil
}

// Pending returns up to limit unsent entries in creation order; limit <= 0 means all.
func (l *Log) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	var out []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("unmarshal entry %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)

			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkApplied moves the given pending entries to the applied set and returns
// how many moved. Ids that are not pending are ignored.
func (l *Log) MarkApplied(ctx context.Context, ids []string, at time.Time) (int, error) {
	if err := l.checkOpen(); err != nil {
		return 0, err
	}

	moved := 0
	for start := 0; start < len(ids); start += markChunk {
		end := min(start+markChunk, len(ids))

		err := l.db.Update(func(txn *badger.Txn) error {
			for _, opID := range ids[start:end] {
				if err := ctx.Err(); err != nil {
					return err
				}

				pendingKey := []byte(prefixPending + opID)
				item, err := txn.Get(pendingKey)
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return fmt.Errorf("get pending entry: %w", err)
				}

				var e Entry
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &e)
				}); err != nil {
					return fmt.Errorf("unmarshal entry: %w", err)
				}

				applied := at.UTC()
				e.AppliedAt = &applied
				data, err := json.Marshal(&e)
				if err != nil {
					return fmt.Errorf("marshal entry: %w", err)
				}

				if err := txn.Set([]byte(prefixApplied+opID), data); err != nil {
					return fmt.Errorf("set applied entry: %w", err)
				}
				if err := txn.Delete(pendingKey); err != nil {
					return fmt.Errorf("delete pending entry: %w", err)
				}
				moved++
			}
			return nil
		})
		if err != nil {
			return moved, err
		}
	}
	return moved, nil
}

// Get returns an entry whether pending or applied.
func (l *Log) Get(ctx context.Context, opID string) (*Entry, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	var e Entry
	err := l.db.View(func(txn *badger.Txn) error {
		for _, prefix := range []string{prefixPending, prefixApplied} {
			item, err := txn.Get([]byte(prefix + opID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Stats counts pending and applied entries.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	if err := l.checkOpen(); err != nil {
		return Stats{}, err
	}

	var s Stats
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		if s.Pending, err = countPrefix(ctx, txn, prefixPending); err != nil {
			return err
		}
		if s.Applied, err = countPrefix(ctx, txn, prefixApplied); err != nil {
			return err
		}
		s.OldestPending = oldestPending(txn)
		return nil
	})
	return s, err
}

// oldestPending reads the time out of the first pending key; entry ids are
// UUIDv7 so key order is enqueue order.
func oldestPending(txn *badger.Txn) *time.Time {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefixPending)
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	if !it.Valid() {
		return nil
	}
	v, err := id.Parse(string(it.Item().Key()[len(prefixPending):]))
	if err != nil {
		return nil
	}
	if t, ok := id.Time(v); ok {
		t = t.UTC()
		return &t
	}
	return nil
}

func countPrefix(ctx context.Context, txn *badger.Txn, prefix string) (int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var n int64
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
