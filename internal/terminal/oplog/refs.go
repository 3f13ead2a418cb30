package oplog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// The reference mirror lives in the same database under its own prefix.
const (
	keyRefsSnapshot = "ref:snapshot"
	keyRefsMeta     = "ref:meta"
)

type refsMeta struct {
	SavedAt time.Time `json:"saved_at"`
	Size    int       `json:"size"`
}

// SaveRefs replaces the mirrored reference snapshot (raw JSON as pulled).
func (l *Log) SaveRefs(ctx context.Context, raw []byte) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(raw) {
		return fmt.Errorf("refs snapshot is not valid JSON")
	}

	meta, err := json.Marshal(refsMeta{SavedAt: l.now(), Size: len(raw)})
	if err != nil {
		return fmt.Errorf("marshal refs meta: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyRefsSnapshot), raw); err != nil {
			return fmt.Errorf("set refs: %w", err)
		}
		return txn.Set([]byte(keyRefsMeta), meta)
	})
}

// LoadRefs returns the mirrored snapshot and when it was saved; found is
// false before the first successful pull.
func (l *Log) LoadRefs(ctx context.Context) (raw []byte, savedAt time.Time, found bool, err error) {
	if err := l.checkOpen(); err != nil {
		return nil, time.Time{}, false, err
	}

	err = l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyRefsSnapshot))
		if err != nil {
			return err
		}
		if raw, err = item.ValueCopy(nil); err != nil {
			return err
		}

		metaItem, err := txn.Get([]byte(keyRefsMeta))
		if err != nil {
			return err
		}
		var m refsMeta
		if err := metaItem.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
			return err
		}
		savedAt = m.SavedAt
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("load refs: %w", err)
	}
	return raw, savedAt, true, nil
}
