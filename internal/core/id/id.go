// Package id mints the UUIDv7 identifiers used for inventory sessions,
// server-minted sale ids and terminal oplog entries. v7 ids sort by creation
// time, so the oplog's key order is its enqueue order.
package id

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

type ID = uuid.UUID

// New returns a UUIDv7, or a v4 if the clock source fails.
func New() ID {
	if v, err := uuid.NewV7(); err == nil {
		return v
	}
	return uuid.New()
}

func NewString() string { return New().String() }

func Parse(s string) (ID, error) { return uuid.Parse(s) }

// MustParse is for literals and tests.
func MustParse(s string) ID { return uuid.MustParse(s) }

func Nil() ID { return uuid.Nil }

// Time returns the creation time embedded in a v7 id; ok is false for other versions.
func Time(v ID) (t time.Time, ok bool) {
	if v.Version() != 7 {
		return time.Time{}, false
	}
	// The first 48 bits are Unix milliseconds.
	ms := binary.BigEndian.Uint64(v[:8]) >> 16
	return time.UnixMilli(int64(ms)), true
}
