// Package opsync implements the push side of the synchronization protocol:
// batches of terminal operations applied exactly once, all-or-nothing.
package opsync

import (
	"time"
)

// Operation is a pushed operation as stored centrally.
// The row is inserted once; only applied_at, resolved_id and rejected_reason
// are ever written afterwards.
type Operation struct {
	ID             string     `db:"id" json:"id"`
	DeviceID       string     `db:"device_id" json:"device_id"`
	OpType         string     `db:"op_type" json:"op_type"`
	EntityType     string     `db:"entity_type" json:"entity_type,omitempty"`
	EntityID       string     `db:"entity_id" json:"entity_id,omitempty"`
	Payload        []byte     `db:"payload" json:"payload"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ReceivedAt     time.Time  `db:"received_at" json:"received_at"`
	AppliedAt      *time.Time `db:"applied_at" json:"applied_at,omitempty"`
	ResolvedID     *string    `db:"resolved_id" json:"resolved_id,omitempty"`
	RejectedReason *string    `db:"rejected_reason" json:"rejected_reason,omitempty"`
}

// Applied reports whether the operation was already applied.
func (o *Operation) Applied() bool {
	return o.AppliedAt != nil
}

// Submitted is one operation as a terminal submits it.
type Submitted struct {
	ID         string
	OpType     string
	EntityType string
	EntityID   string
	Payload    []byte
	CreatedAt  time.Time
}

// PushResult summarizes a committed batch.
type PushResult struct {
	OK      bool `json:"ok"`
	Applied int  `json:"applied"`
	Skipped int  `json:"skipped"`
	Ignored int  `json:"ignored"`
	// Rejected counts operations whose payload failed to decode; they are
	// marked applied with a rejection reason and have no effect.
	Rejected int `json:"rejected"`
	// Resolved maps each creating operation id to the entity id it produced.
	Resolved map[string]string `json:"resolved,omitempty"`
}
