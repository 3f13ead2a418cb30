package dto

import (
	"time"

	"github.com/goccy/go-json"

	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
)

// PushRequest is a batch of operations from one terminal.
type PushRequest struct {
	DeviceID   string         `json:"device_id"`
	Operations []OperationDTO `json:"operations"`
}

type OperationDTO struct {
	ID         string          `json:"id"`
	OpType     string          `json:"op_type"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
}

// ToSubmitted converts the wire batch; a missing created_at becomes receivedAt.
func (r *PushRequest) ToSubmitted(receivedAt time.Time) []opsync.Submitted {
	out := make([]opsync.Submitted, len(r.Operations))
	for i, op := range r.Operations {
		created := receivedAt
		if op.CreatedAt != nil {
			created = op.CreatedAt.UTC()
		}
		out[i] = opsync.Submitted{
			ID:         op.ID,
			OpType:     op.OpType,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Payload:    []byte(op.Payload),
			CreatedAt:  created,
		}
	}
	return out
}

type BootstrapStatusResponse struct {
	Needed bool `json:"needed"`
}

type BootstrapResponse struct {
	Counts refdata.Counts `json:"counts"`
}
