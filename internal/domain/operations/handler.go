package operations

import (
	"context"
	"time"
)

// Envelope is the operation context a handler sees besides its payload.
type Envelope struct {
	OperationID string
	DeviceID    string
	OpType      OpType
	EntityType  string
	EntityID    string
	CreatedAt   time.Time

	// ParentRef is the reference of the nearest preceding sale.created in the
	// batch's submission order. Lines without an explicit sale reference use it,
	// or the device's latest earlier sale when the batch has none.
	ParentRef string
}

// Resolver maps symbolic references to the ids their creating operation
// produced. Bindings live for one batch; Lookup also consults operations
// applied in earlier batches by the same device.
type Resolver interface {
	Lookup(ctx context.Context, creator OpType, ref string) (string, bool, error)
	Bind(creator OpType, ref, id string)

	// Latest returns the device's last creator operation applied in an
	// earlier batch, created at or before the given time.
	Latest(ctx context.Context, creator OpType, before time.Time) (string, bool, error)
}

// Result is what a handler reports back to the push loop.
type Result struct {
	// ResolvedID is the id a creating operation resolved or minted.
	ResolvedID string

	// Rejected is set when the operation could not apply but must not hold
	// back the rest of the batch. It is stored as the rejection reason.
	Rejected string
}

// Handler applies one decoded operation inside the batch transaction.
type Handler interface {
	Handle(ctx context.Context, env Envelope, p Payload, res Resolver) (Result, error)
}

// SaleRefs returns the references a sale.created operation is known by.
func SaleRefs(env Envelope, p *SaleCreated) []string {
	refs := make([]string, 0, 3)
	for _, r := range []string{env.EntityID, string(p.ID), env.OperationID} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}
