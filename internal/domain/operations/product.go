package operations

import (
	"context"
	"fmt"
	"strconv"

	"coopsync/pkg/logger"
)

type productUpdatedHandler struct {
	catalog CatalogRepository
}

func (h *productUpdatedHandler) Handle(ctx context.Context, env Envelope, p Payload, _ Resolver) (Result, error) {
	pl := p.(*ProductUpdated)

	productID := pl.ProductID
	if productID == 0 && env.EntityID != "" {
		parsed, err := strconv.ParseInt(env.EntityID, 10, 64)
		if err != nil {
			return reject(ctx, env, "entity_id is not a product id")
		}
		productID = parsed
	}
	if productID <= 0 {
		return reject(ctx, env, "missing product id")
	}

	patch := pl.Patch()
	if patch.IsEmpty() {
		return Result{}, nil
	}

	found, err := h.catalog.UpdateProduct(ctx, productID, patch)
	if err != nil {
		return Result{}, fmt.Errorf("update product: %w", err)
	}
	if !found {
		return reject(ctx, env, fmt.Sprintf("product %d not found", productID))
	}
	return Result{}, nil
}

// reject reports an update the central catalogue cannot take. The terminal's
// copy is overwritten by its next pull.
func reject(ctx context.Context, env Envelope, reason string) (Result, error) {
	logger.Warn(ctx, "product update rejected",
		"operation_id", env.OperationID,
		"entity_id", env.EntityID,
		"reason", reason,
	)
	return Result{Rejected: reason}, nil
}
