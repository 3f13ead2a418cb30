package operations

import (
	"context"
	"fmt"
	"time"

	"coopsync/internal/domain/ledger"
	"coopsync/pkg/logger"
)

type receptionLineAddedHandler struct {
	receptions ReceptionRepository
	catalog    CatalogRepository
	ledger     Ledger
}

// Handle records the line and moves stock by the received quantity, or by
// target − current when the terminal sent a corrected absolute stock.
// The corrected path reads stock as derived at processing time, so a sale
// applied centrally between the terminal's read and this push is absorbed
// into the correction.
func (h *receptionLineAddedHandler) Handle(ctx context.Context, env Envelope, p Payload, _ Resolver) (Result, error) {
	pl := p.(*ReceptionLineAdded)

	receptionID := string(pl.ReceptionID)
	if receptionID == "" {
		receptionID = env.EntityID
	}
	if receptionID == "" {
		receptionID = env.OperationID
	}

	supplierID := pl.SupplierID
	if supplierID != nil {
		ok, err := h.catalog.SupplierExists(ctx, *supplierID)
		if err != nil {
			return Result{}, fmt.Errorf("check supplier: %w", err)
		}
		if !ok {
			logger.Warn(ctx, "reception references unknown supplier, cleared",
				"reception_id", receptionID, "supplier_id", *supplierID)
			supplierID = nil
		}
	}

	now := time.Now().UTC()
	if err := h.receptions.EnsureReception(ctx, &Reception{
		ID:         receptionID,
		SupplierID: supplierID,
		DeviceID:   env.DeviceID,
		ReceivedAt: occurredAt(pl.ReceivedAt, env.CreatedAt),
		CreatedAt:  now,
	}); err != nil {
		return Result{}, fmt.Errorf("ensure reception: %w", err)
	}

	line := &ReceptionLine{
		ID:             string(pl.ID),
		ReceptionID:    receptionID,
		ProductID:      pl.ProductID,
		Qty:            pl.Qty,
		PurchasePrice:  pl.PurchasePrice,
		CorrectedStock: pl.CorrectedStock,
		CreatedAt:      now,
	}
	if err := h.receptions.UpsertReceptionLine(ctx, line); err != nil {
		return Result{}, fmt.Errorf("upsert reception line: %w", err)
	}

	delta := pl.Qty
	if pl.CorrectedStock != nil {
		current, err := h.ledger.CurrentStock(ctx, pl.ProductID)
		if err != nil {
			return Result{}, err
		}
		delta = *pl.CorrectedStock - current
	}
	if delta != 0 {
		if _, err := h.ledger.InsertMovement(ctx, pl.ProductID, ledger.SourceReceptionLine, line.ID, delta); err != nil {
			return Result{}, err
		}
	}

	if pl.UpdatePrice && pl.PurchasePrice != nil {
		found, err := h.catalog.UpdateProduct(ctx, pl.ProductID, ProductPatch{PurchasePrice: pl.PurchasePrice})
		if err != nil {
			return Result{}, fmt.Errorf("update purchase price: %w", err)
		}
		if !found {
			logger.Warn(ctx, "purchase price update skipped, product not found", "product_id", pl.ProductID)
		}
	}

	return Result{ResolvedID: receptionID}, nil
}
