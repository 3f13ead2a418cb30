package operations

import (
	"context"

	"coopsync/internal/domain/ledger"
)

// stockTargetHandler serves inventory.adjust and stock.set: both bring the
// derived stock to an absolute value and differ only by movement source type.
type stockTargetHandler struct {
	ledger     Ledger
	sourceType ledger.SourceType
}

func (h *stockTargetHandler) Handle(ctx context.Context, env Envelope, p Payload, _ Resolver) (Result, error) {
	var target StockTarget
	switch pl := p.(type) {
	case *InventoryAdjust:
		target = pl.StockTarget
	case *StockSet:
		target = pl.StockTarget
	}

	key := string(target.AdjustID)
	if key == "" {
		key = env.OperationID
	}

	if _, _, err := h.ledger.SetAbsolute(ctx, target.ProductID, h.sourceType, key, target.Stock); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
