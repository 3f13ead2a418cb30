package operations

import (
	"context"
	"fmt"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/id"
	"coopsync/internal/domain/ledger"
	"coopsync/pkg/logger"
)

type saleCreatedHandler struct {
	sales   SaleRepository
	catalog CatalogRepository
}

func (h *saleCreatedHandler) Handle(ctx context.Context, env Envelope, p Payload, res Resolver) (Result, error) {
	pl := p.(*SaleCreated)

	sale := &Sale{
		ID:            string(pl.ID),
		Total:         pl.Total,
		PaymentModeID: pl.PaymentModeID,
		MemberID:      pl.MemberID,
		PayerName:     pl.PayerName,
		Cashier:       pl.Cashier,
		Note:          pl.Note,
		DeviceID:      env.DeviceID,
		SoldAt:        occurredAt(pl.SoldAt, env.CreatedAt),
		CreatedAt:     time.Now().UTC(),
	}
	if sale.ID == "" {
		sale.ID = id.NewString()
	}

	// References deleted on the central side since the terminal last pulled are dropped.
	if sale.PaymentModeID != nil {
		ok, err := h.catalog.PaymentModeExists(ctx, *sale.PaymentModeID)
		if err != nil {
			return Result{}, fmt.Errorf("check payment mode: %w", err)
		}
		if !ok {
			logger.Warn(ctx, "sale references unknown payment mode, cleared",
				"sale_id", sale.ID, "payment_mode_id", *sale.PaymentModeID)
			sale.PaymentModeID = nil
		}
	}
	if sale.MemberID != nil {
		ok, err := h.catalog.MemberExists(ctx, *sale.MemberID)
		if err != nil {
			return Result{}, fmt.Errorf("check member: %w", err)
		}
		if !ok {
			logger.Warn(ctx, "sale references unknown member, cleared",
				"sale_id", sale.ID, "member_id", *sale.MemberID)
			sale.MemberID = nil
		}
	}

	inserted, err := h.sales.CreateSale(ctx, sale)
	if err != nil {
		return Result{}, fmt.Errorf("create sale: %w", err)
	}
	if !inserted && (sale.Cashier != "" || sale.Note != "") {
		if err := h.sales.UpdateSaleDetails(ctx, sale.ID, sale.Cashier, sale.Note); err != nil {
			logger.Warn(ctx, "update sale details failed", "sale_id", sale.ID, "error", err)
		}
	}

	for _, ref := range SaleRefs(env, pl) {
		res.Bind(OpSaleCreated, ref, sale.ID)
	}
	return Result{ResolvedID: sale.ID}, nil
}

type saleLineAddedHandler struct {
	sales  SaleRepository
	ledger Ledger
}

func (h *saleLineAddedHandler) Handle(ctx context.Context, env Envelope, p Payload, res Resolver) (Result, error) {
	pl := p.(*SaleLineAdded)

	var (
		saleID string
		err    error
	)
	switch {
	case pl.SaleID != "":
		saleID, err = h.resolveSale(ctx, string(pl.SaleID), res)
	case env.ParentRef != "":
		saleID, err = h.resolveSale(ctx, env.ParentRef, res)
	default:
		saleID, err = h.previousSale(ctx, env, res)
	}
	if err != nil {
		return Result{}, err
	}

	key := string(pl.ID)
	if key == "" {
		key = fmt.Sprintf("%s:%d:%s:%s", saleID, pl.ProductID, pl.Qty.String(), pl.Price.String())
	}

	line := &SaleLine{
		ID:            key,
		SaleID:        saleID,
		ProductID:     pl.ProductID,
		Qty:           pl.Qty,
		Price:         pl.Price,
		OriginalPrice: pl.OriginalPrice,
		Discount:      pl.Discount,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := h.sales.CreateSaleLine(ctx, line); err != nil {
		return Result{}, fmt.Errorf("create sale line: %w", err)
	}

	// Attempted even when the line already existed: the movement key dedupes.
	if _, err := h.ledger.InsertMovement(ctx, pl.ProductID, ledger.SourceSaleLine, key, pl.Qty.Neg()); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// previousSale binds a line whose sale was pushed in an earlier batch.
func (h *saleLineAddedHandler) previousSale(ctx context.Context, env Envelope, res Resolver) (string, error) {
	before := env.CreatedAt
	if before.IsZero() {
		before = time.Now().UTC()
	}
	saleID, ok, err := res.Latest(ctx, OpSaleCreated, before)
	if err != nil {
		return "", fmt.Errorf("find previous sale: %w", err)
	}
	if !ok {
		return "", apperror.NewNotFound("sale", "").
			WithDetail("reason", "line has no sale reference and no preceding sale.created")
	}
	return saleID, nil
}

func (h *saleLineAddedHandler) resolveSale(ctx context.Context, ref string, res Resolver) (string, error) {
	if saleID, ok, err := res.Lookup(ctx, OpSaleCreated, ref); err != nil {
		return "", fmt.Errorf("resolve sale %s: %w", ref, err)
	} else if ok {
		return saleID, nil
	}

	exists, err := h.sales.SaleExists(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("check sale: %w", err)
	}
	if !exists {
		return "", apperror.NewNotFound("sale", ref)
	}
	return ref, nil
}

// occurredAt returns the client timestamp, else the operation's creation time, else now.
func occurredAt(t *time.Time, fallback time.Time) time.Time {
	if t != nil && !t.IsZero() {
		return t.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Now().UTC()
}
