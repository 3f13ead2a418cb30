package memstore

import (
	"context"
	"slices"

	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
)

type LedgerRepo struct{ s *Store }

func (r *LedgerRepo) InsertMovement(_ context.Context, m ledger.Movement) (bool, error) {
	if err := r.s.injected("InsertMovement"); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.movementKeys[m.Key()]; ok {
		return false, nil
	}
	r.s.st.nextMovementID++
	m.ID = r.s.st.nextMovementID
	r.s.st.movements = append(r.s.st.movements, m)
	r.s.st.movementKeys[m.Key()] = struct{}{}
	return true, nil
}

func (r *LedgerRepo) InsertMovements(ctx context.Context, ms []ledger.Movement) ([]bool, error) {
	out := make([]bool, len(ms))
	for i, m := range ms {
		ok, err := r.InsertMovement(ctx, m)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

func (r *LedgerRepo) SumMovements(_ context.Context, productID int64) (types.Quantity, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum, n := r.s.st.sum(productID)
	return sum, n, nil
}

func (st *state) sum(productID int64) (types.Quantity, int64) {
	var (
		sum types.Quantity
		n   int64
	)
	for _, m := range st.movements {
		if m.ProductID == productID {
			sum += m.QtyChange
			n++
		}
	}
	return sum, n
}

func (st *state) derivedStock(productID int64) (types.Quantity, bool) {
	if sum, n := st.sum(productID); n > 0 {
		return sum, true
	}
	return st.products[productID].BaseStock, false
}

func (r *LedgerRepo) BaseStock(_ context.Context, productID int64) (types.Quantity, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[productID]
	return p.BaseStock, ok, nil
}

func (r *LedgerRepo) StockLevels(_ context.Context) ([]ledger.StockLevel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]ledger.StockLevel, 0, len(r.s.st.products))
	for _, p := range r.s.st.products {
		stock, fromLedger := r.s.st.derivedStock(p.ID)
		out = append(out, ledger.StockLevel{
			ProductID:  p.ID,
			Name:       p.Name,
			UnitCost:   p.Price,
			Active:     p.Active,
			Stock:      stock,
			FromLedger: fromLedger,
		})
	}
	slices.SortFunc(out, func(a, b ledger.StockLevel) int { return cmpInt64(a.ProductID, b.ProductID) })
	return out, nil
}

func (r *LedgerRepo) ListMovements(_ context.Context, productID int64, f ledger.MovementFilter) ([]ledger.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []ledger.Movement
	for _, m := range r.s.st.movements {
		if m.ProductID != productID {
			continue
		}
		if f.SourceType != "" && m.SourceType != f.SourceType {
			continue
		}
		if f.Since != nil && m.CreatedAt.Before(*f.Since) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *LedgerRepo) ProductsWithoutMovements(_ context.Context) ([]ledger.ProductBase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []ledger.ProductBase
	for _, p := range r.s.st.products {
		if _, n := r.s.st.sum(p.ID); n == 0 {
			out = append(out, ledger.ProductBase{ProductID: p.ID, BaseStock: p.BaseStock})
		}
	}
	slices.SortFunc(out, func(a, b ledger.ProductBase) int { return cmpInt64(a.ProductID, b.ProductID) })
	return out, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
