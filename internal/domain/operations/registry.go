package operations

import (
	"sort"

	"coopsync/internal/config"
	"coopsync/internal/domain/ledger"
)

// Deps are the collaborators handlers are built from.
type Deps struct {
	Sales      SaleRepository
	Receptions ReceptionRepository
	Catalog    CatalogRepository
	Ledger     Ledger
}

// Registry maps op types to the handlers of the enabled features.
// A disabled feature has no handler, so its operations are ignored.
type Registry struct {
	handlers map[OpType]Handler
}

// NewRegistry constructs the handlers for the enabled features.
func NewRegistry(features config.Features, deps Deps) *Registry {
	r := &Registry{handlers: make(map[OpType]Handler)}

	if features.Sales {
		r.handlers[OpSaleCreated] = &saleCreatedHandler{sales: deps.Sales, catalog: deps.Catalog}
		r.handlers[OpSaleLineAdded] = &saleLineAddedHandler{sales: deps.Sales, ledger: deps.Ledger}
	}
	if features.Receptions {
		r.handlers[OpReceptionLineAdded] = &receptionLineAddedHandler{
			receptions: deps.Receptions,
			catalog:    deps.Catalog,
			ledger:     deps.Ledger,
		}
	}
	if features.StockAdjust {
		r.handlers[OpInventoryAdjust] = &stockTargetHandler{ledger: deps.Ledger, sourceType: ledger.SourceInventoryAdjust}
		r.handlers[OpStockSet] = &stockTargetHandler{ledger: deps.Ledger, sourceType: ledger.SourceStockSet}
	}
	if features.ProductUpdates {
		r.handlers[OpProductUpdated] = &productUpdatedHandler{catalog: deps.Catalog}
	}

	return r
}

// Lookup returns the handler for opType.
func (r *Registry) Lookup(opType OpType) (Handler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Types lists the enabled op types, sorted.
func (r *Registry) Types() []OpType {
	out := make([]OpType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
