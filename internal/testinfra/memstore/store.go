// Package memstore is an in-memory implementation of every repository and
// of tx.Manager, for domain service tests. Transactions are serialized by a
// single lock and roll back by restoring a snapshot of the whole state.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"coopsync/internal/core/id"
	"coopsync/internal/core/tx"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
)

var (
	_ tx.ReadOnlyManager             = (*Store)(nil)
	_ ledger.Repository              = (*LedgerRepo)(nil)
	_ operations.SaleRepository      = (*SalesRepo)(nil)
	_ operations.ReceptionRepository = (*ReceptionsRepo)(nil)
	_ operations.CatalogRepository   = (*CatalogRepo)(nil)
	_ opsync.Repository              = (*OperationsRepo)(nil)
	_ refdata.Repository             = (*RefDataRepo)(nil)
	_ inventory.Repository           = (*InventoryRepo)(nil)
)

type countKey struct {
	session id.ID
	product int64
	device  string
}

type adjustKey struct {
	session id.ID
	product int64
}

type state struct {
	categories   map[int64]refdata.Category
	units        map[int64]refdata.Unit
	suppliers    map[int64]refdata.Supplier
	paymentModes map[int64]refdata.PaymentMode
	members      map[int64]refdata.Member
	products     map[int64]refdata.Product
	sequences    map[string]int64

	movements      []ledger.Movement
	movementKeys   map[string]struct{}
	nextMovementID int64

	sales          map[string]operations.Sale
	saleLines      map[string]operations.SaleLine
	receptions     map[string]operations.Reception
	receptionLines map[string]operations.ReceptionLine

	ops map[string]opsync.Operation

	sessions  map[id.ID]inventory.Session
	snapshots map[id.ID]map[int64]inventory.Snapshot
	counts    map[countKey]inventory.Count
	adjusts   map[adjustKey]inventory.Adjust
}

func newState() *state {
	return &state{
		categories:     map[int64]refdata.Category{},
		units:          map[int64]refdata.Unit{},
		suppliers:      map[int64]refdata.Supplier{},
		paymentModes:   map[int64]refdata.PaymentMode{},
		members:        map[int64]refdata.Member{},
		products:       map[int64]refdata.Product{},
		sequences:      map[string]int64{},
		movementKeys:   map[string]struct{}{},
		sales:          map[string]operations.Sale{},
		saleLines:      map[string]operations.SaleLine{},
		receptions:     map[string]operations.Reception{},
		receptionLines: map[string]operations.ReceptionLine{},
		ops:            map[string]opsync.Operation{},
		sessions:       map[id.ID]inventory.Session{},
		snapshots:      map[id.ID]map[int64]inventory.Snapshot{},
		counts:         map[countKey]inventory.Count{},
		adjusts:        map[adjustKey]inventory.Adjust{},
	}
}

func (s *state) clone() *state {
	c := &state{
		categories:     maps.Clone(s.categories),
		units:          maps.Clone(s.units),
		suppliers:      maps.Clone(s.suppliers),
		paymentModes:   maps.Clone(s.paymentModes),
		members:        maps.Clone(s.members),
		products:       maps.Clone(s.products),
		sequences:      maps.Clone(s.sequences),
		movements:      slices.Clone(s.movements),
		movementKeys:   maps.Clone(s.movementKeys),
		nextMovementID: s.nextMovementID,
		sales:          maps.Clone(s.sales),
		saleLines:      maps.Clone(s.saleLines),
		receptions:     maps.Clone(s.receptions),
		receptionLines: maps.Clone(s.receptionLines),
		ops:            maps.Clone(s.ops),
		sessions:       maps.Clone(s.sessions),
		snapshots:      make(map[id.ID]map[int64]inventory.Snapshot, len(s.snapshots)),
		counts:         maps.Clone(s.counts),
		adjusts:        maps.Clone(s.adjusts),
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = maps.Clone(v)
	}
	return c
}

// Store holds the state and hands out repository views over it.
type Store struct {
	txMu sync.Mutex // held for the whole duration of a transaction
	mu   sync.Mutex // guards st
	st   *state

	failMu sync.Mutex
	fail   map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState(), fail: map[string]error{}}
}

type txKey struct{}

// RunInTransaction serializes fn against every other transaction and
// restores the previous state if fn returns an error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// FailOn makes the next call of the named repository method return err.
func (s *Store) FailOn(method string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.fail[method] = err
}

func (s *Store) injected(method string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return err
	}
	return nil
}

func (s *Store) Ledger() *LedgerRepo         { return &LedgerRepo{s: s} }
func (s *Store) Sales() *SalesRepo           { return &SalesRepo{s: s} }
func (s *Store) Receptions() *ReceptionsRepo { return &ReceptionsRepo{s: s} }
func (s *Store) Catalog() *CatalogRepo       { return &CatalogRepo{s: s} }
func (s *Store) Operations() *OperationsRepo { return &OperationsRepo{s: s} }
func (s *Store) RefData() *RefDataRepo       { return &RefDataRepo{s: s} }
func (s *Store) Inventory() *InventoryRepo   { return &InventoryRepo{s: s} }

// --- seeding and inspection helpers ---

func (s *Store) AddProduct(p refdata.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) AddPaymentMode(m refdata.PaymentMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.paymentModes[m.ID] = m
}

func (s *Store) AddMember(m refdata.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.members[m.ID] = m
}

func (s *Store) AddSupplier(m refdata.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.suppliers[m.ID] = m
}

func (s *Store) Product(productID int64) (refdata.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[productID]
	return p, ok
}

func (s *Store) Movements() []ledger.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.movements)
}

func (s *Store) AllSales() []operations.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.sales, func(a, b operations.Sale) bool { return a.ID < b.ID })
}

func (s *Store) SaleLines() []operations.SaleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.saleLines, func(a, b operations.SaleLine) bool { return a.ID < b.ID })
}

func (s *Store) ReceptionLines() []operations.ReceptionLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.receptionLines, func(a, b operations.ReceptionLine) bool { return a.ID < b.ID })
}

func (s *Store) Operation(opID string) (opsync.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.st.ops[opID]
	return op, ok
}

func (s *Store) Adjusts(sessionID id.ID) []inventory.Adjust {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Adjust
	for k, a := range s.st.adjusts {
		if k.session == sessionID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b inventory.Adjust) int { return cmpInt64(a.ProductID, b.ProductID) })
	return out
}

func (s *Store) Snapshots(sessionID id.ID) []inventory.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.snapshots[sessionID]))
	slices.SortFunc(out, func(a, b inventory.Snapshot) int { return cmpInt64(a.ProductID, b.ProductID) })
	return out
}

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, func(a, b V) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
	return out
}
