package memstore

import (
	"context"
	"maps"
	"slices"

	"coopsync/internal/domain/refdata"
)

type RefDataRepo struct{ s *Store }

func (r *RefDataRepo) CountProducts(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.st.products)), nil
}

func upsert[T any](s *Store, table func(*state) map[int64]T, rows []T, idOf func(T) int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := table(s.st)
	for _, row := range rows {
		m[idOf(row)] = row
	}
	return len(rows)
}

func (r *RefDataRepo) UpsertCategories(_ context.Context, rows []refdata.Category) (int, error) {
	return upsert(r.s, func(st *state) map[int64]refdata.Category { return st.categories }, rows, func(v refdata.Category) int64 { return v.ID }), nil
}

func (r *RefDataRepo) UpsertUnits(_ context.Context, rows []refdata.Unit) (int, error) {
	return upsert(r.s, func(st *state) map[int64]refdata.Unit { return st.units }, rows, func(v refdata.Unit) int64 { return v.ID }), nil
}

func (r *RefDataRepo) UpsertSuppliers(_ context.Context, rows []refdata.Supplier) (int, error) {
	return upsert(r.s, func(st *state) map[int64]refdata.Supplier { return st.suppliers }, rows, func(v refdata.Supplier) int64 { return v.ID }), nil
}

func (r *RefDataRepo) UpsertPaymentModes(_ context.Context, rows []refdata.PaymentMode) (int, error) {
	return upsert(r.s, func(st *state) map[int64]refdata.PaymentMode { return st.paymentModes }, rows, func(v refdata.PaymentMode) int64 { return v.ID }), nil
}

func (r *RefDataRepo) UpsertMembers(_ context.Context, rows []refdata.Member) (int, error) {
	return upsert(r.s, func(st *state) map[int64]refdata.Member { return st.members }, rows, func(v refdata.Member) int64 { return v.ID }), nil
}

func (r *RefDataRepo) UpsertProducts(_ context.Context, rows []refdata.Product) (int, error) {
	if err := r.s.injected("UpsertProducts"); err != nil {
		return 0, err
	}
	return upsert(r.s, func(st *state) map[int64]refdata.Product { return st.products }, rows, func(v refdata.Product) int64 { return v.ID }), nil
}

func (r *RefDataRepo) RealignSequences(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.sequences[refdata.CollectionCategories] = maxKey(r.s.st.categories)
	r.s.st.sequences[refdata.CollectionUnits] = maxKey(r.s.st.units)
	r.s.st.sequences[refdata.CollectionSuppliers] = maxKey(r.s.st.suppliers)
	r.s.st.sequences[refdata.CollectionPaymentModes] = maxKey(r.s.st.paymentModes)
	r.s.st.sequences[refdata.CollectionMembers] = maxKey(r.s.st.members)
	r.s.st.sequences[refdata.CollectionProducts] = maxKey(r.s.st.products)
	return nil
}

// Sequence returns the last realigned value of a collection's id sequence.
func (s *Store) Sequence(collection string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.sequences[collection]
}

func maxKey[T any](m map[int64]T) int64 {
	var top int64
	for k := range m {
		if k > top {
			top = k
		}
	}
	return top
}

func byID[T any](m map[int64]T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func (r *RefDataRepo) ListCategories(_ context.Context) ([]refdata.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return byID(r.s.st.categories), nil
}

func (r *RefDataRepo) ListUnits(_ context.Context) ([]refdata.Unit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return byID(r.s.st.units), nil
}

func (r *RefDataRepo) ListSuppliers(_ context.Context) ([]refdata.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return byID(r.s.st.suppliers), nil
}

func (r *RefDataRepo) ListPaymentModes(_ context.Context) ([]refdata.PaymentMode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return byID(r.s.st.paymentModes), nil
}

func (r *RefDataRepo) ListMembers(_ context.Context) ([]refdata.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return byID(r.s.st.members), nil
}

func (r *RefDataRepo) ListProductsWithStock(_ context.Context) ([]refdata.ProductWithStock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	products := byID(r.s.st.products)
	out := make([]refdata.ProductWithStock, 0, len(products))
	for _, p := range products {
		stock, _ := r.s.st.derivedStock(p.ID)
		out = append(out, refdata.ProductWithStock{Product: p, Stock: stock})
	}
	return out, nil
}
