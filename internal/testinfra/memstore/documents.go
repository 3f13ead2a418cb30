package memstore

import (
	"context"
	"time"

	"coopsync/internal/domain/operations"
)

type SalesRepo struct{ s *Store }

func (r *SalesRepo) CreateSale(_ context.Context, sale *operations.Sale) (bool, error) {
	if err := r.s.injected("CreateSale"); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.sales[sale.ID]; ok {
		return false, nil
	}
	r.s.st.sales[sale.ID] = *sale
	return true, nil
}

func (r *SalesRepo) SaleExists(_ context.Context, saleID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.sales[saleID]
	return ok, nil
}

func (r *SalesRepo) UpdateSaleDetails(_ context.Context, saleID, cashier, note string) error {
	if err := r.s.injected("UpdateSaleDetails"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.st.sales[saleID]
	if !ok {
		return nil
	}
	if cashier != "" {
		sale.Cashier = cashier
	}
	if note != "" {
		sale.Note = note
	}
	r.s.st.sales[saleID] = sale
	return nil
}

func (r *SalesRepo) CreateSaleLine(_ context.Context, line *operations.SaleLine) (bool, error) {
	if err := r.s.injected("CreateSaleLine"); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.saleLines[line.ID]; ok {
		return false, nil
	}
	r.s.st.saleLines[line.ID] = *line
	return true, nil
}

type ReceptionsRepo struct{ s *Store }

func (r *ReceptionsRepo) EnsureReception(_ context.Context, rec *operations.Reception) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.receptions[rec.ID]; !ok {
		r.s.st.receptions[rec.ID] = *rec
	}
	return nil
}

func (r *ReceptionsRepo) UpsertReceptionLine(_ context.Context, line *operations.ReceptionLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.receptionLines[line.ID] = *line
	return nil
}

type CatalogRepo struct{ s *Store }

func (r *CatalogRepo) PaymentModeExists(_ context.Context, modeID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.paymentModes[modeID]
	return ok, nil
}

func (r *CatalogRepo) MemberExists(_ context.Context, memberID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.members[memberID]
	return ok, nil
}

func (r *CatalogRepo) SupplierExists(_ context.Context, supplierID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.suppliers[supplierID]
	return ok, nil
}

func (r *CatalogRepo) UpdateProduct(_ context.Context, productID int64, patch operations.ProductPatch) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[productID]
	if !ok {
		return false, nil
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Barcode != nil {
		p.Barcode = patch.Barcode
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.PurchasePrice != nil {
		p.PurchasePrice = *patch.PurchasePrice
	}
	if patch.CategoryID != nil {
		p.CategoryID = patch.CategoryID
	}
	if patch.UnitID != nil {
		p.UnitID = patch.UnitID
	}
	if patch.SupplierID != nil {
		p.SupplierID = patch.SupplierID
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	p.UpdatedAt = time.Now().UTC()
	r.s.st.products[productID] = p
	return true, nil
}
