package document_repo

import (
	"context"
	"time"

	"coopsync/internal/domain/operations"
	"coopsync/internal/infrastructure/storage/postgres"
)

const (
	receptionsTable     = "receptions"
	receptionLinesTable = "reception_lines"
)

var _ operations.ReceptionRepository = (*ReceptionsRepo)(nil)

// ReceptionsRepo implements operations.ReceptionRepository.
type ReceptionsRepo struct {
	baseRepo
}

func NewReceptionsRepo(txm *postgres.TxManager) *ReceptionsRepo {
	return &ReceptionsRepo{baseRepo: newBaseRepo(txm)}
}

func (r *ReceptionsRepo) EnsureReception(ctx context.Context, rec *operations.Reception) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.insert(ctx, receptionsTable, rec, "ON CONFLICT (id) DO NOTHING")
	return err
}

// UpsertReceptionLine overwrites every field but created_at on conflict.
func (r *ReceptionsRepo) UpsertReceptionLine(ctx context.Context, line *operations.ReceptionLine) error {
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	_, err := r.insert(ctx, receptionLinesTable, line, `ON CONFLICT (id) DO UPDATE SET
		reception_id = EXCLUDED.reception_id,
		product_id = EXCLUDED.product_id,
		qty = EXCLUDED.qty,
		purchase_price = EXCLUDED.purchase_price,
		corrected_stock = EXCLUDED.corrected_stock`)
	return err
}
