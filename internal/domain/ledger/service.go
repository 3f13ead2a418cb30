package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/lock"
	"coopsync/internal/core/tx"
	"coopsync/internal/core/types"
	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

const backfillLockKey = "coopsync:ledger:backfill"

// Service provides the stock ledger operations.
// Movement writes join the caller's transaction; only Backfill opens its own.
type Service struct {
	repo   Repository
	txm    tx.Manager
	locker lock.Locker
	now    func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository, txm tx.Manager, locker lock.Locker) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		repo:   repo,
		txm:    txm,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CurrentStock returns the sum of the product's movements, or its base value
// if it has none.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (types.Quantity, error) {
	sum, count, err := s.repo.SumMovements(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	if count > 0 {
		return sum, nil
	}

	base, found, err := s.repo.BaseStock(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("get base stock: %w", err)
	}
	if !found {
		return 0, apperror.NewNotFound("product", productID)
	}
	return base, nil
}

// InsertMovement appends a movement unless one with the same source key exists.
// The first movement of a product with a nonzero base value is preceded by its
// baseline movement, so derived stock stays base + Σ deltas.
func (s *Service) InsertMovement(ctx context.Context, productID int64, sourceType SourceType, sourceID string, qtyChange types.Quantity) (bool, error) {
	if productID <= 0 {
		return false, apperror.NewValidation("product_id is required")
	}
	if sourceType == "" || sourceID == "" {
		return false, apperror.NewValidation("movement source key is required").
			WithDetail("source_type", sourceType).
			WithDetail("source_id", sourceID)
	}

	if sourceType != SourceBootstrap {
		if err := s.ensureBaseline(ctx, productID); err != nil {
			return false, err
		}
	}

	return s.insert(ctx, Movement{
		ProductID:  productID,
		SourceType: sourceType,
		SourceID:   sourceID,
		QtyChange:  qtyChange,
		CreatedAt:  s.now(),
	})
}

// SetAbsolute brings the product's derived stock to target by appending
// target − current. No movement is written when the stock already matches.
func (s *Service) SetAbsolute(ctx context.Context, productID int64, sourceType SourceType, sourceID string, target types.Quantity) (types.Quantity, bool, error) {
	current, err := s.CurrentStock(ctx, productID)
	if err != nil {
		return 0, false, err
	}

	delta := target - current
	if delta == 0 {
		return 0, false, nil
	}

	inserted, err := s.InsertMovement(ctx, productID, sourceType, sourceID, delta)
	if err != nil {
		return 0, false, err
	}
	return delta, inserted, nil
}

func (s *Service) ensureBaseline(ctx context.Context, productID int64) error {
	_, count, err := s.repo.SumMovements(ctx, productID)
	if err != nil {
		return fmt.Errorf("sum movements: %w", err)
	}
	if count > 0 {
		return nil
	}

	base, found, err := s.repo.BaseStock(ctx, productID)
	if err != nil {
		return fmt.Errorf("get base stock: %w", err)
	}
	if !found {
		return apperror.NewNotFound("product", productID)
	}
	if base == 0 {
		return nil
	}

	_, err = s.insert(ctx, Movement{
		ProductID:  productID,
		SourceType: SourceBootstrap,
		SourceID:   BaselineSourceID(productID),
		QtyChange:  base,
		CreatedAt:  s.now(),
	})
	return err
}

func (s *Service) insert(ctx context.Context, m Movement) (bool, error) {
	inserted, err := s.repo.InsertMovement(ctx, m)
	if err != nil {
		return false, fmt.Errorf("insert movement %s: %w", m.Key(), err)
	}
	if inserted {
		metrics.RecordMovement(string(m.SourceType))
		logger.Debug(ctx, "stock movement recorded",
			"product_id", m.ProductID,
			"key", m.Key(),
			"qty_change", m.QtyChange.String(),
		)
	}
	return inserted, nil
}

// Levels returns the derived stock of every product.
func (s *Service) Levels(ctx context.Context) ([]StockLevel, error) {
	levels, err := s.repo.StockLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stock levels: %w", err)
	}
	return levels, nil
}

// History returns a product's movements, oldest first.
func (s *Service) History(ctx context.Context, productID int64, filter MovementFilter) ([]Movement, error) {
	if _, found, err := s.repo.BaseStock(ctx, productID); err != nil {
		return nil, fmt.Errorf("get base stock: %w", err)
	} else if !found {
		return nil, apperror.NewNotFound("product", productID)
	}

	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.ListMovements(ctx, productID, filter)
}

// Backfill seeds a baseline movement for every product whose stock has never
// been touched. Running it again seeds nothing.
func (s *Service) Backfill(ctx context.Context) (BackfillResult, error) {
	var result BackfillResult

	lease, err := s.locker.Obtain(ctx, backfillLockKey)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return result, apperror.NewConflict("backfill already running")
		}
		return result, fmt.Errorf("obtain backfill lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "release backfill lock failed", "error", err)
		}
	}()

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		products, err := s.repo.ProductsWithoutMovements(ctx)
		if err != nil {
			return fmt.Errorf("list untouched products: %w", err)
		}
		result = BackfillResult{Candidates: len(products)}

		seeds := make([]Movement, 0, len(products))
		for _, p := range products {
			if p.BaseStock == 0 {
				continue
			}
			seeds = append(seeds, Movement{
				ProductID:  p.ProductID,
				SourceType: SourceBootstrap,
				SourceID:   BaselineSourceID(p.ProductID),
				QtyChange:  p.BaseStock,
				CreatedAt:  s.now(),
			})
		}
		if len(seeds) == 0 {
			return nil
		}

		inserted, err := s.repo.InsertMovements(ctx, seeds)
		if err != nil {
			return fmt.Errorf("seed baselines: %w", err)
		}
		for _, ok := range inserted {
			if ok {
				result.Seeded++
				metrics.RecordMovement(string(SourceBootstrap))
			}
		}
		return nil
	})
	if err != nil {
		return BackfillResult{}, err
	}

	logger.Info(ctx, "ledger backfill completed",
		"candidates", result.Candidates,
		"seeded", result.Seeded,
	)
	return result, nil
}
