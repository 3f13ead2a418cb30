package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/lock"
	"coopsync/internal/core/tx"
	"coopsync/pkg/logger"
)

const bootstrapLockKey = "coopsync:refdata:bootstrap"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service provides bootstrap and pull of reference data.
type Service struct {
	repo   Repository
	txm    tx.Manager
	locker lock.Locker
}

// NewService creates a new reference data service.
func NewService(repo Repository, txm tx.Manager, locker lock.Locker) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{repo: repo, txm: txm, locker: locker}
}

// BootstrapNeeded reports whether the central store has no products yet.
func (s *Service) BootstrapNeeded(ctx context.Context) (bool, error) {
	n, err := s.repo.CountProducts(ctx)
	if err != nil {
		return false, fmt.Errorf("count products: %w", err)
	}
	return n == 0, nil
}

// Bootstrap upserts every collection by id in dependency order, then moves
// the id sequences past the imported ids so locally created rows cannot collide.
func (s *Service) Bootstrap(ctx context.Context, c *Collections) (Counts, error) {
	if c == nil {
		return nil, apperror.NewValidation("collections are required")
	}
	if err := validate.Struct(c); err != nil {
		return nil, apperror.FromValidator("invalid collections", err)
	}

	lease, err := s.locker.Obtain(ctx, bootstrapLockKey)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return nil, apperror.NewConflict("bootstrap already running")
		}
		return nil, fmt.Errorf("obtain bootstrap lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "release bootstrap lock failed", "error", err)
		}
	}()

	counts := make(Counts, 6)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		steps := []struct {
			name string
			run  func() (int, error)
		}{
			{CollectionCategories, func() (int, error) { return s.repo.UpsertCategories(ctx, c.Categories) }},
			{CollectionUnits, func() (int, error) { return s.repo.UpsertUnits(ctx, c.Units) }},
			{CollectionSuppliers, func() (int, error) { return s.repo.UpsertSuppliers(ctx, c.Suppliers) }},
			{CollectionPaymentModes, func() (int, error) { return s.repo.UpsertPaymentModes(ctx, c.PaymentModes) }},
			{CollectionMembers, func() (int, error) { return s.repo.UpsertMembers(ctx, c.Members) }},
			{CollectionProducts, func() (int, error) { return s.repo.UpsertProducts(ctx, c.Products) }},
		}
		for _, step := range steps {
			n, err := step.run()
			if err != nil {
				return fmt.Errorf("upsert %s: %w", step.name, err)
			}
			counts[step.name] = n
		}
		if err := s.repo.RealignSequences(ctx); err != nil {
			return fmt.Errorf("realign sequences: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "reference data bootstrapped", "counts", counts)
	return counts, nil
}

// Pull returns every reference collection plus products with derived stock,
// read from one snapshot when the transaction manager supports read-only transactions.
func (s *Service) Pull(ctx context.Context) (*Snapshot, error) {
	out := &Snapshot{}
	load := func(ctx context.Context) error {
		var err error
		if out.Categories, err = s.repo.ListCategories(ctx); err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		if out.Units, err = s.repo.ListUnits(ctx); err != nil {
			return fmt.Errorf("list units: %w", err)
		}
		if out.Suppliers, err = s.repo.ListSuppliers(ctx); err != nil {
			return fmt.Errorf("list suppliers: %w", err)
		}
		if out.PaymentModes, err = s.repo.ListPaymentModes(ctx); err != nil {
			return fmt.Errorf("list payment modes: %w", err)
		}
		if out.Members, err = s.repo.ListMembers(ctx); err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		if out.Products, err = s.repo.ListProductsWithStock(ctx); err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		return nil
	}

	var err error
	if ro, ok := s.txm.(tx.ReadOnlyManager); ok {
		err = ro.ReadOnly(ctx, load)
	} else {
		err = s.txm.RunInTransaction(ctx, load)
	}
	if err != nil {
		return nil, err
	}

	out.GeneratedAt = time.Now().UTC()
	return out, nil
}
