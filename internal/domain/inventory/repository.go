package inventory

import (
	"context"
	"time"

	"coopsync/internal/core/id"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
)

// Repository stores sessions, snapshots, counts and adjustments.
type Repository interface {
	// FindOpenByName returns the open session with that name, or nil.
	FindOpenByName(ctx context.Context, name string) (*Session, error)
	// CreateSession inserts s unless an open session with the same name exists.
	CreateSession(ctx context.Context, s *Session) (bool, error)

	// GetSession returns apperror NotFound for unknown sessions.
	GetSession(ctx context.Context, sessionID id.ID) (*Session, error)
	// GetSessionForShare reads the session under a shared row lock.
	GetSessionForShare(ctx context.Context, sessionID id.ID) (*Session, error)
	// GetSessionForUpdate reads the session under an exclusive row lock.
	GetSessionForUpdate(ctx context.Context, sessionID id.ID) (*Session, error)
	UpdateStatus(ctx context.Context, sessionID id.ID, status Status, finalizedBy *string, endedAt *time.Time) error
	ListSessions(ctx context.Context, status *Status) ([]Session, error)

	InsertSnapshots(ctx context.Context, rows []Snapshot) error
	SnapshotExists(ctx context.Context, sessionID id.ID, productID int64) (bool, error)

	// AddCount adds c.Qty to the device's row (qty = qty + excluded.qty) and
	// returns the device's new total.
	AddCount(ctx context.Context, c Count) (types.Quantity, error)

	// SummaryRows returns every snapshot line with its aggregated counts.
	SummaryRows(ctx context.Context, sessionID id.ID) ([]SummaryRow, error)

	InsertAdjust(ctx context.Context, a Adjust) (bool, error)
}

// Ledger is the stock ledger as seen by inventory. Satisfied by *ledger.Service.
type Ledger interface {
	Levels(ctx context.Context) ([]ledger.StockLevel, error)
	InsertMovement(ctx context.Context, productID int64, sourceType ledger.SourceType, sourceID string, qtyChange types.Quantity) (bool, error)
}

// SummaryCache is an optional short-lived cache of summaries.
type SummaryCache interface {
	Get(ctx context.Context, sessionID id.ID) (*Summary, bool)

	// Generation returns a token that changes on every Invalidate of the session.
	Generation(ctx context.Context, sessionID id.ID) int64

	// Set stores summary unless the session was invalidated after gen was read.
	Set(ctx context.Context, summary *Summary, gen int64)

	Invalidate(ctx context.Context, sessionID id.ID)
}
