package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/id"
	"coopsync/internal/core/tx"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/notify"
	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

// Options carries the optional collaborators of the service.
type Options struct {
	Cache  SummaryCache
	Sender notify.Sender
	Queue  notify.Queue
}

// Service drives inventory sessions.
type Service struct {
	repo   Repository
	ledger Ledger
	txm    tx.Manager
	opts   Options
	now    func() time.Time
}

// NewService creates a new inventory service.
func NewService(repo Repository, ledger Ledger, txm tx.Manager, opts Options) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		txm:    txm,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start returns the open session with this name, or creates one and snapshots
// every product's derived stock and unit cost. Inactive products are included
// so that stock they still carry is zeroed by finalize when left uncounted.
func (s *Service) Start(ctx context.Context, name, operator, notes string) (*Session, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperror.NewValidation("session name is required")
	}

	var (
		session *Session
		reused  bool
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindOpenByName(ctx, name)
		if err != nil {
			return fmt.Errorf("find open session: %w", err)
		}
		if existing != nil {
			session, reused = existing, true
			return nil
		}

		candidate := &Session{
			ID:        id.New(),
			Name:      name,
			Status:    StatusOpen,
			StartedBy: operator,
			Notes:     notes,
			StartedAt: s.now(),
		}
		created, err := s.repo.CreateSession(ctx, candidate)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if !created {
			// A concurrent start with the same name won.
			existing, err := s.repo.FindOpenByName(ctx, name)
			if err != nil {
				return fmt.Errorf("find open session: %w", err)
			}
			if existing == nil {
				return apperror.NewConflict("inventory session name is taken").WithDetail("name", name)
			}
			session, reused = existing, true
			return nil
		}

		levels, err := s.ledger.Levels(ctx)
		if err != nil {
			return fmt.Errorf("read stock levels: %w", err)
		}
		rows := make([]Snapshot, 0, len(levels))
		for _, l := range levels {
			rows = append(rows, Snapshot{
				SessionID:  candidate.ID,
				ProductID:  l.ProductID,
				StockStart: l.Stock,
				UnitCost:   l.UnitCost,
			})
		}
		if err := s.repo.InsertSnapshots(ctx, rows); err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}

		session = candidate
		logger.Info(ctx, "inventory session started",
			"session_id", candidate.ID,
			"name", name,
			"snapshot_lines", len(rows),
		)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return session, reused, nil
}

// CountAdd adds qty to the device's count of a product. Counts from different
// devices live in different rows and are summed at read time.
func (s *Service) CountAdd(ctx context.Context, sessionID id.ID, productID int64, qty types.Quantity, deviceID, operator string) error {
	if deviceID == "" {
		return apperror.NewValidation("device_id is required")
	}
	if productID <= 0 {
		return apperror.NewValidation("product_id is required")
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		session, err := s.repo.GetSessionForShare(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != StatusOpen {
			return apperror.NewSessionNotOpen(sessionID, string(session.Status))
		}

		ok, err := s.repo.SnapshotExists(ctx, sessionID, productID)
		if err != nil {
			return fmt.Errorf("check snapshot: %w", err)
		}
		if !ok {
			return apperror.NewValidation("product is not part of this inventory").
				WithDetail("session_id", sessionID).
				WithDetail("product_id", productID)
		}

		if _, err := s.repo.AddCount(ctx, Count{
			SessionID: sessionID,
			ProductID: productID,
			DeviceID:  deviceID,
			Operator:  operator,
			Qty:       qty,
			UpdatedAt: s.now(),
		}); err != nil {
			return fmt.Errorf("add count: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.InventoryCountsTotal.Inc()
	s.invalidate(ctx, sessionID)
	return nil
}

// Summary returns the session's lines with the deltas finalize would apply.
func (s *Service) Summary(ctx context.Context, sessionID id.ID) (*Summary, error) {
	var gen int64
	if s.opts.Cache != nil {
		if cached, ok := s.opts.Cache.Get(ctx, sessionID); ok {
			metrics.RecordSummaryCache(true)
			return cached, nil
		}
		metrics.RecordSummaryCache(false)
		gen = s.opts.Cache.Generation(ctx, sessionID)
	}

	var summary *Summary
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		session, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		rows, err := s.repo.SummaryRows(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("summary rows: %w", err)
		}
		lines, kpis := BuildSummary(rows)
		summary = &Summary{Session: session, Lines: lines, KPIs: kpis}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.opts.Cache != nil {
		s.opts.Cache.Set(ctx, summary, gen)
	}
	return summary, nil
}

// BuildSummary computes per-line deltas and the session KPIs.
func BuildSummary(rows []SummaryRow) ([]SummaryLine, KPIs) {
	lines := make([]SummaryLine, 0, len(rows))
	kpis := KPIs{DeltaValue: types.Zero(), CountedValue: types.Zero()}

	for _, r := range rows {
		line := SummaryLine{SummaryRow: r}
		line.Delta = r.CountedTotal - r.StockStart
		line.DeltaValue = line.Delta.Times(r.UnitCost)
		line.CountedValue = r.CountedTotal.Times(r.UnitCost)
		lines = append(lines, line)

		kpis.Lines++
		if r.Counted {
			kpis.CountedLines++
		}
		if r.CountedTotal == 0 {
			kpis.ZeroLines++
		}
		kpis.NetDeltaQty += line.Delta
		kpis.GrossDeltaQty += line.Delta.Abs()
		kpis.DeltaValue = kpis.DeltaValue.Add(line.DeltaValue)
		kpis.CountedValue = kpis.CountedValue.Add(line.CountedValue)
	}
	return lines, kpis
}

// Finalize closes an open session: for every snapshot line it records the
// adjustment and, when the delta is nonzero, the ledger movement that brings
// stock to the counted total. Exactly one concurrent caller succeeds; the
// others get a conflict. The notification is sent after commit and its
// failure never undoes the finalize.
func (s *Service) Finalize(ctx context.Context, sessionID id.ID, operator, notifyAddress string) (*Recap, error) {
	var recap *Recap
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		session, err := s.repo.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != StatusOpen {
			return apperror.NewSessionNotOpen(sessionID, string(session.Status))
		}

		if err := s.repo.UpdateStatus(ctx, sessionID, StatusFinalizing, nil, nil); err != nil {
			return fmt.Errorf("mark finalizing: %w", err)
		}

		rows, err := s.repo.SummaryRows(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("summary rows: %w", err)
		}

		stats := RecapStats{TotalInventoriedValue: types.Zero(), DeltaValue: types.Zero()}
		now := s.now()
		for _, r := range rows {
			delta := r.CountedTotal - r.StockStart
			adjust := Adjust{
				SessionID:    sessionID,
				ProductID:    r.ProductID,
				StockStart:   r.StockStart,
				CountedTotal: r.CountedTotal,
				Delta:        delta,
				UnitCost:     r.UnitCost,
				DeltaValue:   delta.Times(r.UnitCost),
				CreatedAt:    now,
			}
			if _, err := s.repo.InsertAdjust(ctx, adjust); err != nil {
				return fmt.Errorf("insert adjust for product %d: %w", r.ProductID, err)
			}

			if delta != 0 {
				if _, err := s.ledger.InsertMovement(ctx, r.ProductID, ledger.SourceInventoryFinalize,
					FinalizeSourceID(sessionID, r.ProductID), delta); err != nil {
					return err
				}
				stats.AdjustedProducts++
			}

			stats.LinesProcessed++
			if r.CountedTotal != 0 {
				stats.NonzeroCountProducts++
			}
			stats.TotalInventoriedValue = stats.TotalInventoriedValue.Add(r.CountedTotal.Times(r.UnitCost))
			stats.NetDeltaQty += delta
			stats.DeltaValue = stats.DeltaValue.Add(adjust.DeltaValue)
		}

		finalizedBy := operator
		if err := s.repo.UpdateStatus(ctx, sessionID, StatusClosed, &finalizedBy, &now); err != nil {
			return fmt.Errorf("mark closed: %w", err)
		}
		session.Status = StatusClosed
		session.FinalizedBy = &finalizedBy
		session.EndedAt = &now

		recap = &Recap{Session: session, Stats: stats}
		return nil
	})
	if err != nil {
		if apperror.IsConflict(err) {
			metrics.RecordFinalize("not_open")
		} else {
			metrics.RecordFinalize("error")
		}
		return nil, err
	}

	metrics.RecordFinalize("closed")
	s.invalidate(ctx, sessionID)
	logger.Info(ctx, "inventory session finalized",
		"session_id", sessionID,
		"lines", recap.Stats.LinesProcessed,
		"adjusted", recap.Stats.AdjustedProducts,
		"net_delta", recap.Stats.NetDeltaQty.String(),
	)

	if notifyAddress != "" {
		s.notify(ctx, recap, notifyAddress)
	}
	return recap, nil
}

// FinalizeSourceID is the ledger source id of a finalize movement.
func FinalizeSourceID(sessionID id.ID, productID int64) string {
	return fmt.Sprintf("%s:%d", sessionID, productID)
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, sessionID id.ID) (*Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// List returns sessions, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status *Status) ([]Session, error) {
	if status != nil && !status.Valid() {
		return nil, apperror.NewValidation("invalid session status").WithDetail("status", *status)
	}
	return s.repo.ListSessions(ctx, status)
}

func (s *Service) notify(ctx context.Context, recap *Recap, to string) {
	if s.opts.Sender == nil {
		logger.Info(ctx, "notification skipped, no sender configured", "session_id", recap.Session.ID)
		return
	}

	msg := RecapMessage(recap, to)
	err := s.opts.Sender.Send(ctx, msg)
	if err == nil {
		metrics.RecordNotification("sent")
		return
	}

	logger.Warn(ctx, "inventory recap notification failed",
		"session_id", recap.Session.ID,
		"to", to,
		"error", err,
	)
	if s.opts.Queue == nil {
		metrics.RecordNotification("failed")
		return
	}
	if qerr := s.opts.Queue.Enqueue(context.WithoutCancel(ctx), msg, err); qerr != nil {
		metrics.RecordNotification("failed")
		logger.Error(ctx, "queue recap notification failed", "session_id", recap.Session.ID, "error", qerr)
		return
	}
	metrics.RecordNotification("queued")
}

func (s *Service) invalidate(ctx context.Context, sessionID id.ID) {
	if s.opts.Cache != nil {
		s.opts.Cache.Invalidate(ctx, sessionID)
	}
}

// RecapMessage renders the finalize recap as a plain-text mail.
func RecapMessage(recap *Recap, to string) notify.Message {
	st := recap.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Inventaire \"%s\" clôturé", recap.Session.Name)
	if recap.Session.FinalizedBy != nil && *recap.Session.FinalizedBy != "" {
		fmt.Fprintf(&b, " par %s", *recap.Session.FinalizedBy)
	}
	if recap.Session.EndedAt != nil {
		fmt.Fprintf(&b, " le %s", recap.Session.EndedAt.Format("02/01/2006 15:04"))
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Lignes traitées : %d\n", st.LinesProcessed)
	fmt.Fprintf(&b, "Produits comptés : %d\n", st.NonzeroCountProducts)
	fmt.Fprintf(&b, "Produits ajustés : %d\n", st.AdjustedProducts)
	fmt.Fprintf(&b, "Valeur inventoriée : %s\n", st.TotalInventoriedValue.StringFixed(2))
	fmt.Fprintf(&b, "Écart net (quantité) : %s\n", st.NetDeltaQty.String())
	fmt.Fprintf(&b, "Écart net (valeur) : %s\n", st.DeltaValue.StringFixed(2))

	return notify.Message{
		Ref:     recap.Session.ID.String(),
		To:      to,
		Subject: fmt.Sprintf("Inventaire clôturé : %s", recap.Session.Name),
		Body:    b.String(),
	}
}
