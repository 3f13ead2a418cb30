package memstore

import (
	"context"
	"slices"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/id"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/inventory"
)

type InventoryRepo struct{ s *Store }

func (r *InventoryRepo) FindOpenByName(_ context.Context, name string) (*inventory.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.st.sessions {
		if sess.Name == name && sess.Status == inventory.StatusOpen {
			return &sess, nil
		}
	}
	return nil, nil
}

func (r *InventoryRepo) CreateSession(_ context.Context, sess *inventory.Session) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.sessions {
		if existing.Name == sess.Name && existing.Status == inventory.StatusOpen {
			return false, nil
		}
	}
	r.s.st.sessions[sess.ID] = *sess
	return true, nil
}

func (r *InventoryRepo) GetSession(_ context.Context, sessionID id.ID) (*inventory.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.st.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("inventory session", sessionID)
	}
	return &sess, nil
}

// Row locks are implied by the store's transaction lock.
func (r *InventoryRepo) GetSessionForShare(ctx context.Context, sessionID id.ID) (*inventory.Session, error) {
	return r.GetSession(ctx, sessionID)
}

func (r *InventoryRepo) GetSessionForUpdate(ctx context.Context, sessionID id.ID) (*inventory.Session, error) {
	return r.GetSession(ctx, sessionID)
}

func (r *InventoryRepo) UpdateStatus(_ context.Context, sessionID id.ID, status inventory.Status, finalizedBy *string, endedAt *time.Time) error {
	if err := r.s.injected("UpdateStatus:" + string(status)); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.st.sessions[sessionID]
	if !ok {
		return apperror.NewNotFound("inventory session", sessionID)
	}
	sess.Status = status
	if finalizedBy != nil {
		sess.FinalizedBy = finalizedBy
	}
	if endedAt != nil {
		sess.EndedAt = endedAt
	}
	r.s.st.sessions[sessionID] = sess
	return nil
}

func (r *InventoryRepo) ListSessions(_ context.Context, status *inventory.Status) ([]inventory.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.Session
	for _, sess := range r.s.st.sessions {
		if status == nil || sess.Status == *status {
			out = append(out, sess)
		}
	}
	slices.SortFunc(out, func(a, b inventory.Session) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

func (r *InventoryRepo) InsertSnapshots(_ context.Context, rows []inventory.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		m, ok := r.s.st.snapshots[row.SessionID]
		if !ok {
			m = map[int64]inventory.Snapshot{}
			r.s.st.snapshots[row.SessionID] = m
		}
		m[row.ProductID] = row
	}
	return nil
}

func (r *InventoryRepo) SnapshotExists(_ context.Context, sessionID id.ID, productID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.snapshots[sessionID][productID]
	return ok, nil
}

func (r *InventoryRepo) AddCount(_ context.Context, c inventory.Count) (types.Quantity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := countKey{session: c.SessionID, product: c.ProductID, device: c.DeviceID}
	if existing, ok := r.s.st.counts[key]; ok {
		existing.Qty += c.Qty
		existing.Operator = c.Operator
		existing.UpdatedAt = c.UpdatedAt
		r.s.st.counts[key] = existing
		return existing.Qty, nil
	}
	r.s.st.counts[key] = c
	return c.Qty, nil
}

func (r *InventoryRepo) SummaryRows(_ context.Context, sessionID id.ID) ([]inventory.SummaryRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []inventory.SummaryRow
	for _, snap := range r.s.st.snapshots[sessionID] {
		row := inventory.SummaryRow{
			ProductID:   snap.ProductID,
			ProductName: r.s.st.products[snap.ProductID].Name,
			StockStart:  snap.StockStart,
			UnitCost:    snap.UnitCost,
		}
		for k, c := range r.s.st.counts {
			if k.session == sessionID && k.product == snap.ProductID {
				row.CountedTotal += c.Qty
				row.Devices++
				row.Counted = true
			}
		}
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b inventory.SummaryRow) int { return cmpInt64(a.ProductID, b.ProductID) })
	return out, nil
}

func (r *InventoryRepo) InsertAdjust(_ context.Context, a inventory.Adjust) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := adjustKey{session: a.SessionID, product: a.ProductID}
	if _, ok := r.s.st.adjusts[key]; ok {
		return false, nil
	}
	r.s.st.adjusts[key] = a
	return true, nil
}
