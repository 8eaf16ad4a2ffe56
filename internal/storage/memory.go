// Package storage keeps the recent flush history in memory so the admin API
// can show what the scheduler has been doing without a database.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

// DefaultHistorySize is how many reports the admin view keeps.
const DefaultHistorySize = 50

// ErrNotFound is returned by Get for unknown report ids.
var ErrNotFound = errors.New("flush report not found")

// HistoryStore is a bounded ring of flush reports guarded by an RWMutex;
// admin reads vastly outnumber writes, which happen a few times a day.
type HistoryStore struct {
	mu      sync.RWMutex
	reports []batch.Report
	limit   int
}

// NewHistoryStore keeps at most limit reports, DefaultHistorySize when limit
// is not positive.
func NewHistoryStore(limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &HistoryStore{limit: limit}
}

// Save records a report, evicting the oldest one when full.
func (h *HistoryStore) Save(r batch.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	if over := len(h.reports) - h.limit; over > 0 {
		h.reports = append([]batch.Report(nil), h.reports[over:]...)
	}
}

// Hook adapts Save to batch.Hook.
func (h *HistoryStore) Hook(_ context.Context, r batch.Report, _ model.Batch) {
	h.Save(r)
}

// Recent returns up to n reports, newest first. n <= 0 means all.
func (h *HistoryStore) Recent(n int) []batch.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.reports) {
		n = len(h.reports)
	}
	out := make([]batch.Report, 0, n)
	for i := len(h.reports) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.reports[i])
	}
	return out
}

// Get returns the report with the given id.
func (h *HistoryStore) Get(id string) (batch.Report, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return batch.Report{}, ErrNotFound
}
