package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"income-screener/internal/domain"
)

// InMemoryPickRepository is used when no DATABASE_URL is configured and in tests.
// It implements PickRepository, IVHistoryRepository and LatestPicksStore.
type InMemoryPickRepository struct {
	picks      map[string][]domain.Pick
	scanLog    map[string][]domain.ScanLogEntry
	rationales map[string]string
	alerts     []domain.AlertRecord
	ivHistory  map[string]map[string]float64
	latest     *domain.RunSnapshot
	mu         sync.RWMutex
}

func NewInMemoryPickRepository() *InMemoryPickRepository {
	return &InMemoryPickRepository{
		picks:      make(map[string][]domain.Pick),
		scanLog:    make(map[string][]domain.ScanLogEntry),
		rationales: make(map[string]string),
		ivHistory:  make(map[string]map[string]float64),
	}
}

func dateKey(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// SavePicks replaces the picks for asof, so a rerun of the same day is idempotent.
func (r *InMemoryPickRepository) SavePicks(_ context.Context, asof time.Time, picks []domain.Pick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]domain.Pick, len(picks))
	copy(cp, picks)
	r.picks[dateKey(asof)] = cp
	return nil
}

func (r *InMemoryPickRepository) SaveScanLog(_ context.Context, asof time.Time, entries []domain.ScanLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]domain.ScanLogEntry, len(entries))
	copy(cp, entries)
	r.scanLog[dateKey(asof)] = cp
	return nil
}

func (r *InMemoryPickRepository) SaveRationale(_ context.Context, pickID, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rationales[pickID] = summary
	return nil
}

func (r *InMemoryPickRepository) RecordAlert(_ context.Context, rec domain.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, rec)
	return nil
}

// PicksForDate returns the stored picks with rationales attached. An empty
// strategy returns both.
func (r *InMemoryPickRepository) PicksForDate(_ context.Context, asof time.Time, strategy domain.Strategy) ([]domain.Pick, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.picks[dateKey(asof)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.Pick, 0, len(stored))
	for _, p := range stored {
		if strategy != "" && p.Strategy != strategy {
			continue
		}
		if text, ok := r.rationales[p.ID]; ok {
			p.Rationale = text
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *InMemoryPickRepository) ScanLogForDate(_ context.Context, asof time.Time) ([]domain.ScanLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.scanLog[dateKey(asof)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.ScanLogEntry, len(stored))
	copy(out, stored)
	return out, nil
}

// Alerts returns every recorded delivery attempt.
func (r *InMemoryPickRepository) Alerts() []domain.AlertRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AlertRecord, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// AppendIV upserts the observation for (symbol, asof).
func (r *InMemoryPickRepository) AppendIV(_ context.Context, symbol string, asof time.Time, iv float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	days, ok := r.ivHistory[symbol]
	if !ok {
		days = make(map[string]float64)
		r.ivHistory[symbol] = days
	}
	days[dateKey(asof)] = iv
	return nil
}

func (r *InMemoryPickRepository) TrailingIV(_ context.Context, symbol string, asof time.Time, limit int) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := dateKey(asof)
	var keys []string
	for k := range r.ivHistory[symbol] {
		// layout sorts lexically
		if k < cutoff {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = r.ivHistory[symbol][k]
	}
	return out, nil
}

func (r *InMemoryPickRepository) SaveSnapshot(_ context.Context, snap domain.RunSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = &snap
	return nil
}

func (r *InMemoryPickRepository) LatestSnapshot(_ context.Context) (domain.RunSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return domain.RunSnapshot{}, domain.ErrNotFound
	}
	return *r.latest, nil
}
