package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"income-screener/internal/domain"
)

type fakePickRepo struct {
	mu         sync.Mutex
	picks      map[string][]domain.Pick
	scanLog    map[string][]domain.ScanLogEntry
	rationales map[string]string
	alerts     []domain.AlertRecord
	saveErr    error
}

func newFakePickRepo() *fakePickRepo {
	return &fakePickRepo{
		picks:      make(map[string][]domain.Pick),
		scanLog:    make(map[string][]domain.ScanLogEntry),
		rationales: make(map[string]string),
	}
}

func (r *fakePickRepo) SavePicks(_ context.Context, asof time.Time, picks []domain.Pick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.picks[asof.Format(domain.DateLayout)] = append([]domain.Pick(nil), picks...)
	return nil
}

func (r *fakePickRepo) SaveScanLog(_ context.Context, asof time.Time, entries []domain.ScanLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanLog[asof.Format(domain.DateLayout)] = append([]domain.ScanLogEntry(nil), entries...)
	return nil
}

func (r *fakePickRepo) SaveRationale(_ context.Context, pickID, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rationales[pickID] = summary
	return nil
}

func (r *fakePickRepo) RecordAlert(_ context.Context, rec domain.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, rec)
	return nil
}

func (r *fakePickRepo) PicksForDate(_ context.Context, asof time.Time, strategy domain.Strategy) ([]domain.Pick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Pick
	for _, p := range r.picks[asof.Format(domain.DateLayout)] {
		if strategy == "" || p.Strategy == strategy {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePickRepo) ScanLogForDate(_ context.Context, asof time.Time) ([]domain.ScanLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanLog[asof.Format(domain.DateLayout)], nil
}

type fakeSender struct {
	name     string
	disabled bool
	failFor  map[string]bool

	mu      sync.Mutex
	digests int
	sent    []string
}

func (s *fakeSender) Name() string { return s.name }
func (s *fakeSender) Enabled() bool { return !s.disabled }

func (s *fakeSender) SendDigest(_ context.Context, _ domain.RunSummary, _ []domain.Pick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests++
	return nil
}

func (s *fakeSender) SendPick(_ context.Context, p domain.Pick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[p.Symbol] {
		return errors.New("channel unavailable")
	}
	s.sent = append(s.sent, p.Symbol+"/"+string(p.Strategy))
	return nil
}

type fakeRationale struct {
	err error
}

func (f fakeRationale) Rationale(_ context.Context, p domain.Pick) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return p.Symbol + " " + string(p.Strategy) + " rationale", nil
}

type fakeIVRepo struct {
	mu      sync.Mutex
	history map[string][]float64
	appends map[string]float64
}

func newFakeIVRepo() *fakeIVRepo {
	return &fakeIVRepo{history: make(map[string][]float64), appends: make(map[string]float64)}
}

func (r *fakeIVRepo) AppendIV(_ context.Context, symbol string, _ time.Time, iv float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends[symbol] = iv
	return nil
}

func (r *fakeIVRepo) TrailingIV(_ context.Context, symbol string, _ time.Time, limit int) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[symbol]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]float64(nil), h...), nil
}

type fakeLatest struct {
	mu   sync.Mutex
	snap *domain.RunSnapshot
}

func (l *fakeLatest) SaveSnapshot(_ context.Context, snap domain.RunSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = &snap
	return nil
}

func (l *fakeLatest) LatestSnapshot(_ context.Context) (domain.RunSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap == nil {
		return domain.RunSnapshot{}, domain.ErrNotFound
	}
	return *l.snap, nil
}

type staticUniverse []string

func (u staticUniverse) Symbols(context.Context) ([]string, error) {
	return []string(u), nil
}
