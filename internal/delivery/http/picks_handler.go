package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// PicksHandler serves ranked picks and the sentiment scan log. Requests for the
// latest run are answered from the latest-run store; older dates go to the repository.
type PicksHandler struct {
	latest domain.LatestPicksStore
	repo   domain.PickRepository
	log    *logger.Logger
}

func NewPicksHandler(latest domain.LatestPicksStore, repo domain.PickRepository, log *logger.Logger) *PicksHandler {
	return &PicksHandler{latest: latest, repo: repo, log: log}
}

type PicksResponse struct {
	AsOf    string             `json:"asof,omitempty"`
	Summary *domain.RunSummary `json:"summary,omitempty"`
	Picks   []domain.Pick      `json:"picks"`
}

type ScanLogResponse struct {
	AsOf    string                `json:"asof,omitempty"`
	Entries []domain.ScanLogEntry `json:"entries"`
}

// GetPicks handles GET /api/picks?date=YYYY-MM-DD&strategy=CC|CSP
func (h *PicksHandler) GetPicks(w http.ResponseWriter, r *http.Request) {
	strategy, ok := parseStrategy(r.URL.Query().Get("strategy"))
	if !ok {
		http.Error(w, "strategy must be CC or CSP", http.StatusBadRequest)
		return
	}
	date, ok := parseDate(r.URL.Query().Get("date"))
	if !ok {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	resp := PicksResponse{Picks: []domain.Pick{}}
	snap, found, err := h.snapshotFor(r.Context(), date)
	if err != nil {
		h.fail(w, "load latest snapshot", err)
		return
	}
	switch {
	case found:
		resp.AsOf = snap.AsOf.Format(domain.DateLayout)
		resp.Summary = &snap.Summary
		for _, p := range snap.Picks {
			if strategy == "" || p.Strategy == strategy {
				resp.Picks = append(resp.Picks, p)
			}
		}
	case !date.IsZero():
		resp.AsOf = date.Format(domain.DateLayout)
		picks, err := h.repo.PicksForDate(r.Context(), date, strategy)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.fail(w, "load picks", err)
			return
		}
		if len(picks) > 0 {
			resp.Picks = picks
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetScanLog handles GET /api/scanlog?date=YYYY-MM-DD
func (h *PicksHandler) GetScanLog(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(r.URL.Query().Get("date"))
	if !ok {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	resp := ScanLogResponse{Entries: []domain.ScanLogEntry{}}
	snap, found, err := h.snapshotFor(r.Context(), date)
	if err != nil {
		h.fail(w, "load latest snapshot", err)
		return
	}
	switch {
	case found:
		resp.AsOf = snap.AsOf.Format(domain.DateLayout)
		if len(snap.ScanLog) > 0 {
			resp.Entries = snap.ScanLog
		}
	case !date.IsZero():
		resp.AsOf = date.Format(domain.DateLayout)
		entries, err := h.repo.ScanLogForDate(r.Context(), date)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.fail(w, "load scan log", err)
			return
		}
		if len(entries) > 0 {
			resp.Entries = entries
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// snapshotFor returns the latest snapshot when date is zero or matches its asof.
func (h *PicksHandler) snapshotFor(ctx context.Context, date time.Time) (domain.RunSnapshot, bool, error) {
	snap, err := h.latest.LatestSnapshot(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RunSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RunSnapshot{}, false, err
	}
	if !date.IsZero() && snap.AsOf.Format(domain.DateLayout) != date.Format(domain.DateLayout) {
		return domain.RunSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (h *PicksHandler) fail(w http.ResponseWriter, what string, err error) {
	h.log.Errorw("Request failed", "op", what, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseStrategy(v string) (domain.Strategy, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "":
		return "", true
	case string(domain.StrategyCoveredCall):
		return domain.StrategyCoveredCall, true
	case string(domain.StrategyCashSecuredPut):
		return domain.StrategyCashSecuredPut, true
	default:
		return "", false
	}
}

// parseDate returns the zero time for an empty value.
func parseDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
