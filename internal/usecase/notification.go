package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// alertCooldown stops a rerun on the same day from re-sending identical picks.
const alertCooldown = 20 * time.Hour

// NotifyResult counts deliveries across all channels and carries the
// rationales generated for the alerted picks, keyed by pick ID.
type NotifyResult struct {
	Alerted    []domain.Pick
	Rationales map[string]string
	Sent       int
	Failed     int
}

type Notifier struct {
	senders   []domain.AlertSender
	rationale domain.RationaleGenerator
	repo      domain.PickRepository
	cfg       config.AlertConfig
	log       *logger.Logger
	now       func() time.Time

	notified map[string]time.Time
	mu       sync.RWMutex
}

func NewNotifier(cfg config.AlertConfig, repo domain.PickRepository, rationale domain.RationaleGenerator, log *logger.Logger, senders ...domain.AlertSender) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{
		senders:   senders,
		rationale: rationale,
		repo:      repo,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		notified:  make(map[string]time.Time),
	}
}

// SelectForAlert keeps the top N picks per strategy at or above the score
// threshold, merges them by score and caps the total.
func SelectForAlert(picks []domain.Pick, cfg config.AlertConfig) []domain.Pick {
	byStrategy := make(map[domain.Strategy][]domain.Pick)
	for _, p := range picks {
		if p.Score < cfg.ScoreThreshold {
			continue
		}
		byStrategy[p.Strategy] = append(byStrategy[p.Strategy], p)
	}

	var out []domain.Pick
	for _, strategy := range []domain.Strategy{domain.StrategyCoveredCall, domain.StrategyCashSecuredPut} {
		list := byStrategy[strategy]
		SortPicks(list)
		if cfg.TopNPerStrategy > 0 && len(list) > cfg.TopNPerStrategy {
			list = list[:cfg.TopNPerStrategy]
		}
		out = append(out, list...)
	}
	SortPicks(out)
	if cfg.MaxPicks > 0 && len(out) > cfg.MaxPicks {
		out = out[:cfg.MaxPicks]
	}
	return out
}

// SortPicks orders by score descending, then symbol and strategy for stability.
func SortPicks(picks []domain.Pick) {
	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].Score != picks[j].Score {
			return picks[i].Score > picks[j].Score
		}
		if picks[i].Symbol != picks[j].Symbol {
			return picks[i].Symbol < picks[j].Symbol
		}
		return picks[i].Strategy < picks[j].Strategy
	})
}

// Notify writes rationales for the alert picks and pushes them to every
// enabled channel. Delivery failures are recorded, never returned.
func (n *Notifier) Notify(ctx context.Context, summary domain.RunSummary, picks []domain.Pick) NotifyResult {
	res := NotifyResult{Rationales: make(map[string]string)}

	selected := SelectForAlert(picks, n.cfg)
	now := n.now()
	for _, p := range selected {
		if n.recentlyNotified(p, now) {
			n.log.Debugw("Skipping pick in cooldown", "symbol", p.Symbol, "strategy", p.Strategy)
			continue
		}
		res.Alerted = append(res.Alerted, p)
	}
	if len(res.Alerted) == 0 {
		n.log.Info("No picks above the alert threshold")
		return res
	}

	for i := range res.Alerted {
		p := &res.Alerted[i]
		text := n.generateRationale(ctx, *p)
		if text == "" {
			continue
		}
		p.Rationale = text
		res.Rationales[p.ID] = text
		if n.repo != nil {
			if err := n.repo.SaveRationale(ctx, p.ID, text); err != nil {
				n.log.Warnw("Failed to save rationale", "symbol", p.Symbol, "error", err)
			}
		}
	}

	for _, sender := range n.senders {
		if sender == nil || !sender.Enabled() {
			continue
		}
		if err := sender.SendDigest(ctx, summary, res.Alerted); err != nil {
			n.log.Warnw("Digest delivery failed", "channel", sender.Name(), "error", err)
		}
		for _, p := range res.Alerted {
			rec := domain.AlertRecord{PickID: p.ID, Channel: sender.Name(), SentAt: n.now()}
			if err := sender.SendPick(ctx, p); err != nil {
				rec.Status = domain.AlertStatusFailed
				rec.Error = err.Error()
				res.Failed++
				n.log.Warnw("Alert delivery failed",
					"channel", sender.Name(), "symbol", p.Symbol, "strategy", p.Strategy, "error", err)
			} else {
				rec.Status = domain.AlertStatusSent
				res.Sent++
			}
			if n.repo != nil {
				if err := n.repo.RecordAlert(ctx, rec); err != nil {
					n.log.Warnw("Failed to record alert", "pick_id", p.ID, "error", err)
				}
			}
		}
	}

	n.mu.Lock()
	for _, p := range res.Alerted {
		n.notified[alertKey(p)] = now
	}
	for key, ts := range n.notified {
		if now.Sub(ts) > alertCooldown {
			delete(n.notified, key)
		}
	}
	n.mu.Unlock()

	n.log.Infow("Alerts delivered", "picks", len(res.Alerted), "sent", res.Sent, "failed", res.Failed)
	return res
}

func (n *Notifier) generateRationale(ctx context.Context, p domain.Pick) string {
	if n.rationale == nil {
		return ""
	}
	text, err := n.rationale.Rationale(ctx, p)
	if err != nil {
		n.log.Warnw("Rationale generation failed", "symbol", p.Symbol, "error", err)
		return ""
	}
	return text
}

func (n *Notifier) recentlyNotified(p domain.Pick, now time.Time) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ts, ok := n.notified[alertKey(p)]
	return ok && now.Sub(ts) < alertCooldown
}

func alertKey(p domain.Pick) string {
	return fmt.Sprintf("%s|%s|%s", p.Symbol, p.Strategy, p.SelectedOption())
}
