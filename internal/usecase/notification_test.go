package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

func scoredPick(id, symbol string, strategy domain.Strategy, score float64) domain.Pick {
	return domain.Pick{
		ID:       id,
		AsOf:     testAsOf,
		Symbol:   symbol,
		Strategy: strategy,
		Strike:   100,
		Expiry:   testAsOf.AddDate(0, 0, 35),
		Score:    score,
	}
}

func TestSelectForAlert(t *testing.T) {
	picks := []domain.Pick{
		scoredPick("1", "AAA", domain.StrategyCoveredCall, 0.81),
		scoredPick("2", "BBB", domain.StrategyCoveredCall, 0.72),
		scoredPick("3", "CCC", domain.StrategyCoveredCall, 0.65),
		scoredPick("4", "DDD", domain.StrategyCoveredCall, 0.40),
		scoredPick("5", "AAA", domain.StrategyCashSecuredPut, 0.90),
		scoredPick("6", "EEE", domain.StrategyCashSecuredPut, 0.72),
	}
	cfg := config.AlertConfig{TopNPerStrategy: 2, ScoreThreshold: 0.5, MaxPicks: 10}

	got := SelectForAlert(picks, cfg)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	// BBB and EEE tie at 0.72 and sort by symbol
	assert.Equal(t, []string{"5", "1", "2", "6"}, ids)

	cfg.MaxPicks = 3
	assert.Len(t, SelectForAlert(picks, cfg), 3)

	cfg.ScoreThreshold = 0.95
	assert.Empty(t, SelectForAlert(picks, cfg))
}

func TestSortPicks_Deterministic(t *testing.T) {
	picks := []domain.Pick{
		scoredPick("a", "ZZZ", domain.StrategyCoveredCall, 0.5),
		scoredPick("b", "AAA", domain.StrategyCashSecuredPut, 0.5),
		scoredPick("c", "AAA", domain.StrategyCoveredCall, 0.5),
		scoredPick("d", "MMM", domain.StrategyCoveredCall, 0.9),
	}
	SortPicks(picks)
	got := []string{picks[0].ID, picks[1].ID, picks[2].ID, picks[3].ID}
	assert.Equal(t, []string{"d", "c", "b", "a"}, got)
}

func TestNotifier_DeliversAndRecords(t *testing.T) {
	repo := newFakePickRepo()
	good := &fakeSender{name: "telegram"}
	flaky := &fakeSender{name: "fcm", failFor: map[string]bool{"BBB": true}}
	off := &fakeSender{name: "off", disabled: true}

	n := NewNotifier(config.DefaultAlerts(), repo, fakeRationale{}, nil, good, flaky, off)
	picks := []domain.Pick{
		scoredPick("p1", "AAA", domain.StrategyCoveredCall, 0.8),
		scoredPick("p2", "BBB", domain.StrategyCashSecuredPut, 0.7),
		scoredPick("p3", "CCC", domain.StrategyCoveredCall, 0.2),
	}

	res := n.Notify(context.Background(), domain.RunSummary{AsOf: testAsOf}, picks)

	require.Len(t, res.Alerted, 2)
	assert.Equal(t, "AAA CC rationale", res.Alerted[0].Rationale)
	assert.Equal(t, map[string]string{"p1": "AAA CC rationale", "p2": "BBB CSP rationale"}, res.Rationales)
	assert.Equal(t, res.Rationales, repo.rationales)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, 1, good.digests)
	assert.Equal(t, []string{"AAA/CC", "BBB/CSP"}, good.sent)
	assert.Equal(t, []string{"AAA/CC"}, flaky.sent)
	assert.Zero(t, off.digests)

	require.Len(t, repo.alerts, 4)
	var failed []domain.AlertRecord
	for _, rec := range repo.alerts {
		if rec.Status == domain.AlertStatusFailed {
			failed = append(failed, rec)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "p2", failed[0].PickID)
	assert.Equal(t, "fcm", failed[0].Channel)
	assert.Equal(t, "channel unavailable", failed[0].Error)
}

func TestNotifier_RationaleFailureStillSends(t *testing.T) {
	repo := newFakePickRepo()
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier(config.DefaultAlerts(), repo, fakeRationale{err: errors.New("quota")}, nil, sender)

	res := n.Notify(context.Background(), domain.RunSummary{}, []domain.Pick{
		scoredPick("p1", "AAA", domain.StrategyCoveredCall, 0.8),
	})

	assert.Empty(t, res.Rationales)
	assert.Empty(t, repo.rationales)
	assert.Equal(t, 1, res.Sent)
}

func TestNotifier_Cooldown(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier(config.DefaultAlerts(), nil, nil, nil, sender)
	now := testAsOf.Add(16 * time.Hour)
	n.now = func() time.Time { return now }

	picks := []domain.Pick{scoredPick("p1", "AAA", domain.StrategyCoveredCall, 0.8)}

	first := n.Notify(context.Background(), domain.RunSummary{}, picks)
	assert.Len(t, first.Alerted, 1)

	now = now.Add(2 * time.Hour)
	again := n.Notify(context.Background(), domain.RunSummary{}, picks)
	assert.Empty(t, again.Alerted)
	assert.Equal(t, 1, sender.digests)

	// a different strike is a different alert
	moved := picks[0]
	moved.Strike = 105
	other := n.Notify(context.Background(), domain.RunSummary{}, []domain.Pick{moved})
	assert.Len(t, other.Alerted, 1)

	now = now.Add(alertCooldown)
	later := n.Notify(context.Background(), domain.RunSummary{}, picks)
	assert.Len(t, later.Alerted, 1)
}
