package telegram

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"income-screener/internal/domain"
)

const rule = "━━━━━━━━━━━━━━━"

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func strategyLabel(s domain.Strategy) string {
	if s == domain.StrategyCashSecuredPut {
		return "💰 CSP"
	}
	return "📞 CC"
}

// FormatPick renders one pick with its rationale, if any.
func FormatPick(p domain.Pick) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Pick: %s*\n%s\n", strategyLabel(p.Strategy), esc(p.Symbol), rule)
	fmt.Fprintf(&b, "📊 Spot: $%.2f\n", p.StockPrice)
	fmt.Fprintf(&b, "🎯 Strike: $%.2f (%s, %d DTE)\n", p.Strike, p.Expiry.Format(domain.DateLayout), p.DTE)
	fmt.Fprintf(&b, "💵 Premium: $%.2f\n", p.Premium)

	b.WriteString("\n📈 *Metrics:*\n")
	fmt.Fprintf(&b, "• ROI (30d): %.2f%%\n", p.ROI30d*100)
	fmt.Fprintf(&b, "• Annualized: %.1f%%\n", p.AnnualizedReturn*100)
	fmt.Fprintf(&b, "• IV Rank: %.1f\n", p.IVRank)
	fmt.Fprintf(&b, "• Score: %.2f/1.0\n", p.Score)
	if p.Strategy == domain.StrategyCashSecuredPut {
		fmt.Fprintf(&b, "• Safety: %.1f%% OTM\n", p.MarginOfSafety*100)
	}
	if p.Signal == domain.SignalLong || p.Signal == domain.SignalShort {
		fmt.Fprintf(&b, "• Sentiment: contrarian %s\n", p.Signal)
	}

	if p.Notes != "" {
		fmt.Fprintf(&b, "\n📝 *Notes:* %s\n", esc(p.Notes))
	}
	if p.Rationale != "" {
		fmt.Fprintf(&b, "\n🤖 *Analysis:*\n%s\n", esc(p.Rationale))
	}
	fmt.Fprintf(&b, "\n%s\n⏰ %s", rule, p.AsOf.Format(domain.DateLayout))
	return b.String()
}

// FormatDigest is the header plus per-strategy counts, average score and the top three.
func FormatDigest(summary domain.RunSummary, picks []domain.Pick) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *Daily Options Picks - %s*\n", summary.AsOf.Format(domain.DateLayout))
	fmt.Fprintf(&b, "Found %d opportunities across %d symbols\n", len(picks), summary.Universe)
	if summary.Filter.Total > 0 && summary.Filter.Selected < summary.Filter.Total {
		fmt.Fprintf(&b, "Sentiment filter kept %d of %d\n", summary.Filter.Selected, summary.Filter.Total)
	}

	b.WriteString("\n*Picks Found:*\n")
	for _, s := range []domain.Strategy{domain.StrategyCoveredCall, domain.StrategyCashSecuredPut} {
		n, sum := 0, 0.0
		for _, p := range picks {
			if p.Strategy == s {
				n++
				sum += p.Score
			}
		}
		if n == 0 {
			fmt.Fprintf(&b, "• %s: none\n", s)
			continue
		}
		fmt.Fprintf(&b, "• %s: %d picks (avg score: %.2f)\n", s, n, sum/float64(n))
	}

	top := make([]domain.Pick, len(picks))
	copy(top, picks)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) > 0 {
		b.WriteString("\n*Top Performers:*\n")
		medals := []string{"🥇", "🥈", "🥉"}
		for i, p := range top {
			fmt.Fprintf(&b, "%s %s (%s): %.2f%% ROI, Score: %.2f\n", medals[i], esc(p.Symbol), p.Strategy, p.ROI30d*100, p.Score)
		}
	}
	if summary.Failed > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d symbols failed", summary.Failed)
	}
	return strings.TrimRight(b.String(), "\n")
}
