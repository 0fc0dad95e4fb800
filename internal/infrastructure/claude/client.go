package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

const (
	defaultModel     = "claude-3-haiku-20240307"
	defaultMaxTokens = 500
	minRationaleLen  = 50
)

var errEmptyResponse = errors.New("empty response")

// messagesAPI is the slice of the Anthropic messages service used here.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client writes short plain-English rationales for picks. Without an API key,
// or when the API call fails, it falls back to a deterministic template.
type Client struct {
	messages  messagesAPI
	model     string
	maxTokens int64
	log       *logger.Logger
}

var _ domain.RationaleGenerator = (*Client)(nil)

func NewClient(cfg config.AnthropicConfig, log *logger.Logger) *Client {
	c := &Client{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       log,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if !cfg.Enabled || cfg.APIKey == "" || strings.HasPrefix(cfg.APIKey, "mock_") {
		log.Info("Claude rationales disabled, using template fallback")
		return c
	}
	api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	c.messages = &api.Messages
	return c
}

// Live reports whether rationales come from the API.
func (c *Client) Live() bool {
	return c.messages != nil
}

// Rationale never fails: API problems are logged and the template is used instead.
func (c *Client) Rationale(ctx context.Context, p domain.Pick) (string, error) {
	if c.messages == nil {
		return Fallback(p), nil
	}
	text, err := c.generate(ctx, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.log.Warnw("Claude request failed, using fallback", "symbol", p.Symbol, "strategy", p.Strategy, "error", err)
		return Fallback(p), nil
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, p domain.Pick) (string, error) {
	prompt, err := Prompt(p)
	if err != nil {
		return "", err
	}
	c.log.Debugw("Generating rationale", "symbol", p.Symbol, "strategy", p.Strategy, "strike", p.Strike)

	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0.7),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errEmptyResponse
	}
	if len(text) < minRationaleLen {
		c.log.Warnw("Rationale looks too short", "symbol", p.Symbol, "chars", len(text))
	} else if !strings.ContainsAny(text[len(text)-1:], ".!?") {
		c.log.Warnw("Rationale may be truncated", "symbol", p.Symbol, "chars", len(text))
	}
	return text, nil
}

var promptTmpl = template.Must(template.New("prompt").Parse(
	`You are an options mentor. Summarize this pick for a newer investor (≤120 words).
Explain why it's attractive, key risks, and when to re-evaluate. Use plain English.

DATA:
Symbol: {{.Symbol}}
Strategy: {{.Strategy}}
Current Price: ${{printf "%.2f" .StockPrice}}
Strike: ${{printf "%.2f" .Strike}}
Expiry: {{.Expiry}}
Premium: ${{printf "%.2f" .Premium}}

KEY METRICS:
- ROI (30-day): {{printf "%.2f" .ROIPct}}%
- IV Rank: {{printf "%.1f" .IVRank}}%
- Score: {{printf "%.2f" .Score}}/1.0
{{- range .Extra}}
- {{.}}
{{- end}}

TECHNICAL:
- Trend: {{.Trend}}
- Above/Below 200 SMA: {{.SMAPosition}}

NOTES: {{.Notes}}
{{- if .Breakdown}}

SCORE BREAKDOWN:
{{- range .Breakdown}}
- {{.}}
{{- end}}
{{- end}}
`))

type promptData struct {
	Symbol      string
	Strategy    domain.Strategy
	StockPrice  float64
	Strike      float64
	Expiry      string
	Premium     float64
	ROIPct      float64
	IVRank      float64
	Score       float64
	Extra       []string
	Trend       string
	SMAPosition string
	Notes       string
	Breakdown   []string
}

// Prompt renders the mentor prompt for one pick.
func Prompt(p domain.Pick) (string, error) {
	data := promptData{
		Symbol:      p.Symbol,
		Strategy:    p.Strategy,
		StockPrice:  p.StockPrice,
		Strike:      p.Strike,
		Expiry:      p.Expiry.Format(domain.DateLayout),
		Premium:     p.Premium,
		ROIPct:      p.ROI30d * 100,
		IVRank:      p.IVRank,
		Score:       p.Score,
		Trend:       TrendLabel(p.TrendStrength),
		SMAPosition: "Above",
		Notes:       p.Notes,
	}
	if p.Below200SMA {
		data.SMAPosition = "Below"
	}
	if data.Notes == "" {
		data.Notes = "Standard setup"
	}
	switch p.Strategy {
	case domain.StrategyCashSecuredPut:
		data.Extra = append(data.Extra, fmt.Sprintf("Safety Margin: %.1f%% OTM", p.MarginOfSafety*100))
	case domain.StrategyCoveredCall:
		data.Extra = append(data.Extra, fmt.Sprintf("Dividend Yield: %.2f%%", p.DividendYield*100))
	}
	if drivers := topDrivers(p.Breakdown, 2); drivers != "" {
		data.Extra = append(data.Extra, "Main score drivers: "+drivers)
		data.Breakdown = p.Breakdown.Explain()
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func TrendLabel(strength float64) string {
	switch {
	case strength > 0.5:
		return "Strong uptrend"
	case strength > 0:
		return "Mild uptrend"
	case strength > -0.5:
		return "Sideways/weak"
	default:
		return "Downtrend"
	}
}

// topDrivers names the n largest weighted components, e.g. "roi_30d, iv_rank".
func topDrivers(b domain.ScoreBreakdown, n int) string {
	if len(b.Components) == 0 {
		return ""
	}
	comps := append([]domain.Component(nil), b.Components...)
	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Value > comps[j].Value
	})
	if n > len(comps) {
		n = len(comps)
	}
	names := make([]string, 0, n)
	for _, c := range comps[:n] {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

// Fallback is the template rationale used when the API is unavailable.
func Fallback(p domain.Pick) string {
	var sb strings.Builder
	switch p.Strategy {
	case domain.StrategyCashSecuredPut:
		fmt.Fprintf(&sb, "Selling the %s %.2f put on %s collects $%.2f, about %.1f%% over 30 days, with the strike %.1f%% below the current price.",
			p.Expiry.Format(domain.DateLayout), p.Strike, p.Symbol, p.Premium, p.ROI30d*100, p.MarginOfSafety*100)
		sb.WriteString(" The risk is being assigned shares at the strike if the stock falls.")
	default:
		fmt.Fprintf(&sb, "Selling the %s %.2f call against %s shares collects $%.2f, about %.1f%% over 30 days.",
			p.Expiry.Format(domain.DateLayout), p.Strike, p.Symbol, p.Premium, p.ROI30d*100)
		sb.WriteString(" The risk is having the shares called away if the stock rallies past the strike.")
	}
	fmt.Fprintf(&sb, " IV rank is %.0f and the trend reads %s.", p.IVRank, strings.ToLower(TrendLabel(p.TrendStrength)))
	if p.EarningsDaysUntil != nil && *p.EarningsDaysUntil >= 0 {
		fmt.Fprintf(&sb, " Earnings are due in %d days.", *p.EarningsDaysUntil)
	}
	sb.WriteString(" Re-evaluate if the stock moves through the strike or at 21 days to expiry.")
	return sb.String()
}
