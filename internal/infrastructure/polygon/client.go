package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

const (
	chainPageLimit = 250
	maxChainPages  = 20
)

// APIError is a non-200 response. 429 and 5xx are worth retrying.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polygon API error: %d %s", e.StatusCode, e.Body)
}

func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client implements domain.MarketDataProvider against the Polygon REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logger.Logger
	now        func() time.Time
}

func NewClient(cfg config.PolygonConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 5
	}
	st := gobreaker.Settings{
		Name:     "polygon",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a 404 for one symbol says nothing about the upstream
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60), max(1, perMin/60)),
		breaker:    gobreaker.NewCircuitBreaker(st),
		log:        log,
		now:        time.Now,
	}
}

type aggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
		Millis int64   `json:"t"`
	} `json:"results"`
}

type chainResponse struct {
	Results []struct {
		Details struct {
			ContractType   string  `json:"contract_type"`
			ExpirationDate string  `json:"expiration_date"`
			StrikePrice    float64 `json:"strike_price"`
			Ticker         string  `json:"ticker"`
		} `json:"details"`
		Greeks struct {
			Delta float64 `json:"delta"`
			Gamma float64 `json:"gamma"`
			Theta float64 `json:"theta"`
			Vega  float64 `json:"vega"`
		} `json:"greeks"`
		ImpliedVolatility float64 `json:"implied_volatility"`
		OpenInterest      float64 `json:"open_interest"`
		Day               struct {
			Volume float64 `json:"volume"`
		} `json:"day"`
		LastQuote struct {
			Bid float64 `json:"bid"`
			Ask float64 `json:"ask"`
		} `json:"last_quote"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

type dividendsResponse struct {
	Results []struct {
		CashAmount float64 `json:"cash_amount"`
		Frequency  int     `json:"frequency"`
		ExDate     string  `json:"ex_dividend_date"`
	} `json:"results"`
}

// DailyBars returns adjusted daily bars in ascending date order.
func (c *Client) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol), from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	q := url.Values{"adjusted": {"true"}, "sort": {"asc"}, "limit": {"50000"}}

	var resp aggsResponse
	if err := c.get(ctx, c.baseURL+path+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	bars := make([]domain.PriceBar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, domain.PriceBar{
			Symbol: symbol,
			Date:   domain.TruncateDay(time.UnixMilli(r.Millis).UTC()),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// OptionChain pages through the options snapshot for the underlying.
// Contracts without a two-sided quote are kept; the selector rejects them.
func (c *Client) OptionChain(ctx context.Context, symbol string, asof time.Time) ([]domain.OptionContract, error) {
	q := url.Values{"limit": {fmt.Sprint(chainPageLimit)}}
	next := fmt.Sprintf("%s/v3/snapshot/options/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	var chain []domain.OptionContract
	for page := 0; next != "" && page < maxChainPages; page++ {
		var resp chainResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			expiry, err := time.Parse(domain.DateLayout, r.Details.ExpirationDate)
			if err != nil {
				c.log.Debugw("Skipping contract with bad expiry", "ticker", r.Details.Ticker, "expiry", r.Details.ExpirationDate)
				continue
			}
			side := domain.SideCall
			if strings.EqualFold(r.Details.ContractType, "put") {
				side = domain.SidePut
			}
			chain = append(chain, domain.OptionContract{
				Symbol:            symbol,
				Ticker:            r.Details.Ticker,
				AsOf:              asof,
				Expiry:            expiry,
				Side:              side,
				Strike:            r.Details.StrikePrice,
				Bid:               r.LastQuote.Bid,
				Ask:               r.LastQuote.Ask,
				Delta:             r.Greeks.Delta,
				Theta:             r.Greeks.Theta,
				Gamma:             r.Greeks.Gamma,
				Vega:              r.Greeks.Vega,
				ImpliedVolatility: r.ImpliedVolatility,
				OpenInterest:      r.OpenInterest,
				Volume:            r.Day.Volume,
				DTE:               domain.DaysBetween(asof, expiry),
			})
		}
		next = resp.NextURL
	}
	if next != "" {
		c.log.Warnw("Option chain truncated", "symbol", symbol, "contracts", len(chain))
	}
	return chain, nil
}

// DividendYield annualizes the latest declared cash dividend against price.
func (c *Client) DividendYield(ctx context.Context, symbol string, price float64) (float64, error) {
	if price <= 0 {
		return 0, nil
	}
	q := url.Values{"ticker": {symbol}, "limit": {"1"}, "order": {"desc"}, "sort": {"ex_dividend_date"}}

	var resp dividendsResponse
	if err := c.get(ctx, c.baseURL+"/v3/reference/dividends?"+q.Encode(), &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, nil
	}
	d := resp.Results[0]
	if ex, err := time.Parse(domain.DateLayout, d.ExDate); err == nil && c.now().Sub(ex) > 400*24*time.Hour {
		// stopped paying
		return 0, nil
	}
	freq := d.Frequency
	if freq <= 0 {
		freq = 4
	}
	return d.CashAmount * float64(freq) / price, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, rawURL, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	// next_url links omit the key
	q := req.URL.Query()
	q.Set("apiKey", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
