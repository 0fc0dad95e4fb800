package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

const channelID = "income_picks"

// multicaster is the part of *messaging.Client the sender needs.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client pushes picks to every registered device. It is a no-op without credentials.
type Client struct {
	client multicaster
	tokens domain.DeviceTokenRepository
	log    *logger.Logger
}

// NewClient initializes Firebase Cloud Messaging from a credentials file or inline JSON.
func NewClient(ctx context.Context, cfg config.FirebaseConfig, tokens domain.DeviceTokenRepository, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	var opt option.ClientOption
	switch {
	case cfg.CredentialsPath != "":
		opt = option.WithCredentialsFile(cfg.CredentialsPath)
	case cfg.CredentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	default:
		log.Warn("No Firebase credentials found. FCM disabled.")
		return &Client{tokens: tokens, log: log}, nil
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	log.Info("Firebase Cloud Messaging initialized successfully")
	return &Client{client: client, tokens: tokens, log: log}, nil
}

func (c *Client) Name() string { return "fcm" }

// Enabled is true when credentials were loaded.
func (c *Client) Enabled() bool {
	return c.client != nil
}

func (c *Client) SendDigest(ctx context.Context, summary domain.RunSummary, picks []domain.Pick) error {
	title := fmt.Sprintf("Income screener %s", summary.AsOf.Format(domain.DateLayout))
	body := fmt.Sprintf("%d covered calls, %d cash-secured puts above threshold",
		countStrategy(picks, domain.StrategyCoveredCall), countStrategy(picks, domain.StrategyCashSecuredPut))
	data := map[string]string{
		"type": "digest",
		"asof": summary.AsOf.Format(domain.DateLayout),
	}
	return c.multicast(ctx, title, body, data)
}

func (c *Client) SendPick(ctx context.Context, p domain.Pick) error {
	title, body := PickNotification(p)
	data := map[string]string{
		"type":     "pick",
		"id":       p.ID,
		"symbol":   p.Symbol,
		"strategy": string(p.Strategy),
		"strike":   fmt.Sprintf("%.2f", p.Strike),
		"expiry":   p.Expiry.Format(domain.DateLayout),
		"score":    fmt.Sprintf("%.3f", p.Score),
	}
	return c.multicast(ctx, title, body, data)
}

// SendTest pushes a test notification to every registered device.
func (c *Client) SendTest(ctx context.Context) error {
	return c.multicast(ctx, "🧪 Test Notification",
		"Pick alerts are working. The daily income picks will arrive here after the market close.",
		map[string]string{"type": "test"})
}

// PickNotification renders the short push title and body for a pick.
func PickNotification(p domain.Pick) (string, string) {
	title := fmt.Sprintf("%s %s %s", p.Strategy, p.Symbol, p.SelectedOption())
	body := fmt.Sprintf("Score %.2f | $%.2f premium | %.1f%% annualized | %d DTE",
		p.Score, p.Premium, p.AnnualizedReturn*100, p.DTE)
	return title, body
}

func (c *Client) multicast(ctx context.Context, title, body string, data map[string]string) error {
	if c.client == nil {
		return errors.New("FCM client not initialized")
	}
	tokens := c.tokens.GetAllTokens()
	if len(tokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: channelID,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	resp, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast: %w", err)
	}

	for i, r := range resp.Responses {
		if r == nil || r.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsRegistrationTokenNotRegistered(r.Error) || messaging.IsUnregistered(r.Error) {
			c.tokens.UnregisterToken(tokens[i])
		}
	}
	c.log.Debugw("FCM multicast sent", "success", resp.SuccessCount, "failure", resp.FailureCount)
	if resp.SuccessCount == 0 && resp.FailureCount > 0 {
		return fmt.Errorf("all %d deliveries failed", resp.FailureCount)
	}
	return nil
}

func countStrategy(picks []domain.Pick, s domain.Strategy) int {
	n := 0
	for _, p := range picks {
		if p.Strategy == s {
			n++
		}
	}
	return n
}
