package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// sender is the part of *tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client delivers picks to every configured chat.
type Client struct {
	api         sender
	chatIDs     []int64
	enabled     bool
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

func NewClient(cfg config.TelegramConfig, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "telegram")
	if !cfg.Enabled {
		log.Info("Telegram alerts disabled")
		return &Client{log: log}, nil
	}
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Infof("Authorized on account %s", api.Self.UserName)

	return newClient(api, cfg, log), nil
}

func newClient(api sender, cfg config.TelegramConfig, log *logger.Logger) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1
	}
	return &Client{
		api:         api,
		chatIDs:     cfg.ChatIDs,
		enabled:     true,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), max(1, cfg.Burst)),
		log:         log,
	}
}

func (c *Client) Name() string { return "telegram" }

func (c *Client) Enabled() bool {
	return c.enabled && c.api != nil && len(c.chatIDs) > 0
}

// SendDigest posts the run header and daily summary.
func (c *Client) SendDigest(ctx context.Context, summary domain.RunSummary, picks []domain.Pick) error {
	return c.broadcast(ctx, FormatDigest(summary, picks))
}

func (c *Client) SendPick(ctx context.Context, p domain.Pick) error {
	return c.broadcast(ctx, FormatPick(p))
}

// broadcast sends text to every chat. It fails only if no chat received it.
func (c *Client) broadcast(ctx context.Context, text string) error {
	if !c.Enabled() {
		return errors.New("telegram client not configured")
	}
	var errs []error
	for _, chatID := range c.chatIDs {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		if _, err := c.api.Send(msg); err != nil {
			c.log.Warnw("Telegram send failed", "chat_id", chatID, "error", err)
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		c.log.Debugw("Telegram message sent", "chat_id", chatID)
	}
	if len(errs) == len(c.chatIDs) {
		return errors.Join(errs...)
	}
	return nil
}
