package domain

import (
	"context"
	"time"
)

// PickRepository persists the ranked picks and the audit trail of a run.
type PickRepository interface {
	SavePicks(ctx context.Context, asof time.Time, picks []Pick) error
	SaveScanLog(ctx context.Context, asof time.Time, entries []ScanLogEntry) error
	SaveRationale(ctx context.Context, pickID, summary string) error
	RecordAlert(ctx context.Context, rec AlertRecord) error
	PicksForDate(ctx context.Context, asof time.Time, strategy Strategy) ([]Pick, error)
	ScanLogForDate(ctx context.Context, asof time.Time) ([]ScanLogEntry, error)
}

// IVHistoryRepository keeps one ATM implied volatility observation per symbol per day.
type IVHistoryRepository interface {
	AppendIV(ctx context.Context, symbol string, asof time.Time, iv float64) error
	// TrailingIV returns up to limit observations strictly before asof, oldest first.
	TrailingIV(ctx context.Context, symbol string, asof time.Time, limit int) ([]float64, error)
}

// LatestPicksStore holds the most recent run for the dashboard.
type LatestPicksStore interface {
	SaveSnapshot(ctx context.Context, snap RunSnapshot) error
	LatestSnapshot(ctx context.Context) (RunSnapshot, error)
}

// DeviceTokenRepository tracks push notification device tokens.
type DeviceTokenRepository interface {
	RegisterToken(token, platform string, ts int64)
	UnregisterToken(token string)
	GetAllTokens() []string
	GetTokenCount() int
}
