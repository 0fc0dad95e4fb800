package domain

import (
	"strconv"
	"time"
)

// DateLayout is used for asof and expiry dates everywhere (API, DB keys, messages).
const DateLayout = "2006-01-02"

func formatStrike(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// TruncateDay drops the clock part, keeping the location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween counts calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	a = TruncateDay(a)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, a.Location())
	return int(b.Sub(a).Hours() / 24)
}
