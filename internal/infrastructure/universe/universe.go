package universe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"income-screener/internal/domain"
)

// Static is a fixed symbol list, usually DEFAULT_SYMBOLS.
type Static []string

func (s Static) Symbols(context.Context) ([]string, error) {
	if len(s) == 0 {
		return nil, errors.New("universe is empty")
	}
	return append([]string(nil), s...), nil
}

// fileLayout is the on-disk layout:
//
//	symbols: [AAPL, MSFT]
//	earnings:
//	  AAPL: [2024-07-25, 2024-10-31]
type fileLayout struct {
	Symbols  []string            `yaml:"symbols"`
	Earnings map[string][]string `yaml:"earnings"`
}

// File is a YAML universe with an optional earnings calendar. It is re-read on
// every Symbols call so edits apply to the next run without a restart.
type File struct {
	path string

	mu       sync.RWMutex
	symbols  []string
	earnings map[string][]time.Time
}

var (
	_ domain.UniverseProvider = (*File)(nil)
	_ domain.EarningsCalendar = (*File)(nil)
)

// LoadFile reads and validates path once.
func LoadFile(path string) (*File, error) {
	f := &File{path: path}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Symbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.reload(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.symbols...), nil
}

// NextEarnings returns the first known date on or after asof.
func (f *File) NextEarnings(symbol string, asof time.Time) *time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	// calendar dates are parsed as UTC midnights
	day := time.Date(asof.Year(), asof.Month(), asof.Day(), 0, 0, 0, 0, time.UTC)
	for _, d := range f.earnings[strings.ToUpper(symbol)] {
		if !d.Before(day) {
			next := d
			return &next
		}
	}
	return nil
}

func (f *File) reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read universe file: %w", err)
	}
	symbols, earnings, err := parse(raw)
	if err != nil {
		return fmt.Errorf("universe file %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.symbols = symbols
	f.earnings = earnings
	f.mu.Unlock()
	return nil
}

func parse(raw []byte) ([]string, map[string][]time.Time, error) {
	var doc fileLayout
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(doc.Symbols))
	symbols := make([]string, 0, len(doc.Symbols))
	for _, s := range doc.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return nil, nil, errors.New("no symbols")
	}

	earnings := make(map[string][]time.Time, len(doc.Earnings))
	for sym, dates := range doc.Earnings {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		for _, d := range dates {
			t, err := time.Parse(domain.DateLayout, strings.TrimSpace(d))
			if err != nil {
				return nil, nil, fmt.Errorf("earnings date for %s: %w", sym, err)
			}
			earnings[sym] = append(earnings[sym], t)
		}
		sort.Slice(earnings[sym], func(i, j int) bool { return earnings[sym][i].Before(earnings[sym][j]) })
	}
	return symbols, earnings, nil
}
