// Package universe provides the entity universe and trading calendar
// configuration consumed by the curation and signal stages.
package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mosaicquant/mosaic/internal/domain"
)

// TradingCalendar decides which dates are recognized trading days.
// Weekends are always closed; additional holidays come from configuration.
type TradingCalendar struct {
	holidays map[string]bool
}

// NewTradingCalendar creates a calendar with the given holiday dates (YYYY-MM-DD).
func NewTradingCalendar(holidays []string) *TradingCalendar {
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		set[h] = true
	}
	return &TradingCalendar{holidays: set}
}

// LoadTradingCalendar reads a newline-separated holiday file. An empty path
// yields a weekday-only calendar.
func LoadTradingCalendar(path string) (*TradingCalendar, error) {
	if path == "" {
		return NewTradingCalendar(nil), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open holidays file: %w", err)
	}
	defer f.Close()

	var holidays []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, line); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", line, err)
		}
		holidays = append(holidays, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read holidays file: %w", err)
	}

	return NewTradingCalendar(holidays), nil
}

// IsTradingDay reports whether the date falls on the trading calendar.
// Returns false for unparseable dates.
func (c *TradingCalendar) IsTradingDay(date string) bool {
	t, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return false
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[date]
}

// TradingDaysBetween returns the trading days in [from, to] in ascending order.
func (c *TradingCalendar) TradingDaysBetween(from, to string) ([]string, error) {
	start, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("date range inverted: %s > %s", from, to)
	}

	var days []string
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		day := t.Format(domain.DateLayout)
		if c.IsTradingDay(day) {
			days = append(days, day)
		}
	}
	return days, nil
}
