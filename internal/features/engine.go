// Package features computes rolling-window statistics per entity from
// curated time series.
package features

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/pkg/formulas"
)

// Look-back windows in observed trading days.
const (
	volWindow      = 20
	momentumWindow = 60
	meanRevWindow  = 5
)

// defaultLookbackDays is the calendar-day margin fetched before the first
// requested date so every window has enough observed history.
const defaultLookbackDays = 400

// CuratedSource provides read access to curated history.
type CuratedSource interface {
	GetPriceHistory(from, to string) (map[string][]domain.CuratedPrice, error)
	GetFundamentals() (map[string][]domain.CuratedFundamental, error)
}

// Engine derives feature rows from curated history. Each entity's series is
// read-only and independent, so entities are processed concurrently.
type Engine struct {
	source       CuratedSource
	workers      int
	lookbackDays int
	log          zerolog.Logger
}

// NewEngine creates a new feature engine
func NewEngine(source CuratedSource, workers int, log zerolog.Logger) *Engine {
	if workers <= 0 {
		workers = 8
	}
	return &Engine{
		source:       source,
		workers:      workers,
		lookbackDays: defaultLookbackDays,
		log:          log.With().Str("component", "feature_engine").Logger(),
	}
}

// Compute produces feature rows for every (entity, date) in [d0, d1] where
// the entity has an observation on that date. Output is sorted by ticker
// then date; identical inputs produce identical output.
func (e *Engine) Compute(ctx context.Context, d0, d1 string) ([]domain.FeatureRow, error) {
	start, err := time.Parse(domain.DateLayout, d0)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", d0, err)
	}
	if _, err := time.Parse(domain.DateLayout, d1); err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", d1, err)
	}
	if d1 < d0 {
		return nil, fmt.Errorf("date range inverted: %s > %s", d0, d1)
	}

	from := start.AddDate(0, 0, -e.lookbackDays).Format(domain.DateLayout)
	history, err := e.source.GetPriceHistory(from, d1)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	fundamentals, err := e.source.GetFundamentals()
	if err != nil {
		return nil, fmt.Errorf("failed to load fundamentals: %w", err)
	}

	tickers := make([]string, 0, len(history))
	for ticker := range history {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	jobs := make(chan string, len(tickers))
	results := make(chan []domain.FeatureRow, len(tickers))

	workers := e.workers
	if len(tickers) < workers {
		workers = len(tickers)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				if ctx.Err() != nil {
					results <- nil
					continue
				}
				results <- computeEntity(ticker, history[ticker], fundamentals[ticker], d0, d1)
			}
		}()
	}

	for _, ticker := range tickers {
		jobs <- ticker
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var rows []domain.FeatureRow
	for batch := range results {
		rows = append(rows, batch...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Ticker != rows[j].Ticker {
			return rows[i].Ticker < rows[j].Ticker
		}
		return rows[i].Date < rows[j].Date
	})

	e.log.Info().
		Str("from", d0).
		Str("to", d1).
		Int("entities", len(tickers)).
		Int("rows", len(rows)).
		Msg("Features computed")

	return rows, nil
}

// computeEntity walks one entity's observed trading days. Gaps in the series
// shrink the effective window: indices count observations, not calendar days.
func computeEntity(ticker string, prices []domain.CuratedPrice, funds []domain.CuratedFundamental, d0, d1 string) []domain.FeatureRow {
	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}

	var rows []domain.FeatureRow
	for i, p := range prices {
		if p.Date < d0 || p.Date > d1 {
			continue
		}
		rows = append(rows, domain.FeatureRow{
			Ticker:           ticker,
			Date:             p.Date,
			RealizedVol20d:   realizedVolAt(closes, i),
			Momentum60d:      momentumAt(closes, i),
			MeanReversionZ5d: meanReversionAt(closes, i),
			RevenueGrowthYoY: revenueGrowthAsOf(funds, p.Date),
		})
	}
	return rows
}

// realizedVolAt is the annualized sample std of daily log returns over the
// trailing volWindow observations ending at index i. Nil with fewer than
// volWindow observations.
func realizedVolAt(closes []float64, i int) *float64 {
	if i+1 < volWindow {
		return nil
	}

	window := closes[i+1-volWindow : i+1]
	returns := formulas.LogReturns(window)
	if len(returns) < 2 {
		return nil
	}

	vol := formulas.AnnualizedVolatility(returns)
	return &vol
}

// momentumAt is the percentage change from the close momentumWindow observed
// trading days prior. Nil when that observation does not exist.
func momentumAt(closes []float64, i int) *float64 {
	prior := i - momentumWindow
	if prior < 0 {
		return nil
	}
	if formulas.NearZero(closes[prior]) {
		return nil
	}

	momentum := closes[i]/closes[prior] - 1
	return &momentum
}

// meanReversionAt is (close - trailing mean) / trailing std over the last
// meanRevWindow observations including the current one. Nil with a short
// window or a near-zero std.
func meanReversionAt(closes []float64, i int) *float64 {
	if i+1 < meanRevWindow {
		return nil
	}

	window := closes[i+1-meanRevWindow : i+1]
	std := formulas.StdDev(window)
	if std < formulas.Epsilon {
		return nil
	}

	z := (closes[i] - formulas.Mean(window)) / std
	return &z
}

// revenueGrowthAsOf joins the latest fiscal period filed on or before the
// date against the same quarter one year earlier. Nil if the prior period is
// absent, filed out of order, or its revenue is non-positive.
func revenueGrowthAsOf(funds []domain.CuratedFundamental, date string) *float64 {
	var current *domain.CuratedFundamental
	for idx := range funds {
		f := &funds[idx]
		if f.FiledAt.UTC().Format(domain.DateLayout) > date {
			continue
		}
		if current == nil || current.Period.Before(f.Period) {
			current = f
		}
	}
	if current == nil {
		return nil
	}

	prior := current.Period.YearAgo()
	for idx := range funds {
		f := &funds[idx]
		if f.Period != prior {
			continue
		}
		if f.FiledAt.After(current.FiledAt) {
			// Prior-year filing arrived after the current one: out of order
			return nil
		}
		if f.Revenue <= formulas.Epsilon {
			return nil
		}
		growth := current.Revenue/f.Revenue - 1
		return &growth
	}
	return nil
}
