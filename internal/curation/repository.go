package curation

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/database"
	"github.com/mosaicquant/mosaic/internal/domain"
)

// Repository handles curated table access. Writes are partition-scoped and
// atomic: every merge runs inside a single transaction, so a failure leaves
// the partition at its pre-run snapshot.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new curated repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "curated").Logger(),
	}
}

// MergePricePartition merges rows into the daily_prices partition for one
// date. Existing rows with matching (ticker, date) keys are replaced
// (last-write-wins); other rows in the partition are untouched.
func (r *Repository) MergePricePartition(date string, rows []domain.CuratedPrice) error {
	for _, row := range rows {
		if row.Date != date {
			return &domain.PartitionWriteError{
				Table:     "daily_prices",
				Partition: date,
				Err:       fmt.Errorf("row for %s dated %s does not belong to partition", row.Ticker, row.Date),
			}
		}
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (ticker, date, open, high, low, close, adj_close, volume, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ticker, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				adj_close = excluded.adj_close,
				volume = excluded.volume,
				source = excluded.source
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.Exec(
				row.Ticker, row.Date, row.Open, row.High, row.Low, row.Close,
				nullableFloat(row.AdjClose), nullableInt(row.Volume), row.Source,
			); err != nil {
				return fmt.Errorf("failed to upsert %s/%s: %w", row.Ticker, row.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PartitionWriteError{Table: "daily_prices", Partition: date, Err: err}
	}

	r.log.Debug().Str("date", date).Int("rows", len(rows)).Msg("Price partition merged")
	return nil
}

// MergeFundamentalsPartition merges rows into the fundamentals partition for
// one fiscal period, with the same last-write-wins and atomicity rules.
func (r *Repository) MergeFundamentalsPartition(period domain.FiscalPeriod, rows []domain.CuratedFundamental) error {
	for _, row := range rows {
		if row.Period != period {
			return &domain.PartitionWriteError{
				Table:     "quarterly_fundamentals",
				Partition: period.String(),
				Err:       fmt.Errorf("row for %s in %s does not belong to partition", row.Ticker, row.Period),
			}
		}
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO quarterly_fundamentals (ticker, year, quarter, revenue, net_income, eps, filed_at, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ticker, year, quarter) DO UPDATE SET
				revenue = excluded.revenue,
				net_income = excluded.net_income,
				eps = excluded.eps,
				filed_at = excluded.filed_at,
				source = excluded.source
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.Exec(
				row.Ticker, row.Period.Year, row.Period.Quarter, row.Revenue,
				nullableFloat(row.NetIncome), nullableFloat(row.EPS),
				row.FiledAt.UTC().Format(time.RFC3339), row.Source,
			); err != nil {
				return fmt.Errorf("failed to upsert %s/%s: %w", row.Ticker, row.Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PartitionWriteError{Table: "quarterly_fundamentals", Partition: period.String(), Err: err}
	}

	r.log.Debug().Str("period", period.String()).Int("rows", len(rows)).Msg("Fundamentals partition merged")
	return nil
}

// GetPricePartition returns the curated rows for one date, ordered by ticker.
func (r *Repository) GetPricePartition(date string) ([]domain.CuratedPrice, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, adj_close, volume, source
		FROM daily_prices
		WHERE date = ?
		ORDER BY ticker`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query price partition: %w", err)
	}
	defer rows.Close()

	return scanPrices(rows)
}

// GetPriceHistory returns curated prices per ticker for dates in [from, to],
// each series ascending by date. Missing bars are simply absent.
func (r *Repository) GetPriceHistory(from, to string) (map[string][]domain.CuratedPrice, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, adj_close, volume, source
		FROM daily_prices
		WHERE date >= ? AND date <= ?
		ORDER BY ticker, date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	prices, err := scanPrices(rows)
	if err != nil {
		return nil, err
	}

	history := make(map[string][]domain.CuratedPrice)
	for _, p := range prices {
		history[p.Ticker] = append(history[p.Ticker], p)
	}
	return history, nil
}

// GetCloseSeries returns the (date, close) series for one ticker up to and
// including the given date, ascending, at most limit points.
func (r *Repository) GetCloseSeries(ticker, upTo string, limit int) ([]domain.CuratedPrice, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, adj_close, volume, source
		FROM daily_prices
		WHERE ticker = ? AND date <= ?
		ORDER BY date DESC
		LIMIT ?`, ticker, upTo, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query close series: %w", err)
	}
	defer rows.Close()

	prices, err := scanPrices(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to ascending date order
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date < prices[j].Date })
	return prices, nil
}

// GetFundamentals returns all curated fundamentals per ticker, each series
// ascending by fiscal period.
func (r *Repository) GetFundamentals() (map[string][]domain.CuratedFundamental, error) {
	rows, err := r.db.Query(`
		SELECT ticker, year, quarter, revenue, net_income, eps, filed_at, source
		FROM quarterly_fundamentals
		ORDER BY ticker, year, quarter`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]domain.CuratedFundamental)
	for rows.Next() {
		var f domain.CuratedFundamental
		var netIncome, eps sql.NullFloat64
		var filedAt string

		if err := rows.Scan(&f.Ticker, &f.Period.Year, &f.Period.Quarter, &f.Revenue,
			&netIncome, &eps, &filedAt, &f.Source); err != nil {
			return nil, fmt.Errorf("failed to scan fundamental: %w", err)
		}
		if netIncome.Valid {
			f.NetIncome = &netIncome.Float64
		}
		if eps.Valid {
			f.EPS = &eps.Float64
		}
		t, err := time.Parse(time.RFC3339, filedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid filed_at for %s/%s: %w", f.Ticker, f.Period, err)
		}
		f.FiledAt = t

		history[f.Ticker] = append(history[f.Ticker], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundamentals: %w", err)
	}

	return history, nil
}

// GetPeriodIndex returns the curated fiscal periods per ticker, used by the
// validator to enforce chronological non-decrease.
func (r *Repository) GetPeriodIndex() (*PeriodIndex, error) {
	rows, err := r.db.Query(`SELECT ticker, year, quarter FROM quarterly_fundamentals`)
	if err != nil {
		return nil, fmt.Errorf("failed to query period index: %w", err)
	}
	defer rows.Close()

	idx := NewPeriodIndex()
	for rows.Next() {
		var ticker string
		var p domain.FiscalPeriod
		if err := rows.Scan(&ticker, &p.Year, &p.Quarter); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		idx.Add(ticker, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}

	return idx, nil
}

func scanPrices(rows *sql.Rows) ([]domain.CuratedPrice, error) {
	var prices []domain.CuratedPrice
	for rows.Next() {
		var p domain.CuratedPrice
		var adjClose sql.NullFloat64
		var volume sql.NullInt64

		if err := rows.Scan(&p.Ticker, &p.Date, &p.Open, &p.High, &p.Low, &p.Close,
			&adjClose, &volume, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if adjClose.Valid {
			p.AdjClose = &adjClose.Float64
		}
		if volume.Valid {
			p.Volume = &volume.Int64
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return prices, nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// PeriodIndex tracks which fiscal periods exist per ticker.
type PeriodIndex struct {
	latest map[string]domain.FiscalPeriod
	seen   map[string]map[int]bool
}

// NewPeriodIndex creates an empty period index
func NewPeriodIndex() *PeriodIndex {
	return &PeriodIndex{
		latest: make(map[string]domain.FiscalPeriod),
		seen:   make(map[string]map[int]bool),
	}
}

// Add records a curated period for a ticker.
func (x *PeriodIndex) Add(ticker string, p domain.FiscalPeriod) {
	if x.seen[ticker] == nil {
		x.seen[ticker] = make(map[int]bool)
	}
	x.seen[ticker][p.Index()] = true

	if latest, ok := x.latest[ticker]; !ok || latest.Before(p) {
		x.latest[ticker] = p
	}
}

// Latest returns the most recent curated period for a ticker.
func (x *PeriodIndex) Latest(ticker string) (domain.FiscalPeriod, bool) {
	p, ok := x.latest[ticker]
	return p, ok
}

// Has reports whether the exact period is already curated for the ticker.
func (x *PeriodIndex) Has(ticker string, p domain.FiscalPeriod) bool {
	return x.seen[ticker][p.Index()]
}
