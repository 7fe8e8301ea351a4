// Package marts persists derived outputs (features, scores, positions).
// Mart tables are recomputed artifacts: every write replaces the whole
// date partition rather than merging into it.
package marts

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/database"
	"github.com/mosaicquant/mosaic/internal/domain"
)

// Repository handles mart table access. Each Replace* call is one
// transaction: delete the date partition, insert the new rows. A failure
// rolls back and leaves the previous run's output in place.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new marts repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marts").Logger(),
	}
}

// ReplaceFeatures atomically replaces the features partition for one date.
func (r *Repository) ReplaceFeatures(date string, rows []domain.FeatureRow) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM features WHERE date = ?`, date); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO features (ticker, date, realized_vol_20d, momentum_60d, mean_reversion_zscore_5d, revenue_growth_yoy)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if row.Date != date {
				return fmt.Errorf("row for %s dated %s does not belong to partition", row.Ticker, row.Date)
			}
			if _, err := stmt.Exec(
				row.Ticker, row.Date,
				row.RealizedVol20d, row.Momentum60d, row.MeanReversionZ5d, row.RevenueGrowthYoY,
			); err != nil {
				return fmt.Errorf("failed to insert %s/%s: %w", row.Ticker, row.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PartitionWriteError{Table: "features", Partition: date, Err: err}
	}

	r.log.Debug().Str("date", date).Int("rows", len(rows)).Msg("Features partition replaced")
	return nil
}

// ReplaceScores atomically replaces the signal_scores partition for one date.
func (r *Repository) ReplaceScores(date string, scores []domain.SignalScore) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM signal_scores WHERE date = ?`, date); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO signal_scores (ticker, date, realized_vol_20d_zscore, momentum_60d_zscore, mean_reversion_zscore_5d_zscore, revenue_growth_yoy_zscore, composite, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range scores {
			if s.Date != date {
				return fmt.Errorf("score for %s dated %s does not belong to partition", s.Ticker, s.Date)
			}
			if _, err := stmt.Exec(
				s.Ticker, s.Date,
				s.ZScores["realized_vol_20d"], s.ZScores["momentum_60d"],
				s.ZScores["mean_reversion_zscore_5d"], s.ZScores["revenue_growth_yoy"],
				s.Composite, s.Rank,
			); err != nil {
				return fmt.Errorf("failed to insert %s/%s: %w", s.Ticker, s.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PartitionWriteError{Table: "signal_scores", Partition: date, Err: err}
	}

	r.log.Debug().Str("date", date).Int("rows", len(scores)).Msg("Scores partition replaced")
	return nil
}

// ReplacePositions atomically replaces the positions partition for one date.
func (r *Repository) ReplacePositions(date string, positions []domain.Position) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM positions WHERE date = ?`, date); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO positions (ticker, date, side, rank, weight)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range positions {
			if p.Date != date {
				return fmt.Errorf("position for %s dated %s does not belong to partition", p.Ticker, p.Date)
			}
			if _, err := stmt.Exec(p.Ticker, p.Date, string(p.Side), p.Rank, p.Weight); err != nil {
				return fmt.Errorf("failed to insert %s/%s: %w", p.Ticker, p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PartitionWriteError{Table: "positions", Partition: date, Err: err}
	}

	r.log.Debug().Str("date", date).Int("rows", len(positions)).Msg("Positions partition replaced")
	return nil
}

// GetFeatures returns the feature rows for one date ordered by ticker.
func (r *Repository) GetFeatures(date string) ([]domain.FeatureRow, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, realized_vol_20d, momentum_60d, mean_reversion_zscore_5d, revenue_growth_yoy
		FROM features WHERE date = ? ORDER BY ticker
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var out []domain.FeatureRow
	for rows.Next() {
		var f domain.FeatureRow
		if err := rows.Scan(&f.Ticker, &f.Date, &f.RealizedVol20d, &f.Momentum60d, &f.MeanReversionZ5d, &f.RevenueGrowthYoY); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetScores returns the signal scores for one date in rank order, with
// unranked entities at the tail ordered by ticker.
func (r *Repository) GetScores(date string) ([]domain.SignalScore, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, realized_vol_20d_zscore, momentum_60d_zscore, mean_reversion_zscore_5d_zscore, revenue_growth_yoy_zscore, composite, rank
		FROM signal_scores WHERE date = ?
		ORDER BY CASE WHEN rank = 0 THEN 1 ELSE 0 END, rank, ticker
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalScore
	for rows.Next() {
		s := domain.SignalScore{ZScores: make(map[string]*float64, len(domain.FeatureNames))}
		var zVol, zMom, zRev, zGrowth *float64
		if err := rows.Scan(&s.Ticker, &s.Date, &zVol, &zMom, &zRev, &zGrowth, &s.Composite, &s.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		s.ZScores["realized_vol_20d"] = zVol
		s.ZScores["momentum_60d"] = zMom
		s.ZScores["mean_reversion_zscore_5d"] = zRev
		s.ZScores["revenue_growth_yoy"] = zGrowth
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetPositions returns the positions for one date, longs before shorts,
// each side in rank order.
func (r *Repository) GetPositions(date string) ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, side, rank, weight
		FROM positions WHERE date = ?
		ORDER BY CASE side WHEN 'long' THEN 0 ELSE 1 END, rank
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		if err := rows.Scan(&p.Ticker, &p.Date, &side, &p.Rank, &p.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		p.Side = domain.Side(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestDate returns the most recent date present in the positions mart,
// or empty string when no run has produced output yet.
func (r *Repository) LatestDate() (string, error) {
	var date sql.NullString
	err := r.db.QueryRow(`SELECT MAX(date) FROM positions`).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest date: %w", err)
	}
	return date.String, nil
}
