package curation

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
)

// Merger routes validated rows into their partitions. Partition membership
// comes only from each row's own date or fiscal period, never from ingestion
// time, so re-running curation for a partition is idempotent.
type Merger struct {
	repo *Repository
	log  zerolog.Logger
}

// NewMerger creates a new curation merger
func NewMerger(repo *Repository, log zerolog.Logger) *Merger {
	return &Merger{
		repo: repo,
		log:  log.With().Str("component", "merger").Logger(),
	}
}

// MergePrices groups accepted price rows by date and merges each partition
// atomically. Partitions are committed in ascending date order; the first
// failure stops the run and surfaces a PartitionWriteError, leaving already
// committed partitions in place and the failed one untouched.
func (m *Merger) MergePrices(rows []domain.CuratedPrice) error {
	byDate := make(map[string][]domain.CuratedPrice)
	for _, row := range rows {
		byDate[row.Date] = append(byDate[row.Date], row)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if err := m.repo.MergePricePartition(date, byDate[date]); err != nil {
			return err
		}
		m.log.Info().
			Str("date", date).
			Int("rows", len(byDate[date])).
			Msg("Curated price partition")
	}

	return nil
}

// MergeFundamentals groups accepted fundamental rows by fiscal period and
// merges each partition atomically, in chronological period order.
func (m *Merger) MergeFundamentals(rows []domain.CuratedFundamental) error {
	byPeriod := make(map[domain.FiscalPeriod][]domain.CuratedFundamental)
	for _, row := range rows {
		byPeriod[row.Period] = append(byPeriod[row.Period], row)
	}

	periods := make([]domain.FiscalPeriod, 0, len(byPeriod))
	for period := range byPeriod {
		periods = append(periods, period)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	for _, period := range periods {
		if err := m.repo.MergeFundamentalsPartition(period, byPeriod[period]); err != nil {
			return err
		}
		m.log.Info().
			Str("period", period.String()).
			Int("rows", len(byPeriod[period])).
			Msg("Curated fundamentals partition")
	}

	return nil
}
