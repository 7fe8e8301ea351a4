package curation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicquant/mosaic/internal/database"
	"github.com/mosaicquant/mosaic/internal/domain"
)

func setupCuratedDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "curated.db"),
		Profile: database.ProfileCurated,
		Name:    "curated",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() { db.Close() })
	return db
}

func curatedPrice(ticker, date string, close float64) domain.CuratedPrice {
	return domain.CuratedPrice{
		Ticker: ticker,
		Date:   date,
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Source: "test",
	}
}

func TestMergePrices_Idempotent(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	merger := NewMerger(repo, zerolog.Nop())

	rows := []domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 100),
		curatedPrice("BBB", "2024-01-02", 50),
	}

	require.NoError(t, merger.MergePrices(rows))
	first, err := repo.GetPricePartition("2024-01-02")
	require.NoError(t, err)

	// Second run on an identical batch yields an identical partition
	require.NoError(t, merger.MergePrices(rows))
	second, err := repo.GetPricePartition("2024-01-02")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestMergePrices_CorrectionReplacesRow(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	merger := NewMerger(repo, zerolog.Nop())

	require.NoError(t, merger.MergePrices([]domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 100),
	}))

	// Re-curate the same date with a corrected close
	require.NoError(t, merger.MergePrices([]domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 101),
	}))

	partition, err := repo.GetPricePartition("2024-01-02")
	require.NoError(t, err)

	require.Len(t, partition, 1)
	assert.Equal(t, "AAA", partition[0].Ticker)
	assert.Equal(t, 101.0, partition[0].Close)
}

func TestMergePrices_OtherRowsUntouched(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	merger := NewMerger(repo, zerolog.Nop())

	require.NoError(t, merger.MergePrices([]domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 100),
		curatedPrice("BBB", "2024-01-02", 50),
	}))

	require.NoError(t, merger.MergePrices([]domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 101),
	}))

	partition, err := repo.GetPricePartition("2024-01-02")
	require.NoError(t, err)

	require.Len(t, partition, 2)
	assert.Equal(t, 101.0, partition[0].Close) // AAA corrected
	assert.Equal(t, 50.0, partition[1].Close)  // BBB untouched
}

func TestMergePrices_MultiplePartitions(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	merger := NewMerger(repo, zerolog.Nop())

	require.NoError(t, merger.MergePrices([]domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-02", 100),
		curatedPrice("AAA", "2024-01-03", 102),
	}))

	history, err := repo.GetPriceHistory("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	require.Len(t, history["AAA"], 2)
	assert.Equal(t, "2024-01-02", history["AAA"][0].Date)
	assert.Equal(t, "2024-01-03", history["AAA"][1].Date)
}

func TestMergePricePartition_RejectsForeignRows(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	err := repo.MergePricePartition("2024-01-02", []domain.CuratedPrice{
		curatedPrice("AAA", "2024-01-03", 100),
	})
	require.Error(t, err)

	var pwe *domain.PartitionWriteError
	assert.ErrorAs(t, err, &pwe)
}

func TestMergeFundamentals_RoundTrip(t *testing.T) {
	db := setupCuratedDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	merger := NewMerger(repo, zerolog.Nop())

	rows := []domain.CuratedFundamental{
		{
			Ticker:  "AAA",
			Period:  domain.FiscalPeriod{Year: 2023, Quarter: 1},
			Revenue: 1000,
			FiledAt: time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC),
			Source:  "test",
		},
		{
			Ticker:  "AAA",
			Period:  domain.FiscalPeriod{Year: 2024, Quarter: 1},
			Revenue: 1100,
			FiledAt: time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
			Source:  "test",
		},
	}

	require.NoError(t, merger.MergeFundamentals(rows))

	history, err := repo.GetFundamentals()
	require.NoError(t, err)

	require.Len(t, history["AAA"], 2)
	assert.Equal(t, 1000.0, history["AAA"][0].Revenue)
	assert.Equal(t, domain.FiscalPeriod{Year: 2024, Quarter: 1}, history["AAA"][1].Period)

	idx, err := repo.GetPeriodIndex()
	require.NoError(t, err)

	latest, ok := idx.Latest("AAA")
	assert.True(t, ok)
	assert.Equal(t, domain.FiscalPeriod{Year: 2024, Quarter: 1}, latest)
	assert.True(t, idx.Has("AAA", domain.FiscalPeriod{Year: 2023, Quarter: 1}))
	assert.False(t, idx.Has("AAA", domain.FiscalPeriod{Year: 2022, Quarter: 4}))
}

func TestQuarantine_RoundTrip(t *testing.T) {
	db := setupCuratedDB(t)
	store := NewQuarantineStore(db.Conn(), zerolog.Nop())

	result := &domain.ValidationResult{
		BatchID: "batch-1",
		Rejected: []domain.RejectedRow{
			{Ticker: "ZZZ", Key: "2024-01-02", Reason: domain.ReasonUnknownEntity, Column: "ticker"},
			{Ticker: "AAA", Key: "2024-01-02", Reason: domain.ReasonHighBelowLow, Column: "high"},
		},
	}

	require.NoError(t, store.Save(result))

	loaded, err := store.Load("batch-1")
	require.NoError(t, err)
	assert.Equal(t, result.Rejected, loaded)

	missing, err := store.Load("no-such-batch")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
