package curation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/universe"
)

func newTestValidator() *Validator {
	members := []universe.Member{
		{Ticker: "AAA", Sector: "tech"},
		{Ticker: "BBB", Sector: "energy"},
		{Ticker: "CCC", Sector: "tech", ActiveTo: "2023-12-31"},
	}
	cal := universe.NewTradingCalendar([]string{"2024-01-01"})
	return NewValidator(cal, universe.NewIndex(members), zerolog.Nop())
}

func priceRow(ticker, date string, open, high, low, close float64) map[string]interface{} {
	return map[string]interface{}{
		"ticker": ticker,
		"date":   date,
		"open":   open,
		"high":   high,
		"low":    low,
		"close":  close,
		"source": "test",
	}
}

func priceBatch(rows ...map[string]interface{}) RawBatch {
	return RawBatch{
		Name:    "prices",
		Columns: []string{"ticker", "date", "open", "high", "low", "close", "source"},
		Rows:    rows,
	}
}

func TestValidatePrices_AcceptsValidRows(t *testing.T) {
	v := newTestValidator()

	accepted, result, err := v.ValidatePrices(priceBatch(
		priceRow("AAA", "2024-01-02", 100, 105, 99, 103),
		priceRow("BBB", "2024-01-02", 50, 51, 49, 50),
	))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Accepted)
	assert.Empty(t, result.Rejected)
	require.Len(t, accepted, 2)
	assert.Equal(t, "AAA", accepted[0].Ticker)
	assert.Equal(t, 103.0, accepted[0].Close)
}

func TestValidatePrices_StructuralError(t *testing.T) {
	v := newTestValidator()

	batch := RawBatch{
		Name:    "prices",
		Columns: []string{"ticker", "date", "open", "high", "low"}, // No close
		Rows:    []map[string]interface{}{priceRow("AAA", "2024-01-02", 100, 105, 99, 103)},
	}

	_, _, err := v.ValidatePrices(batch)
	require.Error(t, err)

	var structural *domain.StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Reason, "close")
}

func TestValidatePrices_RowLevelRejections(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name   string
		row    map[string]interface{}
		reason domain.RejectReason
	}{
		{
			name:   "high below low",
			row:    priceRow("AAA", "2024-01-02", 100, 95, 99, 97),
			reason: domain.ReasonHighBelowLow,
		},
		{
			name:   "close outside range",
			row:    priceRow("AAA", "2024-01-02", 100, 105, 99, 110),
			reason: domain.ReasonCloseOutsideRange,
		},
		{
			name:   "non-positive close",
			row:    priceRow("AAA", "2024-01-02", 100, 105, -1, -1),
			reason: domain.ReasonNonPositiveClose,
		},
		{
			name:   "unknown entity",
			row:    priceRow("ZZZ", "2024-01-02", 100, 105, 99, 103),
			reason: domain.ReasonUnknownEntity,
		},
		{
			name:   "inactive entity",
			row:    priceRow("CCC", "2024-01-02", 100, 105, 99, 103),
			reason: domain.ReasonUnknownEntity,
		},
		{
			name:   "weekend date",
			row:    priceRow("AAA", "2024-01-06", 100, 105, 99, 103),
			reason: domain.ReasonOffCalendar,
		},
		{
			name:   "holiday",
			row:    priceRow("AAA", "2024-01-01", 100, 105, 99, 103),
			reason: domain.ReasonOffCalendar,
		},
		{
			name:   "type mismatch",
			row:    map[string]interface{}{"ticker": "AAA", "date": "2024-01-02", "open": "oops", "high": 105.0, "low": 99.0, "close": 103.0},
			reason: domain.ReasonTypeMismatch,
		},
		{
			name:   "null close",
			row:    map[string]interface{}{"ticker": "AAA", "date": "2024-01-02", "open": 100.0, "high": 105.0, "low": 99.0, "close": nil},
			reason: domain.ReasonNullValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, result, err := v.ValidatePrices(priceBatch(tt.row))
			require.NoError(t, err)

			assert.Empty(t, accepted)
			require.Len(t, result.Rejected, 1)
			assert.Equal(t, tt.reason, result.Rejected[0].Reason)
		})
	}
}

func TestValidatePrices_OneBadRowDoesNotAbortBatch(t *testing.T) {
	v := newTestValidator()

	accepted, result, err := v.ValidatePrices(priceBatch(
		priceRow("AAA", "2024-01-02", 100, 105, 99, 103),
		priceRow("ZZZ", "2024-01-02", 50, 51, 49, 50),
		priceRow("BBB", "2024-01-02", 50, 51, 49, 50),
	))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Accepted)
	assert.Len(t, result.Rejected, 1)
	assert.Len(t, accepted, 2)
}

func TestValidatePrices_DuplicateKeyLastWins(t *testing.T) {
	v := newTestValidator()

	accepted, result, err := v.ValidatePrices(priceBatch(
		priceRow("AAA", "2024-01-02", 100, 105, 99, 100),
		priceRow("AAA", "2024-01-02", 100, 105, 99, 101),
	))
	require.NoError(t, err)

	require.Len(t, accepted, 1)
	assert.Equal(t, 101.0, accepted[0].Close)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, domain.ReasonDuplicateKey, result.Rejected[0].Reason)
}

func TestValidatePrices_ExtremeCloseWarnsOnly(t *testing.T) {
	v := newTestValidator()

	accepted, result, err := v.ValidatePrices(priceBatch(
		priceRow("AAA", "2024-01-02", 20000, 20001, 19999, 20000),
	))
	require.NoError(t, err)

	assert.Len(t, accepted, 1)
	assert.Empty(t, result.Rejected)
	assert.NotEmpty(t, result.Warnings)
}

func fundamentalRow(ticker string, year, quarter int, revenue float64) map[string]interface{} {
	return map[string]interface{}{
		"ticker":   ticker,
		"year":     year,
		"quarter":  quarter,
		"revenue":  revenue,
		"filed_at": time.Date(year, time.Month(quarter*3), 15, 0, 0, 0, 0, time.UTC),
		"source":   "test",
	}
}

func fundamentalBatch(rows ...map[string]interface{}) RawBatch {
	return RawBatch{
		Name:    "fundamentals",
		Columns: []string{"ticker", "year", "quarter", "revenue", "filed_at", "source"},
		Rows:    rows,
	}
}

func TestValidateFundamentals_Accepts(t *testing.T) {
	v := newTestValidator()

	accepted, result, err := v.ValidateFundamentals(fundamentalBatch(
		fundamentalRow("AAA", 2024, 1, 1000),
	), NewPeriodIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Accepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, domain.FiscalPeriod{Year: 2024, Quarter: 1}, accepted[0].Period)
}

func TestValidateFundamentals_QuarterOutOfRange(t *testing.T) {
	v := newTestValidator()

	_, result, err := v.ValidateFundamentals(fundamentalBatch(
		map[string]interface{}{
			"ticker": "AAA", "year": 2024, "quarter": 5, "revenue": 1000.0,
			"filed_at": time.Now().UTC(), "source": "test",
		},
	), NewPeriodIndex())
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, domain.ReasonOutOfRange, result.Rejected[0].Reason)
}

func TestValidateFundamentals_PeriodRegression(t *testing.T) {
	v := newTestValidator()

	periods := NewPeriodIndex()
	periods.Add("AAA", domain.FiscalPeriod{Year: 2023, Quarter: 2})
	periods.Add("AAA", domain.FiscalPeriod{Year: 2024, Quarter: 1})

	// A brand-new period older than the latest curated one is rejected
	_, result, err := v.ValidateFundamentals(fundamentalBatch(
		fundamentalRow("AAA", 2023, 3, 900),
	), periods)
	require.NoError(t, err)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, domain.ReasonPeriodRegression, result.Rejected[0].Reason)

	// Re-curating an already-known period is a correction, not a regression
	accepted, result, err := v.ValidateFundamentals(fundamentalBatch(
		fundamentalRow("AAA", 2023, 2, 950),
	), periods)
	require.NoError(t, err)
	assert.Empty(t, result.Rejected)
	assert.Len(t, accepted, 1)
}
