package curation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/universe"
)

const (
	// Closes outside this band are flagged as warnings, not rejected.
	extremeCloseMin = 0.01
	extremeCloseMax = 10000.0
)

// Validator checks raw batches against a declared schema, the trading
// calendar, and universe membership. Validation is row-level and non-fatal:
// one bad row is quarantined, the batch continues. Only structural problems
// (missing columns) abort a batch.
type Validator struct {
	calendar *universe.TradingCalendar
	index    *universe.Index
	log      zerolog.Logger
}

// NewValidator creates a new schema validator
func NewValidator(cal *universe.TradingCalendar, idx *universe.Index, log zerolog.Logger) *Validator {
	return &Validator{
		calendar: cal,
		index:    idx,
		log:      log.With().Str("component", "validator").Logger(),
	}
}

// checkStructure verifies every non-nullable schema column is declared in the
// batch header. Returns a StructuralError on the first missing column.
func checkStructure(schema Schema, batch RawBatch) error {
	for name, rule := range schema.Columns {
		if rule.Nullable {
			continue
		}
		if !batch.HasColumn(name) {
			return &domain.StructuralError{
				Batch:  batch.Name,
				Reason: fmt.Sprintf("missing required column: %s", name),
			}
		}
	}
	return nil
}

// ValidatePrices partitions a raw price batch into accepted curated rows and
// rejections. The returned error is non-nil only for structural problems.
func (v *Validator) ValidatePrices(batch RawBatch) ([]domain.CuratedPrice, *domain.ValidationResult, error) {
	schema := PriceSchema()
	if err := checkStructure(schema, batch); err != nil {
		return nil, nil, err
	}

	result := &domain.ValidationResult{BatchID: uuid.New().String()}

	lastByKey := make(map[string]domain.CuratedPrice)
	var order []string

	for _, raw := range batch.Rows {
		row, rej := v.convertPriceRow(schema, raw)
		if rej != nil {
			result.Rejected = append(result.Rejected, *rej)
			continue
		}

		key := row.Ticker + "|" + row.Date
		if prev, ok := lastByKey[key]; ok {
			// Last occurrence wins; the earlier row is quarantined.
			result.Rejected = append(result.Rejected, domain.RejectedRow{
				Ticker: prev.Ticker,
				Key:    prev.Date,
				Reason: domain.ReasonDuplicateKey,
			})
		} else {
			order = append(order, key)
		}
		lastByKey[key] = *row

		if row.Close < extremeCloseMin || row.Close > extremeCloseMax {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("extreme close %.4f for %s on %s", row.Close, row.Ticker, row.Date))
		}
	}

	accepted := make([]domain.CuratedPrice, 0, len(order))
	for _, key := range order {
		accepted = append(accepted, lastByKey[key])
	}
	result.Accepted = len(accepted)

	v.log.Info().
		Str("batch_id", result.BatchID).
		Int("accepted", result.Accepted).
		Int("rejected", result.RejectedCount()).
		Msg("Price batch validated")

	return accepted, result, nil
}

// convertPriceRow applies column rules and cross-field rules to one raw row.
func (v *Validator) convertPriceRow(schema Schema, raw map[string]interface{}) (*domain.CuratedPrice, *domain.RejectedRow) {
	ticker, _ := raw["ticker"].(string)
	date, _ := raw["date"].(string)

	reject := func(reason domain.RejectReason, column string) *domain.RejectedRow {
		return &domain.RejectedRow{Ticker: ticker, Key: date, Reason: reason, Column: column}
	}

	for name, rule := range schema.Columns {
		if rej := checkCell(raw[name], name, rule); rej != nil {
			rej.Ticker = ticker
			rej.Key = date
			return nil, rej
		}
	}

	row := &domain.CuratedPrice{
		Ticker: ticker,
		Date:   date,
		Open:   asFloat(raw["open"]),
		High:   asFloat(raw["high"]),
		Low:    asFloat(raw["low"]),
		Close:  asFloat(raw["close"]),
	}
	if s, ok := raw["source"].(string); ok {
		row.Source = s
	}
	if raw["adj_close"] != nil {
		adj := asFloat(raw["adj_close"])
		row.AdjClose = &adj
	}
	if raw["volume"] != nil {
		vol := asInt(raw["volume"])
		row.Volume = &vol
	}

	// Cross-field rules
	if row.Close <= 0 {
		return nil, reject(domain.ReasonNonPositiveClose, "close")
	}
	if row.High < row.Low {
		return nil, reject(domain.ReasonHighBelowLow, "high")
	}
	if row.Close > row.High || row.Close < row.Low {
		return nil, reject(domain.ReasonCloseOutsideRange, "close")
	}
	if row.Volume != nil && *row.Volume < 0 {
		return nil, reject(domain.ReasonNegativeVolume, "volume")
	}

	// Calendar and referential rules
	if !v.calendar.IsTradingDay(row.Date) {
		return nil, reject(domain.ReasonOffCalendar, "date")
	}
	if !v.index.ContainsOn(row.Ticker, row.Date) {
		return nil, reject(domain.ReasonUnknownEntity, "ticker")
	}

	return row, nil
}

// ValidateFundamentals partitions a raw fundamental batch into accepted
// curated rows and rejections. periods carries the currently curated fiscal
// periods per ticker, used to enforce chronological non-decrease.
func (v *Validator) ValidateFundamentals(batch RawBatch, periods *PeriodIndex) ([]domain.CuratedFundamental, *domain.ValidationResult, error) {
	schema := FundamentalSchema()
	if err := checkStructure(schema, batch); err != nil {
		return nil, nil, err
	}

	result := &domain.ValidationResult{BatchID: uuid.New().String()}

	lastByKey := make(map[string]domain.CuratedFundamental)
	var order []string

	for _, raw := range batch.Rows {
		row, rej := v.convertFundamentalRow(schema, raw, periods)
		if rej != nil {
			result.Rejected = append(result.Rejected, *rej)
			continue
		}

		key := row.Ticker + "|" + row.Period.String()
		if prev, ok := lastByKey[key]; ok {
			result.Rejected = append(result.Rejected, domain.RejectedRow{
				Ticker: prev.Ticker,
				Key:    prev.Period.String(),
				Reason: domain.ReasonDuplicateKey,
			})
		} else {
			order = append(order, key)
		}
		lastByKey[key] = *row
	}

	accepted := make([]domain.CuratedFundamental, 0, len(order))
	for _, key := range order {
		accepted = append(accepted, lastByKey[key])
	}
	result.Accepted = len(accepted)

	v.log.Info().
		Str("batch_id", result.BatchID).
		Int("accepted", result.Accepted).
		Int("rejected", result.RejectedCount()).
		Msg("Fundamental batch validated")

	return accepted, result, nil
}

func (v *Validator) convertFundamentalRow(schema Schema, raw map[string]interface{}, periods *PeriodIndex) (*domain.CuratedFundamental, *domain.RejectedRow) {
	ticker, _ := raw["ticker"].(string)

	for name, rule := range schema.Columns {
		if rej := checkCell(raw[name], name, rule); rej != nil {
			rej.Ticker = ticker
			return nil, rej
		}
	}

	period := domain.FiscalPeriod{
		Year:    int(asInt(raw["year"])),
		Quarter: int(asInt(raw["quarter"])),
	}

	reject := func(reason domain.RejectReason, column string) *domain.RejectedRow {
		return &domain.RejectedRow{Ticker: ticker, Key: period.String(), Reason: reason, Column: column}
	}

	filedAt, ok := asTime(raw["filed_at"])
	if !ok {
		return nil, reject(domain.ReasonTypeMismatch, "filed_at")
	}

	row := &domain.CuratedFundamental{
		Ticker:  ticker,
		Period:  period,
		Revenue: asFloat(raw["revenue"]),
		FiledAt: filedAt,
	}
	if s, ok := raw["source"].(string); ok {
		row.Source = s
	}
	if raw["net_income"] != nil {
		ni := asFloat(raw["net_income"])
		row.NetIncome = &ni
	}
	if raw["eps"] != nil {
		eps := asFloat(raw["eps"])
		row.EPS = &eps
	}

	if !v.index.ContainsOn(row.Ticker, filedAt.Format(domain.DateLayout)) {
		return nil, reject(domain.ReasonUnknownEntity, "ticker")
	}

	// Periods must be non-decreasing per ticker across ingested history.
	// Re-curating an already-known period is a correction and stays legal.
	if periods != nil {
		if latest, ok := periods.Latest(row.Ticker); ok {
			if row.Period.Before(latest) && !periods.Has(row.Ticker, row.Period) {
				return nil, reject(domain.ReasonPeriodRegression, "quarter")
			}
		}
	}

	return row, nil
}

// checkCell applies a single column rule to a cell value.
func checkCell(value interface{}, column string, rule ColumnRule) *domain.RejectedRow {
	if value == nil {
		if rule.Nullable {
			return nil
		}
		return &domain.RejectedRow{Reason: domain.ReasonNullValue, Column: column}
	}

	switch rule.Kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}

	case KindFloat:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}
		if rej := checkRange(f, column, rule); rej != nil {
			return rej
		}

	case KindInt:
		i, ok := toInt(value)
		if !ok {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}
		if rej := checkRange(float64(i), column, rule); rej != nil {
			return rej
		}

	case KindDate:
		s, ok := value.(string)
		if !ok {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}
		if _, err := time.Parse(domain.DateLayout, s); err != nil {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}

	case KindTime:
		if _, ok := asTime(value); !ok {
			return &domain.RejectedRow{Reason: domain.ReasonTypeMismatch, Column: column}
		}
	}

	return nil
}

func checkRange(f float64, column string, rule ColumnRule) *domain.RejectedRow {
	if rule.Min != nil && f < *rule.Min {
		return &domain.RejectedRow{Reason: domain.ReasonOutOfRange, Column: column}
	}
	if rule.Max != nil && f > *rule.Max {
		return &domain.RejectedRow{Reason: domain.ReasonOutOfRange, Column: column}
	}
	return nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// JSON decoding delivers numbers as float64
		if v == math.Trunc(v) {
			return int64(v), true
		}
	}
	return 0, false
}

// asFloat assumes the cell already passed checkCell.
func asFloat(value interface{}) float64 {
	f, _ := toFloat(value)
	return f
}

// asInt assumes the cell already passed checkCell.
func asInt(value interface{}) int64 {
	i, _ := toInt(value)
	return i
}

func asTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
