// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical date format for partition keys.
const DateLayout = "2006-01-02"

// Side represents the direction of a generated position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// RawPriceRecord is one daily price observation exactly as received from an
// ingestion collaborator. Immutable once handed to the engine.
type RawPriceRecord struct {
	Ticker   string   `json:"ticker"`
	Date     string   `json:"date"` // YYYY-MM-DD
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close,omitempty"`
	Volume   *int64   `json:"volume,omitempty"`
	Source   string   `json:"source"`
}

// RawFundamentalRecord is one fundamental extract as received.
type RawFundamentalRecord struct {
	Ticker    string    `json:"ticker"`
	Year      int       `json:"year"`
	Quarter   int       `json:"quarter"` // 1..4
	Revenue   float64   `json:"revenue"`
	NetIncome *float64  `json:"net_income,omitempty"`
	EPS       *float64  `json:"eps,omitempty"`
	FiledAt   time.Time `json:"filed_at"`
	Source    string    `json:"source"`
}

// FiscalPeriod identifies a fiscal quarter, ordered chronologically.
type FiscalPeriod struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// String returns the period as "2024Q1".
func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%dQ%d", p.Year, p.Quarter)
}

// Index returns the period as a comparable ordinal (year*4 + quarter - 1).
func (p FiscalPeriod) Index() int {
	return p.Year*4 + p.Quarter - 1
}

// Before reports whether p is chronologically before other.
func (p FiscalPeriod) Before(other FiscalPeriod) bool {
	return p.Index() < other.Index()
}

// YearAgo returns the same fiscal quarter one year earlier.
func (p FiscalPeriod) YearAgo() FiscalPeriod {
	return FiscalPeriod{Year: p.Year - 1, Quarter: p.Quarter}
}

// CuratedPrice is a validated, deduplicated daily price row.
// At most one row exists per (ticker, date); close is always positive.
type CuratedPrice struct {
	Ticker   string   `json:"ticker"`
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close,omitempty"`
	Volume   *int64   `json:"volume,omitempty"`
	Source   string   `json:"source"`
}

// CuratedFundamental is a validated fundamental row. At most one row exists
// per (ticker, fiscal period).
type CuratedFundamental struct {
	Ticker    string       `json:"ticker"`
	Period    FiscalPeriod `json:"period"`
	Revenue   float64      `json:"revenue"`
	NetIncome *float64     `json:"net_income,omitempty"`
	EPS       *float64     `json:"eps,omitempty"`
	FiledAt   time.Time    `json:"filed_at"`
	Source    string       `json:"source"`
}

// FeatureRow holds the derived features for one (ticker, date).
// A nil value means insufficient history for that feature.
type FeatureRow struct {
	Ticker           string   `json:"ticker"`
	Date             string   `json:"date"`
	RealizedVol20d   *float64 `json:"realized_vol_20d,omitempty"`
	Momentum60d      *float64 `json:"momentum_60d,omitempty"`
	MeanReversionZ5d *float64 `json:"mean_reversion_zscore_5d,omitempty"`
	RevenueGrowthYoY *float64 `json:"revenue_growth_yoy,omitempty"`
}

// FeatureNames lists the feature columns in canonical order.
var FeatureNames = []string{
	"realized_vol_20d",
	"momentum_60d",
	"mean_reversion_zscore_5d",
	"revenue_growth_yoy",
}

// Value returns the named feature value from the row.
func (f FeatureRow) Value(name string) *float64 {
	switch name {
	case "realized_vol_20d":
		return f.RealizedVol20d
	case "momentum_60d":
		return f.Momentum60d
	case "mean_reversion_zscore_5d":
		return f.MeanReversionZ5d
	case "revenue_growth_yoy":
		return f.RevenueGrowthYoY
	}
	return nil
}

// SignalScore holds the cross-sectionally normalized scores for one
// (ticker, date). Composite is nil when every feature is nil; Rank is zero
// for unranked (nil composite) entities.
type SignalScore struct {
	Ticker    string              `json:"ticker"`
	Date      string              `json:"date"`
	ZScores   map[string]*float64 `json:"zscores"`
	Composite *float64            `json:"composite,omitempty"`
	Rank      int                 `json:"rank"`
}

// Position is one selected long or short candidate.
type Position struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"`
	Side   Side    `json:"side"`
	Rank   int     `json:"rank"`
	Weight float64 `json:"weight"`
}
