package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average of a close series.
//
// EMA Formula:
//
//	EMA_today = (Price_today x multiplier) + (EMA_yesterday x (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Returns the current EMA value or nil if no data is available.
// With fewer closes than the period, falls back to the simple mean.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}

	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !math.IsNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// CalculateSMA calculates the Simple Moving Average over the trailing window.
// Returns nil if no data is available; with fewer closes than the window,
// averages what exists.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}

	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}
