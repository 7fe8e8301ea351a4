package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Epsilon is the tolerance below which a denominator is treated as zero.
const Epsilon = 1e-9

// TradingDaysPerYear is the annualization base for daily statistics.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// LogReturns converts a price series to daily log returns.
// Returns[i] = ln(Price[i+1] / Price[i]). Prices must be positive;
// pairs with a non-positive price are skipped.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns = append(returns, math.Log(prices[i]/prices[i-1]))
		}
	}
	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
// Formula: sample std dev of daily returns x sqrt(252 trading days).
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// NearZero reports whether v is within Epsilon of zero.
func NearZero(v float64) bool {
	return math.Abs(v) < Epsilon
}
