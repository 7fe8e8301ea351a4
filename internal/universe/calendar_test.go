package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingCalendar_Weekdays(t *testing.T) {
	cal := NewTradingCalendar(nil)

	assert.True(t, cal.IsTradingDay("2024-01-02"))  // Tuesday
	assert.True(t, cal.IsTradingDay("2024-01-05"))  // Friday
	assert.False(t, cal.IsTradingDay("2024-01-06")) // Saturday
	assert.False(t, cal.IsTradingDay("2024-01-07")) // Sunday
}

func TestTradingCalendar_Holidays(t *testing.T) {
	cal := NewTradingCalendar([]string{"2024-01-01", "2024-12-25"})

	assert.False(t, cal.IsTradingDay("2024-01-01")) // New Year, a Monday
	assert.False(t, cal.IsTradingDay("2024-12-25"))
	assert.True(t, cal.IsTradingDay("2024-12-24"))
}

func TestTradingCalendar_InvalidDate(t *testing.T) {
	cal := NewTradingCalendar(nil)
	assert.False(t, cal.IsTradingDay("not-a-date"))
	assert.False(t, cal.IsTradingDay("2024-13-40"))
}

func TestTradingDaysBetween(t *testing.T) {
	cal := NewTradingCalendar([]string{"2024-01-01"})

	days, err := cal.TradingDaysBetween("2023-12-29", "2024-01-03")
	require.NoError(t, err)

	// Fri 29th, then Mon 1st is a holiday, Tue 2nd, Wed 3rd
	assert.Equal(t, []string{"2023-12-29", "2024-01-02", "2024-01-03"}, days)
}

func TestTradingDaysBetween_Inverted(t *testing.T) {
	cal := NewTradingCalendar(nil)
	_, err := cal.TradingDaysBetween("2024-01-05", "2024-01-02")
	assert.Error(t, err)
}
