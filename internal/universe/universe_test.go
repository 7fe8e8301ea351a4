package universe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Membership(t *testing.T) {
	members := []Member{
		{Ticker: "AAA", Sector: "tech"},
		{Ticker: "BBB", Sector: "energy", ActiveFrom: "2024-01-01"},
		{Ticker: "CCC", Sector: "tech", ActiveTo: "2023-12-31"},
	}

	snap := NewSnapshot("2024-01-02", members)

	assert.Equal(t, []string{"AAA", "BBB"}, snap.Tickers())
	assert.True(t, snap.Contains("AAA"))
	assert.False(t, snap.Contains("CCC")) // Inactive by 2024
	assert.Equal(t, "energy", snap.SectorOf("BBB"))
	assert.Equal(t, "", snap.SectorOf("CCC"))
	assert.Equal(t, 2, snap.Size())
}

func TestSnapshot_OrderedAndDeduplicated(t *testing.T) {
	members := []Member{
		{Ticker: "ZZZ", Sector: "tech"},
		{Ticker: "AAA", Sector: "tech"},
		{Ticker: "AAA", Sector: "energy"}, // Duplicate, first wins
	}

	snap := NewSnapshot("2024-01-02", members)

	assert.Equal(t, []string{"AAA", "ZZZ"}, snap.Tickers())
	assert.Equal(t, "tech", snap.SectorOf("AAA"))
}

func TestLoader_Parse(t *testing.T) {
	loader := NewLoader("", zerolog.Nop())

	csvData := strings.NewReader(
		"ticker,sector,active_from,active_to\n" +
			"aapl,tech,,\n" +
			"XOM,energy,2020-01-01,\n" +
			",ghost,,\n",
	)

	members, err := loader.parse(csvData)
	require.NoError(t, err)

	require.Len(t, members, 2)
	assert.Equal(t, "AAPL", members[0].Ticker) // Upper-cased
	assert.Equal(t, "tech", members[0].Sector)
	assert.Equal(t, "XOM", members[1].Ticker)
	assert.Equal(t, "2020-01-01", members[1].ActiveFrom)
}

func TestLoader_MissingTickerColumn(t *testing.T) {
	loader := NewLoader("", zerolog.Nop())

	_, err := loader.parse(strings.NewReader("symbol,sector\nAAPL,tech\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker")
}

func TestLoader_InvalidActiveDate(t *testing.T) {
	loader := NewLoader("", zerolog.Nop())

	_, err := loader.parse(strings.NewReader("ticker,sector,active_from\nAAPL,tech,01/01/2020\n"))
	assert.Error(t, err)
}

func TestLoader_SnapshotForFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "universe.csv")
	content := "ticker,sector\nAAA,tech\nBBB,energy\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loader := NewLoader(path, zerolog.Nop())
	snap, err := loader.SnapshotFor("2024-01-02")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, snap.Tickers())
}
