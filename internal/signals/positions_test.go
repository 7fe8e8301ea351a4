package signals

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/universe"
)

// rankedScores builds n scores with composite descending by index:
// entity i gets composite 1.0 - i*0.1 and rank i+1.
func rankedScores(tickers ...string) []domain.SignalScore {
	scores := make([]domain.SignalScore, len(tickers))
	for i, t := range tickers {
		c := 1.0 - float64(i)*0.1
		scores[i] = domain.SignalScore{
			Ticker:    t,
			Date:      testDate,
			Composite: &c,
			Rank:      i + 1,
		}
	}
	return scores
}

func sectorSnapshot(sectors map[string]string) *universe.Snapshot {
	members := make([]universe.Member, 0, len(sectors))
	for ticker, sector := range sectors {
		members = append(members, universe.Member{Ticker: ticker, Sector: sector})
	}
	return universe.NewSnapshot(testDate, members)
}

func sidePositions(positions []domain.Position, side domain.Side) []domain.Position {
	var out []domain.Position
	for _, p := range positions {
		if p.Side == side {
			out = append(out, p)
		}
	}
	return out
}

func TestGenerateBasicSelection(t *testing.T) {
	scores := rankedScores("AAA", "BBB", "CCC", "DDD", "EEE", "FFF")
	snap := sectorSnapshot(map[string]string{
		"AAA": "tech", "BBB": "energy", "CCC": "health",
		"DDD": "tech", "EEE": "energy", "FFF": "health",
	})

	positions := NewGenerator(2, 0, zerolog.Nop()).Generate(testDate, scores, snap)

	longs := sidePositions(positions, domain.SideLong)
	shorts := sidePositions(positions, domain.SideShort)
	require.Len(t, longs, 2)
	require.Len(t, shorts, 2)

	assert.Equal(t, "AAA", longs[0].Ticker)
	assert.Equal(t, "BBB", longs[1].Ticker)
	// shorts come from the bottom of the ranking upward
	assert.Equal(t, "FFF", shorts[0].Ticker)
	assert.Equal(t, "EEE", shorts[1].Ticker)

	for i, p := range longs {
		assert.Equal(t, i+1, p.Rank)
		assert.InDelta(t, 0.5, p.Weight, 1e-12)
	}
}

func TestGenerateSectorCap(t *testing.T) {
	// 10 entities, 5 in tech at the top; cap 1 forces sector diversity
	tickers := []string{"T00", "T01", "T02", "T03", "T04", "E05", "H06", "F07", "M08", "U09"}
	sectors := map[string]string{
		"T00": "tech", "T01": "tech", "T02": "tech", "T03": "tech", "T04": "tech",
		"E05": "energy", "H06": "health", "F07": "financials", "M08": "materials", "U09": "utilities",
	}
	scores := rankedScores(tickers...)
	snap := sectorSnapshot(sectors)

	positions := NewGenerator(3, 1, zerolog.Nop()).Generate(testDate, scores, snap)
	longs := sidePositions(positions, domain.SideLong)
	require.Len(t, longs, 3)

	// only the best tech entity is admitted; the next two come from
	// walking past the capped sector
	assert.Equal(t, "T00", longs[0].Ticker)
	assert.Equal(t, "E05", longs[1].Ticker)
	assert.Equal(t, "H06", longs[2].Ticker)
}

func TestGenerateSidesDisjoint(t *testing.T) {
	// small universe: with 3 per side over 4 entities the sides would
	// overlap unless longs are excluded from shorting
	scores := rankedScores("AAA", "BBB", "CCC", "DDD")
	snap := sectorSnapshot(map[string]string{
		"AAA": "tech", "BBB": "tech", "CCC": "tech", "DDD": "tech",
	})

	positions := NewGenerator(3, 0, zerolog.Nop()).Generate(testDate, scores, snap)
	longs := sidePositions(positions, domain.SideLong)
	shorts := sidePositions(positions, domain.SideShort)
	require.Len(t, longs, 3)
	require.Len(t, shorts, 1)

	held := make(map[string]bool)
	for _, p := range longs {
		held[p.Ticker] = true
	}
	for _, p := range shorts {
		assert.False(t, held[p.Ticker], "%s held on both sides", p.Ticker)
	}
	assert.Equal(t, "DDD", shorts[0].Ticker)
	assert.InDelta(t, 1.0, shorts[0].Weight, 1e-12)
}

func TestGenerateFewerThanRequested(t *testing.T) {
	scores := rankedScores("AAA", "BBB")
	snap := sectorSnapshot(map[string]string{"AAA": "tech", "BBB": "energy"})

	positions := NewGenerator(5, 0, zerolog.Nop()).Generate(testDate, scores, snap)
	longs := sidePositions(positions, domain.SideLong)
	require.Len(t, longs, 2)
	// equal weight over admitted entities, not the requested count
	for _, p := range longs {
		assert.InDelta(t, 0.5, p.Weight, 1e-12)
	}
}

func TestGenerateSkipsUnranked(t *testing.T) {
	scores := rankedScores("AAA", "BBB")
	scores = append(scores, domain.SignalScore{Ticker: "CCC", Date: testDate, Composite: nil, Rank: 0})
	snap := sectorSnapshot(map[string]string{"AAA": "tech", "BBB": "energy", "CCC": "health"})

	positions := NewGenerator(5, 0, zerolog.Nop()).Generate(testDate, scores, snap)
	for _, p := range positions {
		assert.NotEqual(t, "CCC", p.Ticker)
	}
}

func TestGenerateWeightsSumToOnePerSide(t *testing.T) {
	var tickers []string
	sectors := make(map[string]string)
	for i := 0; i < 12; i++ {
		ticker := fmt.Sprintf("X%02d", i)
		tickers = append(tickers, ticker)
		sectors[ticker] = fmt.Sprintf("sector%d", i%4)
	}
	scores := rankedScores(tickers...)
	snap := sectorSnapshot(sectors)

	positions := NewGenerator(4, 2, zerolog.Nop()).Generate(testDate, scores, snap)
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		var sum float64
		for _, p := range sidePositions(positions, side) {
			sum += p.Weight
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "side %s", side)
	}
}

func TestGenerateEmptyScores(t *testing.T) {
	snap := sectorSnapshot(map[string]string{"AAA": "tech"})
	positions := NewGenerator(3, 1, zerolog.Nop()).Generate(testDate, nil, snap)
	assert.Empty(t, positions)
}
