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

const testDate = "2024-03-15"

func fp(v float64) *float64 { return &v }

func testSnapshot(tickers ...string) *universe.Snapshot {
	members := make([]universe.Member, len(tickers))
	for i, t := range tickers {
		members[i] = universe.Member{Ticker: t, Sector: "tech"}
	}
	return universe.NewSnapshot(testDate, members)
}

func featureRow(ticker string, vol, mom *float64) domain.FeatureRow {
	return domain.FeatureRow{
		Ticker:        ticker,
		Date:          testDate,
		RealizedVol20d: vol,
		Momentum60d:    mom,
	}
}

func testScorer() *Scorer {
	weights := map[string]float64{
		"realized_vol_20d": 1.0,
		"momentum_60d":     2.0,
	}
	return NewScorer(weights, zerolog.Nop())
}

func TestScoreZScoresSumToZero(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("BBB", fp(0.20), fp(-0.02)),
		featureRow("CCC", fp(0.35), fp(0.11)),
		featureRow("DDD", fp(0.15), fp(0.03)),
	}
	snap := testSnapshot("AAA", "BBB", "CCC", "DDD")

	scores := testScorer().Score(testDate, rows, snap)
	require.Len(t, scores, 4)

	for _, name := range []string{"realized_vol_20d", "momentum_60d"} {
		var sum float64
		for _, s := range scores {
			require.NotNil(t, s.ZScores[name], "%s/%s", s.Ticker, name)
			sum += *s.ZScores[name]
		}
		assert.InDelta(t, 0.0, sum, 1e-9, "z-scores for %s should sum to zero", name)
	}
}

func TestScoreNilValueYieldsNilZScore(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("BBB", nil, fp(-0.02)),
		featureRow("CCC", fp(0.35), fp(0.11)),
	}
	snap := testSnapshot("AAA", "BBB", "CCC")

	scores := testScorer().Score(testDate, rows, snap)
	require.Len(t, scores, 3)

	byTicker := make(map[string]domain.SignalScore)
	for _, s := range scores {
		byTicker[s.Ticker] = s
	}

	assert.Nil(t, byTicker["BBB"].ZScores["realized_vol_20d"])
	assert.NotNil(t, byTicker["BBB"].ZScores["momentum_60d"])
	// composite still present from the remaining feature
	assert.NotNil(t, byTicker["BBB"].Composite)
	// the other two entities still get vol z-scores from a 2-wide section
	assert.NotNil(t, byTicker["AAA"].ZScores["realized_vol_20d"])
	assert.NotNil(t, byTicker["CCC"].ZScores["realized_vol_20d"])
}

func TestScoreDegenerateSection(t *testing.T) {
	// identical values: cross-sectional std is zero, no z-score is defined
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.25), fp(0.05)),
		featureRow("BBB", fp(0.25), fp(-0.02)),
		featureRow("CCC", fp(0.25), fp(0.11)),
	}
	snap := testSnapshot("AAA", "BBB", "CCC")

	scores := testScorer().Score(testDate, rows, snap)
	for _, s := range scores {
		assert.Nil(t, s.ZScores["realized_vol_20d"], "%s should have nil vol z-score", s.Ticker)
		assert.NotNil(t, s.ZScores["momentum_60d"])
	}
}

func TestScoreSingleObservationSection(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("BBB", nil, fp(-0.02)),
	}
	snap := testSnapshot("AAA", "BBB")

	scores := testScorer().Score(testDate, rows, snap)
	byTicker := make(map[string]domain.SignalScore)
	for _, s := range scores {
		byTicker[s.Ticker] = s
	}
	// a single non-nil value cannot be normalized
	assert.Nil(t, byTicker["AAA"].ZScores["realized_vol_20d"])
}

func TestScoreCompositeWeighting(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("BBB", fp(0.30), fp(-0.05)),
	}
	snap := testSnapshot("AAA", "BBB")

	scores := testScorer().Score(testDate, rows, snap)
	byTicker := make(map[string]domain.SignalScore)
	for _, s := range scores {
		byTicker[s.Ticker] = s
	}

	a := byTicker["AAA"]
	require.NotNil(t, a.Composite)
	// weights: vol=1, momentum=2 → composite = (1*z_vol + 2*z_mom) / 3
	expected := (1.0**a.ZScores["realized_vol_20d"] + 2.0**a.ZScores["momentum_60d"]) / 3.0
	assert.InDelta(t, expected, *a.Composite, 1e-9)
}

func TestScoreAllNilComposite(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("BBB", fp(0.30), fp(-0.05)),
		featureRow("CCC", nil, nil),
	}
	snap := testSnapshot("AAA", "BBB", "CCC")

	scores := testScorer().Score(testDate, rows, snap)
	byTicker := make(map[string]domain.SignalScore)
	for _, s := range scores {
		byTicker[s.Ticker] = s
	}

	assert.Nil(t, byTicker["CCC"].Composite)
	assert.Equal(t, 0, byTicker["CCC"].Rank)
	// unranked entities sort after ranked ones
	assert.Equal(t, "CCC", scores[len(scores)-1].Ticker)
}

func TestScoreNonMembersExcluded(t *testing.T) {
	rows := []domain.FeatureRow{
		featureRow("AAA", fp(0.10), fp(0.05)),
		featureRow("ZZZ", fp(0.30), fp(-0.05)),
	}
	snap := testSnapshot("AAA")

	scores := testScorer().Score(testDate, rows, snap)
	require.Len(t, scores, 1)
	assert.Equal(t, "AAA", scores[0].Ticker)
}

func TestScoreRankingAndTieBreak(t *testing.T) {
	// BBB and CCC share identical features so their composites tie exactly
	rows := []domain.FeatureRow{
		featureRow("DDD", fp(0.40), fp(0.40)),
		featureRow("AAA", fp(0.10), fp(0.10)),
		featureRow("CCC", fp(0.25), fp(0.25)),
		featureRow("BBB", fp(0.25), fp(0.25)),
	}
	snap := testSnapshot("AAA", "BBB", "CCC", "DDD")

	scores := testScorer().Score(testDate, rows, snap)
	require.Len(t, scores, 4)

	assert.Equal(t, "DDD", scores[0].Ticker)
	assert.Equal(t, 1, scores[0].Rank)
	assert.Equal(t, "AAA", scores[3].Ticker)
	assert.Equal(t, 4, scores[3].Rank)
	// BBB and CCC tie on composite; ticker ascending breaks it
	assert.Equal(t, "BBB", scores[1].Ticker)
	assert.Equal(t, "CCC", scores[2].Ticker)
	assert.InDelta(t, *scores[1].Composite, *scores[2].Composite, 1e-12)
}

func TestScoreDeterminism(t *testing.T) {
	var rows []domain.FeatureRow
	var tickers []string
	for i := 0; i < 25; i++ {
		ticker := fmt.Sprintf("T%02d", i)
		tickers = append(tickers, ticker)
		rows = append(rows, featureRow(ticker, fp(0.05+float64(i)*0.013), fp(-0.1+float64(i%7)*0.021)))
	}
	snap := testSnapshot(tickers...)
	scorer := testScorer()

	first := scorer.Score(testDate, rows, snap)
	for run := 0; run < 3; run++ {
		again := scorer.Score(testDate, rows, snap)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].Ticker, again[i].Ticker)
			assert.Equal(t, first[i].Rank, again[i].Rank)
			assert.InDelta(t, *first[i].Composite, *again[i].Composite, 1e-15)
		}
	}
}
