// Package signals normalizes features cross-sectionally into comparable
// scores and selects ranked long/short candidates.
package signals

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/universe"
	"github.com/mosaicquant/mosaic/pkg/formulas"
)

// Scorer normalizes features across the universe for one date and combines
// them into a weighted composite. Weights are configuration; no default
// weighting is inferred.
type Scorer struct {
	weights map[string]float64
	log     zerolog.Logger
}

// NewScorer creates a new signal scorer
func NewScorer(weights map[string]float64, log zerolog.Logger) *Scorer {
	return &Scorer{
		weights: weights,
		log:     log.With().Str("component", "scorer").Logger(),
	}
}

// Score produces signal scores for one date. Only universe members are
// scored; entities with all-nil features receive a nil composite and rank 0.
// Output order: ranked entities first (composite descending, ties by ticker
// ascending), then unranked by ticker.
func (s *Scorer) Score(date string, rows []domain.FeatureRow, snap *universe.Snapshot) []domain.SignalScore {
	members := make([]domain.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if r.Date == date && snap.Contains(r.Ticker) {
			members = append(members, r)
		}
	}

	// Cross-sectional mean and std per feature over non-nil members
	type crossSection struct {
		mean, std float64
		ok        bool
	}
	sections := make(map[string]crossSection, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		var values []float64
		for _, r := range members {
			if v := r.Value(name); v != nil {
				values = append(values, *v)
			}
		}
		if len(values) < 2 {
			continue
		}
		std := formulas.StdDev(values)
		if std < formulas.Epsilon {
			continue
		}
		sections[name] = crossSection{mean: formulas.Mean(values), std: std, ok: true}
	}

	scores := make([]domain.SignalScore, 0, len(members))
	for _, r := range members {
		score := domain.SignalScore{
			Ticker:  r.Ticker,
			Date:    date,
			ZScores: make(map[string]*float64, len(domain.FeatureNames)),
		}

		var weighted, weightSum float64
		var any bool
		for _, name := range domain.FeatureNames {
			v := r.Value(name)
			cs := sections[name]
			if v == nil || !cs.ok {
				score.ZScores[name] = nil
				continue
			}
			z := (*v - cs.mean) / cs.std
			score.ZScores[name] = &z

			if w, configured := s.weights[name]; configured && w > 0 {
				weighted += w * z
				weightSum += w
				any = true
			}
		}

		if any && weightSum > formulas.Epsilon {
			composite := weighted / weightSum
			score.Composite = &composite
		}
		scores = append(scores, score)
	}

	rankScores(scores)

	s.log.Debug().
		Str("date", date).
		Int("scored", len(scores)).
		Msg("Cross-sectional scores computed")

	return scores
}

// rankScores orders by composite descending with ticker as the deterministic
// tie-break, assigns ranks 1..n to entities with a composite, and leaves
// nil-composite entities unranked at the tail.
func rankScores(scores []domain.SignalScore) {
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		switch {
		case a.Composite == nil && b.Composite == nil:
			return a.Ticker < b.Ticker
		case a.Composite == nil:
			return false
		case b.Composite == nil:
			return true
		case *a.Composite != *b.Composite:
			return *a.Composite > *b.Composite
		default:
			return a.Ticker < b.Ticker
		}
	})

	rank := 0
	for i := range scores {
		if scores[i].Composite == nil {
			scores[i].Rank = 0
			continue
		}
		rank++
		scores[i].Rank = rank
	}
}
