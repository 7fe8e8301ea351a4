package signals

import (
	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/universe"
)

// Generator turns ranked scores into a long/short position list with a
// per-sector concentration cap. Selection is greedy: walk the ranking and
// admit each entity unless its sector is already at the cap for that side.
type Generator struct {
	nPerSide  int
	sectorCap int
	log       zerolog.Logger
}

// NewGenerator creates a position generator. sectorCap <= 0 disables the cap.
func NewGenerator(nPerSide, sectorCap int, log zerolog.Logger) *Generator {
	return &Generator{
		nPerSide:  nPerSide,
		sectorCap: sectorCap,
		log:       log.With().Str("component", "position_generator").Logger(),
	}
}

// Generate builds the position list for one date from ranked scores. Longs
// are admitted from the top of the ranking, shorts from the bottom; a ticker
// already held long is never shorted. Each side is equal-weighted over the
// entities actually admitted, so a side with fewer than nPerSide admissions
// still sums to full weight.
func (g *Generator) Generate(date string, scores []domain.SignalScore, snap *universe.Snapshot) []domain.Position {
	ranked := make([]domain.SignalScore, 0, len(scores))
	for _, s := range scores {
		if s.Composite != nil && s.Rank > 0 {
			ranked = append(ranked, s)
		}
	}

	longs := g.selectSide(ranked, snap, nil, false)
	taken := make(map[string]bool, len(longs))
	for _, t := range longs {
		taken[t] = true
	}
	shorts := g.selectSide(ranked, snap, taken, true)

	positions := make([]domain.Position, 0, len(longs)+len(shorts))
	positions = append(positions, buildSide(date, domain.SideLong, longs)...)
	positions = append(positions, buildSide(date, domain.SideShort, shorts)...)

	g.log.Debug().
		Str("date", date).
		Int("longs", len(longs)).
		Int("shorts", len(shorts)).
		Msg("Positions generated")

	return positions
}

// selectSide walks the ranking (reversed for shorts) and admits tickers
// greedily under the sector cap, skipping anything in the excluded set.
func (g *Generator) selectSide(ranked []domain.SignalScore, snap *universe.Snapshot, exclude map[string]bool, reverse bool) []string {
	sectorCount := make(map[string]int)
	selected := make([]string, 0, g.nPerSide)

	for i := 0; i < len(ranked) && len(selected) < g.nPerSide; i++ {
		idx := i
		if reverse {
			idx = len(ranked) - 1 - i
		}
		ticker := ranked[idx].Ticker
		if exclude[ticker] {
			continue
		}
		sector := snap.SectorOf(ticker)
		if g.sectorCap > 0 && sectorCount[sector] >= g.sectorCap {
			continue
		}
		sectorCount[sector]++
		selected = append(selected, ticker)
	}
	return selected
}

func buildSide(date string, side domain.Side, tickers []string) []domain.Position {
	if len(tickers) == 0 {
		return nil
	}
	weight := 1.0 / float64(len(tickers))
	positions := make([]domain.Position, len(tickers))
	for i, t := range tickers {
		positions[i] = domain.Position{
			Ticker: t,
			Date:   date,
			Side:   side,
			Rank:   i + 1,
			Weight: weight,
		}
	}
	return positions
}
