package universe

// Index answers per-date membership questions over the full member list,
// used by referential validation where rows carry their own dates.
type Index struct {
	byTicker map[string][]Member
}

// NewIndex builds a membership index
func NewIndex(members []Member) *Index {
	idx := &Index{byTicker: make(map[string][]Member)}
	for _, m := range members {
		idx.byTicker[m.Ticker] = append(idx.byTicker[m.Ticker], m)
	}
	return idx
}

// ContainsOn reports whether the ticker is a universe member on the date.
func (x *Index) ContainsOn(ticker, date string) bool {
	for _, m := range x.byTicker[ticker] {
		if m.activeOn(date) {
			return true
		}
	}
	return false
}
