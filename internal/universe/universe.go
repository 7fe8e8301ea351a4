package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/domain"
)

// Member is one entity in the configured universe, valid for the
// [ActiveFrom, ActiveTo] date range. Empty bounds mean unbounded.
type Member struct {
	Ticker     string
	Sector     string
	ActiveFrom string
	ActiveTo   string
}

// Snapshot is the ordered set of entities eligible on one date.
// Immutable after construction; the engine never mutates it.
type Snapshot struct {
	Date    string
	tickers []string
	sectors map[string]string
}

// NewSnapshot builds a snapshot from members active on the given date.
func NewSnapshot(date string, members []Member) *Snapshot {
	s := &Snapshot{
		Date:    date,
		sectors: make(map[string]string),
	}
	for _, m := range members {
		if !m.activeOn(date) {
			continue
		}
		if _, seen := s.sectors[m.Ticker]; seen {
			continue
		}
		s.tickers = append(s.tickers, m.Ticker)
		s.sectors[m.Ticker] = m.Sector
	}
	sort.Strings(s.tickers)
	return s
}

func (m Member) activeOn(date string) bool {
	if m.ActiveFrom != "" && date < m.ActiveFrom {
		return false
	}
	if m.ActiveTo != "" && date > m.ActiveTo {
		return false
	}
	return true
}

// Tickers returns the members in ascending lexical order.
func (s *Snapshot) Tickers() []string {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out
}

// Contains reports whether the ticker is a member on the snapshot date.
func (s *Snapshot) Contains(ticker string) bool {
	_, ok := s.sectors[ticker]
	return ok
}

// SectorOf returns the ticker's sector, or "" for non-members.
func (s *Snapshot) SectorOf(ticker string) string {
	return s.sectors[ticker]
}

// Size returns the number of members.
func (s *Snapshot) Size() int {
	return len(s.tickers)
}

// Loader reads universe membership from the configured CSV file.
type Loader struct {
	path string
	log  zerolog.Logger
}

// NewLoader creates a universe loader
func NewLoader(path string, log zerolog.Logger) *Loader {
	return &Loader{
		path: path,
		log:  log.With().Str("component", "universe_loader").Logger(),
	}
}

// Load parses the universe CSV. Expected header:
// ticker,sector[,active_from,active_to]
func (l *Loader) Load() ([]Member, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open universe file: %w", err)
	}
	defer f.Close()

	return l.parse(f)
}

// SnapshotFor loads the universe and restricts it to the given date.
func (l *Loader) SnapshotFor(date string) (*Snapshot, error) {
	members, err := l.Load()
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(date, members)
	l.log.Debug().
		Str("date", date).
		Int("members", snap.Size()).
		Msg("Universe snapshot loaded")

	return snap, nil
}

func (l *Loader) parse(r io.Reader) ([]Member, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read universe header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["ticker"]; !ok {
		return nil, fmt.Errorf("universe file missing required column: ticker")
	}

	var members []Member
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read universe row: %w", err)
		}

		m := Member{
			Ticker: strings.ToUpper(strings.TrimSpace(record[col["ticker"]])),
		}
		if m.Ticker == "" {
			continue
		}
		if i, ok := col["sector"]; ok && i < len(record) {
			m.Sector = strings.TrimSpace(record[i])
		}
		if i, ok := col["active_from"]; ok && i < len(record) {
			m.ActiveFrom = strings.TrimSpace(record[i])
		}
		if i, ok := col["active_to"]; ok && i < len(record) {
			m.ActiveTo = strings.TrimSpace(record[i])
		}

		for _, bound := range []string{m.ActiveFrom, m.ActiveTo} {
			if bound == "" {
				continue
			}
			if _, err := time.Parse(domain.DateLayout, bound); err != nil {
				return nil, fmt.Errorf("invalid active date %q for %s: %w", bound, m.Ticker, err)
			}
		}

		members = append(members, m)
	}

	return members, nil
}
