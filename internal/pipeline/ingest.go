package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/curation"
)

// FileIngestor reads raw batches from CSV drop files named
// prices_<date>.csv and fundamentals_<date>.csv in one directory. A missing
// file yields an empty batch, not an error: feeds deliver independently.
type FileIngestor struct {
	dir string
	log zerolog.Logger
}

// NewFileIngestor creates a file-drop ingestor
func NewFileIngestor(dir string, log zerolog.Logger) *FileIngestor {
	return &FileIngestor{
		dir: dir,
		log: log.With().Str("component", "file_ingestor").Logger(),
	}
}

// FetchPrices reads the price drop file for the run date.
func (f *FileIngestor) FetchPrices(_ context.Context, runDate string) (curation.RawBatch, error) {
	return f.readBatch("prices", fmt.Sprintf("prices_%s.csv", runDate))
}

// FetchFundamentals reads the fundamentals drop file for the run date.
func (f *FileIngestor) FetchFundamentals(_ context.Context, runDate string) (curation.RawBatch, error) {
	return f.readBatch("fundamentals", fmt.Sprintf("fundamentals_%s.csv", runDate))
}

func (f *FileIngestor) readBatch(name, filename string) (curation.RawBatch, error) {
	path := filepath.Join(f.dir, filename)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		f.log.Debug().Str("file", filename).Msg("No drop file, empty batch")
		return curation.RawBatch{Name: name}, nil
	}
	if err != nil {
		return curation.RawBatch{}, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer file.Close()

	batch, err := parseBatch(name, file)
	if err != nil {
		return curation.RawBatch{}, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	f.log.Debug().Str("file", filename).Int("rows", len(batch.Rows)).Msg("Batch read")
	return batch, nil
}

// parseBatch converts a CSV stream into a RawBatch. Cells that parse as
// numbers become float64, empty cells become nil; everything else stays a
// string. The validator applies the schema's typing rules afterwards.
func parseBatch(name string, r io.Reader) (curation.RawBatch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return curation.RawBatch{Name: name}, nil
	}
	if err != nil {
		return curation.RawBatch{}, err
	}

	batch := curation.RawBatch{Name: name, Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return curation.RawBatch{}, err
		}

		row := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i >= len(record) {
				break
			}
			row[col] = parseCell(record[i])
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func parseCell(raw string) interface{} {
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}
