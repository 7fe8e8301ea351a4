package curation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mosaicquant/mosaic/internal/domain"
)

// QuarantineStore persists rejected rows per batch for offline inspection.
// Rows are msgpack-encoded; the store is append-only.
type QuarantineStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQuarantineStore creates a new quarantine store
func NewQuarantineStore(db *sql.DB, log zerolog.Logger) *QuarantineStore {
	return &QuarantineStore{
		db:  db,
		log: log.With().Str("component", "quarantine").Logger(),
	}
}

// Save stores the rejected rows of a validation result. Results without
// rejections are skipped.
func (q *QuarantineStore) Save(result *domain.ValidationResult) error {
	if result == nil || len(result.Rejected) == 0 {
		return nil
	}

	payload, err := msgpack.Marshal(result.Rejected)
	if err != nil {
		return fmt.Errorf("failed to encode quarantine payload: %w", err)
	}

	_, err = q.db.Exec(`
		INSERT INTO quarantine (batch_id, created_at, rows, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
			created_at = excluded.created_at,
			rows = excluded.rows,
			payload = excluded.payload`,
		result.BatchID, time.Now().UTC().Format(time.RFC3339), len(result.Rejected), payload)
	if err != nil {
		return fmt.Errorf("failed to save quarantine batch %s: %w", result.BatchID, err)
	}

	q.log.Info().
		Str("batch_id", result.BatchID).
		Int("rows", len(result.Rejected)).
		Msg("Rejected rows quarantined")

	return nil
}

// Load returns the rejected rows for a batch id.
func (q *QuarantineStore) Load(batchID string) ([]domain.RejectedRow, error) {
	var payload []byte
	err := q.db.QueryRow(`SELECT payload FROM quarantine WHERE batch_id = ?`, batchID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quarantine batch %s: %w", batchID, err)
	}

	var rejected []domain.RejectedRow
	if err := msgpack.Unmarshal(payload, &rejected); err != nil {
		return nil, fmt.Errorf("failed to decode quarantine payload for %s: %w", batchID, err)
	}

	return rejected, nil
}
