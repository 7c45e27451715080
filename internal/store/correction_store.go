package store

import (
	"database/sql"
	"fmt"

	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

// CorrectionStore provides persistence for the stem correction log. The log
// is append-only: entries are inserted and listed, never updated or removed,
// so the full edit history of a dataset stays auditable.
type CorrectionStore struct {
	db *sql.DB
}

// NewCorrectionStore creates a new CorrectionStore.
func NewCorrectionStore(db *sql.DB) *CorrectionStore {
	return &CorrectionStore{db: db}
}

// Insert appends a correction to the log.
func (s *CorrectionStore) Insert(c *treegrid.Correction) error {
	if c.CorrectionID == "" {
		return fmt.Errorf("correction has no ID")
	}

	var reason interface{}
	if c.Reason != "" {
		reason = c.Reason
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO stem_corrections (
				correction_id, dataset_id, row, original_x, original_y,
				corrected_x, corrected_y, distance_m, reason, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.CorrectionID, c.DatasetID, c.Row, c.OriginalX, c.OriginalY,
			c.CorrectedX, c.CorrectedY, c.DistanceM, reason, c.CreatedAt,
		)
		return err
	})
}

// ListByDataset returns the correction log of a dataset in insertion order,
// oldest first, so replaying the list reproduces the corrected positions.
func (s *CorrectionStore) ListByDataset(datasetID string) ([]treegrid.Correction, error) {
	rows, err := s.db.Query(`
		SELECT correction_id, dataset_id, row, original_x, original_y,
		       corrected_x, corrected_y, distance_m, reason, created_at
		FROM stem_corrections
		WHERE dataset_id = ?
		ORDER BY created_at ASC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var corrections []treegrid.Correction
	for rows.Next() {
		var c treegrid.Correction
		var reason sql.NullString
		err := rows.Scan(
			&c.CorrectionID, &c.DatasetID, &c.Row, &c.OriginalX, &c.OriginalY,
			&c.CorrectedX, &c.CorrectedY, &c.DistanceM, &reason, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan correction row: %w", err)
		}
		if reason.Valid {
			c.Reason = reason.String
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}
