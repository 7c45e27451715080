package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoredDesign is a persisted sampling design run. The full design output
// is kept as JSON in ResultJSON; designs are immutable once written, a
// changed plan is stored as a new row rather than an update.
type StoredDesign struct {
	DesignID    string          `json:"design_id"`
	ForestID    string          `json:"forest_id"`
	Seed        int64           `json:"seed"`
	ParamsJSON  json.RawMessage `json:"params_json,omitempty"`
	ResultJSON  json.RawMessage `json:"result_json"`
	TotalPoints int             `json:"total_points"`
	CreatedAt   int64           `json:"created_at"`
}

// DesignStore provides persistence for sampling design runs.
type DesignStore struct {
	db *sql.DB
}

// NewDesignStore creates a new DesignStore.
func NewDesignStore(db *sql.DB) *DesignStore {
	return &DesignStore{db: db}
}

// Insert persists a new design run. If DesignID is empty, a UUID is generated.
func (s *DesignStore) Insert(d *StoredDesign) error {
	if d.DesignID == "" {
		d.DesignID = uuid.New().String()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(d.ParamsJSON) > 0 {
		paramsStr = string(d.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sampling_designs (
				design_id, forest_id, seed, params_json, result_json, total_points, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.DesignID, d.ForestID, d.Seed, paramsStr, string(d.ResultJSON), d.TotalPoints, d.CreatedAt,
		)
		return err
	})
}

// Get returns a single design by ID.
func (s *DesignStore) Get(designID string) (*StoredDesign, error) {
	row := s.db.QueryRow(`
		SELECT design_id, forest_id, seed, params_json, result_json, total_points, created_at
		FROM sampling_designs
		WHERE design_id = ?`, designID)

	d, err := scanDesign(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("design %s not found", designID)
		}
		return nil, fmt.Errorf("scan design: %w", err)
	}
	return d, nil
}

// ListByForest returns all designs for a forest, newest first.
func (s *DesignStore) ListByForest(forestID string) ([]*StoredDesign, error) {
	rows, err := s.db.Query(`
		SELECT design_id, forest_id, seed, params_json, result_json, total_points, created_at
		FROM sampling_designs
		WHERE forest_id = ?
		ORDER BY created_at DESC`, forestID)
	if err != nil {
		return nil, fmt.Errorf("query designs: %w", err)
	}
	defer rows.Close()

	var designs []*StoredDesign
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan design row: %w", err)
		}
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

// Delete removes a design by ID.
func (s *DesignStore) Delete(designID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM sampling_designs WHERE design_id = ?`, designID)
		if err != nil {
			return fmt.Errorf("delete design: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("design %s not found", designID)
		}
		return nil
	})
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDesign(row scanner) (*StoredDesign, error) {
	var d StoredDesign
	var paramsStr sql.NullString
	var resultStr string
	err := row.Scan(
		&d.DesignID, &d.ForestID, &d.Seed, &paramsStr, &resultStr, &d.TotalPoints, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paramsStr.Valid {
		d.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	d.ResultJSON = json.RawMessage(resultStr)
	return &d, nil
}
