package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

// StemDataset is one uploaded stem inventory. ResolvedAt and
// ResolveParamsJSON are zero until a competition run has been saved for it.
type StemDataset struct {
	DatasetID         string          `json:"dataset_id"`
	ForestID          string          `json:"forest_id,omitempty"`
	Name              string          `json:"name"`
	StemCount         int             `json:"stem_count"`
	ResolvedAt        int64           `json:"resolved_at,omitempty"`
	ResolveParamsJSON json.RawMessage `json:"resolve_params_json,omitempty"`
	CreatedAt         int64           `json:"created_at"`
}

// StemStore provides persistence for stem inventories and their
// competition classifications.
type StemStore struct {
	db *sql.DB
}

// NewStemStore creates a new StemStore.
func NewStemStore(db *sql.DB) *StemStore {
	return &StemStore{db: db}
}

// CreateDataset persists a dataset and its stem rows in one transaction.
// If DatasetID is empty, a UUID is generated; StemCount is set from the
// stem list.
func (s *StemStore) CreateDataset(ds *StemDataset, stems []treegrid.Stem) error {
	if ds.DatasetID == "" {
		ds.DatasetID = uuid.New().String()
	}
	if ds.CreatedAt == 0 {
		ds.CreatedAt = time.Now().UnixNano()
	}
	ds.StemCount = len(stems)

	var forestID interface{}
	if ds.ForestID != "" {
		forestID = ds.ForestID
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin create dataset: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO stem_datasets (
				dataset_id, forest_id, name, stem_count, created_at
			) VALUES (?, ?, ?, ?, ?)`,
			ds.DatasetID, forestID, ds.Name, ds.StemCount, ds.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stems (dataset_id, row, x, y, diameter_cm, height_m, species)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare stem insert: %w", err)
		}
		defer stmt.Close()

		for _, st := range stems {
			var height, species interface{}
			if st.HeightM > 0 {
				height = st.HeightM
			}
			if st.Species != "" {
				species = st.Species
			}
			if _, err := stmt.Exec(ds.DatasetID, st.Row, st.X, st.Y, st.DiameterCM, height, species); err != nil {
				return fmt.Errorf("insert stem row %d: %w", st.Row, err)
			}
		}

		return tx.Commit()
	})
}

// GetDataset returns a dataset by ID.
func (s *StemStore) GetDataset(datasetID string) (*StemDataset, error) {
	row := s.db.QueryRow(`
		SELECT dataset_id, forest_id, name, stem_count, resolved_at, resolve_params_json, created_at
		FROM stem_datasets
		WHERE dataset_id = ?`, datasetID)

	ds, err := scanDataset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("dataset %s not found", datasetID)
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	return ds, nil
}

// ListDatasets returns all datasets ordered by creation time descending.
func (s *StemStore) ListDatasets() ([]*StemDataset, error) {
	rows, err := s.db.Query(`
		SELECT dataset_id, forest_id, name, stem_count, resolved_at, resolve_params_json, created_at
		FROM stem_datasets
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*StemDataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// ListStems returns the stem rows of a dataset in input order.
func (s *StemStore) ListStems(datasetID string) ([]treegrid.Stem, error) {
	rows, err := s.db.Query(`
		SELECT row, x, y, diameter_cm, height_m, species
		FROM stems
		WHERE dataset_id = ?
		ORDER BY row`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query stems: %w", err)
	}
	defer rows.Close()

	var stems []treegrid.Stem
	for rows.Next() {
		var st treegrid.Stem
		var height sql.NullFloat64
		var species sql.NullString
		if err := rows.Scan(&st.Row, &st.X, &st.Y, &st.DiameterCM, &height, &species); err != nil {
			return nil, fmt.Errorf("scan stem row: %w", err)
		}
		if height.Valid {
			st.HeightM = height.Float64
		}
		if species.Valid {
			st.Species = species.String
		}
		stems = append(stems, st)
	}
	return stems, rows.Err()
}

// SaveClassification replaces the stored competition outcome of a dataset
// with the given run. The dataset's resolved marker and run parameters are
// updated in the same transaction, so readers either see the full new run
// or the previous one.
func (s *StemStore) SaveClassification(datasetID string, paramsJSON json.RawMessage, stems []treegrid.ClassifiedStem) error {
	resolvedAt := time.Now().UnixNano()

	var paramsStr interface{}
	if len(paramsJSON) > 0 {
		paramsStr = string(paramsJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin save classification: %w", err)
		}
		defer tx.Rollback()

		result, err := tx.Exec(`
			UPDATE stem_datasets
			SET resolved_at = ?, resolve_params_json = ?
			WHERE dataset_id = ?`,
			resolvedAt, paramsStr, datasetID,
		)
		if err != nil {
			return fmt.Errorf("update dataset: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("dataset %s not found", datasetID)
		}

		if _, err := tx.Exec(`DELETE FROM stem_classifications WHERE dataset_id = ?`, datasetID); err != nil {
			return fmt.Errorf("clear classifications: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stem_classifications (dataset_id, row, classification, cell_x, cell_y)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare classification insert: %w", err)
		}
		defer stmt.Close()

		for _, cs := range stems {
			if _, err := stmt.Exec(datasetID, cs.Row, string(cs.Classification), cs.CellX, cs.CellY); err != nil {
				return fmt.Errorf("insert classification row %d: %w", cs.Row, err)
			}
		}

		return tx.Commit()
	})
}

// GetClassification returns the stored competition outcome of a dataset in
// input order. Returns an error if the dataset has no saved run.
func (s *StemStore) GetClassification(datasetID string) ([]treegrid.ClassifiedStem, error) {
	rows, err := s.db.Query(`
		SELECT s.row, s.x, s.y, s.diameter_cm, s.height_m, s.species,
		       c.classification, c.cell_x, c.cell_y
		FROM stems s
		JOIN stem_classifications c ON c.dataset_id = s.dataset_id AND c.row = s.row
		WHERE s.dataset_id = ?
		ORDER BY s.row`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query classification: %w", err)
	}
	defer rows.Close()

	var stems []treegrid.ClassifiedStem
	for rows.Next() {
		var cs treegrid.ClassifiedStem
		var height sql.NullFloat64
		var species sql.NullString
		var class string
		err := rows.Scan(&cs.Row, &cs.X, &cs.Y, &cs.DiameterCM, &height, &species, &class, &cs.CellX, &cs.CellY)
		if err != nil {
			return nil, fmt.Errorf("scan classification row: %w", err)
		}
		if height.Valid {
			cs.HeightM = height.Float64
		}
		if species.Valid {
			cs.Species = species.String
		}
		cs.Classification = treegrid.Classification(class)
		stems = append(stems, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, fmt.Errorf("dataset %s has no saved classification", datasetID)
	}
	return stems, nil
}

func scanDataset(row scanner) (*StemDataset, error) {
	var ds StemDataset
	var forestID sql.NullString
	var resolvedAt sql.NullInt64
	var paramsStr sql.NullString
	err := row.Scan(
		&ds.DatasetID, &forestID, &ds.Name, &ds.StemCount, &resolvedAt, &paramsStr, &ds.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if forestID.Valid {
		ds.ForestID = forestID.String
	}
	if resolvedAt.Valid {
		ds.ResolvedAt = resolvedAt.Int64
	}
	if paramsStr.Valid {
		ds.ResolveParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &ds, nil
}
