package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Forest represents a persisted forest boundary with one or more management
// blocks carved out of it.
type Forest struct {
	ForestID        string          `json:"forest_id"`
	Name            string          `json:"name"`
	BoundaryGeoJSON json.RawMessage `json:"boundary_geojson"`
	AreaHa          float64         `json:"area_ha"`
	UTMZone         int             `json:"utm_zone"`
	South           bool            `json:"south"`
	CreatedAt       int64           `json:"created_at"`
	Blocks          []*ForestBlock  `json:"blocks,omitempty"`
}

// ForestBlock is one named sub-area of a forest.
type ForestBlock struct {
	BlockID         string          `json:"block_id"`
	ForestID        string          `json:"forest_id"`
	Name            string          `json:"name"`
	GeometryGeoJSON json.RawMessage `json:"geometry_geojson"`
	AreaHa          float64         `json:"area_ha"`
	CreatedAt       int64           `json:"created_at"`
}

// ForestStore provides persistence for forest boundaries and their blocks.
type ForestStore struct {
	db *sql.DB
}

// NewForestStore creates a new ForestStore.
func NewForestStore(db *sql.DB) *ForestStore {
	return &ForestStore{db: db}
}

// Insert persists a forest together with its blocks in one transaction.
// If ForestID is empty, a UUID is generated; block IDs likewise.
func (s *ForestStore) Insert(f *Forest) error {
	if f.ForestID == "" {
		f.ForestID = uuid.New().String()
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin insert forest: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO forests (
				forest_id, name, boundary_geojson, area_ha, utm_zone, south, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ForestID, f.Name, string(f.BoundaryGeoJSON), f.AreaHa, f.UTMZone, f.South, f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert forest: %w", err)
		}

		for _, b := range f.Blocks {
			if b.BlockID == "" {
				b.BlockID = uuid.New().String()
			}
			b.ForestID = f.ForestID
			if b.CreatedAt == 0 {
				b.CreatedAt = f.CreatedAt
			}
			_, err = tx.Exec(`
				INSERT INTO forest_blocks (
					block_id, forest_id, name, geometry_geojson, area_ha, created_at
				) VALUES (?, ?, ?, ?, ?, ?)`,
				b.BlockID, b.ForestID, b.Name, string(b.GeometryGeoJSON), b.AreaHa, b.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert block %q: %w", b.Name, err)
			}
		}

		return tx.Commit()
	})
}

// Get returns a forest by ID with its blocks loaded.
func (s *ForestStore) Get(forestID string) (*Forest, error) {
	row := s.db.QueryRow(`
		SELECT forest_id, name, boundary_geojson, area_ha, utm_zone, south, created_at
		FROM forests
		WHERE forest_id = ?`, forestID)

	var f Forest
	var boundary string
	err := row.Scan(&f.ForestID, &f.Name, &boundary, &f.AreaHa, &f.UTMZone, &f.South, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("forest %s not found", forestID)
		}
		return nil, fmt.Errorf("scan forest: %w", err)
	}
	f.BoundaryGeoJSON = json.RawMessage(boundary)

	blocks, err := s.listBlocks(forestID)
	if err != nil {
		return nil, err
	}
	f.Blocks = blocks
	return &f, nil
}

// List returns all forests ordered by creation time descending, without
// their blocks loaded.
func (s *ForestStore) List() ([]*Forest, error) {
	rows, err := s.db.Query(`
		SELECT forest_id, name, boundary_geojson, area_ha, utm_zone, south, created_at
		FROM forests
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query forests: %w", err)
	}
	defer rows.Close()

	var forests []*Forest
	for rows.Next() {
		var f Forest
		var boundary string
		err := rows.Scan(&f.ForestID, &f.Name, &boundary, &f.AreaHa, &f.UTMZone, &f.South, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan forest row: %w", err)
		}
		f.BoundaryGeoJSON = json.RawMessage(boundary)
		forests = append(forests, &f)
	}
	return forests, rows.Err()
}

// Delete removes a forest with its blocks and designs and clears the
// forest link on stem datasets, all in one transaction. The deletes are
// explicit rather than left to the FK cascade, which only fires on
// connections that have run the foreign_keys pragma.
func (s *ForestStore) Delete(forestID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin delete: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`UPDATE stem_datasets SET forest_id = NULL WHERE forest_id = ?`, forestID); err != nil {
			return fmt.Errorf("unlink stem datasets: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sampling_designs WHERE forest_id = ?`, forestID); err != nil {
			return fmt.Errorf("delete designs: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM forest_blocks WHERE forest_id = ?`, forestID); err != nil {
			return fmt.Errorf("delete blocks: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM forests WHERE forest_id = ?`, forestID)
		if err != nil {
			return fmt.Errorf("delete forest: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("forest %s not found", forestID)
		}
		return tx.Commit()
	})
}

// listBlocks returns the blocks of a forest ordered by name.
func (s *ForestStore) listBlocks(forestID string) ([]*ForestBlock, error) {
	rows, err := s.db.Query(`
		SELECT block_id, forest_id, name, geometry_geojson, area_ha, created_at
		FROM forest_blocks
		WHERE forest_id = ?
		ORDER BY name`, forestID)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*ForestBlock
	for rows.Next() {
		var b ForestBlock
		var geometry string
		err := rows.Scan(&b.BlockID, &b.ForestID, &b.Name, &geometry, &b.AreaHa, &b.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}
		b.GeometryGeoJSON = json.RawMessage(geometry)
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}
