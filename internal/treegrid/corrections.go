package treegrid

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Correction records one manual stem position fix. Corrections are
// append-only: a stem corrected twice has two entries and the latest wins
// when positions are replayed.
type Correction struct {
	CorrectionID string  `json:"correction_id"`
	DatasetID    string  `json:"dataset_id"`
	Row          int     `json:"row"`
	OriginalX    float64 `json:"original_x"`
	OriginalY    float64 `json:"original_y"`
	CorrectedX   float64 `json:"corrected_x"`
	CorrectedY   float64 `json:"corrected_y"`
	DistanceM    float64 `json:"distance_m"`
	Reason       string  `json:"reason,omitempty"`
	CreatedAt    int64   `json:"created_at"`
}

// NewCorrection builds a correction for one stem, computing the planar
// displacement between the original and corrected position.
func NewCorrection(datasetID string, stem Stem, correctedX, correctedY float64, reason string) (Correction, error) {
	if math.IsNaN(correctedX) || math.IsNaN(correctedY) || math.IsInf(correctedX, 0) || math.IsInf(correctedY, 0) {
		return Correction{}, fmt.Errorf("row %d: non-finite corrected position (%g, %g)", stem.Row, correctedX, correctedY)
	}
	return Correction{
		CorrectionID: uuid.New().String(),
		DatasetID:    datasetID,
		Row:          stem.Row,
		OriginalX:    stem.X,
		OriginalY:    stem.Y,
		CorrectedX:   correctedX,
		CorrectedY:   correctedY,
		DistanceM:    math.Hypot(correctedX-stem.X, correctedY-stem.Y),
		Reason:       reason,
		CreatedAt:    time.Now().UnixNano(),
	}, nil
}

// ApplyCorrections replays a correction log over a stem list and returns
// the corrected copy. Later corrections for the same row override earlier
// ones; corrections for unknown rows are ignored.
func ApplyCorrections(stems []Stem, corrections []Correction) []Stem {
	if len(corrections) == 0 {
		return stems
	}
	byRow := make(map[int]int, len(stems))
	for i, s := range stems {
		byRow[s.Row] = i
	}
	out := make([]Stem, len(stems))
	copy(out, stems)
	for _, c := range corrections {
		if i, ok := byRow[c.Row]; ok {
			out[i].X = c.CorrectedX
			out[i].Y = c.CorrectedY
		}
	}
	return out
}
