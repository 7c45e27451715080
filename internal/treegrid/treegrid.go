// Package treegrid resolves tree competition on a regular grid: stems are
// binned into square cells, the largest-diameter stem per cell is kept as
// the mother tree and the rest are marked for felling. Stems below the
// seedling diameter threshold stay out of the competition entirely.
package treegrid

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
)

const (
	// DefaultSpacingM is the default competition cell edge length.
	DefaultSpacingM = 10.0

	// DefaultSeedlingMaxDiameterCM is the diameter below which a stem is
	// treated as regeneration rather than a competitor.
	DefaultSeedlingMaxDiameterCM = 7.0

	// estimatedStemsPerCell sizes the grid map for typical stand densities.
	estimatedStemsPerCell = 2
)

// Classification is the competition outcome of a single stem.
type Classification string

const (
	ClassMother   Classification = "mother"
	ClassFelling  Classification = "felling"
	ClassSeedling Classification = "seedling"
)

// Stem is one measured tree in planar coordinates (metres).
type Stem struct {
	Row        int     `json:"row"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	DiameterCM float64 `json:"diameter_cm"`
	HeightM    float64 `json:"height_m,omitempty"`
	Species    string  `json:"species,omitempty"`
}

// Params configures one resolution run. A nil origin snaps the grid to the
// stem bounding box, aligned down to a spacing multiple so reruns over
// subsets of the data keep their cell assignment.
type Params struct {
	SpacingM              float64  `json:"spacing_m"`
	SeedlingMaxDiameterCM float64  `json:"seedling_max_diameter_cm"`
	OriginX               *float64 `json:"origin_x,omitempty"`
	OriginY               *float64 `json:"origin_y,omitempty"`
}

// DefaultParams returns the standard 10 m grid with a 7 cm seedling cut.
func DefaultParams() Params {
	return Params{
		SpacingM:              DefaultSpacingM,
		SeedlingMaxDiameterCM: DefaultSeedlingMaxDiameterCM,
	}
}

// Validate checks range constraints on the run parameters.
func (p Params) Validate() error {
	if p.SpacingM <= 0 || math.IsNaN(p.SpacingM) || math.IsInf(p.SpacingM, 0) {
		return fmt.Errorf("spacing_m must be positive, got %g", p.SpacingM)
	}
	if p.SeedlingMaxDiameterCM < 0 || math.IsNaN(p.SeedlingMaxDiameterCM) {
		return fmt.Errorf("seedling_max_diameter_cm must be non-negative, got %g", p.SeedlingMaxDiameterCM)
	}
	return nil
}

// ClassifiedStem is a stem with its competition outcome and grid cell.
// Seedlings carry the cell they would occupy but never contest it.
type ClassifiedStem struct {
	Stem
	Classification Classification `json:"classification"`
	CellX          int64          `json:"cell_x"`
	CellY          int64          `json:"cell_y"`
}

// Summary aggregates one resolution run.
type Summary struct {
	Total          int `json:"total"`
	Mother         int `json:"mother"`
	Felling        int `json:"felling"`
	Seedling       int `json:"seedling"`
	CellsOccupied  int `json:"cells_occupied"`
	ContestedCells int `json:"contested_cells"`
}

// Result is the full outcome of a resolution run. OriginX and OriginY are
// the resolved grid anchor, recorded so the run can be reproduced.
type Result struct {
	Stems   []ClassifiedStem `json:"stems"`
	Summary Summary          `json:"summary"`
	OriginX float64          `json:"origin_x"`
	OriginY float64          `json:"origin_y"`
}

// cellIndex bins stem indices into grid cells keyed by Szudzik-paired
// zigzag cell coordinates. Same layout as a regular spatial hash, but
// anchored at an explicit origin so cell membership is stable across runs.
type cellIndex struct {
	spacing float64
	originX float64
	originY float64
	cells   map[int64][]int
}

func newCellIndex(spacing, originX, originY float64, capacityHint int) *cellIndex {
	return &cellIndex{
		spacing: spacing,
		originX: originX,
		originY: originY,
		cells:   make(map[int64][]int, capacityHint/estimatedStemsPerCell+1),
	}
}

// cellCoords returns the integer cell of a point. Floor division keeps
// stems on the negative side of the origin in their own cells.
func (ci *cellIndex) cellCoords(x, y float64) (int64, int64) {
	cx := int64(math.Floor((x - ci.originX) / ci.spacing))
	cy := int64(math.Floor((y - ci.originY) / ci.spacing))
	return cx, cy
}

// cellKey maps signed cell coordinates to a single map key: zigzag to
// non-negative, then Szudzik's pairing function.
func cellKey(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func (ci *cellIndex) insert(i int, x, y float64) {
	key := cellKey(ci.cellCoords(x, y))
	ci.cells[key] = append(ci.cells[key], i)
}

// resolveOrigin picks the grid anchor: explicit if configured, otherwise
// the stem bounding box minimum snapped down to a spacing multiple.
func resolveOrigin(stems []Stem, p Params) (float64, float64) {
	if p.OriginX != nil && p.OriginY != nil {
		return *p.OriginX, *p.OriginY
	}
	minX, minY := math.Inf(1), math.Inf(1)
	for _, s := range stems {
		if s.X < minX {
			minX = s.X
		}
		if s.Y < minY {
			minY = s.Y
		}
	}
	if math.IsInf(minX, 1) {
		return 0, 0
	}
	return math.Floor(minX/p.SpacingM) * p.SpacingM, math.Floor(minY/p.SpacingM) * p.SpacingM
}

// Resolve classifies every stem. The run is pure: the same stems and
// params always produce the same result, regardless of how many workers
// the cells are spread across.
func Resolve(stems []Stem, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, s := range stems {
		if math.IsNaN(s.X) || math.IsNaN(s.Y) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) {
			return nil, fmt.Errorf("stem %d (row %d): non-finite coordinates (%g, %g)", i, s.Row, s.X, s.Y)
		}
		if s.DiameterCM < 0 || math.IsNaN(s.DiameterCM) {
			return nil, fmt.Errorf("stem %d (row %d): invalid diameter %g", i, s.Row, s.DiameterCM)
		}
	}

	originX, originY := resolveOrigin(stems, p)
	out := &Result{
		Stems:   make([]ClassifiedStem, len(stems)),
		OriginX: originX,
		OriginY: originY,
	}

	idx := newCellIndex(p.SpacingM, originX, originY, len(stems))
	for i, s := range stems {
		cx, cy := idx.cellCoords(s.X, s.Y)
		out.Stems[i] = ClassifiedStem{Stem: s, CellX: cx, CellY: cy}
		if s.DiameterCM < p.SeedlingMaxDiameterCM {
			out.Stems[i].Classification = ClassSeedling
			continue
		}
		idx.insert(i, s.X, s.Y)
	}

	resolveCells(stems, idx, out.Stems)

	out.Summary = SummaryOf(out.Stems)
	return out, nil
}

// SummaryOf rebuilds the run summary from a classified stem list. Cell
// counts cover competing stems only; seedlings carry a cell but never
// occupy it.
func SummaryOf(stems []ClassifiedStem) Summary {
	sum := Summary{Total: len(stems)}
	competitors := make(map[[2]int64]int)
	for _, cs := range stems {
		switch cs.Classification {
		case ClassMother:
			sum.Mother++
			competitors[[2]int64{cs.CellX, cs.CellY}]++
		case ClassFelling:
			sum.Felling++
			competitors[[2]int64{cs.CellX, cs.CellY}]++
		case ClassSeedling:
			sum.Seedling++
		}
	}
	sum.CellsOccupied = len(competitors)
	for _, n := range competitors {
		if n > 1 {
			sum.ContestedCells++
		}
	}
	return sum
}

// resolveCells runs the per-cell competition across a worker pool. Cells
// are independent and each stem index is written by exactly one worker, so
// the shared output slice needs no locking.
func resolveCells(stems []Stem, idx *cellIndex, out []ClassifiedStem) {
	keys := make([]int64, 0, len(idx.cells))
	for k := range idx.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	workers := runtime.GOMAXPROCS(0)
	if workers > len(keys) {
		workers = len(keys)
	}
	if workers < 1 {
		return
	}

	chunk := (len(keys) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(keys) {
			hi = len(keys)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(keys []int64) {
			defer wg.Done()
			for _, k := range keys {
				resolveCell(stems, idx.cells[k], out)
			}
		}(keys[lo:hi])
	}
	wg.Wait()
}

// resolveCell picks the mother tree of one cell: largest diameter, ties to
// the earliest input index. Everything else in the cell is felled.
func resolveCell(stems []Stem, members []int, out []ClassifiedStem) {
	best := members[0]
	for _, i := range members[1:] {
		if stems[i].DiameterCM > stems[best].DiameterCM {
			best = i
		}
	}
	for _, i := range members {
		if i == best {
			out[i].Classification = ClassMother
		} else {
			out[i].Classification = ClassFelling
		}
	}
}
