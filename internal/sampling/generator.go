package sampling

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ctessum/geom"

	"github.com/rakuri2026/forest-management-sub001/internal/geo"
)

const (
	// DefaultRetryMultiplier bounds rejection sampling at multiplier*target
	// attempts per block or stratum.
	DefaultRetryMultiplier = 50

	// maxGridShrinks bounds how often a systematic grid is densified when
	// an enforced minimum is not reached at the nominal spacing.
	maxGridShrinks = 10

	// gridShrinkFactor is applied to the spacing on each densification.
	gridShrinkFactor = 0.8
)

// InsufficientAreaError reports a block whose usable area could not host the
// requested sample count within the retry budget. Generation degrades to the
// points found rather than failing.
type InsufficientAreaError struct {
	Block     string
	Requested int
	Generated int
}

func (e *InsufficientAreaError) Error() string {
	return fmt.Sprintf("block %q: placed %d of %d requested samples within retry budget", e.Block, e.Generated, e.Requested)
}

// target computes the effective sample count for a block. The raw count is
// intensity times block area divided by plot area, rounded to nearest. Blocks
// of at least one hectare are floored at MinSamplesPerBlock, smaller blocks
// at MinSamplesSmallBlocks.
func (p Parameters) target(areaM2 float64) (effective, raw int, enforced bool) {
	raw = int(math.Round(p.IntensityPercent / 100 * areaM2 / p.PlotArea()))
	floor := p.MinSamplesPerBlock
	if areaM2 < geo.SquareMetersPerHectare {
		floor = p.MinSamplesSmallBlocks
	}
	effective = raw
	if effective < floor {
		effective = floor
		enforced = true
	}
	return effective, raw, enforced
}

func pointInside(pt geom.Point, poly geom.Polygonal) bool {
	return pt.Within(poly) == geom.Inside
}

// systematicPoints lays a regular grid over the bounding box of poly,
// anchored at the minimum corner, and keeps the nodes strictly inside.
// Rows are emitted south to north, west to east within a row, so output
// order is reproducible without sorting.
func systematicPoints(poly geom.Polygonal, spacing float64) []geom.Point {
	b := poly.Bounds()
	var pts []geom.Point
	for iy := 0; ; iy++ {
		y := b.Min.Y + float64(iy)*spacing
		if y > b.Max.Y {
			break
		}
		for ix := 0; ; ix++ {
			x := b.Min.X + float64(ix)*spacing
			if x > b.Max.X {
				break
			}
			if pt := (geom.Point{X: x, Y: y}); pointInside(pt, poly) {
				pts = append(pts, pt)
			}
		}
	}
	return pts
}

// randomPoints draws up to n points uniformly inside poly by rejection
// sampling over its bounding box. The second return is false when the
// attempt budget ran out before n points were accepted.
func randomPoints(poly geom.Polygonal, n, budget int, rng *rand.Rand) ([]geom.Point, bool) {
	if n <= 0 {
		return nil, true
	}
	b := poly.Bounds()
	w := b.Max.X - b.Min.X
	h := b.Max.Y - b.Min.Y
	pts := make([]geom.Point, 0, n)
	for attempt := 0; attempt < budget && len(pts) < n; attempt++ {
		pt := geom.Point{
			X: b.Min.X + rng.Float64()*w,
			Y: b.Min.Y + rng.Float64()*h,
		}
		if pointInside(pt, poly) {
			pts = append(pts, pt)
		}
	}
	return pts, len(pts) == n
}

// stratum is one horizontal band of a block with a usable intersection.
type stratum struct {
	poly   geom.Polygonal
	areaM2 float64
}

// buildStrata slices the bounding box of poly into numStrata equal-height
// horizontal bands, south to north, and intersects each with poly. Bands
// whose intersection is empty are dropped.
func buildStrata(poly geom.Polygonal, numStrata int) []stratum {
	b := poly.Bounds()
	bandH := (b.Max.Y - b.Min.Y) / float64(numStrata)
	strata := make([]stratum, 0, numStrata)
	for i := 0; i < numStrata; i++ {
		y0 := b.Min.Y + float64(i)*bandH
		y1 := y0 + bandH
		band := geom.Polygon{{
			{X: b.Min.X, Y: y0},
			{X: b.Max.X, Y: y0},
			{X: b.Max.X, Y: y1},
			{X: b.Min.X, Y: y1},
		}}
		clipped := poly.Intersection(band)
		if clipped == nil {
			continue
		}
		a := math.Abs(clipped.Area())
		if a <= 0 || math.IsNaN(a) {
			continue
		}
		strata = append(strata, stratum{poly: clipped, areaM2: a})
	}
	return strata
}

// allocateByArea splits target samples across strata: one guaranteed sample
// each, the remainder proportional to area by largest remainder. Ties go to
// the lower stratum index.
func allocateByArea(target int, strata []stratum) []int {
	n := len(strata)
	alloc := make([]int, n)
	for i := range alloc {
		alloc[i] = 1
	}
	remainder := target - n
	if remainder <= 0 {
		return alloc
	}
	var total float64
	for _, s := range strata {
		total += s.areaM2
	}
	type frac struct {
		idx  int
		frac float64
	}
	fracs := make([]frac, n)
	assigned := 0
	for i, s := range strata {
		share := s.areaM2 / total * float64(remainder)
		whole := int(math.Floor(share))
		alloc[i] += whole
		assigned += whole
		fracs[i] = frac{idx: i, frac: share - float64(whole)}
	}
	// Hand out the leftovers to the largest fractional remainders.
	for assigned < remainder {
		best := -1
		for i, f := range fracs {
			if f.frac < 0 {
				continue
			}
			if best == -1 || f.frac > fracs[best].frac {
				best = i
			}
		}
		alloc[fracs[best].idx]++
		fracs[best].frac = -1
		assigned++
	}
	return alloc
}

// stratifiedPoints places target samples across equal-height bands of poly.
// Every non-empty band receives at least one sample, so the result can
// exceed target when target is below the band count. Shortfalls are
// reported per band through the returned error.
func stratifiedPoints(poly geom.Polygonal, target, numStrata, retryMultiplier int, rng *rand.Rand) ([]geom.Point, []error) {
	strata := buildStrata(poly, numStrata)
	if len(strata) == 0 {
		return nil, []error{fmt.Errorf("no stratum overlaps the block")}
	}
	alloc := allocateByArea(target, strata)
	var pts []geom.Point
	var errs []error
	for i, s := range strata {
		got, ok := randomPoints(s.poly, alloc[i], retryMultiplier*alloc[i], rng)
		if !ok {
			errs = append(errs, fmt.Errorf("stratum %d: placed %d of %d samples", i+1, len(got), alloc[i]))
		}
		pts = append(pts, got...)
	}
	return pts, errs
}

// filterMinDistance keeps points in order, dropping any closer than minDist
// to an already kept point. Greedy, no backtracking.
func filterMinDistance(pts []geom.Point, minDist float64) []geom.Point {
	if minDist <= 0 || len(pts) < 2 {
		return pts
	}
	minSq := minDist * minDist
	kept := make([]geom.Point, 0, len(pts))
	for _, pt := range pts {
		ok := true
		for _, k := range kept {
			dx := pt.X - k.X
			dy := pt.Y - k.Y
			if dx*dx+dy*dy < minSq {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, pt)
		}
	}
	return kept
}
