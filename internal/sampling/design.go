package sampling

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/google/uuid"

	"github.com/rakuri2026/forest-management-sub001/internal/forest"
	"github.com/rakuri2026/forest-management-sub001/internal/geo"
	"github.com/rakuri2026/forest-management-sub001/internal/monitoring"
)

// Warning codes carried in design responses. Warnings never abort a run,
// they record what was degraded or dropped.
const (
	WarnBlockOutOfBounds   = "block_out_of_bounds"
	WarnInvalidBlock       = "invalid_block"
	WarnIncompleteOverride = "incomplete_override"
	WarnInsufficientArea   = "insufficient_area"
	WarnExclusionConflict  = "exclusion_conflict"
)

// Warning is one non-fatal degradation notice attached to a design.
type Warning struct {
	Code    string `json:"code"`
	Block   string `json:"block,omitempty"`
	Message string `json:"message"`
}

// SamplePoint is one accepted plot center. Coordinates are reported both
// geographic (WGS84) and planar (UTM metres); the footprint is geographic
// GeoJSON.
type SamplePoint struct {
	Sequence  int             `json:"sequence"`
	Block     string          `json:"block"`
	Longitude float64         `json:"longitude"`
	Latitude  float64         `json:"latitude"`
	Easting   float64         `json:"easting"`
	Northing  float64         `json:"northing"`
	Footprint json.RawMessage `json:"footprint,omitempty"`
}

// BlockResult is the per-block breakdown of a design.
type BlockResult struct {
	Block                  string        `json:"block"`
	AreaHa                 float64       `json:"area_ha"`
	Strategy               Strategy      `json:"strategy"`
	SamplesGenerated       int           `json:"samples_generated"`
	MinimumEnforced        bool          `json:"minimum_enforced"`
	TargetIntensityPercent float64       `json:"target_intensity_percent"`
	ActualIntensityPercent float64       `json:"actual_intensity_percent"`
	Points                 []SamplePoint `json:"points"`
}

// Design is one complete sampling design run. Designs are immutable once
// generated; changed inputs produce a new design with a new ID.
type Design struct {
	DesignID    string        `json:"design_id"`
	ForestID    string        `json:"forest_id,omitempty"`
	Seed        int64         `json:"seed"`
	TotalPoints int           `json:"total_points"`
	Blocks      []BlockResult `json:"blocks"`
	Warnings    []Warning     `json:"warnings"`
	CreatedAt   int64         `json:"created_at"`
}

// Request carries the caller-supplied inputs of a design run. Defaults are
// merged over the system defaults, per-block overrides over the result.
type Request struct {
	ForestID  string                `json:"forest_id,omitempty"`
	Defaults  *Overrides            `json:"defaults,omitempty"`
	Overrides map[string]*Overrides `json:"overrides,omitempty"`
	Exclusion json.RawMessage       `json:"exclusion,omitempty"`
	Seed      *int64                `json:"seed,omitempty"`

	// Runtime knobs, filled from service config rather than the request body.
	RetryMultiplier int `json:"-"`
	CircleVertices  int `json:"-"`
}

// Generate runs a full design: resolves parameters per block, places plot
// centers, applies the exclusion geometry and projects everything back to
// WGS84. Blocks run concurrently; output order and content depend only on
// the inputs and the seed. Partition failures are folded into the warning
// list.
func Generate(boundary *geo.Boundary, blocks []forest.Block, failures []forest.Failure, req Request) (*Design, error) {
	base, err := Resolve(DefaultParameters(), req.Defaults, "defaults")
	if err != nil {
		return nil, err
	}

	var exclusion geom.Polygonal
	if len(req.Exclusion) > 0 {
		exclGeo, err := geo.ParsePolygonal(req.Exclusion)
		if err != nil {
			return nil, fmt.Errorf("exclusion geometry: %w", err)
		}
		exclusion, err = boundary.Projector.ToPlanar(exclGeo)
		if err != nil {
			return nil, fmt.Errorf("exclusion geometry: %w", err)
		}
	}

	id := uuid.New()
	seed := designSeed(id, req.Seed)

	d := &Design{
		DesignID:  id.String(),
		ForestID:  req.ForestID,
		Seed:      seed,
		Warnings:  make([]Warning, 0, len(failures)),
		CreatedAt: time.Now().UnixNano(),
	}
	for _, f := range failures {
		d.Warnings = append(d.Warnings, FailureWarning(f))
	}

	// Resolve every override up front so bad blocks are reported before any
	// generation work starts.
	type job struct {
		block  forest.Block
		params Parameters
	}
	jobs := make([]job, 0, len(blocks))
	for _, b := range blocks {
		p, err := Resolve(base, req.Overrides[b.Name], b.Name)
		if err != nil {
			code := WarnInvalidBlock
			var incomplete *IncompleteOverrideError
			if errors.As(err, &incomplete) {
				code = WarnIncompleteOverride
			}
			d.Warnings = append(d.Warnings, Warning{Code: code, Block: b.Name, Message: err.Error()})
			continue
		}
		jobs = append(jobs, job{block: b, params: p})
	}

	retryMultiplier := req.RetryMultiplier
	if retryMultiplier <= 0 {
		retryMultiplier = DefaultRetryMultiplier
	}

	results := make([]BlockResult, len(jobs))
	blockWarns := make([][]Warning, len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j := jobs[i]
			results[i], blockWarns[i] = generateBlock(j.block, j.params, blockSeed(seed, j.block.Name),
				exclusion, boundary.Projector, req.CircleVertices, retryMultiplier)
		}(i)
	}
	wg.Wait()

	d.Blocks = results
	for i := range results {
		d.TotalPoints += results[i].SamplesGenerated
		d.Warnings = append(d.Warnings, blockWarns[i]...)
	}
	return d, nil
}

// designSeed picks the run seed: the caller's if given, otherwise derived
// from the design ID so a stored design can always be regenerated.
func designSeed(id uuid.UUID, requested *int64) int64 {
	if requested != nil {
		return *requested
	}
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// blockSeed derives a per-block seed from the run seed and the block name,
// so block results do not depend on scheduling order.
func blockSeed(base int64, name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return base ^ int64(h.Sum64())
}

// FailureWarning converts a partition failure into its design warning.
func FailureWarning(f forest.Failure) Warning {
	code := WarnInvalidBlock
	var oob *forest.BlockOutOfBoundsError
	if errors.As(f.Err, &oob) {
		code = WarnBlockOutOfBounds
	}
	return Warning{Code: code, Block: f.Block, Message: f.Err.Error()}
}

func generateBlock(b forest.Block, p Parameters, seed int64, exclusion geom.Polygonal,
	pr *geo.Projector, circleVertices, retryMultiplier int) (BlockResult, []Warning) {

	res := BlockResult{
		Block:                  b.Name,
		AreaHa:                 b.AreaHa,
		Strategy:               p.Strategy,
		TargetIntensityPercent: p.IntensityPercent,
		Points:                 []SamplePoint{},
	}
	var warns []Warning

	areaM2 := b.AreaHa * geo.SquareMetersPerHectare
	target, _, enforced := p.target(areaM2)
	res.MinimumEnforced = enforced
	rng := rand.New(rand.NewSource(seed))

	var centers []geom.Point
	switch p.Strategy {
	case StrategySystematic:
		centers = systematicCenters(b.Planar, p, areaM2, target, enforced)
	case StrategyRandom:
		var ok bool
		centers, ok = randomPoints(b.Planar, target, retryMultiplier*target, rng)
		centers = filterMinDistance(centers, p.MinDistanceM)
		if !ok {
			monitoring.Logf("sampling: block %q rejection budget exhausted at %d/%d points", b.Name, len(centers), target)
			err := &InsufficientAreaError{Block: b.Name, Requested: target, Generated: len(centers)}
			warns = append(warns, Warning{Code: WarnInsufficientArea, Block: b.Name, Message: err.Error()})
		}
	case StrategyStratified:
		var errs []error
		centers, errs = stratifiedPoints(b.Planar, target, p.NumStrata, retryMultiplier, rng)
		centers = filterMinDistance(centers, p.MinDistanceM)
		for _, err := range errs {
			warns = append(warns, Warning{Code: WarnInsufficientArea, Block: b.Name, Message: fmt.Sprintf("block %q: %v", b.Name, err)})
		}
	}

	// Stratified keeps its one-per-stratum guarantee even when that exceeds
	// the computed target; the other strategies trim surplus grid or draw
	// points back to the target.
	if p.Strategy != StrategyStratified && len(centers) > target {
		centers = centers[:target]
	}
	if len(centers) < target && p.Strategy == StrategySystematic {
		err := &InsufficientAreaError{Block: b.Name, Requested: target, Generated: len(centers)}
		warns = append(warns, Warning{Code: WarnInsufficientArea, Block: b.Name, Message: err.Error()})
	}

	for _, c := range centers {
		foot := Footprint(c, p, circleVertices)
		clipped, ok := subtractExclusion(foot, exclusion)
		if !ok {
			warns = append(warns, Warning{
				Code:    WarnExclusionConflict,
				Block:   b.Name,
				Message: fmt.Sprintf("plot at easting %.1f northing %.1f fully covered by exclusion zone, dropped", c.X, c.Y),
			})
			continue
		}
		pt, err := projectPoint(c, clipped, b.Name, pr)
		if err != nil {
			warns = append(warns, Warning{Code: WarnInvalidBlock, Block: b.Name, Message: err.Error()})
			continue
		}
		pt.Sequence = len(res.Points) + 1
		res.Points = append(res.Points, pt)
	}

	res.SamplesGenerated = len(res.Points)
	res.ActualIntensityPercent = float64(res.SamplesGenerated) * p.PlotArea() / areaM2 * 100
	return res, warns
}

// systematicCenters runs the grid strategy: nominal spacing from intensity
// and plot area, or recomputed from the enforced target, densified up to
// maxGridShrinks times if the grid cannot seat the target.
func systematicCenters(poly geom.Polygonal, p Parameters, areaM2 float64, target int, enforced bool) []geom.Point {
	spacing := math.Sqrt(p.PlotArea() / (p.IntensityPercent / 100))
	if enforced && target > 0 {
		spacing = math.Sqrt(areaM2 / float64(target))
	}
	centers := filterMinDistance(systematicPoints(poly, spacing), p.MinDistanceM)
	for shrink := 0; len(centers) < target && shrink < maxGridShrinks; shrink++ {
		spacing *= gridShrinkFactor
		if p.MinDistanceM > 0 && spacing < p.MinDistanceM {
			break
		}
		centers = filterMinDistance(systematicPoints(poly, spacing), p.MinDistanceM)
	}
	return centers
}

// projectPoint maps a planar center and footprint back to WGS84.
func projectPoint(c geom.Point, foot geom.Polygonal, block string, pr *geo.Projector) (SamplePoint, error) {
	lonlat, err := pr.PointToGeographic(c)
	if err != nil {
		return SamplePoint{}, fmt.Errorf("project center: %w", err)
	}
	footGeo, err := pr.ToGeographic(foot)
	if err != nil {
		return SamplePoint{}, fmt.Errorf("project footprint: %w", err)
	}
	enc, err := geo.EncodeGeometry(footGeo)
	if err != nil {
		return SamplePoint{}, fmt.Errorf("encode footprint: %w", err)
	}
	return SamplePoint{
		Block:     block,
		Longitude: lonlat.X,
		Latitude:  lonlat.Y,
		Easting:   c.X,
		Northing:  c.Y,
		Footprint: enc,
	}, nil
}
