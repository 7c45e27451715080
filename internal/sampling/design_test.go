package sampling

import (
	"errors"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"

	"github.com/rakuri2026/forest-management-sub001/internal/forest"
	"github.com/rakuri2026/forest-management-sub001/internal/geo"
)

// forestGeoJSON is a ~76 ha square near Hildesheim, UTM zone 32N.
const forestGeoJSON = `{"type":"Polygon","coordinates":[[[9.0,52.0],[9.01,52.0],[9.01,52.01],[9.0,52.01],[9.0,52.0]]]}`

// smallGeoJSON is a ~0.6 ha square, below the one hectare floor cut.
const smallGeoJSON = `{"type":"Polygon","coordinates":[[[9.0,52.0],[9.00113,52.0],[9.00113,52.000696],[9.0,52.000696],[9.0,52.0]]]}`

// sliverGeoJSON is a diagonal band a few centimetres wide: its bounding box
// is three orders of magnitude larger than its area, so rejection sampling
// exhausts its budget.
const sliverGeoJSON = `{"type":"Polygon","coordinates":[[[9.0,52.0],[9.01,52.01],[9.01,52.010001],[9.0,52.000001],[9.0,52.0]]]}`

const (
	westGeoJSON = `{"type":"Polygon","coordinates":[[[9.0,52.0],[9.005,52.0],[9.005,52.01],[9.0,52.01],[9.0,52.0]]]}`
	eastGeoJSON = `{"type":"Polygon","coordinates":[[[9.005,52.0],[9.01,52.0],[9.01,52.01],[9.005,52.01],[9.005,52.0]]]}`
)

func testBoundary(t *testing.T, doc string) *geo.Boundary {
	t.Helper()
	b, err := geo.NormalizeBoundary([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBoundary: %v", err)
	}
	return b
}

func subArea(t *testing.T, name, doc string) forest.SubArea {
	t.Helper()
	g, err := geo.ParsePolygonal([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePolygonal(%s): %v", name, err)
	}
	return forest.SubArea{Name: name, Geometry: g}
}

func seedPtr(s int64) *int64 { return &s }

// hasWarning reports whether the design carries a warning with the given
// code, optionally scoped to a block.
func hasWarning(d *Design, code, block string) bool {
	for _, w := range d.Warnings {
		if w.Code == code && (block == "" || w.Block == block) {
			return true
		}
	}
	return false
}

// TestGenerate_SystematicLargeBlock runs the default 1% systematic design
// over a 76 ha forest: 15 plots, no minimum enforcement, every center
// inside the boundary.
func TestGenerate_SystematicLargeBlock(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	d, err := Generate(boundary, blocks, failures, Request{Seed: seedPtr(1)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(d.Blocks) != 1 {
		t.Fatalf("got %d block results, want 1", len(d.Blocks))
	}
	res := d.Blocks[0]
	if res.Block != forest.DefaultBlockName {
		t.Errorf("block name = %q, want %q", res.Block, forest.DefaultBlockName)
	}
	if res.SamplesGenerated != 15 {
		t.Errorf("samples = %d, want 15 for ~76 ha at 1%%", res.SamplesGenerated)
	}
	if res.MinimumEnforced {
		t.Error("minimum flagged as enforced on a large block")
	}
	if d.TotalPoints != res.SamplesGenerated {
		t.Errorf("TotalPoints = %d, want %d", d.TotalPoints, res.SamplesGenerated)
	}
	if d.Warnings == nil || len(d.Warnings) != 0 {
		t.Errorf("warnings = %v, want empty non-nil list", d.Warnings)
	}

	areaM2 := res.AreaHa * geo.SquareMetersPerHectare
	wantIntensity := float64(res.SamplesGenerated) * DefaultParameters().PlotArea() / areaM2 * 100
	if math.Abs(res.ActualIntensityPercent-wantIntensity) > 1e-9 {
		t.Errorf("actual intensity = %g, want %g", res.ActualIntensityPercent, wantIntensity)
	}

	for i, pt := range res.Points {
		if pt.Sequence != i+1 {
			t.Errorf("point %d sequence = %d, want %d", i, pt.Sequence, i+1)
		}
		if !pointInside(geom.Point{X: pt.Easting, Y: pt.Northing}, blocks[0].Planar) {
			t.Errorf("point %d at (%g, %g) is outside the block", i, pt.Easting, pt.Northing)
		}
		if pt.Longitude < 9.0 || pt.Longitude > 9.01 || pt.Latitude < 52.0 || pt.Latitude > 52.01 {
			t.Errorf("point %d geographic (%g, %g) outside the boundary box", i, pt.Longitude, pt.Latitude)
		}
		foot, err := geo.ParsePolygonal(pt.Footprint)
		if err != nil {
			t.Fatalf("point %d footprint does not parse: %v", i, err)
		}
		c := foot.Centroid()
		if math.Abs(c.X-pt.Longitude) > 0.001 || math.Abs(c.Y-pt.Latitude) > 0.001 {
			t.Errorf("point %d footprint centroid (%g, %g) far from center (%g, %g)", i, c.X, c.Y, pt.Longitude, pt.Latitude)
		}
	}
}

// TestGenerate_SmallBlockMinimum checks the sub-hectare floor: a 0.6 ha
// boundary at 1% computes zero plots but is raised to exactly two, and the
// enforcement is flagged.
func TestGenerate_SmallBlockMinimum(t *testing.T) {
	boundary := testBoundary(t, smallGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	d, err := Generate(boundary, blocks, failures, Request{Seed: seedPtr(1)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	res := d.Blocks[0]
	if res.AreaHa >= 1 {
		t.Fatalf("test boundary is %g ha, want under 1", res.AreaHa)
	}
	if res.SamplesGenerated != 2 {
		t.Errorf("samples = %d, want exactly 2", res.SamplesGenerated)
	}
	if !res.MinimumEnforced {
		t.Error("minimum enforcement not flagged")
	}
	if hasWarning(d, WarnInsufficientArea, "") {
		t.Errorf("unexpected insufficient area warning: %v", d.Warnings)
	}
}

// TestGenerate_RandomDeterministic checks that a fixed seed reproduces the
// design exactly and a different seed does not.
func TestGenerate_RandomDeterministic(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)
	req := Request{
		Defaults: &Overrides{Strategy: strPtr("random")},
		Seed:     seedPtr(42),
	}

	d1, err := Generate(boundary, blocks, failures, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d1.Blocks[0].SamplesGenerated != 15 {
		t.Errorf("samples = %d, want 15", d1.Blocks[0].SamplesGenerated)
	}
	for i, pt := range d1.Blocks[0].Points {
		if !pointInside(geom.Point{X: pt.Easting, Y: pt.Northing}, blocks[0].Planar) {
			t.Errorf("point %d outside the block", i)
		}
	}

	d2, err := Generate(boundary, blocks, failures, req)
	if err != nil {
		t.Fatalf("Generate (rerun): %v", err)
	}
	if diff := cmp.Diff(d1.Blocks, d2.Blocks); diff != "" {
		t.Errorf("same seed produced different blocks (-first +second):\n%s", diff)
	}

	d3, err := Generate(boundary, blocks, failures, Request{
		Defaults: &Overrides{Strategy: strPtr("random")},
		Seed:     seedPtr(43),
	})
	if err != nil {
		t.Fatalf("Generate (new seed): %v", err)
	}
	if cmp.Diff(d1.Blocks[0].Points, d3.Blocks[0].Points) == "" {
		t.Error("different seeds produced identical points")
	}
}

// TestGenerate_RandomExhaustion checks the degrade path: a sliver block
// whose bounding box dwarfs its area runs out of rejection attempts, keeps
// the points it found and flags the shortfall.
func TestGenerate_RandomExhaustion(t *testing.T) {
	boundary := testBoundary(t, sliverGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	d, err := Generate(boundary, blocks, failures, Request{
		Defaults: &Overrides{Strategy: strPtr("random")},
		Seed:     seedPtr(7),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !hasWarning(d, WarnInsufficientArea, forest.DefaultBlockName) {
		t.Fatalf("no insufficient area warning: %v", d.Warnings)
	}
	if d.Blocks[0].SamplesGenerated >= 2 {
		t.Errorf("samples = %d, want partial result below the floor of 2", d.Blocks[0].SamplesGenerated)
	}
	if d.TotalPoints != d.Blocks[0].SamplesGenerated {
		t.Errorf("TotalPoints = %d does not match block count %d", d.TotalPoints, d.Blocks[0].SamplesGenerated)
	}
}

// TestGenerate_Stratified checks the one-per-stratum guarantee and the
// proportional remainder split across four horizontal bands.
func TestGenerate_Stratified(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	d, err := Generate(boundary, blocks, failures, Request{
		Defaults: &Overrides{Strategy: strPtr("stratified")},
		Seed:     seedPtr(11),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	res := d.Blocks[0]
	if res.SamplesGenerated != 15 {
		t.Errorf("samples = %d, want 15", res.SamplesGenerated)
	}

	b := blocks[0].Planar.Bounds()
	bandH := (b.Max.Y - b.Min.Y) / 4
	counts := make([]int, 4)
	for _, pt := range res.Points {
		band := int((pt.Northing - b.Min.Y) / bandH)
		if band < 0 {
			band = 0
		}
		if band > 3 {
			band = 3
		}
		counts[band]++
	}
	for i, n := range counts {
		if n < 1 {
			t.Errorf("stratum %d received %d samples, want at least 1 (counts %v)", i, n, counts)
		}
	}
}

// TestGenerate_OverridePerBlock checks that a per-block override changes
// only its block and that result order follows input order.
func TestGenerate_OverridePerBlock(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, []forest.SubArea{
		subArea(t, "west", westGeoJSON),
		subArea(t, "east", eastGeoJSON),
	})
	if len(failures) != 0 {
		t.Fatalf("partition failures: %v", failures)
	}

	d, err := Generate(boundary, blocks, failures, Request{
		Overrides: map[string]*Overrides{
			"east": {Strategy: strPtr("random")},
		},
		Seed: seedPtr(3),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(d.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(d.Blocks))
	}
	if d.Blocks[0].Block != "west" || d.Blocks[1].Block != "east" {
		t.Fatalf("block order = %q, %q; want west, east", d.Blocks[0].Block, d.Blocks[1].Block)
	}
	if d.Blocks[0].Strategy != StrategySystematic {
		t.Errorf("west strategy = %q, want systematic", d.Blocks[0].Strategy)
	}
	if d.Blocks[1].Strategy != StrategyRandom {
		t.Errorf("east strategy = %q, want random", d.Blocks[1].Strategy)
	}
	if d.TotalPoints != d.Blocks[0].SamplesGenerated+d.Blocks[1].SamplesGenerated {
		t.Errorf("TotalPoints = %d, want sum of block counts", d.TotalPoints)
	}
}

// TestGenerate_IncompleteOverrideSkipsBlock checks that a block whose
// override resolves incomplete is skipped with a warning while its
// siblings still generate.
func TestGenerate_IncompleteOverrideSkipsBlock(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, []forest.SubArea{
		subArea(t, "west", westGeoJSON),
		subArea(t, "east", eastGeoJSON),
	})

	d, err := Generate(boundary, blocks, failures, Request{
		Overrides: map[string]*Overrides{
			"west": {PlotShape: strPtr("rectangular")},
		},
		Seed: seedPtr(3),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(d.Blocks) != 1 || d.Blocks[0].Block != "east" {
		t.Fatalf("blocks = %+v, want east only", d.Blocks)
	}
	if !hasWarning(d, WarnIncompleteOverride, "west") {
		t.Errorf("no incomplete override warning for west: %v", d.Warnings)
	}
}

// TestGenerate_ExclusionDropsCoveredPlots runs a design whose exclusion
// zone covers the whole forest: every plot is erased, each drop warned,
// and the actual intensity falls to zero.
func TestGenerate_ExclusionDropsCoveredPlots(t *testing.T) {
	boundary := testBoundary(t, smallGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	exclusion := []byte(`{"type":"Polygon","coordinates":[[[8.999,51.999],[9.003,51.999],[9.003,52.002],[8.999,52.002],[8.999,51.999]]]}`)
	d, err := Generate(boundary, blocks, failures, Request{
		Exclusion: exclusion,
		Seed:      seedPtr(1),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	res := d.Blocks[0]
	if res.SamplesGenerated != 0 {
		t.Errorf("samples = %d, want 0 under a full exclusion", res.SamplesGenerated)
	}
	if res.ActualIntensityPercent != 0 {
		t.Errorf("actual intensity = %g, want 0", res.ActualIntensityPercent)
	}
	dropped := 0
	for _, w := range d.Warnings {
		if w.Code == WarnExclusionConflict {
			dropped++
		}
	}
	if dropped != 2 {
		t.Errorf("exclusion warnings = %d, want one per dropped plot (2)", dropped)
	}
}

// TestGenerate_MinDistance checks the spacing invariant on the kept points.
func TestGenerate_MinDistance(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	d, err := Generate(boundary, blocks, failures, Request{
		Defaults: &Overrides{
			Strategy:     strPtr("random"),
			MinDistanceM: floatPtr(100),
		},
		Seed: seedPtr(5),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	pts := d.Blocks[0].Points
	if len(pts) == 0 {
		t.Fatal("no points generated")
	}
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			dist := math.Hypot(pts[i].Easting-pts[j].Easting, pts[i].Northing-pts[j].Northing)
			if dist < 100 {
				t.Errorf("points %d and %d are %.1f m apart, want >= 100", i, j, dist)
			}
		}
	}
}

// TestGenerate_PartitionFailuresBecomeWarnings checks that block failures
// from partitioning surface in the design warning list.
func TestGenerate_PartitionFailuresBecomeWarnings(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, _ := forest.Partition(boundary, nil)
	failures := []forest.Failure{
		{Block: "lost", Err: &forest.BlockOutOfBoundsError{Block: "lost"}},
	}

	d, err := Generate(boundary, blocks, failures, Request{Seed: seedPtr(1)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !hasWarning(d, WarnBlockOutOfBounds, "lost") {
		t.Errorf("no out of bounds warning for lost block: %v", d.Warnings)
	}
}

// TestGenerate_BadDefaultsFatal checks that unusable run-level defaults
// abort the run instead of degrading.
func TestGenerate_BadDefaultsFatal(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	_, err := Generate(boundary, blocks, failures, Request{
		Defaults: &Overrides{PlotShape: strPtr("rectangular")},
	})
	if err == nil {
		t.Fatal("Generate accepted incomplete run defaults")
	}
	var incomplete *IncompleteOverrideError
	if !errors.As(err, &incomplete) {
		t.Fatalf("error = %T, want *IncompleteOverrideError", err)
	}
}

// TestGenerate_BadExclusionFatal checks that a malformed exclusion
// geometry aborts the run.
func TestGenerate_BadExclusionFatal(t *testing.T) {
	boundary := testBoundary(t, forestGeoJSON)
	blocks, failures := forest.Partition(boundary, nil)

	_, err := Generate(boundary, blocks, failures, Request{
		Exclusion: []byte(`{"type":"Point","coordinates":[9,52]}`),
	})
	if err == nil {
		t.Fatal("Generate accepted a non-polygonal exclusion")
	}
	var invalid *geo.InvalidGeometryError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %T, want *InvalidGeometryError", err)
	}
}

// TestBlockSeed checks that per-block seeds differ by name and are stable.
func TestBlockSeed(t *testing.T) {
	if blockSeed(42, "west") == blockSeed(42, "east") {
		t.Error("different blocks share a seed")
	}
	if blockSeed(42, "west") != blockSeed(42, "west") {
		t.Error("block seed is not stable")
	}
	if blockSeed(42, "west") == blockSeed(43, "west") {
		t.Error("run seed does not reach the block seed")
	}
}
