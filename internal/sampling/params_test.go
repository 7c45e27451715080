package sampling

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

// TestDefaultParameters checks the shipped defaults: 1% systematic sampling
// with circular 500 m^2 plots.
func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	if p.Strategy != StrategySystematic {
		t.Errorf("Strategy = %q, want systematic", p.Strategy)
	}
	if p.IntensityPercent != 1.0 {
		t.Errorf("IntensityPercent = %g, want 1.0", p.IntensityPercent)
	}
	if p.MinSamplesPerBlock != 5 || p.MinSamplesSmallBlocks != 2 {
		t.Errorf("minimum floors = %d/%d, want 5/2", p.MinSamplesPerBlock, p.MinSamplesSmallBlocks)
	}
	if got := p.PlotArea(); math.Abs(got-500) > 0.5 {
		t.Errorf("PlotArea() = %g, want ~500", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// TestPlotArea covers the shape-specific area formulas.
func TestPlotArea(t *testing.T) {
	circ := Parameters{PlotShape: PlotCircular, PlotRadiusM: 10}
	if got, want := circ.PlotArea(), math.Pi*100; math.Abs(got-want) > 1e-9 {
		t.Errorf("circular PlotArea() = %g, want %g", got, want)
	}
	rect := Parameters{PlotShape: PlotRectangular, PlotLengthM: 25, PlotWidthM: 20}
	if got := rect.PlotArea(); got != 500 {
		t.Errorf("rectangular PlotArea() = %g, want 500", got)
	}
}

// TestResolve_Merge checks that only present override fields replace the
// base values.
func TestResolve_Merge(t *testing.T) {
	base := DefaultParameters()
	ov := &Overrides{
		Strategy:         strPtr("random"),
		IntensityPercent: floatPtr(2.5),
		MinDistanceM:     floatPtr(30),
	}

	p, err := Resolve(base, ov, "north")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Strategy != StrategyRandom {
		t.Errorf("Strategy = %q, want random", p.Strategy)
	}
	if p.IntensityPercent != 2.5 {
		t.Errorf("IntensityPercent = %g, want 2.5", p.IntensityPercent)
	}
	if p.MinDistanceM != 30 {
		t.Errorf("MinDistanceM = %g, want 30", p.MinDistanceM)
	}
	// Untouched fields keep their base values.
	if p.PlotShape != PlotCircular || p.PlotRadiusM != base.PlotRadiusM {
		t.Errorf("plot shape changed unexpectedly: %+v", p)
	}
	if p.MinSamplesPerBlock != 5 {
		t.Errorf("MinSamplesPerBlock = %d, want 5", p.MinSamplesPerBlock)
	}
}

// TestResolve_NilOverrides checks that a nil override resolves to the base
// unchanged.
func TestResolve_NilOverrides(t *testing.T) {
	base := DefaultParameters()
	p, err := Resolve(base, nil, "default")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != base {
		t.Errorf("Resolve(base, nil) = %+v, want base unchanged", p)
	}
}

// TestResolve_IncompleteShape checks that switching the plot shape without
// supplying its dimensions fails with the missing field names.
func TestResolve_IncompleteShape(t *testing.T) {
	ov := &Overrides{PlotShape: strPtr("rectangular")}

	_, err := Resolve(DefaultParameters(), ov, "west")
	if err == nil {
		t.Fatal("Resolve accepted a shape override without dimensions")
	}
	var incomplete *IncompleteOverrideError
	if !errors.As(err, &incomplete) {
		t.Fatalf("error = %T, want *IncompleteOverrideError", err)
	}
	if incomplete.Block != "west" {
		t.Errorf("Block = %q, want west", incomplete.Block)
	}
	want := []string{"plot_length_m", "plot_width_m"}
	if len(incomplete.Missing) != len(want) {
		t.Fatalf("Missing = %v, want %v", incomplete.Missing, want)
	}
	for i, f := range want {
		if incomplete.Missing[i] != f {
			t.Errorf("Missing[%d] = %q, want %q", i, incomplete.Missing[i], f)
		}
	}
	if !strings.Contains(err.Error(), "plot_length_m") {
		t.Errorf("error message %q does not name the missing field", err)
	}
}

// TestResolve_CompleteShapeSwitch checks that a shape override carrying its
// dimensions resolves cleanly.
func TestResolve_CompleteShapeSwitch(t *testing.T) {
	ov := &Overrides{
		PlotShape:   strPtr("rectangular"),
		PlotLengthM: floatPtr(25),
		PlotWidthM:  floatPtr(20),
	}
	p, err := Resolve(DefaultParameters(), ov, "west")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.PlotShape != PlotRectangular || p.PlotArea() != 500 {
		t.Errorf("resolved shape = %q area %g, want rectangular 500", p.PlotShape, p.PlotArea())
	}
}

// TestResolve_Invalid covers the range and enum rejections.
func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		ov      *Overrides
		wantSub string
	}{
		{"bad strategy", &Overrides{Strategy: strPtr("spiral")}, "unknown strategy"},
		{"bad shape", &Overrides{PlotShape: strPtr("hexagonal")}, "unknown plot shape"},
		{"intensity too low", &Overrides{IntensityPercent: floatPtr(0.05)}, "intensity_percent"},
		{"intensity too high", &Overrides{IntensityPercent: floatPtr(12)}, "intensity_percent"},
		{"negative min distance", &Overrides{MinDistanceM: floatPtr(-1)}, "min_distance_m"},
		{"negative floor", &Overrides{MinSamplesPerBlock: intPtr(-3)}, "min_samples_per_block"},
		{"zero strata", &Overrides{Strategy: strPtr("stratified"), NumStrata: intPtr(0)}, "num_strata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(DefaultParameters(), tt.ov, "b")
			if err == nil {
				t.Fatalf("Resolve accepted %+v", tt.ov)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

// TestTarget covers the intensity-driven sample count and the minimum
// floors on both sides of the one hectare cut.
func TestTarget(t *testing.T) {
	p := DefaultParameters()

	tests := []struct {
		name         string
		areaM2       float64
		wantTarget   int
		wantRaw      int
		wantEnforced bool
	}{
		// 76 ha at 1% with 500 m^2 plots: 15.2 rounds to 15, above the floor.
		{"large block", 760000, 15, 15, false},
		// 15 ha computes exactly 3, floored to 5.
		{"floor on large block", 150000, 5, 3, true},
		// 0.6 ha computes 0, small-block floor 2 applies.
		{"small block", 6000, 2, 0, true},
		// 0.9 ha computing 0 still uses the small-block floor.
		{"just under a hectare", 9990, 2, 0, true},
		// Exactly one hectare uses the large-block floor.
		{"exactly a hectare", 10000, 5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, raw, enforced := p.target(tt.areaM2)
			if target != tt.wantTarget || raw != tt.wantRaw || enforced != tt.wantEnforced {
				t.Errorf("target(%g) = (%d, %d, %v), want (%d, %d, %v)",
					tt.areaM2, target, raw, enforced, tt.wantTarget, tt.wantRaw, tt.wantEnforced)
			}
		})
	}
}
