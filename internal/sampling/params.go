// Package sampling generates field-verification sample plots for forest
// blocks: it resolves per-block parameter overrides, places plot centers by
// strategy, enforces minimum sample floors, and expands accepted centers
// into plot footprints.
package sampling

import (
	"fmt"
	"math"
	"strings"
)

// Strategy selects how plot centers are placed within a block.
type Strategy string

const (
	StrategySystematic Strategy = "systematic"
	StrategyRandom     Strategy = "random"
	StrategyStratified Strategy = "stratified"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySystematic, StrategyRandom, StrategyStratified:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q, want systematic, random or stratified", s)
}

// PlotShape selects the footprint expanded around each accepted center.
type PlotShape string

const (
	PlotCircular    PlotShape = "circular"
	PlotSquare      PlotShape = "square"
	PlotRectangular PlotShape = "rectangular"
)

// ParsePlotShape validates a plot shape name.
func ParsePlotShape(s string) (PlotShape, error) {
	switch PlotShape(s) {
	case PlotCircular, PlotSquare, PlotRectangular:
		return PlotShape(s), nil
	}
	return "", fmt.Errorf("unknown plot shape %q, want circular, square or rectangular", s)
}

// Parameters is one fully resolved sampling parameter set for a block.
// Dimensions are metres, intensity is percent of block area.
type Parameters struct {
	Strategy              Strategy  `json:"strategy"`
	IntensityPercent      float64   `json:"intensity_percent"`
	MinSamplesPerBlock    int       `json:"min_samples_per_block"`
	MinSamplesSmallBlocks int       `json:"min_samples_small_blocks"`
	MinDistanceM          float64   `json:"min_distance_m"`
	PlotShape             PlotShape `json:"plot_shape"`
	PlotRadiusM           float64   `json:"plot_radius_m,omitempty"`
	PlotLengthM           float64   `json:"plot_length_m,omitempty"`
	PlotWidthM            float64   `json:"plot_width_m,omitempty"`
	NumStrata             int       `json:"num_strata,omitempty"`
}

// DefaultParameters returns the system-wide defaults: a 1% systematic design
// with 500 m^2 circular plots.
func DefaultParameters() Parameters {
	return Parameters{
		Strategy:              StrategySystematic,
		IntensityPercent:      1.0,
		MinSamplesPerBlock:    5,
		MinSamplesSmallBlocks: 2,
		MinDistanceM:          0,
		PlotShape:             PlotCircular,
		PlotRadiusM:           12.6156, // ~500 m^2
		NumStrata:             4,
	}
}

// PlotArea returns the nominal plot footprint area in square metres.
func (p Parameters) PlotArea() float64 {
	switch p.PlotShape {
	case PlotCircular:
		return math.Pi * p.PlotRadiusM * p.PlotRadiusM
	case PlotSquare, PlotRectangular:
		return p.PlotLengthM * p.PlotWidthM
	}
	return 0
}

// Overrides is a partial parameter set: every field is independently
// present-or-absent, so merging over defaults is total and unambiguous.
// The zero value overrides nothing.
type Overrides struct {
	Strategy              *string  `json:"strategy,omitempty"`
	IntensityPercent      *float64 `json:"intensity_percent,omitempty"`
	MinSamplesPerBlock    *int     `json:"min_samples_per_block,omitempty"`
	MinSamplesSmallBlocks *int     `json:"min_samples_small_blocks,omitempty"`
	MinDistanceM          *float64 `json:"min_distance_m,omitempty"`
	PlotShape             *string  `json:"plot_shape,omitempty"`
	PlotRadiusM           *float64 `json:"plot_radius_m,omitempty"`
	PlotLengthM           *float64 `json:"plot_length_m,omitempty"`
	PlotWidthM            *float64 `json:"plot_width_m,omitempty"`
	NumStrata             *int     `json:"num_strata,omitempty"`
}

// IncompleteOverrideError reports an override whose resolved result cannot
// be used, naming the missing shape-specific fields.
type IncompleteOverrideError struct {
	Block   string
	Missing []string
}

func (e *IncompleteOverrideError) Error() string {
	return fmt.Sprintf("block %q override incomplete: missing %s", e.Block, strings.Join(e.Missing, ", "))
}

// Resolve applies the present fields of ov over base and validates the
// result. The block name is only used in error reporting.
func Resolve(base Parameters, ov *Overrides, block string) (Parameters, error) {
	p := base

	if ov != nil {
		if ov.Strategy != nil {
			s, err := ParseStrategy(*ov.Strategy)
			if err != nil {
				return Parameters{}, fmt.Errorf("block %q: %w", block, err)
			}
			p.Strategy = s
		}
		if ov.IntensityPercent != nil {
			p.IntensityPercent = *ov.IntensityPercent
		}
		if ov.MinSamplesPerBlock != nil {
			p.MinSamplesPerBlock = *ov.MinSamplesPerBlock
		}
		if ov.MinSamplesSmallBlocks != nil {
			p.MinSamplesSmallBlocks = *ov.MinSamplesSmallBlocks
		}
		if ov.MinDistanceM != nil {
			p.MinDistanceM = *ov.MinDistanceM
		}
		if ov.PlotShape != nil {
			shape, err := ParsePlotShape(*ov.PlotShape)
			if err != nil {
				return Parameters{}, fmt.Errorf("block %q: %w", block, err)
			}
			p.PlotShape = shape
		}
		if ov.PlotRadiusM != nil {
			p.PlotRadiusM = *ov.PlotRadiusM
		}
		if ov.PlotLengthM != nil {
			p.PlotLengthM = *ov.PlotLengthM
		}
		if ov.PlotWidthM != nil {
			p.PlotWidthM = *ov.PlotWidthM
		}
		if ov.NumStrata != nil {
			p.NumStrata = *ov.NumStrata
		}
	}

	if missing := p.missingShapeFields(); len(missing) > 0 {
		return Parameters{}, &IncompleteOverrideError{Block: block, Missing: missing}
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, fmt.Errorf("block %q: %w", block, err)
	}
	return p, nil
}

// missingShapeFields lists the dimension fields required by the resolved
// plot shape and strategy that ended up unset.
func (p Parameters) missingShapeFields() []string {
	var missing []string
	switch p.PlotShape {
	case PlotCircular:
		if p.PlotRadiusM <= 0 {
			missing = append(missing, "plot_radius_m")
		}
	case PlotSquare, PlotRectangular:
		if p.PlotLengthM <= 0 {
			missing = append(missing, "plot_length_m")
		}
		if p.PlotWidthM <= 0 {
			missing = append(missing, "plot_width_m")
		}
	}
	if p.Strategy == StrategyStratified && p.NumStrata <= 0 {
		missing = append(missing, "num_strata")
	}
	return missing
}

// Validate checks range constraints on a resolved parameter set.
func (p Parameters) Validate() error {
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return err
	}
	if _, err := ParsePlotShape(string(p.PlotShape)); err != nil {
		return err
	}
	if p.IntensityPercent < 0.1 || p.IntensityPercent > 10.0 {
		return fmt.Errorf("intensity_percent must be between 0.1 and 10.0, got %g", p.IntensityPercent)
	}
	if p.MinSamplesPerBlock < 0 {
		return fmt.Errorf("min_samples_per_block must be non-negative, got %d", p.MinSamplesPerBlock)
	}
	if p.MinSamplesSmallBlocks < 0 {
		return fmt.Errorf("min_samples_small_blocks must be non-negative, got %d", p.MinSamplesSmallBlocks)
	}
	if p.MinDistanceM < 0 {
		return fmt.Errorf("min_distance_m must be non-negative, got %g", p.MinDistanceM)
	}
	if p.PlotArea() <= 0 {
		return fmt.Errorf("plot dimensions must be positive")
	}
	if p.Strategy == StrategyStratified && p.NumStrata < 1 {
		return fmt.Errorf("num_strata must be at least 1, got %d", p.NumStrata)
	}
	return nil
}
