// Package report computes summary statistics over sampling designs and
// resolved stem datasets, and renders them as PNG artifacts for field
// documentation.
package report

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

// SpacingStats summarizes nearest neighbour distances between plot
// centers, in metres.
type SpacingStats struct {
	Count   int     `json:"count"`
	MeanM   float64 `json:"mean_m"`
	StdDevM float64 `json:"stddev_m"`
	MinM    float64 `json:"min_m"`
	MaxM    float64 `json:"max_m"`
	MedianM float64 `json:"median_m"`
}

// NearestNeighborDistances returns, for every point, the planar distance to
// its closest sibling. Points from all blocks are pooled; a design with
// fewer than two points yields nothing.
func NearestNeighborDistances(d *sampling.Design) []float64 {
	type xy struct{ x, y float64 }
	var pts []xy
	for _, b := range d.Blocks {
		for _, p := range b.Points {
			pts = append(pts, xy{x: p.Easting, y: p.Northing})
		}
	}
	if len(pts) < 2 {
		return nil
	}

	dists := make([]float64, len(pts))
	for i := range pts {
		nearest := math.Inf(1)
		for j := range pts {
			if i == j {
				continue
			}
			if d := math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y); d < nearest {
				nearest = d
			}
		}
		dists[i] = nearest
	}
	return dists
}

// Spacing computes the spacing summary of a design.
func Spacing(d *sampling.Design) (SpacingStats, error) {
	dists := NearestNeighborDistances(d)
	if len(dists) == 0 {
		return SpacingStats{}, fmt.Errorf("design %s has fewer than 2 points", d.DesignID)
	}
	return statsOf(dists), nil
}

func statsOf(vals []float64) SpacingStats {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	return SpacingStats{
		Count:   len(vals),
		MeanM:   stat.Mean(vals, nil),
		StdDevM: stat.StdDev(vals, nil),
		MinM:    floats.Min(sorted),
		MaxM:    floats.Max(sorted),
		MedianM: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
}

// SaveSpacingHistogram renders the nearest neighbour distances of a design
// as a 16-bin histogram PNG.
func SaveSpacingHistogram(d *sampling.Design, path string) error {
	dists := NearestNeighborDistances(d)
	if len(dists) == 0 {
		return fmt.Errorf("design %s has fewer than 2 points", d.DesignID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Design %s - Plot Spacing", d.DesignID)
	p.X.Label.Text = "Nearest neighbour distance (m)"
	p.Y.Label.Text = "Plots"

	h, err := plotter.NewHist(plotter.Values(dists), 16)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}

// DiameterStats summarizes stem diameters, in centimetres.
type DiameterStats struct {
	Count    int     `json:"count"`
	MeanCM   float64 `json:"mean_cm"`
	StdDevCM float64 `json:"stddev_cm"`
	MinCM    float64 `json:"min_cm"`
	MaxCM    float64 `json:"max_cm"`
	MedianCM float64 `json:"median_cm"`
}

// Diameters summarizes the diameter distribution of the stems carrying the
// given classification; an empty classification pools everything.
func Diameters(stems []treegrid.ClassifiedStem, class treegrid.Classification) DiameterStats {
	var vals []float64
	for _, s := range stems {
		if class != "" && s.Classification != class {
			continue
		}
		vals = append(vals, s.DiameterCM)
	}
	if len(vals) == 0 {
		return DiameterStats{}
	}

	s := statsOf(vals)
	return DiameterStats{
		Count:    s.Count,
		MeanCM:   s.MeanM,
		StdDevCM: s.StdDevM,
		MinCM:    s.MinM,
		MaxCM:    s.MaxM,
		MedianCM: s.MedianM,
	}
}

// SaveDiameterHistogram renders the diameter distribution of a resolved
// dataset as a histogram PNG, pooling all classifications.
func SaveDiameterHistogram(stems []treegrid.ClassifiedStem, title, path string) error {
	vals := make([]float64, 0, len(stems))
	for _, s := range stems {
		vals = append(vals, s.DiameterCM)
	}
	if len(vals) == 0 {
		return fmt.Errorf("no stems to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Diameter (cm)"
	p.Y.Label.Text = "Stems"

	h, err := plotter.NewHist(plotter.Values(vals), 16)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}
