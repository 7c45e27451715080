package sampling

import (
	"math"

	"github.com/ctessum/geom"
)

const (
	// MinCircleVertices is the smallest polygonisation allowed for circular
	// plot footprints.
	MinCircleVertices = 32

	// DefaultCircleVertices is the polygonisation used when the service
	// config does not set one.
	DefaultCircleVertices = 48
)

// Footprint expands a plot center into its planar footprint polygon.
// Circular plots are approximated by a counter-clockwise regular polygon
// of circleVertices sides; square and rectangular plots are axis-aligned
// with plot_length_m along x and plot_width_m along y.
func Footprint(center geom.Point, p Parameters, circleVertices int) geom.Polygon {
	switch p.PlotShape {
	case PlotCircular:
		n := circleVertices
		if n < MinCircleVertices {
			n = DefaultCircleVertices
		}
		ring := make([]geom.Point, n)
		for i := 0; i < n; i++ {
			theta := 2 * math.Pi * float64(i) / float64(n)
			ring[i] = geom.Point{
				X: center.X + p.PlotRadiusM*math.Cos(theta),
				Y: center.Y + p.PlotRadiusM*math.Sin(theta),
			}
		}
		return geom.Polygon{ring}
	case PlotSquare, PlotRectangular:
		hx := p.PlotLengthM / 2
		hy := p.PlotWidthM / 2
		return geom.Polygon{{
			{X: center.X - hx, Y: center.Y - hy},
			{X: center.X + hx, Y: center.Y - hy},
			{X: center.X + hx, Y: center.Y + hy},
			{X: center.X - hx, Y: center.Y + hy},
		}}
	}
	return nil
}

// subtractExclusion removes the exclusion geometry from a plot footprint.
// The second return is false when the footprint is completely erased and
// the plot must be dropped.
func subtractExclusion(foot geom.Polygon, exclusion geom.Polygonal) (geom.Polygonal, bool) {
	if exclusion == nil {
		return foot, true
	}
	diff := foot.Difference(exclusion)
	if diff == nil {
		return nil, false
	}
	if a := math.Abs(diff.Area()); a <= 0 || math.IsNaN(a) {
		return nil, false
	}
	return diff, true
}
