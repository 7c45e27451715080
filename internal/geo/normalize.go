package geo

import (
	"math"

	"github.com/ctessum/geom"
)

// SquareMetersPerHectare converts planar areas to the hectare figures used
// throughout sampling parameters and reports.
const SquareMetersPerHectare = 10000.0

// Hectares converts an area in square metres to hectares.
func Hectares(areaM2 float64) float64 {
	return areaM2 / SquareMetersPerHectare
}

// Boundary is the canonical form of a forest outline: the geographic
// geometry as submitted, its planar UTM projection, and the projector that
// links the two. Immutable once built.
type Boundary struct {
	Geographic geom.Polygonal
	Planar     geom.Polygonal
	Projector  *Projector
	AreaHa     float64
}

// NormalizeBoundary validates a GeoJSON boundary and reprojects it into the
// UTM zone of its centroid. All downstream distance and area math runs on
// the planar geometry.
func NormalizeBoundary(geojson []byte) (*Boundary, error) {
	g, err := ParsePolygonal(geojson)
	if err != nil {
		return nil, err
	}
	return NormalizeGeometry(g)
}

// NormalizeGeometry is NormalizeBoundary for an already decoded geometry.
func NormalizeGeometry(g geom.Polygonal) (*Boundary, error) {
	if err := ValidatePolygonal(g); err != nil {
		return nil, err
	}

	ctr := g.Centroid()
	pr, err := NewProjector(ctr.X, ctr.Y)
	if err != nil {
		return nil, err
	}

	planar, err := pr.ToPlanar(g)
	if err != nil {
		return nil, err
	}

	area := math.Abs(planar.Area())
	if area <= 0 || math.IsNaN(area) {
		return nil, invalidf("boundary has zero projected area")
	}

	return &Boundary{
		Geographic: g,
		Planar:     planar,
		Projector:  pr,
		AreaHa:     Hectares(area),
	}, nil
}

// ValidatePolygonal rejects empty, zero-area and self-intersecting
// geometry before any projection work.
func ValidatePolygonal(g geom.Polygonal) error {
	polys := g.Polygons()
	if len(polys) == 0 {
		return invalidf("geometry is empty")
	}

	for pi, p := range polys {
		if len(p) == 0 {
			return invalidf("polygon %d has no rings", pi)
		}
		for ri, ring := range p {
			if len(ring) < 3 {
				return invalidf("polygon %d ring %d has fewer than 3 vertices", pi, ri)
			}
			if ringSelfIntersects(ring) {
				return invalidf("polygon %d ring %d is self-intersecting", pi, ri)
			}
		}
	}

	if area := math.Abs(g.Area()); area <= 0 || math.IsNaN(area) {
		return invalidf("geometry has zero area")
	}
	return nil
}

// ringSelfIntersects reports whether any two non-adjacent edges of the ring
// properly cross. The ring is treated as implicitly closed. O(n^2), fine for
// boundary outlines.
func ringSelfIntersects(ring []geom.Point) bool {
	n := len(ring)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1 := ring[i]
		a2 := ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip the shared-endpoint neighbours of edge i.
			if j == i || (j+1)%n == i || j == (i+1)%n {
				continue
			}
			b1 := ring[j]
			b2 := ring[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports a proper crossing: the segments intersect at a point
// interior to both. Touching endpoints and collinear overlap do not count.
func segmentsCross(a1, a2, b1, b2 geom.Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b geom.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
