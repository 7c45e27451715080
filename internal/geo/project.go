package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

// UTMZone returns the UTM zone number (1..60) for a longitude in degrees.
func UTMZone(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone
}

// utmProj4 builds a Proj4 definition for a UTM zone. Expressed as a
// transverse Mercator so it carries the central meridian, scale factor and
// false origin explicitly.
func utmProj4(zone int, south bool) string {
	y0 := 0.0
	if south {
		y0 = 10000000.0
	}
	return fmt.Sprintf(
		"+proj=tmerc +lat_0=0 +lon_0=%d +k=0.9996 +x_0=500000 +y_0=%.0f +datum=WGS84 +units=m +no_defs",
		zone*6-183, y0,
	)
}

// Projector converts between WGS84 geographic coordinates and the planar UTM
// zone local to a forest. Distances and areas computed on projected
// geometries are in metres and square metres.
type Projector struct {
	Zone  int
	South bool

	forward proj.Transformer
	inverse proj.Transformer
}

// projCache memoizes transforms per zone and hemisphere. Transforms are
// read-only after construction so sharing across goroutines is safe.
var projCache sync.Map

type projKey struct {
	zone  int
	south bool
}

// NewProjector builds (or reuses) the projector for the UTM zone containing
// the given geographic coordinate.
func NewProjector(lon, lat float64) (*Projector, error) {
	key := projKey{zone: UTMZone(lon), south: lat < 0}
	if cached, ok := projCache.Load(key); ok {
		return cached.(*Projector), nil
	}

	src, err := proj.Parse(wgs84Proj4)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	dst, err := proj.Parse(utmProj4(key.zone, key.south))
	if err != nil {
		return nil, fmt.Errorf("parse UTM zone %d projection: %w", key.zone, err)
	}

	fwd, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("build forward transform: %w", err)
	}
	inv, err := dst.NewTransform(src)
	if err != nil {
		return nil, fmt.Errorf("build inverse transform: %w", err)
	}

	p := &Projector{Zone: key.zone, South: key.south, forward: fwd, inverse: inv}
	actual, _ := projCache.LoadOrStore(key, p)
	return actual.(*Projector), nil
}

// ToPlanar reprojects a geographic polygonal geometry into the UTM plane.
func (p *Projector) ToPlanar(g geom.Polygonal) (geom.Polygonal, error) {
	gg, err := g.Transform(p.forward)
	if err != nil {
		return nil, fmt.Errorf("project to UTM zone %d: %w", p.Zone, err)
	}
	pg, ok := gg.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("projection returned non-polygonal geometry %T", gg)
	}
	return pg, nil
}

// ToGeographic reprojects a planar polygonal geometry back to WGS84.
func (p *Projector) ToGeographic(g geom.Polygonal) (geom.Polygonal, error) {
	gg, err := g.Transform(p.inverse)
	if err != nil {
		return nil, fmt.Errorf("unproject from UTM zone %d: %w", p.Zone, err)
	}
	pg, ok := gg.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("projection returned non-polygonal geometry %T", gg)
	}
	return pg, nil
}

// PointToGeographic converts a single planar point back to lon/lat.
func (p *Projector) PointToGeographic(pt geom.Point) (geom.Point, error) {
	x, y, err := p.inverse(pt.X, pt.Y)
	if err != nil {
		return geom.Point{}, fmt.Errorf("unproject point: %w", err)
	}
	return geom.Point{X: x, Y: y}, nil
}

// PointToPlanar converts a single lon/lat point into the UTM plane.
func (p *Projector) PointToPlanar(pt geom.Point) (geom.Point, error) {
	x, y, err := p.forward(pt.X, pt.Y)
	if err != nil {
		return geom.Point{}, fmt.Errorf("project point: %w", err)
	}
	return geom.Point{X: x, Y: y}, nil
}
