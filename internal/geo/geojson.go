package geo

import (
	"encoding/json"
	"fmt"

	"github.com/ctessum/geom"
)

// InvalidGeometryError reports boundary or block input rejected before any
// sampling work starts. The Reason names the specific defect so callers can
// surface it verbatim.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

func invalidf(format string, args ...interface{}) error {
	return &InvalidGeometryError{Reason: fmt.Sprintf(format, args...)}
}

// geoJSON is the subset of the GeoJSON object model we accept: a bare
// Polygon/MultiPolygon geometry, a Feature wrapping one, or a
// FeatureCollection whose polygonal features are merged into a MultiPolygon.
type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometry    *geoJSON        `json:"geometry,omitempty"`
	Features    []geoJSON       `json:"features,omitempty"`
}

// ParsePolygonal decodes a GeoJSON document into a polygonal geometry.
// Rings must be closed (first position repeated last) per RFC 7946;
// the duplicate closing vertex is dropped in the returned geometry.
func ParsePolygonal(data []byte) (geom.Polygonal, error) {
	if len(data) == 0 {
		return nil, invalidf("empty GeoJSON document")
	}

	var doc geoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalidf("malformed GeoJSON: %v", err)
	}
	return polygonalFromDoc(&doc)
}

func polygonalFromDoc(doc *geoJSON) (geom.Polygonal, error) {
	switch doc.Type {
	case "Polygon":
		return decodePolygon(doc.Coordinates)

	case "MultiPolygon":
		return decodeMultiPolygon(doc.Coordinates)

	case "Feature":
		if doc.Geometry == nil {
			return nil, invalidf("feature has no geometry")
		}
		return polygonalFromDoc(doc.Geometry)

	case "FeatureCollection":
		var mp geom.MultiPolygon
		for i := range doc.Features {
			g, err := polygonalFromDoc(&doc.Features[i])
			if err != nil {
				return nil, err
			}
			mp = append(mp, g.Polygons()...)
		}
		if len(mp) == 0 {
			return nil, invalidf("feature collection contains no polygons")
		}
		if len(mp) == 1 {
			return mp[0], nil
		}
		return mp, nil

	case "":
		return nil, invalidf("missing geometry type")

	default:
		return nil, invalidf("unsupported geometry type %q, want Polygon or MultiPolygon", doc.Type)
	}
}

func decodePolygon(raw json.RawMessage) (geom.Polygon, error) {
	var rings [][][]float64
	if err := json.Unmarshal(raw, &rings); err != nil {
		return nil, invalidf("malformed polygon coordinates: %v", err)
	}
	return buildPolygon(rings)
}

func decodeMultiPolygon(raw json.RawMessage) (geom.Polygonal, error) {
	var polys [][][][]float64
	if err := json.Unmarshal(raw, &polys); err != nil {
		return nil, invalidf("malformed multipolygon coordinates: %v", err)
	}
	if len(polys) == 0 {
		return nil, invalidf("multipolygon has no polygons")
	}

	mp := make(geom.MultiPolygon, 0, len(polys))
	for i, rings := range polys {
		p, err := buildPolygon(rings)
		if err != nil {
			return nil, invalidf("polygon %d: %v", i, err.(*InvalidGeometryError).Reason)
		}
		mp = append(mp, p)
	}
	if len(mp) == 1 {
		return mp[0], nil
	}
	return mp, nil
}

// buildPolygon converts GeoJSON rings into a geom.Polygon. Each ring needs at
// least four positions (three vertices plus the closing repeat) and the first
// and last positions must coincide.
func buildPolygon(rings [][][]float64) (geom.Polygon, error) {
	if len(rings) == 0 {
		return nil, invalidf("polygon has no rings")
	}

	poly := make(geom.Polygon, 0, len(rings))
	for ri, ring := range rings {
		if len(ring) < 4 {
			return nil, invalidf("ring %d has %d positions, need at least 4", ri, len(ring))
		}
		for pi, pos := range ring {
			if len(pos) < 2 {
				return nil, invalidf("ring %d position %d has %d ordinates", ri, pi, len(pos))
			}
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			return nil, invalidf("ring %d is not closed", ri)
		}

		// Drop the closing repeat and any consecutive duplicates; geom
		// treats rings as implicitly closed.
		pts := make([]geom.Point, 0, len(ring)-1)
		for _, pos := range ring[:len(ring)-1] {
			pt := geom.Point{X: pos[0], Y: pos[1]}
			if len(pts) > 0 && pts[len(pts)-1] == pt {
				continue
			}
			pts = append(pts, pt)
		}
		if len(pts) < 3 {
			return nil, invalidf("ring %d has fewer than 3 distinct vertices", ri)
		}
		poly = append(poly, pts)
	}
	return poly, nil
}

// EncodeGeometry renders a point or polygonal geometry as a GeoJSON geometry
// object. Polygon rings are emitted closed.
func EncodeGeometry(g geom.Geom) (json.RawMessage, error) {
	switch gg := g.(type) {
	case geom.Point:
		return json.Marshal(map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{gg.X, gg.Y},
		})
	case geom.Polygon:
		return json.Marshal(map[string]interface{}{
			"type":        "Polygon",
			"coordinates": polygonCoords(gg),
		})
	case geom.MultiPolygon:
		coords := make([][][][]float64, len(gg))
		for i, p := range gg {
			coords[i] = polygonCoords(p)
		}
		return json.Marshal(map[string]interface{}{
			"type":        "MultiPolygon",
			"coordinates": coords,
		})
	case geom.Polygonal:
		polys := gg.Polygons()
		if len(polys) == 1 {
			return EncodeGeometry(polys[0])
		}
		return EncodeGeometry(geom.MultiPolygon(polys))
	default:
		return nil, fmt.Errorf("cannot encode geometry type %T as GeoJSON", g)
	}
}

func polygonCoords(p geom.Polygon) [][][]float64 {
	rings := make([][][]float64, len(p))
	for ri, ring := range p {
		coords := make([][]float64, 0, len(ring)+1)
		for _, pt := range ring {
			coords = append(coords, []float64{pt.X, pt.Y})
		}
		if len(ring) > 0 {
			coords = append(coords, []float64{ring[0].X, ring[0].Y})
		}
		rings[ri] = coords
	}
	return rings
}
