package geo

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ctessum/geom"
)

func TestUTMZone(t *testing.T) {
	tests := []struct {
		lon  float64
		want int
	}{
		{-180, 1},
		{-122.4, 10},
		{0, 31},
		{9.18, 32},
		{103.8, 48},
		{179.99, 60},
		{180, 60}, // clamped
	}
	for _, tt := range tests {
		if got := UTMZone(tt.lon); got != tt.want {
			t.Errorf("UTMZone(%v) = %d, want %d", tt.lon, got, tt.want)
		}
	}
}

func TestProjector_CentralMeridian(t *testing.T) {
	// On the central meridian of zone 32 the easting is the false origin.
	pr, err := NewProjector(9.0, 52.0)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	if pr.Zone != 32 || pr.South {
		t.Fatalf("expected northern zone 32, got zone %d south=%v", pr.Zone, pr.South)
	}

	pt, err := pr.PointToPlanar(geom.Point{X: 9.0, Y: 0.0})
	if err != nil {
		t.Fatalf("PointToPlanar failed: %v", err)
	}
	if math.Abs(pt.X-500000) > 0.5 {
		t.Errorf("easting on central meridian = %v, want 500000", pt.X)
	}
	if math.Abs(pt.Y) > 0.5 {
		t.Errorf("northing on equator = %v, want 0", pt.Y)
	}
}

func TestProjector_RoundTrip(t *testing.T) {
	pr, err := NewProjector(9.5, 52.3)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}

	orig := geom.Point{X: 9.5123, Y: 52.3456}
	planar, err := pr.PointToPlanar(orig)
	if err != nil {
		t.Fatalf("PointToPlanar failed: %v", err)
	}
	back, err := pr.PointToGeographic(planar)
	if err != nil {
		t.Fatalf("PointToGeographic failed: %v", err)
	}

	if math.Abs(back.X-orig.X) > 1e-6 || math.Abs(back.Y-orig.Y) > 1e-6 {
		t.Errorf("round trip drifted: %v -> %v", orig, back)
	}
}

func TestProjector_Memoized(t *testing.T) {
	a, err := NewProjector(9.1, 52.0)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	b, err := NewProjector(9.9, 48.0) // same zone, same hemisphere
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	if a != b {
		t.Error("expected same projector instance for same zone and hemisphere")
	}

	c, err := NewProjector(9.1, -20.0)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	if c == a {
		t.Error("expected distinct projector for southern hemisphere")
	}
	if !c.South {
		t.Error("expected southern projector")
	}
}

func TestNormalizeBoundary(t *testing.T) {
	b, err := NormalizeBoundary([]byte(squareGeoJSON))
	if err != nil {
		t.Fatalf("NormalizeBoundary failed: %v", err)
	}

	if b.Projector.Zone != 32 {
		t.Errorf("expected UTM zone 32, got %d", b.Projector.Zone)
	}
	// A 0.01 x 0.01 degree square near 52N is roughly 76 ha.
	if b.AreaHa < 50 || b.AreaHa > 100 {
		t.Errorf("area %v ha outside plausible range", b.AreaHa)
	}
	if planarArea := math.Abs(b.Planar.Area()); math.Abs(Hectares(planarArea)-b.AreaHa) > 1e-9 {
		t.Errorf("cached area %v disagrees with planar geometry %v", b.AreaHa, Hectares(planarArea))
	}
}

func TestNormalizeBoundary_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "self-intersecting bowtie",
			doc:  `{"type": "Polygon", "coordinates": [[[0,0],[2,2],[2,0],[0,2],[0,0]]]}`,
			want: "self-intersecting",
		},
		{
			name: "zero area",
			doc:  `{"type": "Polygon", "coordinates": [[[0,0],[1,1],[2,2],[0,0]]]}`,
			want: "zero area",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeBoundary([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ige *InvalidGeometryError
			if !errors.As(err, &ige) {
				t.Fatalf("expected InvalidGeometryError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestHectares(t *testing.T) {
	if got := Hectares(10000); got != 1 {
		t.Errorf("Hectares(10000) = %v, want 1", got)
	}
	if got := Hectares(6000); got != 0.6 {
		t.Errorf("Hectares(6000) = %v, want 0.6", got)
	}
}
