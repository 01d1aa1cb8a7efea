package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

func near(a, b orb.Point, tol float64) bool {
	return math.Abs(a[0]-b[0]) <= tol && math.Abs(a[1]-b[1]) <= tol
}

func TestTransformer_Identity(t *testing.T) {
	tests := []struct {
		name     string
		from, to geodata.CRS
	}{
		{"wgs84", geodata.WGS84(), geodata.WGS84()},
		{"mercator alias", geodata.EPSG(900913), geodata.WebMercator()},
		{"custom wkt", geodata.CRS{WKT: `PROJCS["x"]`}, geodata.CRS{WKT: ` PROJCS["x"] `}},
		{"unknown", geodata.CRS{}, geodata.CRS{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj, err := Transformer(tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if proj != nil {
				t.Error("expected identity projection")
			}
		})
	}
}

func TestTransformer_WGS84ToMercator(t *testing.T) {
	proj, err := Transformer(geodata.WGS84(), geodata.WebMercator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proj(orb.Point{0, 0}); !near(got, orb.Point{0, 0}, 1e-6) {
		t.Errorf("expected origin, got %v", got)
	}
	if got := proj(orb.Point{180, 0}); !near(got, orb.Point{20037508.342789244, 0}, 1e-3) {
		t.Errorf("unexpected antimeridian easting %v", got)
	}
}

func TestTransformer_MercatorToUTMRoundTrip(t *testing.T) {
	there, err := Transformer(geodata.WebMercator(), geodata.EPSG(32633))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := Transformer(geodata.EPSG(32633), geodata.WebMercator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := orb.Point{1669792.36, 6800125.45} // about 15E 52N
	utmPoint := there(p)
	if math.Abs(utmPoint[0]-500000) > 1 {
		t.Errorf("expected easting near the central meridian, got %v", utmPoint)
	}
	if got := back(utmPoint); !near(got, p, 0.5) {
		t.Errorf("expected %v, got %v", p, got)
	}
}

func TestTransformer_NoPath(t *testing.T) {
	tests := []struct {
		name     string
		from, to geodata.CRS
	}{
		{"unknown source", geodata.CRS{}, geodata.WGS84()},
		{"unknown target", geodata.WGS84(), geodata.CRS{}},
		{"unsupported epsg", geodata.EPSG(2154), geodata.WGS84()},
		{"custom wkt", geodata.CRS{WKT: `PROJCS["x"]`}, geodata.WebMercator()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transformer(tt.from, tt.to)
			if !errors.Is(err, geodata.ErrCRSMismatch) {
				t.Errorf("expected ErrCRSMismatch, got %v", err)
			}
		})
	}
}

func TestReproject_DoesNotMutate(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}}
	proj, err := Transformer(geodata.WGS84(), geodata.WebMercator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := Reproject(poly, proj)
	if poly[0][1] != (orb.Point{10, 0}) {
		t.Errorf("input was modified: %v", poly)
	}
	got, ok := out.(orb.Polygon)
	if !ok {
		t.Fatalf("expected Polygon, got %T", out)
	}
	if got[0][1][0] < 1e6 {
		t.Errorf("expected projected coordinates, got %v", got[0][1])
	}
}

func TestReprojectCollection(t *testing.T) {
	fc := geodata.NewFeatureCollection("pts", geodata.WGS84())
	if err := fc.Append(orb.Point{15, 0}, geodata.Attr{Name: "id", Value: 1}); err != nil {
		t.Fatal(err)
	}
	fc.Normalize()

	out, err := ReprojectCollection(fc, geodata.EPSG(32633))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.CRS.Equal(geodata.EPSG(32633)) {
		t.Errorf("unexpected CRS %s", out.CRS)
	}
	if got := out.Features[0].Geometry.(orb.Point); !near(got, orb.Point{500000, 0}, 0.01) {
		t.Errorf("unexpected point %v", got)
	}
	if out.Features[0].Value("id") != int64(1) {
		t.Errorf("attributes not carried over: %v", out.Features[0].Properties)
	}
	if fc.Features[0].Geometry.(orb.Point) != (orb.Point{15, 0}) {
		t.Error("source collection was modified")
	}
}

func TestSupported(t *testing.T) {
	for _, code := range []int{4326, 3857, 32601, 32760} {
		if !Supported(geodata.EPSG(code)) {
			t.Errorf("expected EPSG:%d to be supported", code)
		}
	}
	if Supported(geodata.EPSG(2154)) || Supported(geodata.CRS{}) {
		t.Error("unexpected support")
	}
}
