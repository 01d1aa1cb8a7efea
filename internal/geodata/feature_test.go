package geodata

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func TestFeatureCollection_AppendNormalize(t *testing.T) {
	fc := NewFeatureCollection("test", WGS84())

	if err := fc.Append(orb.Point{1, 2}, Attr{"name", "a"}, Attr{"value", 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := fc.Append(orb.Point{3, 4}, Attr{"value", 2.5}, Attr{"extra", true}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	fc.Normalize()

	want := []Field{{"name", TypeString}, {"value", TypeFloat}, {"extra", TypeBoolean}}
	if !fc.Schema.Equal(NewSchema(want...)) {
		t.Fatalf("unexpected schema %v", fc.Schema)
	}

	first := fc.Features[0]
	if first.Properties["value"] != float64(1) {
		t.Errorf("expected value widened to float64 1, got %#v", first.Properties["value"])
	}
	if v, ok := first.Properties["extra"]; !ok || v != nil {
		t.Errorf("expected extra present and nil, got %#v (present=%v)", v, ok)
	}
	if v, ok := fc.Features[1].Properties["name"]; !ok || v != nil {
		t.Errorf("expected name present and nil, got %#v (present=%v)", v, ok)
	}
}

func TestFeatureCollection_AppendRejectsEmptyGeometry(t *testing.T) {
	fc := NewFeatureCollection("test", CRS{})

	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"nil", nil},
		{"empty linestring", orb.LineString{}},
		{"empty polygon", orb.Polygon{}},
		{"empty ring", orb.Polygon{orb.Ring{}}},
		{"empty collection", orb.Collection{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fc.Append(tt.geom); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNormalizeGeometry(t *testing.T) {
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	g, err := NormalizeGeometry(ring)
	if err != nil {
		t.Fatalf("NormalizeGeometry failed: %v", err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Errorf("expected Polygon for Ring, got %T", g)
	}

	g, err = NormalizeGeometry(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 3}})
	if err != nil {
		t.Fatalf("NormalizeGeometry failed: %v", err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly[0]) != 5 {
		t.Errorf("expected 5-point rectangle, got %v", g)
	}
}

func TestGeometryTypes(t *testing.T) {
	features := []*Feature{
		{Geometry: orb.Point{0, 0}},
		{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
		{Geometry: orb.Point{1, 1}},
	}
	types := GeometryTypes(features)
	if len(types) != 2 || types[0] != "Point" || types[1] != "Polygon" {
		t.Errorf("unexpected types %v", types)
	}
}

func TestFeatureFingerprint(t *testing.T) {
	names := []string{"a", "b"}
	f1 := &Feature{Geometry: orb.Point{1, 2}, Properties: map[string]interface{}{"a": int64(1), "b": nil}}
	f2 := &Feature{Geometry: orb.Point{1, 2}, Properties: map[string]interface{}{"b": nil, "a": int64(1)}}
	f3 := &Feature{Geometry: orb.Point{1, 2}, Properties: map[string]interface{}{"a": "1", "b": nil}}

	if FeatureFingerprint(f1, names) != FeatureFingerprint(f2, names) {
		t.Error("expected equal fingerprints for equal content")
	}
	if FeatureFingerprint(f1, names) == FeatureFingerprint(f3, names) {
		t.Error("expected integer and string values to hash differently")
	}
}

func TestError_IsAndMessage(t *testing.T) {
	err := Annotate(Malformed(FormatCSV, "row %d", 3), StageParsing, 1, "a.csv", FormatUnknown)

	if !errors.Is(err, ErrMalformedInput) {
		t.Error("expected errors.Is ErrMalformedInput")
	}
	if err.Input != 1 || err.Name != "a.csv" || err.Stage != StageParsing || err.Format != FormatCSV {
		t.Errorf("unexpected annotation %+v", err)
	}
	want := `geoconv: malformed input (CSV) input #2 "a.csv" while parsing: row 3`
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	cause := errors.New("boom")
	wrapped := Annotate(cause, StageSerializing, -1, "", FormatKML)
	if !errors.Is(wrapped, cause) {
		t.Error("expected foreign cause to be preserved")
	}
}

func TestStage_Terminal(t *testing.T) {
	for _, s := range []Stage{StageParseFailed, StageMergeFailed, StageSerializeFailed, StageDone} {
		if !s.Terminal() {
			t.Errorf("expected %v to be terminal", s)
		}
	}
	for _, s := range []Stage{StageReceived, StageParsing, StageParsed, StageMerging, StageMerged, StageSerializing} {
		if s.Terminal() {
			t.Errorf("expected %v not to be terminal", s)
		}
	}
}
