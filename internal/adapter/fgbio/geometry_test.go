package fgbio

import (
	"errors"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

func TestGeometryType(t *testing.T) {
	tests := []struct {
		name     string
		geom     orb.Geometry
		expected flattypes.GeometryType
	}{
		{"Point", orb.Point{1, 2}, flattypes.GeometryTypePoint},
		{"MultiPoint", orb.MultiPoint{{1, 2}, {3, 4}}, flattypes.GeometryTypeMultiPoint},
		{"LineString", orb.LineString{{0, 0}, {1, 1}}, flattypes.GeometryTypeLineString},
		{"MultiLineString", orb.MultiLineString{{{0, 0}, {1, 1}}}, flattypes.GeometryTypeMultiLineString},
		{"Polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, flattypes.GeometryTypePolygon},
		{"MultiPolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, flattypes.GeometryTypeMultiPolygon},
		{"Collection", orb.Collection{orb.Point{1, 2}}, flattypes.GeometryTypeGeometryCollection},
		{"Bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, flattypes.GeometryTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := geometryType(tt.geom)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLayerType(t *testing.T) {
	tests := []struct {
		name     string
		geoms    []orb.Geometry
		expected flattypes.GeometryType
	}{
		{"empty", nil, flattypes.GeometryTypeUnknown},
		{"uniform", []orb.Geometry{orb.Point{1, 2}, orb.Point{3, 4}}, flattypes.GeometryTypePoint},
		{"mixed", []orb.Geometry{orb.Point{1, 2}, orb.LineString{{0, 0}, {1, 1}}}, flattypes.GeometryTypeUnknown},
		{"multi is not single", []orb.Geometry{orb.Point{1, 2}, orb.MultiPoint{{1, 2}}}, flattypes.GeometryTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := layerType(tt.geoms); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEncodeGeometry(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1.5, 2.5},
		orb.LineString{{0, 0}, {1, 1}, {2, 2}},
		orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
		},
		orb.MultiPolygon{
			{{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}},
			{{{10, 10}, {15, 10}, {15, 15}, {10, 15}, {10, 10}}},
		},
		orb.Collection{orb.Point{1, 2}, orb.LineString{{0, 0}, {1, 1}}},
	}

	for _, g := range geoms {
		t.Run(g.GeoJSONType(), func(t *testing.T) {
			builder := flatbuffers.NewBuilder(256)
			fg, err := encodeGeometry(g, builder)
			if err != nil {
				t.Fatalf("encodeGeometry failed: %v", err)
			}
			if fg == nil {
				t.Fatal("expected non-nil geometry")
			}
		})
	}
}

func TestEncodeGeometry_Errors(t *testing.T) {
	builder := flatbuffers.NewBuilder(256)

	if _, err := encodeGeometry(nil, builder); !errors.Is(err, errNilGeometry) {
		t.Errorf("expected errNilGeometry, got %v", err)
	}
	if _, err := encodeGeometry(orb.Ring{{0, 0}, {1, 1}}, builder); !errors.Is(err, errUnsupportedGeometry) {
		t.Errorf("expected errUnsupportedGeometry, got %v", err)
	}
	coll := orb.Collection{orb.Point{1, 2}, nil}
	if _, err := encodeGeometry(coll, builder); !errors.Is(err, errNilGeometry) {
		t.Errorf("expected errNilGeometry for nil collection member, got %v", err)
	}
}

func TestPointsToXY(t *testing.T) {
	xy := pointsToXY([]orb.Point{{1, 2}, {3, 4}, {5, 6}})

	expected := []float64{1, 2, 3, 4, 5, 6}
	if len(xy) != len(expected) {
		t.Fatalf("expected %d coordinates, got %d", len(expected), len(xy))
	}
	for i, v := range expected {
		if xy[i] != v {
			t.Errorf("at index %d: expected %f, got %f", i, v, xy[i])
		}
	}
}

func TestPolygonToXYEnds(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
	}

	xy, ends := polygonToXYEnds(poly)

	if len(xy) != 20 {
		t.Errorf("expected 20 coordinates, got %d", len(xy))
	}
	if len(ends) != 2 {
		t.Fatalf("expected 2 ends, got %d", len(ends))
	}
	if ends[0] != 5 || ends[1] != 10 {
		t.Errorf("expected ends [5 10], got %v", ends)
	}
}

func TestIndexSize(t *testing.T) {
	tests := []struct {
		count    uint64
		nodeSize uint16
		expected int
	}{
		{0, 16, 0},
		{10, 0, 0},
		{1, 16, 2 * nodeItemSize},
		{16, 16, 17 * nodeItemSize},
		{17, 16, (17 + 2 + 1) * nodeItemSize},
		{100, 16, (100 + 7 + 1) * nodeItemSize},
	}

	for _, tt := range tests {
		if got := indexSize(tt.count, tt.nodeSize); got != tt.expected {
			t.Errorf("indexSize(%d, %d): expected %d, got %d", tt.count, tt.nodeSize, tt.expected, got)
		}
	}
}
