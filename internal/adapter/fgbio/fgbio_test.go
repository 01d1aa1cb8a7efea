package fgbio

import (
	"errors"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

func gridCollection(t testing.TB, n int) *geodata.FeatureCollection {
	t.Helper()
	fc := geodata.NewFeatureCollection("grid", geodata.WGS84())
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			err := fc.Append(orb.Point{float64(x), float64(y)},
				geodata.Attr{Name: "x", Value: x},
				geodata.Attr{Name: "y", Value: y},
			)
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	fc.Normalize()
	return fc
}

func TestWrite_MagicBytes(t *testing.T) {
	data, _, err := Adapter{}.Write(gridCollection(t, 2), geodata.WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	expectedMagic := []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62}
	for i, b := range expectedMagic {
		if data[i] != b {
			t.Errorf("magic byte %d: expected 0x%02x, got 0x%02x", i, b, data[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	fc := geodata.NewFeatureCollection("mixed", geodata.EPSG(3857))
	geoms := []orb.Geometry{
		orb.Point{1, 2},
		orb.MultiPoint{{1, 2}, {3, 4}},
		orb.LineString{{0, 0}, {1, 1}, {2, 0}},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}, {7, 5}}},
		orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}},
		},
		orb.MultiPolygon{
			{{{20, 20}, {30, 20}, {30, 30}, {20, 20}}},
			{{{40, 40}, {50, 40}, {50, 50}, {40, 40}}},
		},
		orb.Collection{orb.Point{9, 9}, orb.LineString{{0, 0}, {9, 9}}},
	}
	for i, g := range geoms {
		attrs := []geodata.Attr{
			{Name: "id", Value: i},
			{Name: "name", Value: g.GeoJSONType()},
			{Name: "ratio", Value: float64(i) / 4},
			{Name: "odd", Value: i%2 == 1},
		}
		if i == 3 {
			attrs = attrs[:2]
		}
		if err := fc.Append(g, attrs...); err != nil {
			t.Fatal(err)
		}
	}
	fc.Normalize()

	data, warnings, err := Adapter{}.Write(fc, geodata.WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}

	back, _, err := Adapter{}.Read(data, geodata.ReadOptions{Name: "ignored.fgb"})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.Name != "mixed" {
		t.Errorf("expected layer name mixed, got %q", back.Name)
	}
	if !back.CRS.Equal(fc.CRS) {
		t.Errorf("expected %s, got %s", fc.CRS, back.CRS)
	}
	if !back.Schema.Equal(fc.Schema) {
		t.Errorf("schema mismatch: %s vs %s", back.Schema, fc.Schema)
	}
	if back.Len() != fc.Len() {
		t.Fatalf("expected %d features, got %d", fc.Len(), back.Len())
	}
	for i, f := range fc.Features {
		got := back.Features[i]
		if !orb.Equal(got.Geometry, f.Geometry) {
			t.Errorf("feature %d: expected %v, got %v", i, f.Geometry, got.Geometry)
		}
		for _, name := range fc.Schema.Names() {
			if got.Value(name) != f.Value(name) {
				t.Errorf("feature %d %s: expected %#v, got %#v", i, name, f.Value(name), got.Value(name))
			}
		}
	}
}

func TestRoundTrip_WithIndex(t *testing.T) {
	fc := gridCollection(t, 10)
	data, _, err := Adapter{}.Write(fc, geodata.WriteOptions{IncludeIndex: true})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	plain, _, err := Adapter{}.Write(fc, geodata.WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(data) <= len(plain) {
		t.Errorf("expected the indexed file (%d bytes) to be larger than the plain one (%d bytes)", len(data), len(plain))
	}

	back, _, err := Adapter{}.Read(data, geodata.ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.Len() != fc.Len() {
		t.Fatalf("expected %d features, got %d", fc.Len(), back.Len())
	}

	// Indexed files store features in Hilbert order.
	seen := make(map[orb.Point]bool)
	for _, f := range back.Features {
		p := f.Geometry.(orb.Point)
		if f.Value("x") != int64(p[0]) || f.Value("y") != int64(p[1]) {
			t.Errorf("attributes %v do not match point %v", f.Properties, p)
		}
		seen[p] = true
	}
	if len(seen) != fc.Len() {
		t.Errorf("expected %d distinct points, got %d", fc.Len(), len(seen))
	}
}

func TestSearch(t *testing.T) {
	data, _, err := Adapter{}.Write(gridCollection(t, 10), geodata.WriteOptions{IncludeIndex: true})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	bound := orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{4, 4}}
	results, err := Search(data, bound, geodata.ReadOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Len() == 0 {
		t.Fatal("expected some results from search")
	}
	for _, f := range results.Features {
		if !bound.Contains(f.Geometry.(orb.Point)) {
			t.Errorf("point %v outside the query bound", f.Geometry)
		}
	}
	if results.Schema.Len() != 2 {
		t.Errorf("expected schema x, y; got %s", results.Schema)
	}
}

func TestSearch_NoIndex(t *testing.T) {
	data, _, err := Adapter{}.Write(gridCollection(t, 2), geodata.WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, err = Search(data, orb.Bound{Max: orb.Point{10, 10}}, geodata.ReadOptions{})
	if !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
}

func TestWrite_EmptyCollection(t *testing.T) {
	fc := geodata.NewFeatureCollection("", geodata.CRS{})
	fc.Schema.Add("id", geodata.TypeInteger)

	data, _, err := Adapter{}.Write(fc, geodata.WriteOptions{IncludeIndex: true})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	back, _, err := Adapter{}.Read(data, geodata.ReadOptions{Name: "dir/empty.fgb"})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.Len() != 0 || back.Schema.Len() != 1 {
		t.Errorf("unexpected collection: %d features, schema %s", back.Len(), back.Schema)
	}
	if back.Name != geodata.DefaultLayerName {
		t.Errorf("expected default layer name, got %q", back.Name)
	}
	if !back.CRS.IsUnknown() {
		t.Errorf("expected unknown CRS, got %s", back.CRS)
	}
}

func TestWrite_CustomCRS(t *testing.T) {
	wkt := `PROJCS["Local grid",GEOGCS["GCS_Local"],PROJECTION["Transverse_Mercator"]]`
	fc := geodata.NewFeatureCollection("local", geodata.CRS{Name: "Local grid", WKT: wkt})
	if err := fc.Append(orb.Point{1, 2}); err != nil {
		t.Fatal(err)
	}

	data, _, err := Adapter{}.Write(fc, geodata.WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	back, _, err := Adapter{}.Read(data, geodata.ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.CRS.WKT != wkt {
		t.Errorf("expected WKT to survive, got %+v", back.CRS)
	}
}

func TestRead_Malformed(t *testing.T) {
	valid, _, err := Adapter{}.Write(gridCollection(t, 2), geodata.WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"not flatgeobuf", []byte("not a flatgeobuf file")},
		{"truncated header", valid[:14]},
		{"truncated feature", valid[:len(valid)-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Adapter{}.Read(tt.data, geodata.ReadOptions{})
			if !errors.Is(err, geodata.ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestRoundTrip_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("points and attributes survive a write/read cycle", prop.ForAll(
		func(n int, seed int64, flag bool) bool {
			fc := geodata.NewFeatureCollection("prop", geodata.WGS84())
			for i := 0; i < n; i++ {
				v := seed + int64(i)
				err := fc.Append(orb.Point{float64(v%360) - 180, float64(v%180) - 90},
					geodata.Attr{Name: "seq", Value: v},
					geodata.Attr{Name: "flag", Value: flag != (i%2 == 0)},
				)
				if err != nil {
					return false
				}
			}
			fc.Normalize()

			data, _, err := Adapter{}.Write(fc, geodata.WriteOptions{})
			if err != nil {
				return false
			}
			back, _, err := Adapter{}.Read(data, geodata.ReadOptions{})
			if err != nil || back.Len() != n {
				return false
			}
			for i, f := range fc.Features {
				if !orb.Equal(f.Geometry, back.Features[i].Geometry) ||
					f.Value("seq") != back.Features[i].Value("seq") ||
					f.Value("flag") != back.Features[i].Value("flag") {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.Int64Range(-1<<40, 1<<40),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestSearch_MatchesFullScan(t *testing.T) {
	fc := gridCollection(t, 8)
	data, _, err := Adapter{}.Write(fc, geodata.WriteOptions{IncludeIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	bound := orb.Bound{Min: orb.Point{1.5, -0.5}, Max: orb.Point{3.5, 7.5}}

	found, err := Search(data, bound, geodata.ReadOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var got, want []string
	for _, f := range found.Features {
		got = append(got, geodata.FormatValue(f.Geometry.(orb.Point)[0])+","+geodata.FormatValue(f.Geometry.(orb.Point)[1]))
	}
	for _, f := range fc.Features {
		if p := f.Geometry.(orb.Point); bound.Contains(p) {
			want = append(want, geodata.FormatValue(p[0])+","+geodata.FormatValue(p[1]))
		}
	}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
