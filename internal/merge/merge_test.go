package merge

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

func collection(t testing.TB, name string, crs geodata.CRS, rows ...[]geodata.Attr) *geodata.FeatureCollection {
	t.Helper()
	fc := geodata.NewFeatureCollection(name, crs)
	for i, attrs := range rows {
		if err := fc.Append(orb.Point{float64(i), float64(i)}, attrs...); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	fc.Normalize()
	return fc
}

func attrs(kv ...any) []geodata.Attr {
	out := make([]geodata.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, geodata.Attr{Name: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func TestMerge_NamePopulation(t *testing.T) {
	a := collection(t, "a", geodata.WGS84(), attrs("name", "A"), attrs("name", "B"))
	b := collection(t, "b", geodata.WGS84(), attrs("population", 1200))

	out, warnings, err := Merge([]Input{{Name: "a.geojson", Collection: a}, {Name: "b.geojson", Collection: b}}, Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 features, got %d", out.Len())
	}
	if got := out.Schema.Names(); len(got) != 2 || got[0] != "name" || got[1] != "population" {
		t.Errorf("unexpected schema %v", got)
	}

	nullPopulation, nullName := 0, 0
	for _, f := range out.Features {
		if len(f.Properties) != 2 {
			t.Errorf("expected both keys, got %v", f.Properties)
		}
		if v, ok := f.Properties["population"]; ok && v == nil {
			nullPopulation++
		}
		if v, ok := f.Properties["name"]; ok && v == nil {
			nullName++
		}
	}
	if nullPopulation != 2 || nullName != 1 {
		t.Errorf("expected 2 null populations and 1 null name, got %d and %d", nullPopulation, nullName)
	}
	if out.Features[2].Value("population") != int64(1200) {
		t.Errorf("expected input order to be preserved, got %v", out.Features[2].Properties)
	}
}

func TestMerge_Empty(t *testing.T) {
	_, _, err := Merge(nil, Options{})
	if !errors.Is(err, geodata.ErrEmptyInputSet) {
		t.Errorf("expected ErrEmptyInputSet, got %v", err)
	}
}

func TestMerge_FailedInputAborts(t *testing.T) {
	good := collection(t, "a", geodata.WGS84(), attrs("id", 1))
	parseErr := geodata.Malformed(geodata.FormatGeoJSON, "unexpected end of JSON input")

	_, _, err := Merge([]Input{
		{Name: "a.geojson", Collection: good},
		{Name: "b.geojson", Err: parseErr},
	}, Options{})
	if !errors.Is(err, geodata.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	var gerr *geodata.Error
	if !errors.As(err, &gerr) || gerr.Input != 1 || gerr.Name != "b.geojson" {
		t.Errorf("expected the error to name input 1, got %v", err)
	}
}

func TestMerge_Reprojects(t *testing.T) {
	a := collection(t, "a", geodata.WebMercator(), attrs("id", 1))
	b := collection(t, "b", geodata.WGS84(), attrs("id", 2), attrs("id", 3))

	out, _, err := Merge([]Input{{Collection: a}, {Collection: b}}, Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !out.CRS.Equal(geodata.WebMercator()) {
		t.Errorf("unexpected CRS %s", out.CRS)
	}
	p := out.Features[2].Geometry.(orb.Point)
	if p[0] < 100000 {
		t.Errorf("expected second input to be projected to metres, got %v", p)
	}
	if b.Features[1].Geometry.(orb.Point) != (orb.Point{1, 1}) {
		t.Error("input collection was modified")
	}
}

func TestMerge_CRSMismatch(t *testing.T) {
	a := collection(t, "a", geodata.WGS84(), attrs("id", 1))
	b := collection(t, "b", geodata.CRS{}, attrs("id", 2))

	_, _, err := Merge([]Input{{Name: "a", Collection: a}, {Name: "b", Collection: b}}, Options{})
	if !errors.Is(err, geodata.ErrCRSMismatch) {
		t.Fatalf("expected ErrCRSMismatch, got %v", err)
	}
	var gerr *geodata.Error
	if !errors.As(err, &gerr) || gerr.Stage != geodata.StageMergeFailed || gerr.Name != "b" {
		t.Errorf("unexpected error details %+v", gerr)
	}
}

func TestMerge_MixedGeometriesAllowed(t *testing.T) {
	a := collection(t, "a", geodata.WGS84(), attrs("id", 1))
	b := geodata.NewFeatureCollection("b", geodata.WGS84())
	if err := b.Append(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}); err != nil {
		t.Fatal(err)
	}
	b.Normalize()

	out, _, err := Merge([]Input{{Collection: a}, {Collection: b}}, Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got := geodata.GeometryTypes(out.Features); len(got) != 2 {
		t.Errorf("expected two geometry types, got %v", got)
	}
}

func TestMerge_DropDuplicates(t *testing.T) {
	a := collection(t, "a", geodata.WGS84(), attrs("id", 1), attrs("id", 2))
	b := collection(t, "b", geodata.WGS84(), attrs("id", 1))

	out, warnings, err := Merge([]Input{{Collection: a}, {Collection: b}}, Options{DropDuplicates: true})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if out.Len() != 2 {
		t.Errorf("expected 2 features, got %d", out.Len())
	}
	if !warnings.Has(geodata.WarnDuplicatesDropped) {
		t.Errorf("expected DuplicatesDropped warning, got %v", warnings)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	a := collection(t, "a", geodata.WGS84(), attrs("id", 1, "name", "x"), attrs("id", 2))

	out, warnings, err := Merge([]Input{{Collection: a}}, Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	if !out.Schema.Equal(a.Schema) || !out.CRS.Equal(a.CRS) {
		t.Errorf("expected schema and CRS to be preserved")
	}
	if !sameContent(out, a) {
		t.Error("expected content-equal collection")
	}
}

// fingerprints returns the sorted feature fingerprints of fc over the
// sorted schema names, so that column order does not matter.
func fingerprints(fc *geodata.FeatureCollection) []geodata.Fingerprint {
	names := fc.Schema.Names()
	sort.Strings(names)
	out := make([]geodata.Fingerprint, len(fc.Features))
	for i, f := range fc.Features {
		out[i] = geodata.FeatureFingerprint(f, names)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func sameContent(a, b *geodata.FeatureCollection) bool {
	fa, fb := fingerprints(a), fingerprints(b)
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}

// randomCollection builds a WGS84 point collection with columns drawn from
// a small pool so that inputs overlap partially.
func randomCollection(r *rand.Rand, name string) *geodata.FeatureCollection {
	pool := []string{"id", "name", "score", "flag", "note"}
	fc := geodata.NewFeatureCollection(name, geodata.WGS84())
	n := 1 + r.Intn(5)
	for i := 0; i < n; i++ {
		var row []geodata.Attr
		for _, col := range pool {
			if r.Intn(2) == 0 {
				continue
			}
			var v any
			switch col {
			case "id":
				v = r.Intn(100)
			case "score":
				v = r.Float64()
			case "flag":
				v = r.Intn(2) == 0
			default:
				v = fmt.Sprintf("%s-%d", col, r.Intn(10))
			}
			row = append(row, geodata.Attr{Name: col, Value: v})
		}
		p := orb.Point{r.Float64()*360 - 180, r.Float64()*170 - 85}
		_ = fc.Append(p, row...)
	}
	fc.Normalize()
	return fc
}

func TestProperty_Merge(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merging [A, B] and [B, A] yields the same features", prop.ForAll(
		func(seed int64) bool {
			r := rand.New(rand.NewSource(seed))
			a, b := randomCollection(r, "a"), randomCollection(r, "b")
			ab, _, err := Merge([]Input{{Collection: a}, {Collection: b}}, Options{})
			if err != nil {
				return false
			}
			ba, _, err := Merge([]Input{{Collection: b}, {Collection: a}}, Options{})
			if err != nil {
				return false
			}
			return ab.Len() == a.Len()+b.Len() && sameContent(ab, ba)
		},
		gen.Int64(),
	))

	properties.Property("every merged feature carries exactly the unified keys", prop.ForAll(
		func(seed int64, n int) bool {
			r := rand.New(rand.NewSource(seed))
			inputs := make([]Input, n)
			for i := range inputs {
				inputs[i] = Input{Collection: randomCollection(r, fmt.Sprint(i))}
			}
			out, _, err := Merge(inputs, Options{})
			if err != nil {
				return false
			}
			names := out.Schema.Names()
			for _, f := range out.Features {
				if len(f.Properties) != len(names) {
					return false
				}
				for _, name := range names {
					if _, ok := f.Properties[name]; !ok {
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 5),
	))

	properties.Property("a merged collection has one CRS for every geometry", prop.ForAll(
		func(seed int64) bool {
			r := rand.New(rand.NewSource(seed))
			a := randomCollection(r, "a")
			a.CRS = geodata.WebMercator()
			b := randomCollection(r, "b")
			out, _, err := Merge([]Input{{Collection: a}, {Collection: b}}, Options{})
			if err != nil || !out.CRS.Equal(geodata.WebMercator()) {
				return false
			}
			for i, f := range out.Features[a.Len():] {
				want := project.WGS84.ToMercator(b.Features[i].Geometry.(orb.Point))
				if f.Geometry.(orb.Point) != want {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
