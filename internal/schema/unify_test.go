package schema

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

func TestUnify(t *testing.T) {
	tests := []struct {
		name     string
		schemas  []*geodata.Schema
		expected []geodata.Field
		widened  bool
	}{
		{
			name: "disjoint columns keep first-seen order",
			schemas: []*geodata.Schema{
				geodata.NewSchema(geodata.Field{Name: "name", Type: geodata.TypeString}),
				geodata.NewSchema(geodata.Field{Name: "population", Type: geodata.TypeInteger}, geodata.Field{Name: "name", Type: geodata.TypeString}),
			},
			expected: []geodata.Field{{Name: "name", Type: geodata.TypeString}, {Name: "population", Type: geodata.TypeInteger}},
		},
		{
			name: "integer and float combine silently",
			schemas: []*geodata.Schema{
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeInteger}),
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeFloat}),
			},
			expected: []geodata.Field{{Name: "v", Type: geodata.TypeFloat}},
		},
		{
			name: "integer and boolean widen to string",
			schemas: []*geodata.Schema{
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeInteger}),
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeBoolean}),
			},
			expected: []geodata.Field{{Name: "v", Type: geodata.TypeString}},
			widened:  true,
		},
		{
			name: "null column takes the other type",
			schemas: []*geodata.Schema{
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeNull}),
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeBoolean}),
			},
			expected: []geodata.Field{{Name: "v", Type: geodata.TypeBoolean}},
		},
		{
			name: "strings everywhere are not a conflict",
			schemas: []*geodata.Schema{
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeString}),
				nil,
				geodata.NewSchema(geodata.Field{Name: "v", Type: geodata.TypeString}),
			},
			expected: []geodata.Field{{Name: "v", Type: geodata.TypeString}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := Unify(tt.schemas)
			if !got.Equal(geodata.NewSchema(tt.expected...)) {
				t.Errorf("expected %v, got %s", tt.expected, got)
			}
			if warnings.Has(geodata.WarnSchemaTypeWidened) != tt.widened {
				t.Errorf("unexpected warnings %v", warnings)
			}
		})
	}
}

func TestUnify_WarningNamesConflictingInput(t *testing.T) {
	_, warnings := Unify([]*geodata.Schema{
		geodata.NewSchema(geodata.Field{Name: "code", Type: geodata.TypeInteger}),
		geodata.NewSchema(geodata.Field{Name: "other", Type: geodata.TypeInteger}),
		geodata.NewSchema(geodata.Field{Name: "code", Type: geodata.TypeString}),
	})
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if warnings[0].Input != 2 {
		t.Errorf("expected input 2, got %d", warnings[0].Input)
	}
}

func TestApply(t *testing.T) {
	unified := geodata.NewSchema(
		geodata.Field{Name: "name", Type: geodata.TypeString},
		geodata.Field{Name: "v", Type: geodata.TypeFloat},
		geodata.Field{Name: "flag", Type: geodata.TypeString},
	)
	src := &geodata.Feature{
		Geometry:   orb.Point{1, 2},
		Properties: geojson.Properties{"v": int64(3), "flag": true, "dropped": "x"},
	}

	out := Apply([]*geodata.Feature{src}, unified)
	if len(out) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(out))
	}
	props := out[0].Properties
	if len(props) != 3 {
		t.Errorf("expected exactly the unified keys, got %v", props)
	}
	if v, ok := props["name"]; !ok || v != nil {
		t.Errorf("expected null name, got %v", v)
	}
	if props["v"] != float64(3) {
		t.Errorf("expected float 3, got %#v", props["v"])
	}
	if props["flag"] != "true" {
		t.Errorf("expected string flag, got %#v", props["flag"])
	}
	if src.Properties["v"] != int64(3) {
		t.Error("source feature was modified")
	}
}
