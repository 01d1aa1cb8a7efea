// Package schema computes the attribute schema shared by merged collections.
package schema

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

type observation struct {
	input int
	typ   geodata.ValueType
}

// Unify returns the ordered union of schemas, first-seen across inputs.
// Integer and float columns combine to float. Any other type conflict
// widens the column to string and produces a SchemaTypeWidened warning.
// Nil schemas are treated as empty.
func Unify(schemas []*geodata.Schema) (*geodata.Schema, geodata.Warnings) {
	unified := &geodata.Schema{}
	seen := make(map[string][]observation)

	for i, s := range schemas {
		for _, f := range s.Fields() {
			unified.Add(f.Name, f.Type)
			if f.Type != geodata.TypeNull {
				seen[f.Name] = append(seen[f.Name], observation{input: i, typ: f.Type})
			}
		}
	}

	var warnings geodata.Warnings
	for _, f := range unified.Fields() {
		if f.Type != geodata.TypeString {
			continue
		}
		obs := seen[f.Name]
		conflict := -1
		for _, o := range obs {
			if o.typ != obs[0].typ {
				conflict = o.input
				break
			}
		}
		if conflict < 0 {
			continue
		}
		w := geodata.Warn(geodata.WarnSchemaTypeWidened, "attribute %q widened to string: %s", f.Name, describe(obs))
		w.Input = conflict
		warnings = append(warnings, w)
	}
	return unified, warnings
}

func describe(obs []observation) string {
	parts := make([]string, len(obs))
	for i, o := range obs {
		parts[i] = fmt.Sprintf("%s (input #%d)", o.typ, o.input+1)
	}
	return strings.Join(parts, ", ")
}

// Apply returns copies of features carrying exactly the keys of s, with
// values coerced to the column types and absent keys set to nil. Geometries
// are shared; the input features are not modified.
func Apply(features []*geodata.Feature, s *geodata.Schema) []*geodata.Feature {
	fields := s.Fields()
	out := make([]*geodata.Feature, len(features))
	for i, f := range features {
		props := make(geojson.Properties, len(fields))
		for _, field := range fields {
			props[field.Name] = geodata.Coerce(f.Properties[field.Name], field.Type)
		}
		out[i] = &geodata.Feature{Geometry: f.Geometry, Properties: props}
	}
	return out
}
