// Package geodata holds the in-memory representation shared by every
// format adapter: geometries, attribute schemas, feature collections,
// coordinate reference systems and the error taxonomy.
package geodata

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Attr is one attribute of a feature being built.
type Attr struct {
	Name  string
	Value any
}

// Feature is one geometry plus its attributes. Properties holds every key
// of the owning collection's schema; absent attributes are nil.
type Feature struct {
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Value returns the attribute called name, nil when absent.
func (f *Feature) Value(name string) any {
	return f.Properties[name]
}

// FeatureCollection is an ordered list of features sharing one CRS and
// one schema.
type FeatureCollection struct {
	Name     string
	CRS      CRS
	Schema   *Schema
	Features []*Feature
}

// NewFeatureCollection creates an empty collection.
func NewFeatureCollection(name string, crs CRS) *FeatureCollection {
	return &FeatureCollection{
		Name:   name,
		CRS:    crs,
		Schema: &Schema{},
	}
}

// Append validates g, registers the attributes in the schema (promoting
// column types as needed) and appends a feature. Call Normalize once all
// features are appended.
func (fc *FeatureCollection) Append(g orb.Geometry, attrs ...Attr) error {
	geom, err := NormalizeGeometry(g)
	if err != nil {
		return err
	}
	props := make(geojson.Properties, len(attrs))
	for _, a := range attrs {
		v := Normalize(a.Value)
		t, _ := TypeOf(v)
		fc.Schema.Add(a.Name, t)
		props[a.Name] = v
	}
	fc.Features = append(fc.Features, &Feature{Geometry: geom, Properties: props})
	return nil
}

// Normalize makes every feature carry every schema key, coercing values to
// their column type and filling absent keys with nil.
func (fc *FeatureCollection) Normalize() {
	fields := fc.Schema.Fields()
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = make(geojson.Properties, len(fields))
		}
		for _, field := range fields {
			f.Properties[field.Name] = Coerce(f.Properties[field.Name], field.Type)
		}
	}
}

// Len returns the number of features.
func (fc *FeatureCollection) Len() int {
	return len(fc.Features)
}

// Geometries returns the feature geometries in order.
func (fc *FeatureCollection) Geometries() []orb.Geometry {
	out := make([]orb.Geometry, len(fc.Features))
	for i, f := range fc.Features {
		out[i] = f.Geometry
	}
	return out
}

// Bound returns the combined bounding box of all geometries.
func (fc *FeatureCollection) Bound() orb.Bound {
	if len(fc.Features) == 0 {
		return orb.Bound{}
	}
	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// Values returns the attribute values of f in schema order.
func (fc *FeatureCollection) Values(f *Feature) []any {
	names := fc.Schema.Names()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = f.Properties[n]
	}
	return out
}
