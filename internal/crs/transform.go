// Package crs reconciles coordinate reference systems across feature
// collections and reprojects geometries between them.
package crs

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Transformer returns the projection taking coordinates in from to
// coordinates in to. A nil projection means the systems are identical.
// Transformations pass through WGS84 longitude/latitude.
func Transformer(from, to geodata.CRS) (orb.Projection, error) {
	if from.Equal(to) {
		return nil, nil
	}
	toHub, ok := toWGS84(from)
	if !ok {
		return nil, noTransform(from, to)
	}
	fromHub, ok := fromWGS84(to)
	if !ok {
		return nil, noTransform(from, to)
	}

	switch {
	case toHub == nil:
		return fromHub, nil
	case fromHub == nil:
		return toHub, nil
	}
	return func(p orb.Point) orb.Point {
		return fromHub(toHub(p))
	}, nil
}

// Supported reports whether geometries can be reprojected from or to c.
func Supported(c geodata.CRS) bool {
	_, ok := toWGS84(c)
	return ok
}

func noTransform(from, to geodata.CRS) *geodata.Error {
	return geodata.NewError(geodata.ErrCRSMismatch, geodata.FormatUnknown,
		"no transformation from %s to %s", from, to)
}

// toWGS84 returns the projection from c to WGS84; nil when c is WGS84.
func toWGS84(c geodata.CRS) (orb.Projection, bool) {
	switch c.Code {
	case 4326:
		return nil, true
	case 3857:
		return project.Mercator.ToWGS84, true
	}
	if zone, north, ok := geodata.UTMZone(c.Code); ok {
		return utm{zone: zone, north: north}.inverse, true
	}
	return nil, false
}

// fromWGS84 returns the projection from WGS84 to c; nil when c is WGS84.
func fromWGS84(c geodata.CRS) (orb.Projection, bool) {
	switch c.Code {
	case 4326:
		return nil, true
	case 3857:
		return project.WGS84.ToMercator, true
	}
	if zone, north, ok := geodata.UTMZone(c.Code); ok {
		return utm{zone: zone, north: north}.forward, true
	}
	return nil, false
}

// Reproject returns a copy of g with proj applied to every coordinate.
// g itself is never modified. A nil proj returns g unchanged.
func Reproject(g orb.Geometry, proj orb.Projection) orb.Geometry {
	if proj == nil || g == nil {
		return g
	}
	return project.Geometry(orb.Clone(g), proj)
}

// ReprojectCollection returns a copy of fc expressed in target. Attribute
// maps are shared with fc.
func ReprojectCollection(fc *geodata.FeatureCollection, target geodata.CRS) (*geodata.FeatureCollection, error) {
	proj, err := Transformer(fc.CRS, target)
	if err != nil {
		return nil, err
	}
	out := &geodata.FeatureCollection{
		Name:     fc.Name,
		CRS:      target,
		Schema:   fc.Schema,
		Features: make([]*geodata.Feature, len(fc.Features)),
	}
	for i, f := range fc.Features {
		out.Features[i] = &geodata.Feature{
			Geometry:   Reproject(f.Geometry, proj),
			Properties: f.Properties,
		}
	}
	return out, nil
}
