package shpio

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/archive"
	"github.com/tingold/orb-geoconv/internal/crs"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Write packs fc into a zip holding <layer>.shp, .shx, .dbf, .cpg and, when
// the CRS can be described, .prj. Every feature must map onto the same
// shape type.
func (Adapter) Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error) {
	opts = opts.WithDefaults(fc)

	typ, err := shapeTypeOf(fc.Features)
	if err != nil {
		return nil, nil, err
	}

	sw := newShapeWriter(typ, fc.Bound())
	for i, f := range fc.Features {
		if err := sw.add(f.Geometry); err != nil {
			return nil, nil, geodata.NewError(geodata.ErrIncompatibleGeometryTypes, geodata.FormatShapefile,
				"feature %d", i).Wrap(err)
		}
	}
	shp, shx := sw.finish()

	dw := newDBFWriter(fc)
	dbf, err := dw.encode(fc.Features)
	if err != nil {
		return nil, nil, err
	}

	layer := fileName(opts.LayerName)
	entries := []archive.Entry{
		{Name: layer + ".shp", Data: shp},
		{Name: layer + ".shx", Data: shx},
		{Name: layer + ".dbf", Data: dbf},
		{Name: layer + ".cpg", Data: []byte("UTF-8")},
	}
	warnings := dw.warnings
	if prj, ok := crs.FormatPRJ(fc.CRS); ok {
		entries = append(entries, archive.Entry{Name: layer + ".prj", Data: []byte(prj)})
	} else if !fc.CRS.IsUnknown() {
		warnings = append(warnings, geodata.Warn(geodata.WarnCRSDropped,
			"no WKT known for %s, written without .prj", fc.CRS))
	}

	out, err := archive.Pack(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("shpio: %w", err)
	}
	return out, warnings, nil
}

// shapeTypeOf picks the one shape type able to hold every geometry.
// Points mixed with multipoints are written as multipoints.
func shapeTypeOf(features []*geodata.Feature) (ShapeType, error) {
	typ := ShapeNull
	for i, f := range features {
		var t ShapeType
		switch f.Geometry.(type) {
		case orb.Point:
			t = ShapePoint
		case orb.MultiPoint:
			t = ShapeMultiPoint
		case orb.LineString, orb.MultiLineString:
			t = ShapePolyLine
		case orb.Polygon, orb.MultiPolygon:
			t = ShapePolygon
		default:
			return 0, geodata.NewError(geodata.ErrIncompatibleGeometryTypes, geodata.FormatShapefile,
				"feature %d is a %T, which shapefiles cannot hold", i, f.Geometry)
		}

		switch {
		case typ == ShapeNull || typ == t:
			typ = t
		case (typ == ShapePoint && t == ShapeMultiPoint) || (typ == ShapeMultiPoint && t == ShapePoint):
			typ = ShapeMultiPoint
		default:
			return 0, geodata.NewError(geodata.ErrIncompatibleGeometryTypes, geodata.FormatShapefile,
				"feature %d is %s in a %s layer; found %s",
				i, f.Geometry.GeoJSONType(), typ, strings.Join(geodata.GeometryTypes(features), ", "))
		}
	}
	return typ, nil
}

// fileName makes a layer name usable as an archive member name.
func fileName(layer string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(layer))
	if name == "" || name == "." || name == ".." {
		return geodata.DefaultLayerName
	}
	return name
}
