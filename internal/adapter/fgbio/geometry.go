package fgbio

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// geometryType returns the FlatGeobuf type tag of g.
func geometryType(g orb.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerType is the header geometry type: the shared type of every
// geometry, Unknown when they differ or there are none.
func layerType(geoms []orb.Geometry) flattypes.GeometryType {
	if len(geoms) == 0 {
		return flattypes.GeometryTypeUnknown
	}
	t := geometryType(geoms[0])
	for _, g := range geoms[1:] {
		if geometryType(g) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

// encodeGeometry builds the FlatGeobuf geometry table for g.
func encodeGeometry(g orb.Geometry, builder *flatbuffers.Builder) (*writer.Geometry, error) {
	fg := writer.NewGeometry(builder)

	switch v := g.(type) {
	case orb.Point:
		fg.SetType(flattypes.GeometryTypePoint)
		fg.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		fg.SetType(flattypes.GeometryTypeMultiPoint)
		fg.SetXY(pointsToXY(v))
	case orb.LineString:
		fg.SetType(flattypes.GeometryTypeLineString)
		fg.SetXY(pointsToXY(v))
	case orb.MultiLineString:
		fg.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := partsToXYEnds(parts)
		fg.SetXY(xy)
		fg.SetEnds(ends)
	case orb.Polygon:
		fg.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		fg.SetXY(xy)
		fg.SetEnds(ends)
	case orb.MultiPolygon:
		fg.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonToXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		fg.SetParts(parts)
	case orb.Collection:
		fg.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			cg, err := encodeGeometry(child, builder)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *cg)
		}
		fg.SetParts(parts)
	case nil:
		return nil, errNilGeometry
	default:
		return nil, fmt.Errorf("%w %T", errUnsupportedGeometry, g)
	}
	return fg, nil
}

// decodeGeometry converts a FlatGeobuf geometry. Geometries written
// without a type tag take the layer type from the header.
func decodeGeometry(fg *flattypes.Geometry, layer flattypes.GeometryType) (orb.Geometry, error) {
	typ := fg.Type()
	if typ == flattypes.GeometryTypeUnknown {
		typ = layer
	}

	switch typ {
	case flattypes.GeometryTypePoint:
		if fg.XyLength() < 2 {
			return nil, errEmptyCoordinates
		}
		return orb.Point{fg.Xy(0), fg.Xy(1)}, nil
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsFromXY(fg, 0, fg.XyLength()/2)), nil
	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsFromXY(fg, 0, fg.XyLength()/2)), nil
	case flattypes.GeometryTypeMultiLineString:
		parts := partsFromXYEnds(fg)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls, nil
	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(fg), nil
	case flattypes.GeometryTypeMultiPolygon:
		n := fg.PartsLength()
		if n == 0 {
			return orb.MultiPolygon{polygonFromXYEnds(fg)}, nil
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if fg.Parts(&part, i) {
				mp = append(mp, polygonFromXYEnds(&part))
			}
		}
		return mp, nil
	case flattypes.GeometryTypeGeometryCollection:
		n := fg.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if !fg.Parts(&part, i) {
				continue
			}
			child, err := decodeGeometry(&part, flattypes.GeometryTypeUnknown)
			if err != nil {
				return nil, err
			}
			coll = append(coll, child)
		}
		return coll, nil
	}
	return nil, fmt.Errorf("%w %s", errUnsupportedGeometry, flattypes.EnumNamesGeometryType[typ])
}

func pointsToXY(points []orb.Point) []float64 {
	xy := make([]float64, 0, len(points)*2)
	for _, p := range points {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// partsToXYEnds flattens parts into one coordinate array plus the
// cumulative point count at the end of each part.
func partsToXYEnds(parts [][]orb.Point) ([]float64, []uint32) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))
	cumulative := uint32(0)
	for _, p := range parts {
		for _, pt := range p {
			xy = append(xy, pt[0], pt[1])
		}
		cumulative += uint32(len(p))
		ends = append(ends, cumulative)
	}
	return xy, ends
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return partsToXYEnds(parts)
}

// pointsFromXY reads points [start, end) of the coordinate array.
func pointsFromXY(fg *flattypes.Geometry, start, end int) []orb.Point {
	n := fg.XyLength() / 2
	end = min(end, n)
	if start >= end {
		return nil
	}
	points := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		points = append(points, orb.Point{fg.Xy(2 * i), fg.Xy(2*i + 1)})
	}
	return points
}

// partsFromXYEnds splits the coordinate array at the ends offsets. Without
// ends the whole array is one part.
func partsFromXYEnds(fg *flattypes.Geometry) [][]orb.Point {
	n := fg.EndsLength()
	if n == 0 {
		if pts := pointsFromXY(fg, 0, fg.XyLength()/2); len(pts) > 0 {
			return [][]orb.Point{pts}
		}
		return nil
	}
	parts := make([][]orb.Point, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := int(fg.Ends(i))
		parts = append(parts, pointsFromXY(fg, start, end))
		start = end
	}
	return parts
}

func polygonFromXYEnds(fg *flattypes.Geometry) orb.Polygon {
	parts := partsFromXYEnds(fg)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}
