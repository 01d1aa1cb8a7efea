package geodata

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var errEmptyGeometry = errors.New("empty geometry")

// NormalizeGeometry validates g and converts orb-only shapes into the
// supported variants: a Ring becomes a Polygon and a Bound its rectangle.
func NormalizeGeometry(g orb.Geometry) (orb.Geometry, error) {
	switch v := g.(type) {
	case nil:
		return nil, errors.New("nil geometry")
	case orb.Point:
		return v, nil
	case orb.MultiPoint:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: MultiPoint", errEmptyGeometry)
		}
		return v, nil
	case orb.LineString:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: LineString", errEmptyGeometry)
		}
		return v, nil
	case orb.MultiLineString:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: MultiLineString", errEmptyGeometry)
		}
		for _, ls := range v {
			if len(ls) == 0 {
				return nil, fmt.Errorf("%w: MultiLineString part", errEmptyGeometry)
			}
		}
		return v, nil
	case orb.Ring:
		return NormalizeGeometry(orb.Polygon{v})
	case orb.Polygon:
		if err := checkPolygon(v); err != nil {
			return nil, err
		}
		return v, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: MultiPolygon", errEmptyGeometry)
		}
		for _, p := range v {
			if err := checkPolygon(p); err != nil {
				return nil, err
			}
		}
		return v, nil
	case orb.Collection:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: GeometryCollection", errEmptyGeometry)
		}
		out := make(orb.Collection, len(v))
		for i, child := range v {
			n, err := NormalizeGeometry(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case orb.Bound:
		return boundToPolygon(v), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: Polygon", errEmptyGeometry)
	}
	for _, r := range p {
		if len(r) == 0 {
			return fmt.Errorf("%w: Polygon ring", errEmptyGeometry)
		}
	}
	return nil
}

func boundToPolygon(b orb.Bound) orb.Polygon {
	return orb.Polygon{
		orb.Ring{
			{b.Min[0], b.Min[1]},
			{b.Max[0], b.Min[1]},
			{b.Max[0], b.Max[1]},
			{b.Min[0], b.Max[1]},
			{b.Min[0], b.Min[1]},
		},
	}
}

// GeometryTypes returns the distinct GeoJSON type names of the features'
// geometries, in first-seen order.
func GeometryTypes(features []*Feature) []string {
	seen := make(map[string]bool)
	var types []string
	for _, f := range features {
		name := f.Geometry.GeoJSONType()
		if !seen[name] {
			seen[name] = true
			types = append(types, name)
		}
	}
	return types
}
