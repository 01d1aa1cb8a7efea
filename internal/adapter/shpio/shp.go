package shpio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ShapeType is the geometry type code of a .shp file or record.
type ShapeType int32

const (
	ShapeNull        ShapeType = 0
	ShapePoint       ShapeType = 1
	ShapePolyLine    ShapeType = 3
	ShapePolygon     ShapeType = 5
	ShapeMultiPoint  ShapeType = 8
	ShapePointZ      ShapeType = 11
	ShapePolyLineZ   ShapeType = 13
	ShapePolygonZ    ShapeType = 15
	ShapeMultiPointZ ShapeType = 18
	ShapePointM      ShapeType = 21
	ShapePolyLineM   ShapeType = 23
	ShapePolygonM    ShapeType = 25
	ShapeMultiPointM ShapeType = 28
	ShapeMultiPatch  ShapeType = 31
)

const (
	fileCode   = 9994
	version    = 1000
	headerSize = 100
	recordHead = 8
)

// base folds the Z and M variants onto their 2D shape type.
func (t ShapeType) base() ShapeType {
	switch t {
	case ShapePointZ, ShapePointM:
		return ShapePoint
	case ShapePolyLineZ, ShapePolyLineM:
		return ShapePolyLine
	case ShapePolygonZ, ShapePolygonM:
		return ShapePolygon
	case ShapeMultiPointZ, ShapeMultiPointM:
		return ShapeMultiPoint
	}
	return t
}

func (t ShapeType) String() string {
	switch t {
	case ShapeNull:
		return "Null"
	case ShapePoint:
		return "Point"
	case ShapePolyLine:
		return "PolyLine"
	case ShapePolygon:
		return "Polygon"
	case ShapeMultiPoint:
		return "MultiPoint"
	case ShapePointZ:
		return "PointZ"
	case ShapePolyLineZ:
		return "PolyLineZ"
	case ShapePolygonZ:
		return "PolygonZ"
	case ShapeMultiPointZ:
		return "MultiPointZ"
	case ShapePointM:
		return "PointM"
	case ShapePolyLineM:
		return "PolyLineM"
	case ShapePolygonM:
		return "PolygonM"
	case ShapeMultiPointM:
		return "MultiPointM"
	case ShapeMultiPatch:
		return "MultiPatch"
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

var errTruncated = errors.New("truncated record")

// decodeShapes reads every record of a .shp file in order.
func decodeShapes(data []byte) ([]orb.Geometry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("file shorter than its %d byte header", headerSize)
	}
	if code := binary.BigEndian.Uint32(data[0:4]); code != fileCode {
		return nil, fmt.Errorf("bad file code %d", code)
	}
	end := int(binary.BigEndian.Uint32(data[24:28])) * 2
	if end > len(data) || end < headerSize {
		end = len(data)
	}

	var shapes []orb.Geometry
	for off := headerSize; off+recordHead <= end; {
		number := binary.BigEndian.Uint32(data[off : off+4])
		length := int(binary.BigEndian.Uint32(data[off+4:off+8])) * 2
		start := off + recordHead
		if start+length > end {
			return nil, fmt.Errorf("record %d: %w", number, errTruncated)
		}
		g, err := decodeShape(data[start : start+length])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", number, err)
		}
		shapes = append(shapes, g)
		off = start + length
	}
	return shapes, nil
}

// decodeShape decodes one record content. Z and M ordinates are ignored.
func decodeShape(b []byte) (orb.Geometry, error) {
	if len(b) < 4 {
		return nil, errTruncated
	}
	typ := ShapeType(binary.LittleEndian.Uint32(b[0:4]))
	switch typ.base() {
	case ShapeNull:
		return nil, errors.New("null shape")
	case ShapePoint:
		if len(b) < 20 {
			return nil, errTruncated
		}
		return orb.Point{float64At(b, 4), float64At(b, 12)}, nil
	case ShapeMultiPoint:
		if len(b) < 40 {
			return nil, errTruncated
		}
		n := int(binary.LittleEndian.Uint32(b[36:40]))
		points, err := pointsAt(b, 40, n)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errors.New("multipoint without points")
		}
		return orb.MultiPoint(points), nil
	case ShapePolyLine, ShapePolygon:
		parts, err := partsAt(b)
		if err != nil {
			return nil, err
		}
		if typ.base() == ShapePolyLine {
			return polyline(parts), nil
		}
		return polygon(parts), nil
	}
	return nil, fmt.Errorf("unsupported shape type %s", typ)
}

func float64At(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}

func pointsAt(b []byte, off, n int) ([]orb.Point, error) {
	if n < 0 || off+16*n > len(b) {
		return nil, errTruncated
	}
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{float64At(b, off+16*i), float64At(b, off+16*i+8)}
	}
	return points, nil
}

// partsAt splits the point array of a PolyLine or Polygon record into its
// parts.
func partsAt(b []byte) ([][]orb.Point, error) {
	if len(b) < 44 {
		return nil, errTruncated
	}
	numParts := int(binary.LittleEndian.Uint32(b[36:40]))
	numPoints := int(binary.LittleEndian.Uint32(b[40:44]))
	if numParts <= 0 || numPoints <= 0 {
		return nil, errors.New("shape without parts")
	}
	if 44+4*numParts > len(b) {
		return nil, errTruncated
	}
	starts := make([]int, numParts)
	for i := range starts {
		starts[i] = int(binary.LittleEndian.Uint32(b[44+4*i:]))
	}
	points, err := pointsAt(b, 44+4*numParts, numPoints)
	if err != nil {
		return nil, err
	}

	parts := make([][]orb.Point, numParts)
	for i, s := range starts {
		e := numPoints
		if i+1 < numParts {
			e = starts[i+1]
		}
		if s < 0 || s >= e || e > numPoints {
			return nil, fmt.Errorf("invalid part index %d", s)
		}
		parts[i] = points[s:e]
	}
	return parts, nil
}

func polyline(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygon groups rings into polygons. Clockwise rings are outer rings and
// counter-clockwise rings are holes of the outer ring containing them.
// Rings are returned in the counter-clockwise outer convention of GeoJSON.
func polygon(parts [][]orb.Point) orb.Geometry {
	var outers, holes []orb.Ring
	for _, p := range parts {
		r := orb.Ring(p)
		if r.Orientation() == orb.CCW {
			holes = append(holes, r)
		} else {
			outers = append(outers, r)
		}
	}
	if len(outers) == 0 {
		// Orientation is not trustworthy; treat every ring as a shell.
		outers, holes = holes, nil
	}

	polys := make(orb.MultiPolygon, len(outers))
	for i, o := range outers {
		polys[i] = orb.Polygon{orient(o, orb.CCW)}
	}
	for _, h := range holes {
		owner := 0
		for i, o := range outers {
			if o.Bound().Contains(h[0]) && planar.RingContains(o, h[0]) {
				owner = i
				break
			}
		}
		polys[owner] = append(polys[owner], orient(h, orb.CW))
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}

// orient returns r wound in direction o, copying it when it has to be
// reversed.
func orient(r orb.Ring, o orb.Orientation) orb.Ring {
	if r.Orientation() == o {
		return r
	}
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// shapeWriter accumulates .shp and .shx content.
type shapeWriter struct {
	typ   ShapeType
	shp   []byte
	shx   []byte
	bound orb.Bound
	count int
}

func newShapeWriter(typ ShapeType, bound orb.Bound) *shapeWriter {
	return &shapeWriter{
		typ:   typ,
		shp:   make([]byte, headerSize),
		shx:   make([]byte, headerSize),
		bound: bound,
	}
}

func (w *shapeWriter) add(g orb.Geometry) error {
	content, err := encodeShape(w.typ, g)
	if err != nil {
		return err
	}
	w.count++
	offset := len(w.shp)

	head := make([]byte, recordHead)
	binary.BigEndian.PutUint32(head[0:4], uint32(w.count))
	binary.BigEndian.PutUint32(head[4:8], uint32(len(content)/2))
	w.shp = append(w.shp, head...)
	w.shp = append(w.shp, content...)

	idx := make([]byte, 8)
	binary.BigEndian.PutUint32(idx[0:4], uint32(offset/2))
	binary.BigEndian.PutUint32(idx[4:8], uint32(len(content)/2))
	w.shx = append(w.shx, idx...)
	return nil
}

// finish writes the headers and returns the .shp and .shx files.
func (w *shapeWriter) finish() (shp, shx []byte) {
	writeHeader(w.shp, w.typ, w.bound)
	writeHeader(w.shx, w.typ, w.bound)
	return w.shp, w.shx
}

func writeHeader(b []byte, typ ShapeType, bound orb.Bound) {
	binary.BigEndian.PutUint32(b[0:4], fileCode)
	binary.BigEndian.PutUint32(b[24:28], uint32(len(b)/2))
	binary.LittleEndian.PutUint32(b[28:32], version)
	binary.LittleEndian.PutUint32(b[32:36], uint32(typ))
	putBound(b[36:68], bound)
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func putBound(b []byte, bound orb.Bound) {
	putFloat64(b[0:], bound.Min[0])
	putFloat64(b[8:], bound.Min[1])
	putFloat64(b[16:], bound.Max[0])
	putFloat64(b[24:], bound.Max[1])
}

func encodeShape(typ ShapeType, g orb.Geometry) ([]byte, error) {
	switch typ {
	case ShapePoint:
		p, ok := g.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("%s in a Point file", g.GeoJSONType())
		}
		b := make([]byte, 20)
		binary.LittleEndian.PutUint32(b[0:4], uint32(ShapePoint))
		putFloat64(b[4:], p[0])
		putFloat64(b[12:], p[1])
		return b, nil
	case ShapeMultiPoint:
		var points []orb.Point
		switch v := g.(type) {
		case orb.Point:
			points = []orb.Point{v}
		case orb.MultiPoint:
			points = v
		default:
			return nil, fmt.Errorf("%s in a MultiPoint file", g.GeoJSONType())
		}
		b := make([]byte, 40+16*len(points))
		binary.LittleEndian.PutUint32(b[0:4], uint32(ShapeMultiPoint))
		putBound(b[4:36], g.Bound())
		binary.LittleEndian.PutUint32(b[36:40], uint32(len(points)))
		for i, p := range points {
			putFloat64(b[40+16*i:], p[0])
			putFloat64(b[48+16*i:], p[1])
		}
		return b, nil
	case ShapePolyLine:
		var parts [][]orb.Point
		switch v := g.(type) {
		case orb.LineString:
			parts = [][]orb.Point{v}
		case orb.MultiLineString:
			for _, ls := range v {
				parts = append(parts, ls)
			}
		default:
			return nil, fmt.Errorf("%s in a PolyLine file", g.GeoJSONType())
		}
		return encodeParts(ShapePolyLine, g.Bound(), parts), nil
	case ShapePolygon:
		var polys orb.MultiPolygon
		switch v := g.(type) {
		case orb.Polygon:
			polys = orb.MultiPolygon{v}
		case orb.MultiPolygon:
			polys = v
		default:
			return nil, fmt.Errorf("%s in a Polygon file", g.GeoJSONType())
		}
		var parts [][]orb.Point
		for _, poly := range polys {
			for i, r := range poly {
				want := orb.CCW
				if i == 0 {
					want = orb.CW
				}
				parts = append(parts, orient(closed(r), want))
			}
		}
		return encodeParts(ShapePolygon, g.Bound(), parts), nil
	}
	return nil, fmt.Errorf("cannot write shape type %s", typ)
}

// closed returns r with its first point repeated at the end when needed.
func closed(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

func encodeParts(typ ShapeType, bound orb.Bound, parts [][]orb.Point) []byte {
	numPoints := 0
	for _, p := range parts {
		numPoints += len(p)
	}
	b := make([]byte, 44+4*len(parts)+16*numPoints)
	binary.LittleEndian.PutUint32(b[0:4], uint32(typ))
	putBound(b[4:36], bound)
	binary.LittleEndian.PutUint32(b[36:40], uint32(len(parts)))
	binary.LittleEndian.PutUint32(b[40:44], uint32(numPoints))

	off := 44 + 4*len(parts)
	index := 0
	for i, p := range parts {
		binary.LittleEndian.PutUint32(b[44+4*i:], uint32(index))
		for _, pt := range p {
			putFloat64(b[off:], pt[0])
			putFloat64(b[off+8:], pt[1])
			off += 16
		}
		index += len(p)
	}
	return b
}
