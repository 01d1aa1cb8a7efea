// Package fgbio reads and writes FlatGeobuf files.
package fgbio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/crs"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// ErrNoIndex is returned by Search for files written without a spatial
// index.
var ErrNoIndex = errors.New("fgbio: file has no spatial index")

var (
	errNilGeometry         = errors.New("nil geometry")
	errUnsupportedGeometry = errors.New("unsupported geometry")
	errEmptyCoordinates    = errors.New("geometry without coordinates")
)

const (
	magicSize    = 8
	nodeItemSize = 40 // four float64 bounds plus a uint64 offset
)

// Adapter implements the FlatGeobuf format.
type Adapter struct{}

// Read decodes every feature of a FlatGeobuf file in file order. The
// spatial index, when present, is skipped.
func (Adapter) Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error) {
	h, off, err := readHeader(data)
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatFlatGeobuf, "header").Wrap(err)
	}
	off += indexSize(h.FeaturesCount(), h.IndexNodeSize())
	if off > len(data) {
		return nil, nil, geodata.Malformed(geodata.FormatFlatGeobuf, "spatial index runs past the end of the file")
	}

	fc, columns := newCollection(h, opts)
	layer := h.GeometryType()
	for i := 0; off < len(data); i++ {
		if off+4 > len(data) {
			return nil, nil, geodata.Malformed(geodata.FormatFlatGeobuf, "feature %d: truncated size prefix", i)
		}
		size := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if size == 0 || off+size > len(data) {
			return nil, nil, geodata.Malformed(geodata.FormatFlatGeobuf, "feature %d: invalid size %d", i, size)
		}
		f := flattypes.GetRootAsFeature(data[off:off+size], 0)
		off += size

		if err := appendFeature(fc, f, layer, columns); err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatFlatGeobuf, "feature %d", i).Wrap(err)
		}
	}
	fc.Normalize()
	return fc, nil, nil
}

// Search returns the features whose bounding boxes intersect bound,
// using the packed R-tree of the file. Features come back in index order.
func Search(data []byte, bound orb.Bound, opts geodata.ReadOptions) (*geodata.FeatureCollection, error) {
	if _, _, err := readHeader(data); err != nil {
		return nil, geodata.Malformed(geodata.FormatFlatGeobuf, "header").Wrap(err)
	}
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, geodata.Malformed(geodata.FormatFlatGeobuf, "header").Wrap(err)
	}
	h := fgb.Header()
	if h.IndexNodeSize() == 0 || h.FeaturesCount() == 0 {
		return nil, ErrNoIndex
	}

	features, err := fgb.Search(bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
	if err != nil {
		return nil, geodata.Malformed(geodata.FormatFlatGeobuf, "index search").Wrap(err)
	}

	fc, columns := newCollection(h, opts)
	for i, f := range features {
		if err := appendFeature(fc, f, h.GeometryType(), columns); err != nil {
			return nil, geodata.Malformed(geodata.FormatFlatGeobuf, "match %d", i).Wrap(err)
		}
	}
	fc.Normalize()
	return fc, nil
}

// readHeader checks the magic bytes and decodes the size-prefixed header.
// It returns the offset of the first byte after the header.
func readHeader(data []byte) (*flattypes.Header, int, error) {
	if len(data) < magicSize+4 {
		return nil, 0, errors.New("file shorter than its magic bytes")
	}
	if !bytes.Equal(data[0:3], []byte("fgb")) || !bytes.Equal(data[4:7], []byte("fgb")) {
		return nil, 0, errors.New("missing fgb magic bytes")
	}
	size := int(binary.LittleEndian.Uint32(data[magicSize:]))
	start := magicSize + 4
	if size == 0 || start+size > len(data) {
		return nil, 0, errors.New("header size exceeds file")
	}
	return flattypes.GetRootAsHeader(data[start:start+size], 0), start + size, nil
}

// indexSize is the byte size of the packed Hilbert R-tree for count items
// and the given node size; 0 when the file has no index.
func indexSize(count uint64, nodeSize uint16) int {
	if nodeSize == 0 || count == 0 {
		return 0
	}
	ns := uint64(max(nodeSize, 2))
	n := count
	nodes := n
	for {
		n = (n + ns - 1) / ns
		nodes += n
		if n == 1 {
			break
		}
	}
	return int(nodes * nodeItemSize)
}

// newCollection creates the collection described by the header: layer
// name, CRS and one schema field per column.
func newCollection(h *flattypes.Header, opts geodata.ReadOptions) (*geodata.FeatureCollection, []column) {
	name := string(h.Name())
	if name == "" {
		name = opts.LayerName()
	}
	fc := geodata.NewFeatureCollection(name, headerCRS(h))
	columns := headerColumns(h)
	for _, c := range columns {
		fc.Schema.Add(c.name, valueType(c.typ))
	}
	return fc, columns
}

func headerCRS(h *flattypes.Header) geodata.CRS {
	var c flattypes.Crs
	if h.Crs(&c) == nil {
		return geodata.CRS{}
	}
	wkt := string(c.Wkt())
	if desc := strings.TrimSpace(string(c.Description())); wkt == "" && strings.HasSuffix(desc, "]") {
		wkt = desc
	}
	org := string(c.Org())
	if code := int(c.Code()); code > 0 && (org == "" || strings.EqualFold(org, "EPSG")) {
		out := geodata.EPSG(code)
		out.WKT = wkt
		return out
	}
	if wkt != "" {
		return crs.ParsePRJ(wkt)
	}
	return geodata.CRS{Name: string(c.Name())}
}

func appendFeature(fc *geodata.FeatureCollection, f *flattypes.Feature, layer flattypes.GeometryType, columns []column) error {
	var fg flattypes.Geometry
	if f.Geometry(&fg) == nil {
		return errNilGeometry
	}
	g, err := decodeGeometry(&fg, layer)
	if err != nil {
		return err
	}

	var attrs []geodata.Attr
	if n := f.PropertiesLength(); n > 0 && len(columns) > 0 {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(f.Properties(i))
		}
		values, err := decodeProperties(raw, columns)
		if err != nil {
			return err
		}
		attrs = make([]geodata.Attr, len(columns))
		for i, c := range columns {
			attrs[i] = geodata.Attr{Name: c.name, Value: values[i]}
		}
	}
	return fc.Append(g, attrs...)
}
