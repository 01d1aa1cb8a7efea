package geodata

import (
	"fmt"
	"path"
	"strings"
)

// DefaultGeometryColumn is the CSV column holding geometries.
const DefaultGeometryColumn = "geometry"

// DefaultLayerName names written layers when nothing better is known.
const DefaultLayerName = "layer"

// GeometryEncoding selects how geometries are written into text cells.
type GeometryEncoding string

const (
	EncodingWKT     GeometryEncoding = "wkt"
	EncodingGeoJSON GeometryEncoding = "geojson"
	EncodingWKB     GeometryEncoding = "wkb"
)

// ParseGeometryEncoding resolves an encoding name; empty means WKT.
func ParseGeometryEncoding(s string) (GeometryEncoding, error) {
	switch e := GeometryEncoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EncodingWKT, nil
	case EncodingWKT, EncodingGeoJSON, EncodingWKB:
		return e, nil
	}
	return "", fmt.Errorf("unknown geometry encoding %q", s)
}

// ReadOptions configures format readers.
type ReadOptions struct {
	Name           string // source file name, used as default layer name
	GeometryColumn string // CSV geometry column (default "geometry")
	CRS            CRS    // CRS assigned to formats without CRS metadata (CSV)
}

// WithDefaults fills unset fields.
func (o ReadOptions) WithDefaults() ReadOptions {
	if o.GeometryColumn == "" {
		o.GeometryColumn = DefaultGeometryColumn
	}
	return o
}

// LayerName returns the base name of the source file without extension.
func (o ReadOptions) LayerName() string {
	base := path.Base(strings.ReplaceAll(o.Name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// WriteOptions configures format writers.
type WriteOptions struct {
	LayerName        string           // layer, document or archive member name
	GeometryColumn   string           // CSV geometry column (default "geometry")
	GeometryEncoding GeometryEncoding // CSV geometry cell encoding (default WKT)
	KMZ              bool             // pack KML output into a KMZ archive
	Minify           bool             // strip insignificant whitespace from KML
	IncludeIndex     bool             // write a FlatGeobuf spatial index
}

// WithDefaults fills unset fields, taking the layer name from fc.
func (o WriteOptions) WithDefaults(fc *FeatureCollection) WriteOptions {
	if o.LayerName == "" && fc != nil {
		o.LayerName = fc.Name
	}
	if o.LayerName == "" {
		o.LayerName = DefaultLayerName
	}
	if o.GeometryColumn == "" {
		o.GeometryColumn = DefaultGeometryColumn
	}
	if o.GeometryEncoding == "" {
		o.GeometryEncoding = EncodingWKT
	}
	return o
}
