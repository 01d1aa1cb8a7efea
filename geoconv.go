// Package geoconv converts and merges vector geodata between Shapefile
// bundles, KML/KMZ, GeoJSON, CSV with embedded geometry and FlatGeobuf.
//
// Every input is read into a geodata.FeatureCollection, optionally merged
// with others into one collection sharing a single CRS and schema, and
// written out in the requested format. Nothing touches the disk or any
// process-wide state.
//
// Basic usage:
//
//	res, err := geoconv.Convert(ctx, geoconv.Input{Name: "points.csv", Data: data}, geoconv.GeoJSON, geoconv.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.WriteFile("points.geojson", res.Data, 0o644)
package geoconv

import (
	"runtime"

	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Format tags a supported file format.
type Format = geodata.Format

// Supported formats.
const (
	Shapefile  = geodata.FormatShapefile
	KML        = geodata.FormatKML
	GeoJSON    = geodata.FormatGeoJSON
	CSV        = geodata.FormatCSV
	FlatGeobuf = geodata.FormatFlatGeobuf
)

type (
	FeatureCollection = geodata.FeatureCollection
	CRS               = geodata.CRS
	Stage             = geodata.Stage
	Error             = geodata.Error
	Warning           = geodata.Warning
	Warnings          = geodata.Warnings
	ReadOptions       = geodata.ReadOptions
	WriteOptions      = geodata.WriteOptions
)

// Error kinds, usable with errors.Is on any error returned by this package.
var (
	ErrUnsupportedFormat         = geodata.ErrUnsupportedFormat
	ErrNoShapefileFound          = geodata.ErrNoShapefileFound
	ErrMissingGeometryColumn     = geodata.ErrMissingGeometryColumn
	ErrMalformedInput            = geodata.ErrMalformedInput
	ErrCRSMismatch               = geodata.ErrCRSMismatch
	ErrIncompatibleGeometryTypes = geodata.ErrIncompatibleGeometryTypes
	ErrEmptyInputSet             = geodata.ErrEmptyInputSet
)

// Adapter reads and writes one format.
type Adapter interface {
	Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error)
	Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error)
}

// Input is one file to convert or merge. When Format is unknown it is
// derived from the extension of Name.
type Input struct {
	Name   string
	Data   []byte
	Format Format
}

// Options configures a request.
type Options struct {
	// Workers bounds concurrent reads; defaults to runtime.NumCPU().
	Workers int
	// TargetCRS overrides the merge target and reprojects a single
	// converted input. The zero value keeps the first input's CRS.
	TargetCRS CRS
	// DropDuplicates removes features equal to an earlier one when merging.
	DropDuplicates bool
	// Bound keeps only features whose bounding box intersects it, in the
	// CRS of each input. Indexed FlatGeobuf inputs are searched through
	// their R-tree.
	Bound *orb.Bound
	// RequestID tags log lines and the result; generated when empty.
	RequestID string

	Read  ReadOptions
	Write WriteOptions
}

func (o Options) workers(inputs int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, inputs))
}

// Result is the outcome of a successful request.
type Result struct {
	Data       []byte
	Format     Format
	Collection *FeatureCollection
	Warnings   Warnings
	RequestID  string
	Stage      Stage
}

// ParseFormat resolves a format name or file extension.
func ParseFormat(s string) (Format, error) {
	return geodata.ParseFormat(s)
}

// ParseCRS resolves a CRS identifier such as "EPSG:3857".
func ParseCRS(s string) (CRS, error) {
	return geodata.ParseCRS(s)
}
