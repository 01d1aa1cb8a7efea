package geoconv

import (
	"github.com/tingold/orb-geoconv/internal/adapter/csvio"
	"github.com/tingold/orb-geoconv/internal/adapter/fgbio"
	"github.com/tingold/orb-geoconv/internal/adapter/geojsonio"
	"github.com/tingold/orb-geoconv/internal/adapter/kmlio"
	"github.com/tingold/orb-geoconv/internal/adapter/shpio"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// codec pairs an adapter with the CRS its format implies. Collections are
// reprojected to native before writing when it is set.
type codec struct {
	adapter Adapter
	native  geodata.CRS
}

var registry = map[Format]codec{
	Shapefile:  {adapter: shpio.Adapter{}},
	KML:        {adapter: kmlio.Adapter{}, native: geodata.WGS84()},
	GeoJSON:    {adapter: geojsonio.Adapter{}},
	CSV:        {adapter: csvio.Adapter{}},
	FlatGeobuf: {adapter: fgbio.Adapter{}},
}

func lookup(f Format) (codec, error) {
	c, ok := registry[f]
	if !ok {
		return codec{}, geodata.NewError(ErrUnsupportedFormat, geodata.FormatUnknown, "no adapter for %s", f)
	}
	return c, nil
}

// Formats lists the formats that can be read and written, in declaration
// order.
func Formats() []Format {
	var out []Format
	for _, f := range geodata.Formats() {
		if _, ok := registry[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Extension returns the file extension of output written in format f with
// the given options.
func Extension(f Format, opts WriteOptions) string {
	if f == KML && opts.KMZ {
		return ".kmz"
	}
	return f.Extension()
}

// resolveFormat returns in.Format, or the format implied by the input name.
func resolveFormat(in Input) (Format, error) {
	if in.Format != geodata.FormatUnknown {
		if _, err := lookup(in.Format); err != nil {
			return geodata.FormatUnknown, err
		}
		return in.Format, nil
	}
	return geodata.FormatFromFilename(in.Name)
}
