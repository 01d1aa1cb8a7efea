package geodata

import (
	"fmt"
	"path"
	"strings"
)

// Format identifies a supported vector data format.
type Format int

// Supported formats. FormatUnknown is never accepted by an adapter.
const (
	FormatUnknown Format = iota
	FormatShapefile
	FormatKML
	FormatGeoJSON
	FormatCSV
	FormatFlatGeobuf
)

var formatNames = map[Format]string{
	FormatShapefile:  "Shapefile",
	FormatKML:        "KML/KMZ",
	FormatGeoJSON:    "GeoJSON",
	FormatCSV:        "CSV",
	FormatFlatGeobuf: "FlatGeobuf",
}

var formatExtensions = map[Format]string{
	FormatShapefile:  ".zip",
	FormatKML:        ".kml",
	FormatGeoJSON:    ".geojson",
	FormatCSV:        ".csv",
	FormatFlatGeobuf: ".fgb",
}

// Formats returns every supported format in declaration order.
func Formats() []Format {
	return []Format{FormatShapefile, FormatKML, FormatGeoJSON, FormatCSV, FormatFlatGeobuf}
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "Unknown"
}

// Extension returns the conventional file extension, including the dot.
func (f Format) Extension() string {
	return formatExtensions[f]
}

// ParseFormat resolves a user supplied format name. Matching is
// case-insensitive and accepts common aliases ("shp", "kmz", "json", "fgb").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shapefile", "shp", "zip", "esri shapefile":
		return FormatShapefile, nil
	case "kml", "kmz", "kml/kmz":
		return FormatKML, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	case "csv":
		return FormatCSV, nil
	case "flatgeobuf", "fgb":
		return FormatFlatGeobuf, nil
	}
	return FormatUnknown, &Error{Kind: ErrUnsupportedFormat, Input: -1, Detail: fmt.Sprintf("%q", s)}
}

// FormatFromFilename guesses a format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return FormatUnknown, &Error{Kind: ErrUnsupportedFormat, Input: -1, Name: name, Detail: "file has no extension"}
	}
	return ParseFormat(ext)
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if f == FormatUnknown {
		return nil, &Error{Kind: ErrUnsupportedFormat, Input: -1}
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
