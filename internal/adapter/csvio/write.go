package csvio

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Write encodes fc with the geometry column first and the attributes in
// schema order. Every geometry cell uses opts.GeometryEncoding.
func (Adapter) Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error) {
	opts = opts.WithDefaults(fc)
	fields := fc.Schema.Fields()

	header := make([]string, 0, len(fields)+1)
	header = append(header, opts.GeometryColumn)
	for _, f := range fields {
		if f.Name == opts.GeometryColumn {
			return nil, nil, geodata.Malformed(geodata.FormatCSV,
				"attribute %q collides with the geometry column", f.Name)
		}
		header = append(header, f.Name)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, nil, fmt.Errorf("csvio: %w", err)
	}

	row := make([]string, len(header))
	for i, f := range fc.Features {
		g, err := encodeGeometry(f.Geometry, opts.GeometryEncoding)
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatCSV, "feature %d: geometry", i).Wrap(err)
		}
		row[0] = g
		for j, field := range fields {
			row[j+1] = formatCell(f.Properties[field.Name], field.Type)
		}
		if err := w.Write(row); err != nil {
			return nil, nil, fmt.Errorf("csvio: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, nil, fmt.Errorf("csvio: %w", err)
	}
	return buf.Bytes(), nil, nil
}

func encodeGeometry(g orb.Geometry, enc geodata.GeometryEncoding) (string, error) {
	if g == nil {
		return "", fmt.Errorf("nil geometry")
	}
	switch enc {
	case geodata.EncodingGeoJSON:
		b, err := json.Marshal(geojson.NewGeometry(g))
		return string(b), err
	case geodata.EncodingWKB:
		b, err := wkb.Marshal(g)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	default:
		return wkt.MarshalString(g), nil
	}
}

// formatCell renders floats with a decimal point so that the column infers
// back as float.
func formatCell(v any, t geodata.ValueType) string {
	if f, ok := v.(float64); ok && t == geodata.TypeFloat {
		return geodata.FormatFloat(f)
	}
	return geodata.FormatValue(v)
}
