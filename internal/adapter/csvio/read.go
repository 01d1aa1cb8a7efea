// Package csvio reads and writes delimited text tables whose geometry is
// held in one column as WKT, a GeoJSON geometry or hex encoded WKB.
package csvio

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Adapter implements the CSV format.
type Adapter struct{}

// Read parses a CSV document with a header row. Attribute columns are typed
// by inference over the whole column. The collection CRS is opts.CRS, or
// the SRID of EWKT cells when opts.CRS is unknown.
func (Adapter) Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error) {
	opts = opts.WithDefaults()
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatCSV, "invalid CSV").Wrap(err)
	}
	if len(records) == 0 {
		return nil, nil, geodata.Malformed(geodata.FormatCSV, "missing header row")
	}

	header, rows := records[0], records[1:]
	geomCol := findColumn(header, opts.GeometryColumn)
	if geomCol < 0 {
		return nil, nil, geodata.NewError(geodata.ErrMissingGeometryColumn, geodata.FormatCSV,
			"no %q column in header %v", opts.GeometryColumn, header)
	}

	names, err := columnNames(header)
	if err != nil {
		return nil, nil, err
	}

	fc := geodata.NewFeatureCollection(opts.LayerName(), opts.CRS)
	types := make([]geodata.ValueType, len(header))
	for col, name := range names {
		if col == geomCol {
			continue
		}
		cells := make([]string, len(rows))
		for i, row := range rows {
			cells[i] = cell(row, col)
		}
		types[col] = geodata.InferColumn(cells)
		fc.Schema.Add(name, types[col])
	}

	srid := 0
	for i, row := range rows {
		line := i + 2
		raw := strings.TrimSpace(cell(row, geomCol))
		if raw == "" {
			return nil, nil, geodata.NewError(geodata.ErrMissingGeometryColumn, geodata.FormatCSV,
				"line %d has an empty %q cell", line, header[geomCol])
		}
		g, rowSRID, err := parseGeometry(raw)
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatCSV, "line %d: geometry", line).Wrap(err)
		}
		if i == 0 {
			srid = rowSRID
		} else if rowSRID != srid {
			srid = -1
		}

		attrs := make([]geodata.Attr, 0, len(header)-1)
		for col, name := range names {
			if col == geomCol {
				continue
			}
			attrs = append(attrs, geodata.Attr{Name: name, Value: geodata.ParseCell(cell(row, col), types[col])})
		}
		if err := fc.Append(g, attrs...); err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatCSV, "line %d", line).Wrap(err)
		}
	}
	if fc.CRS.IsUnknown() && srid > 0 {
		fc.CRS = geodata.EPSG(srid)
	}
	fc.Normalize()
	return fc, nil, nil
}

// findColumn matches name exactly, then ignoring case and surrounding
// blanks.
func findColumn(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func columnNames(header []string) ([]string, error) {
	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if seen[name] {
			return nil, geodata.Malformed(geodata.FormatCSV, "duplicate column %q", name)
		}
		seen[name] = true
		names[i] = name
	}
	return names, nil
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

var errUnknownEncoding = errors.New("not WKT, GeoJSON or hex WKB")

// parseGeometry decodes one geometry cell. An EWKT "SRID=n;" prefix is
// stripped and its code returned.
func parseGeometry(s string) (orb.Geometry, int, error) {
	srid := 0
	if strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		semi := strings.IndexByte(s, ';')
		if semi < 0 {
			return nil, 0, fmt.Errorf("invalid EWKT %q", s)
		}
		n, err := strconv.Atoi(s[len("SRID="):semi])
		if err != nil {
			return nil, 0, fmt.Errorf("invalid SRID: %w", err)
		}
		srid, s = n, strings.TrimSpace(s[semi+1:])
	}

	switch {
	case strings.HasPrefix(s, "{"):
		g, err := geojson.UnmarshalGeometry([]byte(s))
		if err != nil {
			return nil, 0, err
		}
		if g.Geometry() == nil {
			return nil, 0, fmt.Errorf("unsupported geometry type %q", g.Type)
		}
		return g.Geometry(), srid, nil
	case isHex(s):
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, 0, err
		}
		g, err := wkb.Unmarshal(b)
		return g, srid, err
	case len(s) > 0 && (s[0] >= 'A' && s[0] <= 'Z' || s[0] >= 'a' && s[0] <= 'z'):
		g, err := wkt.Unmarshal(s)
		return g, srid, err
	}
	return nil, 0, errUnknownEncoding
}

func isHex(s string) bool {
	if len(s) < 10 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
