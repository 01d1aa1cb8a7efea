// Package geojsonio reads and writes RFC 7946 GeoJSON feature collections.
package geojsonio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Adapter implements the GeoJSON format.
type Adapter struct{}

type document struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	CRS        *crsMember      `json:"crs"`
	Features   []rawFeature    `json:"features"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type rawFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// crsMember is the legacy (2008) named crs object.
type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// Read decodes a FeatureCollection. A single Feature or a bare geometry
// is read as a one-feature collection.
func (Adapter) Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "invalid JSON").Wrap(err)
	}

	name := doc.Name
	if name == "" {
		name = opts.LayerName()
	}
	fc := geodata.NewFeatureCollection(name, documentCRS(doc.CRS))

	var features []rawFeature
	switch doc.Type {
	case "FeatureCollection":
		features = doc.Features
	case "Feature":
		features = []rawFeature{{Type: doc.Type, Geometry: doc.Geometry, Properties: doc.Properties}}
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		features = []rawFeature{{Type: "Feature", Geometry: json.RawMessage(data)}}
	case "":
		return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "missing type member")
	default:
		return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "unexpected type %q", doc.Type)
	}

	for i, f := range features {
		if f.Type != "Feature" {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d: unexpected type %q", i, f.Type)
		}
		g, err := decodeGeometry(f.Geometry)
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d", i).Wrap(err)
		}
		attrs, err := decodeProperties(f.Properties)
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d: properties", i).Wrap(err)
		}
		if err := fc.Append(g, attrs...); err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d", i).Wrap(err)
		}
	}
	fc.Normalize()
	return fc, nil, nil
}

func documentCRS(m *crsMember) geodata.CRS {
	if m == nil || m.Type != "name" || m.Properties.Name == "" {
		return geodata.WGS84()
	}
	c, err := geodata.ParseCRS(m.Properties.Name)
	if err != nil {
		return geodata.CRS{Name: m.Properties.Name}
	}
	if c.IsUnknown() {
		return geodata.WGS84()
	}
	return c
}

func decodeGeometry(raw json.RawMessage) (orb.Geometry, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("null geometry")
	}
	var geom geojson.Geometry
	if err := json.Unmarshal(raw, &geom); err != nil {
		return nil, err
	}
	g := geom.Geometry()
	if g == nil {
		return nil, fmt.Errorf("unsupported geometry type %q", geom.Type)
	}
	return g, nil
}

// decodeProperties returns the members of a properties object in document
// order.
func decodeProperties(raw json.RawMessage) ([]geodata.Attr, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var attrs []geodata.Attr
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		attrs = append(attrs, geodata.Attr{Name: key, Value: v})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return attrs, nil
}
