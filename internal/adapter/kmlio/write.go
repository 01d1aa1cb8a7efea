package kmlio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tdewolff/minify/v2"
	minxml "github.com/tdewolff/minify/v2/xml"

	"github.com/tingold/orb-geoconv/internal/archive"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

const namespace = "http://www.opengis.net/kml/2.2"

type kmlDocument struct {
	XMLName  xml.Name `xml:"kml"`
	Xmlns    string   `xml:"xmlns,attr"`
	Document document `xml:"Document"`
}

type document struct {
	Name       string      `xml:"name"`
	Schema     *schema     `xml:"Schema,omitempty"`
	Placemarks []placemark `xml:"Placemark"`
}

type schema struct {
	Name   string        `xml:"name,attr"`
	ID     string        `xml:"id,attr"`
	Fields []simpleField `xml:"SimpleField"`
}

type simpleField struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type placemark struct {
	Name         string          `xml:"name,omitempty"`
	ExtendedData *extendedDataEl `xml:"ExtendedData,omitempty"`
	Geometry     geometry
}

type extendedDataEl struct {
	SchemaData schemaDataEl `xml:"SchemaData"`
}

type schemaDataEl struct {
	SchemaURL string       `xml:"schemaUrl,attr"`
	Data      []simpleData `xml:"SimpleData"`
}

type simpleData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// geometry is any KML geometry element; XMLName selects which.
type geometry struct {
	XMLName     xml.Name
	Coordinates string     `xml:"coordinates,omitempty"`
	Outer       *boundary  `xml:"outerBoundaryIs,omitempty"`
	Inner       []boundary `xml:"innerBoundaryIs"`
	Children    []geometry `xml:",any"`
}

type boundary struct {
	Coordinates string `xml:"LinearRing>coordinates"`
}

// Write encodes one Placemark per feature. Attributes are written in
// schema order as typed SchemaData; the name attribute also fills the
// Placemark name. Coordinates are written as they are: callers reproject
// to WGS84 first.
func (Adapter) Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error) {
	opts = opts.WithDefaults(fc)
	fields := fc.Schema.Fields()
	schemaID := xmlID(opts.LayerName)

	doc := kmlDocument{Xmlns: namespace, Document: document{Name: opts.LayerName}}
	if len(fields) > 0 {
		s := &schema{Name: opts.LayerName, ID: schemaID}
		for _, f := range fields {
			s.Fields = append(s.Fields, simpleField{Name: f.Name, Type: kmlType(f.Type)})
		}
		doc.Document.Schema = s
	}

	doc.Document.Placemarks = make([]placemark, len(fc.Features))
	for i, f := range fc.Features {
		g, err := encodeGeometry(f.Geometry)
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatKML, "feature %d", i).Wrap(err)
		}
		pm := placemark{Geometry: g}
		if name, ok := f.Properties["name"]; ok && name != nil {
			pm.Name = geodata.FormatValue(name)
		}
		if len(fields) > 0 {
			sd := schemaDataEl{SchemaURL: "#" + schemaID, Data: make([]simpleData, len(fields))}
			for j, field := range fields {
				sd.Data[j] = simpleData{Name: field.Name, Value: formatValue(f.Properties[field.Name], field.Type)}
			}
			pm.ExtendedData = &extendedDataEl{SchemaData: sd}
		}
		doc.Document.Placemarks[i] = pm
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, nil, fmt.Errorf("kmlio: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, nil, fmt.Errorf("kmlio: %w", err)
	}
	out := buf.Bytes()

	if opts.Minify {
		m := minify.New()
		m.AddFunc("text/xml", minxml.Minify)
		small, err := m.Bytes("text/xml", out)
		if err != nil {
			return nil, nil, fmt.Errorf("kmlio: minify: %w", err)
		}
		out = small
	}

	if opts.KMZ {
		kmz, err := archive.Pack([]archive.Entry{{Name: "doc.kml", Data: out}})
		if err != nil {
			return nil, nil, fmt.Errorf("kmlio: %w", err)
		}
		return kmz, nil, nil
	}
	return out, nil, nil
}

func kmlType(t geodata.ValueType) string {
	switch t {
	case geodata.TypeInteger:
		return "int"
	case geodata.TypeFloat:
		return "double"
	case geodata.TypeBoolean:
		return "bool"
	}
	return "string"
}

func formatValue(v any, t geodata.ValueType) string {
	if f, ok := v.(float64); ok && t == geodata.TypeFloat {
		return geodata.FormatFloat(f)
	}
	return geodata.FormatValue(v)
}

// xmlID turns a layer name into a valid XML id.
func xmlID(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9', r == '-', r == '.':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "schema"
	}
	return b.String()
}

func encodeGeometry(g orb.Geometry) (geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return geometry{XMLName: xml.Name{Local: "Point"}, Coordinates: coordinates(v)}, nil
	case orb.LineString:
		return geometry{XMLName: xml.Name{Local: "LineString"}, Coordinates: coordinates(v...)}, nil
	case orb.Polygon:
		if len(v) == 0 {
			return geometry{}, fmt.Errorf("empty polygon")
		}
		out := geometry{XMLName: xml.Name{Local: "Polygon"}, Outer: &boundary{Coordinates: coordinates(v[0]...)}}
		for _, ring := range v[1:] {
			out.Inner = append(out.Inner, boundary{Coordinates: coordinates(ring...)})
		}
		return out, nil
	case orb.MultiPoint:
		parts := make(orb.Collection, len(v))
		for i, p := range v {
			parts[i] = p
		}
		return encodeMulti(parts)
	case orb.MultiLineString:
		parts := make(orb.Collection, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		return encodeMulti(parts)
	case orb.MultiPolygon:
		parts := make(orb.Collection, len(v))
		for i, p := range v {
			parts[i] = p
		}
		return encodeMulti(parts)
	case orb.Collection:
		return encodeMulti(v)
	case nil:
		return geometry{}, fmt.Errorf("nil geometry")
	}
	return geometry{}, fmt.Errorf("unsupported geometry %T", g)
}

func encodeMulti(parts orb.Collection) (geometry, error) {
	out := geometry{XMLName: xml.Name{Local: "MultiGeometry"}}
	for _, p := range parts {
		child, err := encodeGeometry(p)
		if err != nil {
			return geometry{}, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

func coordinates(points ...orb.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatFloat(p[0], 'f', -1, 64) + "," + strconv.FormatFloat(p[1], 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
