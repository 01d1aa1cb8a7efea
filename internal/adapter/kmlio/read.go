// Package kmlio reads and writes KML documents and KMZ archives.
package kmlio

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/tingold/orb-geoconv/internal/archive"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Adapter implements the KML/KMZ format.
type Adapter struct{}

type extendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
	SchemaData []struct {
		SimpleData []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"SimpleData"`
	} `xml:"SchemaData"`
}

type schemaDecl struct {
	Fields []struct {
		Name string `xml:"name,attr"`
		Type string `xml:"type,attr"`
	} `xml:"SimpleField"`
}

// row is the text content of one placemark, keys in document order.
type row struct {
	geometry orb.Geometry
	keys     []string
	values   map[string]string
}

func (r *row) set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Read decodes every Placemark of a KML document, or of the main document
// of a KMZ archive, in document order. Declared SimpleField types are used
// for SchemaData columns; other columns are typed by inference.
func (Adapter) Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error) {
	doc := data
	if archive.IsZip(data) {
		var err error
		if doc, err = kmzDocument(data); err != nil {
			return nil, nil, err
		}
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.CharsetReader = charsetReader

	var (
		rows     []*row
		declared = make(map[string]geodata.ValueType)
		docName  string
	)
	var stack []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatKML, "invalid XML").Wrap(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if docName == "" && len(stack) > 0 && stack[len(stack)-1] == "Document" {
					var s string
					if err := dec.DecodeElement(&s, &t); err != nil {
						return nil, nil, geodata.Malformed(geodata.FormatKML, "Document name").Wrap(err)
					}
					docName = strings.TrimSpace(s)
				} else if err := dec.Skip(); err != nil {
					return nil, nil, geodata.Malformed(geodata.FormatKML, "invalid XML").Wrap(err)
				}
			case "Schema":
				var s schemaDecl
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, nil, geodata.Malformed(geodata.FormatKML, "Schema").Wrap(err)
				}
				for _, f := range s.Fields {
					ft := simpleFieldType(f.Type)
					if prev, ok := declared[f.Name]; ok {
						ft = geodata.Promote(prev, ft)
					}
					declared[f.Name] = ft
				}
			case "Placemark":
				r, err := decodePlacemark(dec, len(rows))
				if err != nil {
					return nil, nil, err
				}
				rows = append(rows, r)
			default:
				stack = append(stack, t.Name.Local)
			}
		}
	}

	name := docName
	if name == "" {
		name = opts.LayerName()
	}
	fc := geodata.NewFeatureCollection(name, geodata.WGS84())

	var columns []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	types := make(map[string]geodata.ValueType, len(columns))
	for _, col := range columns {
		if t, ok := declared[col]; ok {
			types[col] = t
		} else {
			cells := make([]string, len(rows))
			for i, r := range rows {
				cells[i] = r.values[col]
			}
			types[col] = geodata.InferColumn(cells)
		}
		fc.Schema.Add(col, types[col])
	}

	for i, r := range rows {
		attrs := make([]geodata.Attr, 0, len(r.keys))
		for _, k := range r.keys {
			attrs = append(attrs, geodata.Attr{Name: k, Value: geodata.ParseCell(r.values[k], types[k])})
		}
		if err := fc.Append(r.geometry, attrs...); err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatKML, "placemark %d", i+1).Wrap(err)
		}
	}
	fc.Normalize()
	return fc, nil, nil
}

// kmzDocument returns doc.kml from a KMZ archive, else its first .kml
// entry.
func kmzDocument(data []byte) ([]byte, error) {
	fsys, err := archive.Open(data)
	if err != nil {
		return nil, geodata.Malformed(geodata.FormatKML, "invalid KMZ").Wrap(err)
	}
	files, err := archive.Files(fsys)
	if err != nil {
		return nil, geodata.Malformed(geodata.FormatKML, "invalid KMZ").Wrap(err)
	}
	var name string
	for _, f := range files {
		if strings.EqualFold(f, "doc.kml") {
			name = f
			break
		}
	}
	if name == "" {
		kmls := archive.WithExt(files, ".kml")
		if len(kmls) == 0 {
			return nil, geodata.Malformed(geodata.FormatKML, "KMZ archive holds no .kml document")
		}
		name = kmls[0]
	}
	b, err := archive.ReadFile(fsys, name)
	if err != nil {
		return nil, geodata.Malformed(geodata.FormatKML, "KMZ entry %s", path.Base(name)).Wrap(err)
	}
	return b, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func simpleFieldType(t string) geodata.ValueType {
	switch strings.ToLower(t) {
	case "int", "uint", "short", "ushort":
		return geodata.TypeInteger
	case "float", "double":
		return geodata.TypeFloat
	case "bool":
		return geodata.TypeBoolean
	}
	return geodata.TypeString
}

func decodePlacemark(dec *xml.Decoder, index int) (*row, error) {
	r := &row{values: make(map[string]string)}
	var name, description *string
	extended := make(map[string]bool)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, geodata.Malformed(geodata.FormatKML, "placemark %d", index+1).Wrap(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if r.geometry == nil {
				return nil, geodata.Malformed(geodata.FormatKML, "placemark %d has no geometry", index+1)
			}
			// name and description yield to ExtendedData keys of the same name
			var keys []string
			values := make(map[string]string)
			if name != nil && !extended["name"] {
				keys = append(keys, "name")
				values["name"] = *name
			}
			if description != nil && !extended["description"] {
				keys = append(keys, "description")
				values["description"] = *description
			}
			for _, k := range r.keys {
				keys = append(keys, k)
				values[k] = r.values[k]
			}
			r.keys, r.values = keys, values
			return r, nil
		case xml.StartElement:
			var err error
			switch t.Name.Local {
			case "name", "description":
				var s string
				err = dec.DecodeElement(&s, &t)
				s = strings.TrimSpace(s)
				if t.Name.Local == "name" {
					name = &s
				} else {
					description = &s
				}
			case "ExtendedData":
				var ed extendedData
				err = dec.DecodeElement(&ed, &t)
				for _, d := range ed.Data {
					r.set(d.Name, d.Value)
					extended[d.Name] = true
				}
				for _, sd := range ed.SchemaData {
					for _, d := range sd.SimpleData {
						r.set(d.Name, d.Value)
						extended[d.Name] = true
					}
				}
			case "Point", "LineString", "LinearRing", "Polygon", "MultiGeometry":
				var g orb.Geometry
				g, err = decodeGeometry(dec, t)
				if err == nil && r.geometry == nil {
					r.geometry = g
				}
			default:
				err = dec.Skip()
			}
			if err != nil {
				return nil, geodata.Malformed(geodata.FormatKML, "placemark %d: %s", index+1, t.Name.Local).Wrap(err)
			}
		}
	}
}

var errNoCoordinates = errors.New("no coordinates")

// decodeGeometry reads the geometry element start, including its end tag.
func decodeGeometry(dec *xml.Decoder, start xml.StartElement) (orb.Geometry, error) {
	switch start.Name.Local {
	case "Point":
		var v struct {
			Coordinates string `xml:"coordinates"`
		}
		if err := dec.DecodeElement(&v, &start); err != nil {
			return nil, err
		}
		ps, err := parseCoordinates(v.Coordinates)
		if err != nil {
			return nil, err
		}
		return ps[0], nil
	case "LineString", "LinearRing":
		var v struct {
			Coordinates string `xml:"coordinates"`
		}
		if err := dec.DecodeElement(&v, &start); err != nil {
			return nil, err
		}
		ps, err := parseCoordinates(v.Coordinates)
		if err != nil {
			return nil, err
		}
		if start.Name.Local == "LinearRing" {
			return orb.Polygon{orb.Ring(ps)}, nil
		}
		return orb.LineString(ps), nil
	case "Polygon":
		var v struct {
			Outer string   `xml:"outerBoundaryIs>LinearRing>coordinates"`
			Inner []string `xml:"innerBoundaryIs>LinearRing>coordinates"`
		}
		if err := dec.DecodeElement(&v, &start); err != nil {
			return nil, err
		}
		outer, err := parseCoordinates(v.Outer)
		if err != nil {
			return nil, fmt.Errorf("outer boundary: %w", err)
		}
		poly := orb.Polygon{orb.Ring(outer)}
		for _, in := range v.Inner {
			ring, err := parseCoordinates(in)
			if err != nil {
				return nil, fmt.Errorf("inner boundary: %w", err)
			}
			poly = append(poly, orb.Ring(ring))
		}
		return poly, nil
	case "MultiGeometry":
		var parts orb.Collection
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				switch t.Name.Local {
				case "Point", "LineString", "LinearRing", "Polygon", "MultiGeometry":
					g, err := decodeGeometry(dec, t)
					if err != nil {
						return nil, err
					}
					parts = append(parts, g)
				default:
					if err := dec.Skip(); err != nil {
						return nil, err
					}
				}
			case xml.EndElement:
				if len(parts) == 0 {
					return nil, errors.New("empty MultiGeometry")
				}
				return homogenize(parts), nil
			}
		}
	}
	return nil, fmt.Errorf("unsupported geometry %s", start.Name.Local)
}

// homogenize turns a collection of one simple geometry kind into the
// matching multi geometry.
func homogenize(parts orb.Collection) orb.Geometry {
	switch parts[0].(type) {
	case orb.Point:
		mp := make(orb.MultiPoint, 0, len(parts))
		for _, p := range parts {
			pt, ok := p.(orb.Point)
			if !ok {
				return parts
			}
			mp = append(mp, pt)
		}
		return mp
	case orb.LineString:
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, p := range parts {
			ls, ok := p.(orb.LineString)
			if !ok {
				return parts
			}
			mls = append(mls, ls)
		}
		return mls
	case orb.Polygon:
		mp := make(orb.MultiPolygon, 0, len(parts))
		for _, p := range parts {
			poly, ok := p.(orb.Polygon)
			if !ok {
				return parts
			}
			mp = append(mp, poly)
		}
		return mp
	}
	return parts
}

// parseCoordinates parses whitespace separated lon,lat[,alt] tuples.
func parseCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errNoCoordinates
	}
	points := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid coordinate tuple %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q", tuple)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q", tuple)
		}
		points = append(points, orb.Point{lon, lat})
	}
	return points, nil
}
