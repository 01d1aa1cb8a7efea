package fgbio

import (
	"bytes"
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Write encodes fc as a FlatGeobuf file. The header carries the layer
// name, the shared geometry type (Unknown for mixed layers), the CRS and
// one column per schema field. With IncludeIndex a packed Hilbert R-tree
// is written and features are stored in index order.
func (Adapter) Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error) {
	opts = opts.WithDefaults(fc)

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetName(opts.LayerName)
	header.SetGeometryType(layerType(fc.Geometries()))

	fields := fc.Schema.Fields()
	if columns := buildColumns(fc.Schema, builder); len(columns) > 0 {
		header.SetColumns(columns)
	}

	if !fc.CRS.IsUnknown() {
		c := writer.NewCrs(builder)
		if fc.CRS.Code > 0 {
			c.SetOrg("EPSG")
			c.SetCode(int32(fc.CRS.Code))
		}
		if fc.CRS.Name != "" {
			c.SetName(fc.CRS.Name)
		}
		if fc.CRS.WKT != "" {
			c.SetDescription(fc.CRS.WKT)
		}
		header.SetCrs(c)
	}

	gen := &featureGenerator{features: fc.Features, fields: fields}
	// The packed R-tree needs at least one item.
	index := opts.IncludeIndex && len(fc.Features) > 0
	fw := writer.NewWriter(header, index, gen, nil)

	var buf bytes.Buffer
	if _, err := fw.Write(&buf); err != nil {
		return nil, nil, fmt.Errorf("fgbio: %w", err)
	}
	if gen.err != nil {
		return nil, nil, gen.err
	}
	return buf.Bytes(), nil, nil
}

// featureGenerator feeds collection features to the flatgeobuf writer.
// The first encoding failure stops generation and is kept in err.
type featureGenerator struct {
	features []*geodata.Feature
	fields   []geodata.Field
	next     int
	err      error
}

func (g *featureGenerator) Generate() *writer.Feature {
	if g.err != nil || g.next >= len(g.features) {
		return nil
	}
	f := g.features[g.next]
	g.next++

	builder := flatbuffers.NewBuilder(1024)
	geom, err := encodeGeometry(f.Geometry, builder)
	if err != nil {
		g.err = geodata.Malformed(geodata.FormatFlatGeobuf, "feature %d", g.next-1).Wrap(err)
		return nil
	}

	feature := writer.NewFeature(builder)
	feature.SetGeometry(geom)
	if props := encodeProperties(f.Properties, g.fields); len(props) > 0 {
		feature.SetProperties(props)
	}
	return feature
}
