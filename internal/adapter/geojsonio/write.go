package geojsonio

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Write encodes fc as a compact FeatureCollection whose property keys
// follow the schema order. A legacy crs member is written for CRS other
// than WGS84.
func (Adapter) Write(fc *geodata.FeatureCollection, opts geodata.WriteOptions) ([]byte, geodata.Warnings, error) {
	opts = opts.WithDefaults(fc)
	names := fc.Schema.Names()

	var buf bytes.Buffer
	buf.WriteString(`{"type":"FeatureCollection","name":`)
	writeString(&buf, opts.LayerName)

	if !fc.CRS.IsUnknown() && fc.CRS.Code != 4326 {
		name := fc.CRS.URN()
		if fc.CRS.Code == 0 && name == "" {
			name = fc.CRS.WKT
		}
		buf.WriteString(`,"crs":{"type":"name","properties":{"name":`)
		writeString(&buf, name)
		buf.WriteString(`}}`)
	}

	buf.WriteString(`,"features":[`)
	for i, f := range fc.Features {
		if i > 0 {
			buf.WriteByte(',')
		}
		if f.Geometry == nil {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d has no geometry", i)
		}
		geom, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatGeoJSON, "feature %d", i).Wrap(err)
		}
		buf.WriteString(`{"type":"Feature","geometry":`)
		buf.Write(geom)
		buf.WriteString(`,"properties":{`)
		for j, name := range names {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, name)
			buf.WriteByte(':')
			writeValue(&buf, f.Properties[name])
		}
		buf.WriteString(`}}`)
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil, nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeValue(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			buf.WriteString("null")
			return
		}
		buf.WriteString(geodata.FormatFloat(val))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	default:
		writeValue(buf, geodata.Normalize(v))
	}
}
