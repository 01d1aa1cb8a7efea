package geodata

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
	"github.com/spaolacci/murmur3"
)

// Fingerprint is a 128-bit content hash of a feature.
type Fingerprint [2]uint64

// FeatureFingerprint hashes the geometry and the attribute values of f in
// the order given by names. Two features with equal content under the same
// schema have equal fingerprints.
func FeatureFingerprint(f *Feature, names []string) Fingerprint {
	h := murmur3.New128()
	var scratch [8]byte

	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		_, _ = h.Write(scratch[:])
	}

	var writeGeometry func(g orb.Geometry)
	writePoints := func(ps []orb.Point) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(ps)))
		_, _ = h.Write(scratch[:])
		for _, p := range ps {
			writeFloat(p[0])
			writeFloat(p[1])
		}
	}
	writeGeometry = func(g orb.Geometry) {
		_, _ = h.Write([]byte(g.GeoJSONType()))
		switch v := g.(type) {
		case orb.Point:
			writeFloat(v[0])
			writeFloat(v[1])
		case orb.MultiPoint:
			writePoints(v)
		case orb.LineString:
			writePoints(v)
		case orb.MultiLineString:
			for _, ls := range v {
				writePoints(ls)
			}
		case orb.Polygon:
			for _, r := range v {
				writePoints(r)
			}
		case orb.MultiPolygon:
			for _, p := range v {
				writeGeometry(p)
			}
		case orb.Collection:
			for _, c := range v {
				writeGeometry(c)
			}
		}
	}
	writeGeometry(f.Geometry)

	for _, name := range names {
		_, _ = h.Write([]byte(name))
		v := f.Properties[name]
		t, ok := TypeOf(v)
		if !ok {
			_, _ = h.Write([]byte{0})
			continue
		}
		_, _ = h.Write([]byte{byte(t)})
		_, _ = h.Write([]byte(FormatValue(v)))
		_, _ = h.Write([]byte{0xff})
	}

	h1, h2 := h.Sum128()
	return Fingerprint{h1, h2}
}
