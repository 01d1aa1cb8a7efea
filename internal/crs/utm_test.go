package crs

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
)

func TestUTMForward_CentralMeridian(t *testing.T) {
	tests := []struct {
		name     string
		zone     utm
		in       orb.Point
		expected orb.Point
	}{
		{"equator zone 31", utm{zone: 31, north: true}, orb.Point{3, 0}, orb.Point{500000, 0}},
		{"equator zone 33 south", utm{zone: 33, north: false}, orb.Point{15, 0}, orb.Point{500000, 10000000}},
		{"45N zone 32", utm{zone: 32, north: true}, orb.Point{9, 45}, orb.Point{500000, 4982950.40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.zone.forward(tt.in)
			if math.Abs(got[0]-tt.expected[0]) > 0.01 || math.Abs(got[1]-tt.expected[1]) > 0.01 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestUTM_EastingGrowsEastward(t *testing.T) {
	u := utm{zone: 33, north: true}
	west := u.forward(orb.Point{14, 50})
	east := u.forward(orb.Point{16, 50})
	if !(west[0] < 500000 && east[0] > 500000) {
		t.Errorf("unexpected eastings west=%v east=%v", west[0], east[0])
	}
	if math.Abs((500000-west[0])-(east[0]-500000)) > 0.01 {
		t.Errorf("expected symmetric eastings around the central meridian, got %v and %v", west[0], east[0])
	}
}

func TestProperty_UTMRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("inverse(forward(p)) stays within 1e-5 degrees", prop.ForAll(
		func(zone int, dlon, lat float64, north bool) bool {
			u := utm{zone: zone, north: north}
			if !north {
				lat = -lat
			}
			p := orb.Point{u.centralMeridian() + dlon, lat}
			back := u.inverse(u.forward(p))
			return math.Abs(back[0]-p[0]) < 1e-5 && math.Abs(back[1]-p[1]) < 1e-5
		},
		gen.IntRange(1, 60),
		gen.Float64Range(-3, 3),
		gen.Float64Range(0, 80),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
