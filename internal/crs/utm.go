package crs

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS84 ellipsoid and UTM constants.
const (
	semiMajor     = 6378137.0
	flattening    = 1 / 298.257223563
	utmScale      = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

var (
	ecc2  = flattening * (2 - flattening) // first eccentricity squared
	eccp2 = ecc2 / (1 - ecc2)             // second eccentricity squared
)

// utm implements the transverse Mercator series for one WGS84 UTM zone.
type utm struct {
	zone  int
	north bool
}

func (u utm) centralMeridian() float64 {
	return float64(u.zone-1)*6 - 180 + 3
}

// meridianArc is the distance along the meridian from the equator to phi.
func meridianArc(phi float64) float64 {
	e4 := ecc2 * ecc2
	e6 := e4 * ecc2
	return semiMajor * ((1-ecc2/4-3*e4/64-5*e6/256)*phi -
		(3*ecc2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// forward projects a lon/lat point to easting/northing.
func (u utm) forward(p orb.Point) orb.Point {
	phi := deg2rad(p[1])
	dlam := deg2rad(p[0] - u.centralMeridian())

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := semiMajor / math.Sqrt(1-ecc2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := eccp2 * cosPhi * cosPhi
	a := cosPhi * dlam
	m := meridianArc(phi)

	x := utmScale*n*(a+(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*eccp2)*math.Pow(a, 5)/120) + falseEasting

	y := utmScale * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*eccp2)*math.Pow(a, 6)/720))
	if !u.north {
		y += falseNorthing
	}

	return orb.Point{x, y}
}

// inverse converts easting/northing back to lon/lat.
func (u utm) inverse(p orb.Point) orb.Point {
	x := p[0] - falseEasting
	y := p[1]
	if !u.north {
		y -= falseNorthing
	}

	e4 := ecc2 * ecc2
	e6 := e4 * ecc2
	m := y / utmScale
	mu := m / (semiMajor * (1 - ecc2/4 - 3*e4/64 - 5*e6/256))

	e1 := (1 - math.Sqrt(1-ecc2)) / (1 + math.Sqrt(1-ecc2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	n1 := semiMajor / math.Sqrt(1-ecc2*sinPhi1*sinPhi1)
	t1 := tanPhi1 * tanPhi1
	c1 := eccp2 * cosPhi1 * cosPhi1
	r1 := semiMajor * (1 - ecc2) / math.Pow(1-ecc2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * utmScale)

	phi := phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*eccp2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*eccp2-3*c1*c1)*math.Pow(d, 6)/720)

	lam := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*eccp2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	return orb.Point{u.centralMeridian() + rad2deg(lam), rad2deg(phi)}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
