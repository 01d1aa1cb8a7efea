package geodata

import (
	"fmt"
	"strconv"
	"strings"
)

// CRS represents a coordinate reference system. The zero value is the
// unknown CRS.
type CRS struct {
	Code int    // EPSG code (e.g., 4326 for WGS84), 0 when not known
	Name string // CRS name
	WKT  string // Well-Known Text the CRS was read from, when known
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() CRS {
	return CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// WebMercator returns the spherical Mercator CRS (EPSG:3857).
func WebMercator() CRS {
	return CRS{
		Code: 3857,
		Name: "WGS 84 / Pseudo-Mercator",
	}
}

// EPSG returns the CRS for an EPSG code. Deprecated and vendor aliases of
// Web Mercator are folded into 3857.
func EPSG(code int) CRS {
	switch code {
	case 4326:
		return WGS84()
	case 3857, 900913, 3785, 102100, 102113:
		return WebMercator()
	}
	if zone, north, ok := UTMZone(code); ok {
		hemi := "N"
		if !north {
			hemi = "S"
		}
		return CRS{Code: code, Name: fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi)}
	}
	return CRS{Code: code, Name: fmt.Sprintf("EPSG:%d", code)}
}

// UTMZone decodes a WGS84 UTM EPSG code (326zz north, 327zz south).
func UTMZone(code int) (zone int, north bool, ok bool) {
	switch {
	case code >= 32601 && code <= 32660:
		return code - 32600, true, true
	case code >= 32701 && code <= 32760:
		return code - 32700, false, true
	}
	return 0, false, false
}

// IsUnknown reports whether c carries no reference information at all.
func (c CRS) IsUnknown() bool {
	return c.Code == 0 && c.WKT == "" && c.Name == ""
}

// Equal reports whether c and o identify the same CRS.
func (c CRS) Equal(o CRS) bool {
	if c.Code != 0 || o.Code != 0 {
		return c.Code == o.Code
	}
	if c.WKT != "" || o.WKT != "" {
		return strings.TrimSpace(c.WKT) == strings.TrimSpace(o.WKT)
	}
	return c.Name == o.Name
}

func (c CRS) String() string {
	switch {
	case c.Code != 0:
		return fmt.Sprintf("EPSG:%d", c.Code)
	case c.Name != "":
		return c.Name
	case c.WKT != "":
		return "custom"
	}
	return "unknown"
}

// URN returns the OGC URN form used by legacy GeoJSON crs members.
func (c CRS) URN() string {
	if c.Code == 0 {
		return c.Name
	}
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", c.Code)
}

// ParseCRS parses the textual CRS identifiers found in GeoJSON documents,
// configuration files and command lines: "EPSG:4326", "4326",
// "urn:ogc:def:crs:EPSG::4326", "urn:ogc:def:crs:OGC:1.3:CRS84",
// "http://www.opengis.net/def/crs/EPSG/0/4326" and "unknown".
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch lower {
	case "", "unknown":
		return CRS{}, nil
	case "crs84", "ogc:crs84", "urn:ogc:def:crs:ogc:1.3:crs84", "urn:ogc:def:crs:ogc::crs84",
		"http://www.opengis.net/def/crs/ogc/1.3/crs84", "wgs84":
		return WGS84(), nil
	}

	code := ""
	switch {
	case strings.HasPrefix(lower, "epsg:"):
		code = s[len("epsg:"):]
	case strings.HasPrefix(lower, "urn:ogc:def:crs:epsg:"):
		code = s[strings.LastIndex(s, ":")+1:]
	case strings.HasPrefix(lower, "http://www.opengis.net/def/crs/epsg/"):
		code = s[strings.LastIndex(s, "/")+1:]
	default:
		code = s
	}

	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return CRS{}, NewError(ErrCRSMismatch, FormatUnknown, "unrecognised CRS identifier %q", s)
	}
	return EPSG(n), nil
}
