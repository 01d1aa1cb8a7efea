package crs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

var (
	authorityRe = regexp.MustCompile(`\b(?:AUTHORITY|ID)\[\s*"EPSG"\s*,\s*"?(\d+)"?`)
	rootRe      = regexp.MustCompile(`^\s*(PROJCS|GEOGCS|PROJCRS|GEOGCRS|GEODCRS)\s*\[\s*"([^"]*)"`)
	utmNameRe   = regexp.MustCompile(`(?i)UTM[_ ]zone[_ ](\d{1,2})([NS])`)
)

const esriGeogcs = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// ParsePRJ derives a CRS from the WKT text of a shapefile .prj sidecar.
// The root EPSG authority wins; well-known WGS84 based names are matched
// next; anything else is kept as a custom CRS. The text is always kept in
// the WKT field so it can be written back unchanged.
func ParsePRJ(wkt string) geodata.CRS {
	wkt = strings.TrimSpace(strings.TrimPrefix(wkt, "\ufeff"))
	if wkt == "" {
		return geodata.CRS{}
	}
	root := rootRe.FindStringSubmatch(wkt)

	if code, ok := rootAuthority(wkt); ok {
		c := geodata.EPSG(code)
		if root != nil && c.Name == fmt.Sprintf("EPSG:%d", code) {
			c.Name = root[2]
		}
		c.WKT = wkt
		return c
	}

	if root == nil {
		return geodata.CRS{WKT: wkt}
	}
	c := wellKnown(root[1], root[2], wkt)
	c.WKT = wkt
	return c
}

// wellKnown matches WGS84 based systems by name. Unmatched systems keep
// only their name.
func wellKnown(kind, name, wkt string) geodata.CRS {
	wgs := strings.Contains(strings.ToUpper(wkt), "WGS_1984") || strings.Contains(strings.ToUpper(wkt), "WGS 84")

	switch {
	case strings.HasPrefix(kind, "GEOG") && isWGS84Name(name):
		return geodata.WGS84()
	case strings.HasPrefix(kind, "PROJ") && isWebMercatorName(name):
		return geodata.WebMercator()
	case strings.HasPrefix(kind, "PROJ") && wgs:
		if m := utmNameRe.FindStringSubmatch(name); m != nil {
			zone, _ := strconv.Atoi(m[1])
			if zone >= 1 && zone <= 60 {
				code := 32600 + zone
				if strings.EqualFold(m[2], "S") {
					code = 32700 + zone
				}
				return geodata.EPSG(code)
			}
		}
	}
	return geodata.CRS{Name: name}
}

// rootAuthority returns the EPSG code attached directly to the root
// element, ignoring authorities of nested elements such as GEOGCS.
func rootAuthority(wkt string) (int, bool) {
	for _, loc := range authorityRe.FindAllStringSubmatchIndex(wkt, -1) {
		if bracketDepth(wkt[:loc[0]]) != 1 {
			continue
		}
		code, err := strconv.Atoi(wkt[loc[2]:loc[3]])
		if err == nil {
			return code, true
		}
	}
	return 0, false
}

func bracketDepth(s string) int {
	depth := 0
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			depth--
		}
	}
	return depth
}

func isWGS84Name(name string) bool {
	switch strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(name)) {
	case "GCS_WGS_1984", "WGS_84", "WGS84", "WGS_1984":
		return true
	}
	return false
}

func isWebMercatorName(name string) bool {
	n := strings.ToUpper(name)
	return strings.Contains(n, "WEB_MERCATOR") ||
		strings.Contains(n, "PSEUDO-MERCATOR") ||
		strings.Contains(n, "PSEUDO_MERCATOR") ||
		strings.Contains(n, "POPULAR VISUALISATION")
}

// FormatPRJ returns the WKT text for c: the text c was read from when it
// carries one, else ESRI WKT generated for WGS84, Web Mercator and the UTM
// zones. ok is false when c is unknown or has an EPSG code this package
// cannot describe.
func FormatPRJ(c geodata.CRS) (wkt string, ok bool) {
	switch {
	case c.IsUnknown():
		return "", false
	case c.WKT != "":
		return c.WKT, true
	case c.Code == 4326:
		return esriGeogcs, true
	case c.Code == 3857:
		return `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",` + esriGeogcs +
			`,PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],` +
			`PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",0.0],` +
			`PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`, true
	}
	if zone, north, isUTM := geodata.UTMZone(c.Code); isUTM {
		hemi, northing := "N", 0.0
		if !north {
			hemi, northing = "S", falseNorthing
		}
		u := utm{zone: zone, north: north}
		return fmt.Sprintf(`PROJCS["WGS_1984_UTM_Zone_%d%s",%s,PROJECTION["Transverse_Mercator"],`+
			`PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",%.1f],`+
			`PARAMETER["Central_Meridian",%.1f],PARAMETER["Scale_Factor",0.9996],`+
			`PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`,
			zone, hemi, esriGeogcs, northing, u.centralMeridian()), true
	}
	return "", false
}
