// Package shpio reads and writes ESRI shapefile bundles packed in zip
// archives.
package shpio

import (
	"path"
	"strings"

	"github.com/tingold/orb-geoconv/internal/archive"
	"github.com/tingold/orb-geoconv/internal/crs"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Adapter implements the shapefile format.
type Adapter struct{}

// Read decodes the shapefile held in a zip archive. When the archive holds
// several .shp files the lexicographically first is read and the others are
// reported in a MultipleShapefiles warning.
func (Adapter) Read(data []byte, opts geodata.ReadOptions) (*geodata.FeatureCollection, geodata.Warnings, error) {
	if !archive.IsZip(data) {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile, "input is not a zip archive")
	}
	fsys, err := archive.Open(data)
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile, "unreadable archive").Wrap(err)
	}
	files, err := archive.Files(fsys)
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile, "unreadable archive").Wrap(err)
	}

	shps := archive.WithExt(files, ".shp")
	if len(shps) == 0 {
		return nil, nil, geodata.NewError(geodata.ErrNoShapefileFound, geodata.FormatShapefile,
			"archive holds %d files and no .shp", len(files))
	}

	var warnings geodata.Warnings
	shpName := shps[0]
	if len(shps) > 1 {
		warnings = append(warnings, geodata.Warn(geodata.WarnMultipleShapefiles,
			"read %s, ignored %s", shpName, strings.Join(shps[1:], ", ")))
	}
	base := strings.TrimSuffix(shpName, path.Ext(shpName))

	read := func(ext string, required bool) ([]byte, error) {
		name, ok := archive.Sibling(files, base, ext)
		if !ok {
			if required {
				return nil, geodata.Malformed(geodata.FormatShapefile, "%s has no %s sibling", shpName, ext)
			}
			return nil, nil
		}
		b, err := archive.ReadFile(fsys, name)
		if err != nil {
			return nil, geodata.Malformed(geodata.FormatShapefile, "%s", name).Wrap(err)
		}
		return b, nil
	}

	shpData, err := read(".shp", true)
	if err != nil {
		return nil, nil, err
	}
	dbfData, err := read(".dbf", true)
	if err != nil {
		return nil, nil, err
	}
	prjData, err := read(".prj", false)
	if err != nil {
		return nil, nil, err
	}
	cpgData, err := read(".cpg", false)
	if err != nil {
		return nil, nil, err
	}

	shapes, err := decodeShapes(shpData)
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile, "%s", path.Base(shpName)).Wrap(err)
	}
	table, err := decodeDBF(dbfData, string(cpgData))
	if err != nil {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile, "%s.dbf", path.Base(base)).Wrap(err)
	}
	if len(table.records) != len(shapes) {
		return nil, nil, geodata.Malformed(geodata.FormatShapefile,
			"%d shapes but %d attribute records", len(shapes), len(table.records))
	}

	fc := geodata.NewFeatureCollection(path.Base(base), crs.ParsePRJ(string(prjData)))
	for _, f := range table.fields {
		fc.Schema.Add(f.name, f.valueType())
	}
	for i, g := range shapes {
		attrs := make([]geodata.Attr, len(table.fields))
		for j, f := range table.fields {
			attrs[j] = geodata.Attr{Name: f.name, Value: table.records[i][j]}
		}
		if err := fc.Append(g, attrs...); err != nil {
			return nil, nil, geodata.Malformed(geodata.FormatShapefile, "record %d", i+1).Wrap(err)
		}
	}
	fc.Normalize()
	return fc, warnings, nil
}
