package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	geoconv "github.com/tingold/orb-geoconv"
	"github.com/tingold/orb-geoconv/internal/config"
)

// OutputOptions configure where and how the result is written. Flags left
// unset keep the configuration file values.
type OutputOptions struct {
	Output           string `short:"o" long:"output"            description:"Output file; the format follows its extension unless --to is set" required:"true"`
	To               string `short:"t" long:"to"                description:"Output format (shapefile, kml, kmz, geojson, csv, fgb)"`
	TargetCRS        string `long:"target-crs"                  description:"Reproject output to this CRS, e.g. EPSG:3857"`
	InputCRS         string `long:"input-crs"                   description:"CRS assigned to CSV inputs"`
	GeometryColumn   string `long:"geometry-column"             description:"CSV geometry column name"`
	GeometryEncoding string `long:"geometry-encoding"           description:"CSV geometry encoding" choice:"wkt" choice:"geojson" choice:"wkb"`
	Layer            string `short:"l" long:"layer"             description:"Output layer name"`
	Minify           bool   `long:"minify"                      description:"Minify KML output"`
	Index            bool   `long:"index"                       description:"Write a FlatGeobuf spatial index"`
	BBox             string `long:"bbox"                        description:"Keep features intersecting minx,miny,maxx,maxy"`
	Workers          int    `short:"w" long:"workers" env:"GEOCONV_WORKERS" description:"Concurrent reads (default: number of CPUs)"`
}

type convertCommand struct {
	ctx context.Context

	Out OutputOptions `group:"Output options"`

	Args struct {
		Input string `positional-arg-name:"input" description:"Input file"`
	} `positional-args:"yes" required:"yes"`
}

// Execute implements flags.Commander.
func (c *convertCommand) Execute([]string) error {
	opts, out, err := c.Out.options()
	if err != nil {
		return err
	}
	in, err := readInput(c.Args.Input)
	if err != nil {
		return err
	}

	res, err := geoconv.Convert(log.Logger.WithContext(c.ctx), in, out, opts)
	if err != nil {
		return err
	}
	return c.Out.save(res)
}

type mergeCommand struct {
	ctx context.Context

	Out            OutputOptions `group:"Output options"`
	DropDuplicates bool          `long:"drop-duplicates" description:"Drop features equal to an earlier one"`

	Args struct {
		Inputs []string `positional-arg-name:"inputs" description:"Input files, merged in order"`
	} `positional-args:"yes" required:"yes"`
}

// Execute implements flags.Commander.
func (c *mergeCommand) Execute([]string) error {
	opts, out, err := c.Out.options()
	if err != nil {
		return err
	}
	if c.DropDuplicates {
		opts.DropDuplicates = true
	}

	ins := make([]geoconv.Input, 0, len(c.Args.Inputs))
	for _, name := range c.Args.Inputs {
		in, err := readInput(name)
		if err != nil {
			return err
		}
		ins = append(ins, in)
	}

	res, err := geoconv.MergeAndConvert(log.Logger.WithContext(c.ctx), ins, out, opts)
	if err != nil {
		return err
	}
	return c.Out.save(res)
}

type formatsCommand struct{}

// Execute implements flags.Commander.
func (formatsCommand) Execute([]string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FORMAT\tEXTENSION")
	for _, f := range geoconv.Formats() {
		ext := f.Extension()
		if f == geoconv.KML {
			ext += ", .kmz"
		}
		fmt.Fprintf(w, "%s\t%s\n", f, ext)
	}
	return w.Flush()
}

func readInput(name string) (geoconv.Input, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return geoconv.Input{}, err
	}
	return geoconv.Input{Name: filepath.Base(name), Data: data}, nil
}

// options merges the configuration file with the flags and resolves the
// output format.
func (o *OutputOptions) options() (geoconv.Options, geoconv.Format, error) {
	cfg := config.Default()
	if global.ConfigFile != "" {
		loaded, err := config.Load(global.ConfigFile)
		if err != nil {
			return geoconv.Options{}, 0, err
		}
		cfg = loaded
	}

	if o.TargetCRS != "" {
		cfg.TargetCRS = o.TargetCRS
	}
	if o.InputCRS != "" {
		cfg.Read.CRS = o.InputCRS
	}
	if o.GeometryColumn != "" {
		cfg.Read.GeometryColumn = o.GeometryColumn
		cfg.Write.GeometryColumn = o.GeometryColumn
	}
	if o.GeometryEncoding != "" {
		cfg.Write.GeometryEncoding = o.GeometryEncoding
	}
	if o.Layer != "" {
		cfg.Write.LayerName = o.Layer
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
	cfg.Write.Minify = cfg.Write.Minify || o.Minify
	cfg.Write.IncludeIndex = cfg.Write.IncludeIndex || o.Index

	to := o.To
	if to == "" {
		to = strings.TrimPrefix(filepath.Ext(o.Output), ".")
	}
	out, err := geoconv.ParseFormat(to)
	if err != nil {
		return geoconv.Options{}, 0, fmt.Errorf("output format: %w", err)
	}
	if strings.EqualFold(to, "kmz") {
		cfg.Write.KMZ = true
	}

	opts, err := cfg.Options()
	if err != nil {
		return geoconv.Options{}, 0, err
	}
	if o.BBox != "" {
		b, err := parseBBox(o.BBox)
		if err != nil {
			return geoconv.Options{}, 0, err
		}
		opts.Bound = &b
	}
	return opts, out, nil
}

func (o *OutputOptions) save(res *geoconv.Result) error {
	if err := os.WriteFile(o.Output, res.Data, 0o644); err != nil {
		return err
	}
	log.Info().
		Str("request_id", res.RequestID).
		Str("output", o.Output).
		Stringer("format", res.Format).
		Int("features", res.Collection.Len()).
		Stringer("crs", res.Collection.CRS).
		Int("warnings", len(res.Warnings)).
		Int("bytes", len(res.Data)).
		Msg("Output written")
	return nil
}

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: expected minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
