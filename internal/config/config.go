// Package config loads pipeline defaults from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	geoconv "github.com/tingold/orb-geoconv"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Config represents the root configuration file structure.
type Config struct {
	Workers        int    `yaml:"workers,omitempty"`
	TargetCRS      string `yaml:"target_crs,omitempty"`
	DropDuplicates bool   `yaml:"drop_duplicates,omitempty"`
	Read           Read   `yaml:"read"`
	Write          Write  `yaml:"write"`
	Server         Server `yaml:"server"`
}

// Read holds reader defaults.
type Read struct {
	GeometryColumn string `yaml:"geometry_column,omitempty"`
	CRS            string `yaml:"crs,omitempty"` // assigned to CSV inputs
}

// Write holds writer defaults.
type Write struct {
	LayerName        string `yaml:"layer_name,omitempty"`
	GeometryColumn   string `yaml:"geometry_column,omitempty"`
	GeometryEncoding string `yaml:"geometry_encoding,omitempty"`
	KMZ              bool   `yaml:"kmz,omitempty"`
	Minify           bool   `yaml:"minify,omitempty"`
	IncludeIndex     bool   `yaml:"index,omitempty"`
}

// Server holds HTTP endpoint settings.
type Server struct {
	MaxUploadMB int `yaml:"max_upload_mb,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Read:   Read{GeometryColumn: geodata.DefaultGeometryColumn},
		Write:  Write{GeometryColumn: geodata.DefaultGeometryColumn, GeometryEncoding: string(geodata.EncodingWKT)},
		Server: Server{MaxUploadMB: 64},
	}
}

// Load reads and parses the YAML configuration file from the specified
// path. Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if _, err := cfg.Options(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the configuration into pipeline options.
func (c *Config) Options() (geoconv.Options, error) {
	if c.Workers < 0 {
		return geoconv.Options{}, fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	target, err := geodata.ParseCRS(c.TargetCRS)
	if err != nil {
		return geoconv.Options{}, fmt.Errorf("target_crs: %w", err)
	}
	readCRS, err := geodata.ParseCRS(c.Read.CRS)
	if err != nil {
		return geoconv.Options{}, fmt.Errorf("read.crs: %w", err)
	}
	encoding, err := geodata.ParseGeometryEncoding(c.Write.GeometryEncoding)
	if err != nil {
		return geoconv.Options{}, fmt.Errorf("write.geometry_encoding: %w", err)
	}

	return geoconv.Options{
		Workers:        c.Workers,
		TargetCRS:      target,
		DropDuplicates: c.DropDuplicates,
		Read: geodata.ReadOptions{
			GeometryColumn: c.Read.GeometryColumn,
			CRS:            readCRS,
		},
		Write: geodata.WriteOptions{
			LayerName:        c.Write.LayerName,
			GeometryColumn:   c.Write.GeometryColumn,
			GeometryEncoding: encoding,
			KMZ:              c.Write.KMZ,
			Minify:           c.Write.Minify,
			IncludeIndex:     c.Write.IncludeIndex,
		},
	}, nil
}
