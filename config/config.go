// Package config loads codec settings from a TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/janelia-flyem/dicomseg/cache"
	"github.com/janelia-flyem/dicomseg/geom"
	"github.com/janelia-flyem/dicomseg/labelmap"
	"github.com/janelia-flyem/dicomseg/packing"
	"github.com/janelia-flyem/dicomseg/seg"
)

// DecodeConfig holds the [decode] settings.
type DecodeConfig struct {
	Tolerance        float64 `toml:"tolerance" yaml:"tolerance"`
	ChunkFraction    float64 `toml:"chunk_fraction" yaml:"chunk_fraction"`
	MaxBytesPerChunk int     `toml:"max_bytes_per_chunk" yaml:"max_bytes_per_chunk"`
	Workers          int     `toml:"workers" yaml:"workers"`
	SkipOverlapCheck bool    `toml:"skip_overlap_check" yaml:"skip_overlap_check"`

	// ToolVersion selects the decoding variant, e.g., "3.8" or "4.0.0".
	ToolVersion string `toml:"tool_version" yaml:"tool_version"`
}

// Options returns decoder options for these settings.  Progress and Yield are
// left for the caller.
func (c DecodeConfig) Options() labelmap.Options {
	return labelmap.Options{
		Tolerance:        c.Tolerance,
		ChunkFraction:    c.ChunkFraction,
		MaxBytesPerChunk: c.MaxBytesPerChunk,
		Workers:          c.Workers,
		SkipOverlapCheck: c.SkipOverlapCheck,
	}
}

// EncodeConfig holds the [encode] settings.
type EncodeConfig struct {
	RLE               bool   `toml:"rle" yaml:"rle"`
	SeriesDescription string `toml:"series_description" yaml:"series_description"`
	ContentLabel      string `toml:"content_label" yaml:"content_label"`
}

// Config is the complete configuration.
type Config struct {
	Decode  DecodeConfig  `toml:"decode" yaml:"decode"`
	Encode  EncodeConfig  `toml:"encode" yaml:"encode"`
	Cache   cache.Config  `toml:"cache" yaml:"cache"`
	Logging seg.LogConfig `toml:"logging" yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Decode: DecodeConfig{
			Tolerance:        geom.DefaultTolerance,
			ChunkFraction:    labelmap.DefaultChunkFraction,
			MaxBytesPerChunk: packing.DefaultMaxBytesPerChunk,
			ToolVersion:      labelmap.CurrentVersion,
		},
		Encode: EncodeConfig{ContentLabel: "SEGMENTATION"},
		Cache: cache.Config{
			SizeMB:      cache.DefaultSizeMB,
			Compression: "snappy",
		},
	}
}

// LoadConfig reads configuration from a TOML file, or a YAML file if the name ends
// in .yaml or .yml.  Settings absent from the file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no configuration file provided")
	}
	c := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("could not decode YAML config %s: %v", filename, err)
		}
	default:
		md, err := toml.DecodeFile(filename, c)
		if err != nil {
			return nil, fmt.Errorf("could not decode TOML config %s: %v", filename, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			seg.Warningf("Ignoring unknown settings in %s: %v\n", filename, undecoded)
		}
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	if err := c.Check(); err != nil {
		return nil, fmt.Errorf("config %s: %v", filename, err)
	}
	seg.Debugf("config: %+v\n", *c)
	return c, nil
}

// Check returns an error for settings that cannot be used.
func (c *Config) Check() error {
	if _, err := labelmap.SelectVariant(c.Decode.ToolVersion); err != nil {
		return err
	}
	if c.Decode.ChunkFraction < 0 || c.Decode.ChunkFraction > 1 {
		return fmt.Errorf("chunk_fraction must be in (0, 1], got %g", c.Decode.ChunkFraction)
	}
	if c.Decode.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative, got %g", c.Decode.Tolerance)
	}
	if _, err := seg.ParseCompression(c.Cache.Compression); err != nil {
		return fmt.Errorf("cache: %v", err)
	}
	return nil
}

// The log file can be given relative to the config file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	if c.Logging.Logfile == "" || filepath.IsAbs(c.Logging.Logfile) {
		return nil
	}
	path, err := filepath.Abs(filepath.Join(filepath.Dir(configPath), c.Logging.Logfile))
	if err != nil {
		return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
	}
	c.Logging.Logfile = path
	return nil
}
