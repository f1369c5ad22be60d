// Package config loads cdxsum settings from YAML and validates option
// combinations before any input is opened.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/merge"
	"github.com/eunmann/cdxsum/pkg/source"
)

// ErrIncompatibleOptions indicates a combination of settings that cannot
// run together.
var ErrIncompatibleOptions = errors.New("incompatible options")

// Config holds all cdxsum configuration.
type Config struct {
	Summarize SummarizeConfig `yaml:"summarize"`
	Combine   CombineConfig   `yaml:"combine"`
	Overlap   OverlapConfig   `yaml:"overlap"`
	S3        S3Config        `yaml:"s3"`
	Outback   OutbackConfig   `yaml:"outback"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SummarizeConfig controls decoding and aggregation of index files.
type SummarizeConfig struct {
	Format       string `yaml:"format"` // auto | cdxj | cdx7 | cdxNbams | cdxNbamskrMSVg
	Monthly      bool   `yaml:"monthly"`
	FullHost     bool   `yaml:"fullhost"`
	AssumeSorted bool   `yaml:"assume_sorted"`
	Compact      bool   `yaml:"compact"`
	MinYear      int    `yaml:"min_year"`
	MaxYear      int    `yaml:"max_year"`
	Encoding     string `yaml:"encoding"` // utf-8 | latin1 | windows-1252
	Gzip         string `yaml:"gzip"`     // auto | force | never
}

// CombineConfig controls merging of summary files.
type CombineConfig struct {
	Yearly         bool   `yaml:"yearly"`
	Compact        bool   `yaml:"compact"`
	AggregateHosts string `yaml:"aggregate_hosts"` // none | lvl2 | publicsuffixlist
	AssumeSorted   bool   `yaml:"assume_sorted"`
}

// OverlapConfig controls overlap analysis and its report.
type OverlapConfig struct {
	Sep     string `yaml:"sep"`
	OutSep  string `yaml:"out_sep"`
	NoYear  bool   `yaml:"no_year"`
	NoTotal bool   `yaml:"no_total"`
	Output  string `yaml:"output"` // json | csv | xlsx
}

// S3Config configures the S3 client used for s3:// inputs.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// StageDir, when set, downloads s3:// inputs there before reading them.
	StageDir    string `yaml:"stage_dir"`
	Concurrency int    `yaml:"concurrency"`
}

// OutbackConfig configures an OutbackCDX server as input.
type OutbackConfig struct {
	URL               string  `yaml:"url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
	Human bool `yaml:"human"`
	// MemoryInterval, when positive, logs heap usage at debug level this often.
	MemoryInterval time.Duration `yaml:"memory_interval"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Summarize: SummarizeConfig{
			Format:   "auto",
			MinYear:  cdx.DefaultMinYear,
			MaxYear:  time.Now().Year(),
			Encoding: string(source.EncodingUTF8),
			Gzip:     string(source.CompressionAuto),
		},
		Combine: CombineConfig{
			AggregateHosts: merge.SimplifyNone,
		},
		Overlap: OverlapConfig{
			Sep:    " ",
			OutSep: ",",
			Output: "json",
		},
		S3: S3Config{
			Concurrency: 4,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Summarize.Validate(); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if err := c.Combine.Validate(); err != nil {
		return fmt.Errorf("combine: %w", err)
	}
	if err := c.Overlap.Validate(); err != nil {
		return fmt.Errorf("overlap: %w", err)
	}
	if c.S3.Concurrency < 1 {
		return fmt.Errorf("s3: concurrency must be at least 1, got %d", c.S3.Concurrency)
	}
	if c.Outback.RequestsPerSecond < 0 {
		return fmt.Errorf("outback: requests_per_second must not be negative")
	}
	return nil
}

// Validate checks names and the year range.
func (s SummarizeConfig) Validate() error {
	if _, err := cdx.ParseFormat(s.Format); err != nil {
		return err
	}
	if _, err := source.ParseEncoding(s.Encoding); err != nil {
		return err
	}
	if _, err := source.ParseCompression(s.Gzip); err != nil {
		return err
	}
	if s.MinYear > s.MaxYear {
		return fmt.Errorf("min_year %d is after max_year %d", s.MinYear, s.MaxYear)
	}
	return nil
}

// DecodeOptions returns the decoder settings. Call Validate first.
func (s SummarizeConfig) DecodeOptions() cdx.Options {
	return cdx.Options{
		Monthly:  s.Monthly,
		FullHost: s.FullHost,
		MinYear:  s.MinYear,
		MaxYear:  s.MaxYear,
	}
}

// SourceOptions returns the stream unwrapping settings. Call Validate first.
func (s SummarizeConfig) SourceOptions() source.Options {
	gz, _ := source.ParseCompression(s.Gzip)
	enc, _ := source.ParseEncoding(s.Encoding)
	return source.Options{Compression: gz, Encoding: enc}
}

// Validate rejects host aggregation that would break sorted merging.
func (c CombineConfig) Validate() error {
	simplify, err := merge.ParseSimplifier(c.AggregateHosts)
	if err != nil {
		return err
	}
	if c.AssumeSorted && !simplify.PreservesOrder() {
		return fmt.Errorf("%w: aggregate_hosts %s requires unsorted (batch) mode", ErrIncompatibleOptions, simplify.Name())
	}
	return nil
}

// Validate checks the separators and output kind.
func (o OverlapConfig) Validate() error {
	if o.Sep == "" {
		return errors.New("sep must not be empty")
	}
	switch o.Output {
	case "json", "csv", "xlsx":
	default:
		return fmt.Errorf("invalid output %q: must be one of json, csv, xlsx", o.Output)
	}
	return nil
}
