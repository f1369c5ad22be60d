package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/source"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Summarize.MinYear != cdx.DefaultMinYear {
		t.Errorf("MinYear = %d, want %d", cfg.Summarize.MinYear, cdx.DefaultMinYear)
	}
	if cfg.Overlap.Sep != " " || cfg.Overlap.OutSep != "," {
		t.Errorf("overlap separators = %q, %q", cfg.Overlap.Sep, cfg.Overlap.OutSep)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Summarize.Format != "auto" {
			t.Errorf("Format = %q, want auto", cfg.Summarize.Format)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cdxsum.yaml")
		data := `
summarize:
  format: cdxj
  monthly: true
  encoding: latin1
combine:
  aggregate_hosts: lvl2
overlap:
  out_sep: ";"
  output: csv
s3:
  region: eu-west-1
  path_style: true
outback:
  url: http://localhost:8080
  requests_per_second: 2.5
logging:
  memory_interval: 5s
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}

		if !cfg.Summarize.Monthly || cfg.Summarize.Format != "cdxj" {
			t.Errorf("summarize = %+v", cfg.Summarize)
		}
		if cfg.Summarize.MinYear != cdx.DefaultMinYear {
			t.Errorf("unset min_year = %d, want default", cfg.Summarize.MinYear)
		}
		if got := cfg.Summarize.SourceOptions().Encoding; got != source.EncodingLatin1 {
			t.Errorf("encoding = %q", got)
		}
		if cfg.Combine.AggregateHosts != "lvl2" {
			t.Errorf("aggregate_hosts = %q", cfg.Combine.AggregateHosts)
		}
		if cfg.Overlap.OutSep != ";" || cfg.Overlap.Sep != " " || cfg.Overlap.Output != "csv" {
			t.Errorf("overlap = %+v", cfg.Overlap)
		}
		if cfg.S3.Region != "eu-west-1" || !cfg.S3.PathStyle || cfg.S3.Concurrency != 4 {
			t.Errorf("s3 = %+v", cfg.S3)
		}
		if cfg.Logging.MemoryInterval != 5*time.Second {
			t.Errorf("memory_interval = %v", cfg.Logging.MemoryInterval)
		}
		if cfg.Outback.RequestsPerSecond != 2.5 {
			t.Errorf("outback = %+v", cfg.Outback)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("summarize: [1, 2"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		incompatible bool
	}{
		{"unknown format", func(c *Config) { c.Summarize.Format = "warc" }, false},
		{"unknown encoding", func(c *Config) { c.Summarize.Encoding = "ebcdic" }, false},
		{"unknown gzip mode", func(c *Config) { c.Summarize.Gzip = "sometimes" }, false},
		{"inverted years", func(c *Config) { c.Summarize.MinYear, c.Summarize.MaxYear = 2020, 2010 }, false},
		{"unknown aggregation", func(c *Config) { c.Combine.AggregateHosts = "tld" }, false},
		{"sorted with lvl2", func(c *Config) {
			c.Combine.AssumeSorted = true
			c.Combine.AggregateHosts = "lvl2"
		}, true},
		{"sorted with public suffix", func(c *Config) {
			c.Combine.AssumeSorted = true
			c.Combine.AggregateHosts = "publicsuffixlist"
		}, true},
		{"empty sep", func(c *Config) { c.Overlap.Sep = "" }, false},
		{"unknown output", func(c *Config) { c.Overlap.Output = "html" }, false},
		{"zero concurrency", func(c *Config) { c.S3.Concurrency = 0 }, false},
		{"negative rate", func(c *Config) { c.Outback.RequestsPerSecond = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrIncompatibleOptions); got != tt.incompatible {
				t.Errorf("errors.Is(ErrIncompatibleOptions) = %v for %v", got, err)
			}
		})
	}

	cfg := Default()
	cfg.Combine.AssumeSorted = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("sorted combine without aggregation: %v", err)
	}
}
