package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/ingest"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

type summarizeFlags struct {
	format       string
	monthly      bool
	fullHost     bool
	assumeSorted bool
	compact      bool
	gz, noGz     bool
	encoding     string
	minYear      int
	maxYear      int
	outback      string
	stageDir     string
	output       string
}

func (a *app) summarizeCmd() *cobra.Command {
	var f summarizeFlags
	cmd := &cobra.Command{
		Use:   "summarize [files...]",
		Short: "Count captures per host and year from CDX/CDXJ files",
		Long: `Summarize reads index files and writes one line per host:

  <host> {"<bucket>": {"n_html": ..., "s_html": ..., ...}, ...}

The format of each file is detected from its first line unless --format is
given. The 10-field legacy layout cannot be detected and needs --format.

Examples:
  cdxsum summarize crawl-*.cdxj.gz > summary.txt
  cdxsum summarize --monthly --fullhost -o summary.txt index.cdx
  cdxsum summarize --format cdxNbamskrMSVg --outback http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSummarize(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "auto", "input format: auto, cdxj, cdx7, cdxNbams, cdxNbamskrMSVg")
	fl.BoolVar(&f.monthly, "monthly", false, "bucket by YYYYMM instead of YYYY")
	fl.BoolVar(&f.fullHost, "fullhost", false, "aggregate by full host instead of level-2 domain")
	fl.BoolVar(&f.assumeSorted, "assume-sorted", false, "input is sorted by key; emit each host as soon as it is complete")
	fl.BoolVar(&f.compact, "compact", false, "omit zero counters")
	fl.BoolVar(&f.gz, "gz", false, "always decompress input")
	fl.BoolVar(&f.noGz, "nogz", false, "never decompress input")
	fl.StringVar(&f.encoding, "encoding", "utf-8", "input text encoding: utf-8, latin1, windows-1252")
	fl.IntVar(&f.minYear, "min-year", cdx.DefaultMinYear, "earliest accepted capture year")
	fl.IntVar(&f.maxYear, "max-year", 0, "latest accepted capture year (default: current year)")
	fl.StringVar(&f.outback, "outback", "", "also read every collection of this OutbackCDX server")
	fl.StringVar(&f.stageDir, "stage-dir", "", "download s3:// inputs here before reading")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	cmd.MarkFlagsMutuallyExclusive("gz", "nogz")
	return cmd
}

func (a *app) applySummarizeFlags(cmd *cobra.Command, f summarizeFlags) error {
	fl := cmd.Flags()
	s := &a.cfg.Summarize
	override(fl.Changed("format"), &s.Format, f.format)
	override(fl.Changed("monthly"), &s.Monthly, f.monthly)
	override(fl.Changed("fullhost"), &s.FullHost, f.fullHost)
	override(fl.Changed("assume-sorted"), &s.AssumeSorted, f.assumeSorted)
	override(fl.Changed("compact"), &s.Compact, f.compact)
	override(fl.Changed("encoding"), &s.Encoding, f.encoding)
	override(fl.Changed("min-year"), &s.MinYear, f.minYear)
	override(fl.Changed("max-year"), &s.MaxYear, f.maxYear)
	override(f.gz, &s.Gzip, string(source.CompressionForce))
	override(f.noGz, &s.Gzip, string(source.CompressionNever))
	override(fl.Changed("outback"), &a.cfg.Outback.URL, f.outback)
	override(fl.Changed("stage-dir"), &a.cfg.S3.StageDir, f.stageDir)
	return a.cfg.Validate()
}

func (a *app) runSummarize(cmd *cobra.Command, args []string, f summarizeFlags) error {
	if err := a.applySummarizeFlags(cmd, f); err != nil {
		return err
	}
	s := a.cfg.Summarize
	format, _ := cdx.ParseFormat(s.Format)

	ctx := phaseContext(cmd.Context(), "summarize")
	var inputs []source.Input
	if len(args) > 0 || a.cfg.Outback.URL == "" {
		in, err := a.resolveInputs(ctx, args, s.SourceOptions())
		if err != nil {
			return err
		}
		inputs = in
	}
	if a.cfg.Outback.URL != "" {
		ob := source.NewOutback(source.OutbackConfig{
			URL:               a.cfg.Outback.URL,
			RequestsPerSecond: a.cfg.Outback.RequestsPerSecond,
		})
		in, err := ob.Inputs(ctx)
		if err != nil {
			return fmt.Errorf("list outback collections: %w", err)
		}
		inputs = append(inputs, in...)
	}

	return a.writeOutput(f.output, func(w io.Writer) error {
		sw := summary.NewWriter(w, s.Compact)
		agg := summary.NewAggregator(ctx, nil, sw, summary.AggregatorConfig{AssumeSorted: s.AssumeSorted})

		_, runErr := ingest.Run(ctx, inputs, agg, ingest.Options{
			Format: format,
			Decode: s.DecodeOptions(),
		})
		closeErr := agg.Close()
		flushErr := sw.Flush()
		log := logctx.FromContext(ctx)
		log.Info().Int64("lines", sw.Lines()).Msg("summary written")
		return errors.Join(runErr, closeErr, flushErr)
	})
}
