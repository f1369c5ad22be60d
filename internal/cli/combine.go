package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/export"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/merge"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

type combineFlags struct {
	yearly         bool
	compact        bool
	aggregateHosts string
	assumeSorted   bool
	output         string
}

func (a *app) combineCmd() *cobra.Command {
	var f combineFlags
	cmd := &cobra.Command{
		Use:   "combine [summary files...]",
		Short: "Add summary files together",
		Long: `Combine sums the counters of every host found in several summary files.

Without --assume-sorted all hosts are held in memory. With it the files are
merged in one pass and must each be sorted by host. Host aggregation does not
preserve sort order and cannot be used with --assume-sorted.

Examples:
  cdxsum combine part-*.txt > all.txt
  cdxsum combine --assume-sorted --yearly -o all.txt part-*.txt
  cdxsum combine --aggregate-hosts publicsuffixlist all.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCombine(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.yearly, "yearly", false, "fold monthly buckets into years")
	fl.BoolVar(&f.compact, "compact", false, "omit zero counters")
	fl.StringVar(&f.aggregateHosts, "aggregate-hosts", "none", "host aggregation: none, lvl2, publicsuffixlist")
	fl.BoolVar(&f.assumeSorted, "assume-sorted", false, "inputs are sorted by host; merge in one pass")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) applyCombineFlags(cmd *cobra.Command, f combineFlags) error {
	fl := cmd.Flags()
	c := &a.cfg.Combine
	override(fl.Changed("yearly"), &c.Yearly, f.yearly)
	override(fl.Changed("compact"), &c.Compact, f.compact)
	override(fl.Changed("aggregate-hosts"), &c.AggregateHosts, f.aggregateHosts)
	override(fl.Changed("assume-sorted"), &c.AssumeSorted, f.assumeSorted)
	return a.cfg.Validate()
}

func (a *app) combineOptions() merge.CombineOptions {
	c := a.cfg.Combine
	simplify, _ := merge.ParseSimplifier(c.AggregateHosts)
	return merge.CombineOptions{
		Yearly:       c.Yearly,
		AssumeSorted: c.AssumeSorted,
		Simplifier:   simplify,
	}
}

func (a *app) runCombine(cmd *cobra.Command, args []string, f combineFlags) error {
	if err := a.applyCombineFlags(cmd, f); err != nil {
		return err
	}
	ctx := phaseContext(cmd.Context(), "combine")
	inputs, err := a.resolveInputs(ctx, args, a.cfg.Summarize.SourceOptions())
	if err != nil {
		return err
	}

	return a.writeOutput(f.output, func(w io.Writer) error {
		sw := summary.NewWriter(w, a.cfg.Combine.Compact)
		_, err := merge.Combine(ctx, inputs, sw, a.combineOptions())
		flushErr := sw.Flush()
		log := logctx.FromContext(ctx)
		log.Info().Int64("lines", sw.Lines()).Msg("summary written")
		return errors.Join(err, flushErr)
	})
}

func (a *app) exportCmd() *cobra.Command {
	var (
		f      combineFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "export -o out.parquet [summary files...]",
		Short: "Write summary files as parquet",
		Long: `Export combines summary files and writes one parquet row per host and
bucket, with host, bucket, year and all 26 counters as columns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyCombineFlags(cmd, f); err != nil {
				return err
			}
			ctx := phaseContext(cmd.Context(), "export")
			inputs, err := a.resolveInputs(ctx, args, a.cfg.Summarize.SourceOptions())
			if err != nil {
				return err
			}

			start := time.Now()
			var rows, hosts int64
			err = a.writeOutput(output, func(w io.Writer) error {
				pw := export.NewWriter(w)
				_, err := merge.Combine(ctx, inputs, pw, a.combineOptions())
				if err != nil {
					return err
				}
				if err := pw.Close(); err != nil {
					return err
				}
				rows, hosts = pw.Rows(), pw.Hosts()
				return nil
			})
			if err != nil {
				return err
			}
			logging.FileCreated(logctx.FromContext(ctx), "export", time.Since(start)).
				Str("path", output).
				Count("rows", rows).
				Count("hosts", hosts).
				Log("parquet export written")
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "parquet output file")
	fl.BoolVar(&f.yearly, "yearly", false, "fold monthly buckets into years")
	fl.StringVar(&f.aggregateHosts, "aggregate-hosts", "none", "host aggregation: none, lvl2, publicsuffixlist")
	fl.BoolVar(&f.assumeSorted, "assume-sorted", false, "inputs are sorted by host; merge in one pass")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) totalsCmd() *cobra.Command {
	var (
		noYear, noTotal bool
		output          string
	)
	cmd := &cobra.Command{
		Use:   "totals [summary files...]",
		Short: "Flatten summary lines to host, year and totals",
		Long: `Totals writes "host year n_total s_total" for every bucket of every summary
line, skipping buckets without captures. The output is the usual input of
overlap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := phaseContext(cmd.Context(), "totals")
			inputs, err := a.resolveInputs(ctx, args, a.cfg.Summarize.SourceOptions())
			if err != nil {
				return err
			}
			opts := summary.TotalsOptions{NoYear: noYear, NoTotal: noTotal}
			return a.writeOutput(output, func(w io.Writer) error {
				bw := bufio.NewWriterSize(w, 256*1024)
				for _, in := range inputs {
					if err := writeTotals(logctx.WithStream(ctx, in.Name), bw, in, opts); err != nil {
						return err
					}
				}
				return bw.Flush()
			})
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&noYear, "no-year", false, "sum all buckets into one line per host")
	fl.BoolVar(&noTotal, "no-total", false, "leave out the n_total and s_total columns")
	fl.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// writeTotals flattens one input. Unreadable inputs and malformed lines are
// logged and skipped; only write errors are returned.
func writeTotals(ctx context.Context, w io.Writer, in source.Input, opts summary.TotalsOptions) error {
	log := logctx.FromContext(ctx)
	rc, err := in.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("input skipped")
		return nil
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 256*1024)
	var buf []byte
	for lineNo := int64(1); ; lineNo++ {
		line, err := br.ReadString('\n')
		if line == "" && err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Int64("line", lineNo).Msg("input abandoned")
			}
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, perr := summary.ParseLine(line)
		if perr != nil {
			log.Warn().Int64("line", lineNo).Err(perr).Msg("malformed line skipped")
			continue
		}
		buf = summary.AppendTotals(buf[:0], e, opts)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write totals: %w", err)
		}
	}
}
