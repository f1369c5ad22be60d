package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/cdxsum/pkg/merge"
)

type overlapFlags struct {
	sep, outSep     string
	noYear, noTotal bool
	csv             bool
	xlsx            string
	output          string
}

func (a *app) overlapCmd() *cobra.Command {
	var f overlapFlags
	cmd := &cobra.Command{
		Use:   "overlap [sorted files...]",
		Short: "Count hosts shared between sorted files",
		Long: `Overlap merges files sorted by key and reports, for every combination of
files that share a key, how many keys they share and the URL counts and
record sizes each file holds for them.

Input lines are "host [year] ... n s" (as written by totals) or summary lines.

Examples:
  cdxsum overlap a.totals b.totals
  cdxsum overlap --no-year --csv --out-sep ';' a.totals b.totals
  cdxsum overlap --xlsx overlap.xlsx a.txt b.txt c.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOverlap(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.sep, "sep", " ", "input column separator")
	fl.StringVar(&f.outSep, "out-sep", ",", "CSV output separator")
	fl.BoolVar(&f.noYear, "no-year", false, "key by host only")
	fl.BoolVar(&f.noTotal, "no-total", false, "inputs have no count and size columns")
	fl.BoolVar(&f.csv, "csv", false, "write CSV instead of JSON")
	fl.StringVar(&f.xlsx, "xlsx", "", "write an XLSX workbook to this path")
	fl.StringVarP(&f.output, "output", "o", "", "output file for JSON or CSV (default stdout)")
	cmd.MarkFlagsMutuallyExclusive("csv", "xlsx")
	return cmd
}

func (a *app) runOverlap(cmd *cobra.Command, args []string, f overlapFlags) error {
	fl := cmd.Flags()
	o := &a.cfg.Overlap
	override(fl.Changed("sep"), &o.Sep, f.sep)
	override(fl.Changed("out-sep"), &o.OutSep, f.outSep)
	override(fl.Changed("no-year"), &o.NoYear, f.noYear)
	override(fl.Changed("no-total"), &o.NoTotal, f.noTotal)
	override(f.csv, &o.Output, "csv")
	override(f.xlsx != "", &o.Output, "xlsx")
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	output := f.output
	if o.Output == "xlsx" {
		output = f.xlsx
		if output == "" {
			output = f.output
		}
		if output == "" || output == "-" {
			return errors.New("xlsx output needs a file: use --xlsx path")
		}
	}

	ctx := phaseContext(cmd.Context(), "overlap")
	inputs, err := a.resolveInputs(ctx, args, a.cfg.Summarize.SourceOptions())
	if err != nil {
		return err
	}
	res, _, err := merge.Overlap(ctx, inputs, merge.OverlapOptions{
		Sep:     o.Sep,
		NoYear:  o.NoYear,
		NoTotal: o.NoTotal,
	})
	if err != nil {
		return err
	}

	return a.writeOutput(output, func(w io.Writer) error {
		switch o.Output {
		case "csv":
			return merge.WriteCSV(w, res, o.OutSep)
		case "xlsx":
			return merge.WriteXLSX(w, res)
		default:
			return merge.WriteJSON(w, res)
		}
	})
}
