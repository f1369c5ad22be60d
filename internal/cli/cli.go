// Package cli implements the command-line interface for cdxsum.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/config"
	"github.com/eunmann/cdxsum/pkg/fileutil"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/memdiag"
)

// Run executes the CLI with the given arguments, canceling work on
// SIGINT or SIGTERM.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Execute(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// Execute runs one command with explicit standard streams.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	a.mem.Stop()
	return err
}

// app holds state shared by all commands of one invocation.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configPath string
	debug      bool
	human      bool

	cfg *config.Config
	mem *memdiag.Tracker
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cdxsum",
		Short: "Summarize web archive CDX indexes by host and time",
		Long: `cdxsum reads CDX and CDXJ index files and counts captures per host and
year (or month), split by content type and scheme. Summaries can be combined,
flattened, compared for overlap, exported to parquet and indexed for lookup.

Inputs may be local paths, "-" for stdin, or s3://bucket/key.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.human, "human", false, "human-readable console logs")

	root.AddCommand(
		a.summarizeCmd(),
		a.combineCmd(),
		a.overlapCmd(),
		a.totalsCmd(),
		a.exportCmd(),
		a.indexCmd(),
	)
	return root
}

// setup loads the config and initializes logging before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override(flags.Changed("debug"), &cfg.Logging.Debug, a.debug)
	override(flags.Changed("human"), &cfg.Logging.Human, a.human)
	a.cfg = cfg

	logging.InitWriter(a.stderr, cfg.Logging.Debug, cfg.Logging.Human)
	logctx.SetDefaultLogger(*logging.L())
	a.mem = memdiag.Start(cmd.Context(), cfg.Logging.MemoryInterval)
	return nil
}

// override sets *dst when the flag was given on the command line.
func override[T any](changed bool, dst *T, v T) {
	if changed {
		*dst = v
	}
}

// phaseContext attaches a logger tagged with phase.
func phaseContext(ctx context.Context, phase string) context.Context {
	return logctx.WithLogger(ctx, logging.WithPhase(phase))
}

// writeOutput runs fn against stdout when path is empty or "-", and
// against an atomically replaced file otherwise.
func (a *app) writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(a.stdout)
	}
	return fileutil.WriteAtomic(path, fn)
}
