package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/hostindex"
	"github.com/eunmann/cdxsum/pkg/summary"
)

func (a *app) indexCmd() *cobra.Command {
	var indexPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or query a host index over a summary file",
	}
	cmd.PersistentFlags().StringVar(&indexPath, "index", "", "index file (default <summary>.idx)")

	build := &cobra.Command{
		Use:   "build <summary>",
		Short: "Index the hosts of a local summary file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := phaseContext(cmd.Context(), "index")
			_, err := hostindex.Build(ctx, path, indexFor(path, indexPath))
			return err
		},
	}

	var compact bool
	lookup := &cobra.Command{
		Use:   "lookup <summary> <host>...",
		Short: "Print the summary lines of hosts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := phaseContext(cmd.Context(), "index")
			idx, err := hostindex.Open(path, indexFor(path, indexPath))
			if err != nil {
				return err
			}
			defer idx.Close()

			log := logctx.FromContext(ctx)
			missing := 0
			return a.writeOutput("", func(w io.Writer) error {
				for _, host := range args[1:] {
					e, err := idx.Lookup(host)
					if errors.Is(err, hostindex.ErrNotFound) {
						missing++
						log.Warn().Str("host", host).Msg("host not in index")
						continue
					}
					if err != nil {
						return err
					}
					if _, err := w.Write(summary.AppendLine(nil, e.Key, e.Buckets, compact)); err != nil {
						return fmt.Errorf("write lookup result: %w", err)
					}
				}
				if missing > 0 {
					return fmt.Errorf("%d of %d hosts: %w", missing, len(args)-1, hostindex.ErrNotFound)
				}
				return nil
			})
		},
	}
	lookup.Flags().BoolVar(&compact, "compact", false, "omit zero counters")

	cmd.AddCommand(build, lookup)
	return cmd
}

func indexFor(summaryPath, indexPath string) string {
	if indexPath != "" {
		return indexPath
	}
	return hostindex.DefaultPath(summaryPath)
}
