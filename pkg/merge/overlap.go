package merge

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

// OverlapOptions configures Overlap.
type OverlapOptions struct {
	// Sep separates the columns of flat input lines. Default " ".
	Sep string
	// NoYear treats the host alone as the key; otherwise host and year.
	NoYear bool
	// NoTotal skips summing the two trailing columns.
	NoTotal bool
}

// Subset accumulates the merge steps at which exactly Files shared a key.
//
// A row is [count, n_0, s_0, n_1, s_1, ...] where count is the number of
// distinct keys and n_i, s_i sum the trailing columns of the i-th file of
// the subset. Without totals a row is just [count].
type Subset struct {
	Label string
	Files []int
	// Row is used when the key has no year.
	Row []uint64
	// Years holds one row per year when the key has one.
	Years map[int][]uint64
}

func (s *Subset) row(year int, yearAware bool, width int) []uint64 {
	if !yearAware {
		if s.Row == nil {
			s.Row = make([]uint64, width)
		}
		return s.Row
	}
	r, ok := s.Years[year]
	if !ok {
		r = make([]uint64, width)
		s.Years[year] = r
	}
	return r
}

// OverlapResult is the outcome of an overlap analysis.
type OverlapResult struct {
	Files     []string
	YearAware bool
	Totals    bool
	Subsets   map[string]*Subset
}

// Labels returns the subset labels in the order reports list them.
func (r *OverlapResult) Labels() []string {
	labels := make([]string, 0, len(r.Subsets))
	for l := range r.Subsets {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// Years returns every year seen in any subset, ascending.
func (r *OverlapResult) Years() []int {
	seen := make(map[int]bool)
	for _, s := range r.Subsets {
		for y := range s.Years {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// Name joins the file names of s with " AND ".
func (r *OverlapResult) Name(s *Subset) string {
	names := make([]string, len(s.Files))
	for i, f := range s.Files {
		names[i] = r.Files[f]
	}
	return strings.Join(names, " AND ")
}

// flatItem is one parsed line of overlap input.
type flatItem struct {
	year int
	n, s uint64
}

// flatParser parses "host [year] ... n s" lines split by sep. Summary
// lines ("host {json}") are expanded into their totals lines first.
func flatParser(opts OverlapOptions) parseFunc[flatItem] {
	totals := summary.TotalsOptions{NoYear: opts.NoYear, NoTotal: opts.NoTotal}
	return func(line string) ([]keyed[flatItem], error) {
		if strings.Contains(line, " {") {
			e, err := summary.ParseLine(line)
			if err != nil {
				return nil, err
			}
			var items []keyed[flatItem]
			for _, l := range strings.Split(strings.TrimSuffix(string(summary.AppendTotals(nil, e, totals)), "\n"), "\n") {
				if l == "" {
					continue
				}
				it, err := parseFlat(l, " ", opts)
				if err != nil {
					return nil, err
				}
				items = append(items, it)
			}
			return items, nil
		}
		it, err := parseFlat(line, opts.Sep, opts)
		if err != nil {
			return nil, err
		}
		return []keyed[flatItem]{it}, nil
	}
}

func parseFlat(line, sep string, opts OverlapOptions) (keyed[flatItem], error) {
	fields := strings.Split(line, sep)
	nkey := 2
	if opts.NoYear {
		nkey = 1
	}
	if len(fields) < nkey {
		return keyed[flatItem]{}, fmt.Errorf("expected at least %d columns, got %d", nkey, len(fields))
	}

	var it flatItem
	if !opts.NoYear {
		year, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return keyed[flatItem]{}, fmt.Errorf("year column %q: %w", fields[1], err)
		}
		it.year = year
	}
	if !opts.NoTotal {
		if len(fields) < nkey+2 {
			return keyed[flatItem]{}, fmt.Errorf("expected %d key columns and two totals, got %d columns", nkey, len(fields))
		}
		var err error
		if it.n, err = strconv.ParseUint(strings.TrimSpace(fields[len(fields)-2]), 10, 64); err != nil {
			return keyed[flatItem]{}, fmt.Errorf("count column: %w", err)
		}
		if it.s, err = strconv.ParseUint(strings.TrimSpace(fields[len(fields)-1]), 10, 64); err != nil {
			return keyed[flatItem]{}, fmt.Errorf("size column: %w", err)
		}
	}
	return keyed[flatItem]{key: strings.Join(fields[:nkey], sep), val: it}, nil
}

func subsetLabel[T any](group []*cursor[T]) (string, []int) {
	files := make([]int, len(group))
	parts := make([]string, len(group))
	for i, c := range group {
		files[i] = c.index
		parts[i] = strconv.Itoa(c.index)
	}
	return strings.Join(parts, "-"), files
}

// Overlap merges sorted inputs and, for every set of files that share the
// smallest key at a step, counts the distinct keys and sums the trailing
// columns. A key repeated on consecutive steps is counted once.
func Overlap(ctx context.Context, inputs []source.Input, opts OverlapOptions) (*OverlapResult, *Stats, error) {
	if len(inputs) == 0 {
		return nil, nil, ErrNoInputs
	}
	if opts.Sep == "" {
		opts.Sep = " "
	}

	start := time.Now()
	log := logctx.FromContext(ctx)
	stats := &Stats{Inputs: len(inputs)}
	res := &OverlapResult{
		Files:     make([]string, len(inputs)),
		YearAware: !opts.NoYear,
		Totals:    !opts.NoTotal,
		Subsets:   make(map[string]*Subset),
	}
	for i, in := range inputs {
		res.Files[i] = in.Name
	}

	h := openCursors(ctx, inputs, flatParser(opts), stats)
	defer closeAll(h)

	var (
		lastKey string
		hasLast bool
	)
	for h.Len() > 0 {
		if stats.Keys%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		group := popGroup(h)
		key := group[0].cur.key
		label, files := subsetLabel(group)

		sub, ok := res.Subsets[label]
		if !ok {
			sub = &Subset{Label: label, Files: files}
			if res.YearAware {
				sub.Years = make(map[int][]uint64)
			}
			res.Subsets[label] = sub
		}
		width := 1
		if res.Totals {
			width += 2 * len(group)
		}
		row := sub.row(group[0].cur.val.year, res.YearAware, width)

		if !hasLast || key != lastKey {
			row[0]++
		}
		lastKey, hasLast = key, true

		if res.Totals {
			for i, c := range group {
				row[1+2*i] += c.cur.val.n
				row[2+2*i] += c.cur.val.s
			}
		}

		stats.Keys++
		advanceGroup(ctx, h, group, stats)
	}

	logging.PhaseComplete(log, "overlap", time.Since(start)).
		Int("inputs", stats.Inputs).
		Int("failed", len(stats.Failed)).
		Int("subsets", len(res.Subsets)).
		Count("lines", stats.Lines).
		Count("steps", stats.Keys).
		Log("overlap completed")
	return res, stats, nil
}
