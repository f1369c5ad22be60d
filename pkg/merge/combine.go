package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

// ErrOrderNotPreserved is returned when sorted combine is asked to use a
// simplifier that can reorder keys.
var ErrOrderNotPreserved = errors.New("host aggregation does not preserve key order")

// CombineOptions configures Combine.
type CombineOptions struct {
	// Yearly collapses monthly buckets into their year.
	Yearly bool
	// AssumeSorted merges with cursors instead of loading every input.
	// Inputs must be sorted by key.
	AssumeSorted bool
	// Simplifier is applied to every key before merging. nil keeps keys.
	Simplifier Simplifier
}

// Combine sums summary files entry by entry and emits one line per key in
// key order.
func Combine(ctx context.Context, inputs []source.Input, emit summary.Emitter, opts CombineOptions) (*Stats, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	if opts.Simplifier == nil {
		opts.Simplifier = identity{}
	}
	if opts.AssumeSorted && !opts.Simplifier.PreservesOrder() {
		return nil, fmt.Errorf("%w: %s with sorted combine", ErrOrderNotPreserved, opts.Simplifier.Name())
	}

	start := time.Now()
	log := logctx.FromContext(ctx)
	stats := &Stats{Inputs: len(inputs)}

	var err error
	if opts.AssumeSorted {
		err = combineSorted(ctx, inputs, emit, opts, stats)
	} else {
		err = combineBatch(ctx, inputs, emit, opts, stats)
	}
	if err != nil {
		return stats, err
	}

	logging.PhaseComplete(log, "combine", time.Since(start)).
		Int("inputs", stats.Inputs).
		Int("failed", len(stats.Failed)).
		Count("lines", stats.Lines).
		Count("keys", stats.Keys).
		Str("mode", combineMode(opts)).
		Log("combine completed")
	return stats, nil
}

func combineMode(opts CombineOptions) string {
	if opts.AssumeSorted {
		return "sorted"
	}
	return "batch"
}

func entryParser(simplify Simplifier) parseFunc[summary.Buckets] {
	return func(line string) ([]keyed[summary.Buckets], error) {
		e, err := summary.ParseLine(line)
		if err != nil {
			return nil, err
		}
		return []keyed[summary.Buckets]{{key: simplify.Simplify(e.Key), val: e.Buckets}}, nil
	}
}

// combineSorted streams the inputs through a min-heap; memory is bounded
// by the buckets of one key.
func combineSorted(ctx context.Context, inputs []source.Input, emit summary.Emitter, opts CombineOptions, stats *Stats) error {
	h := openCursors(ctx, inputs, entryParser(opts.Simplifier), stats)
	defer closeAll(h)

	var (
		acc     summary.Buckets
		lastKey string
	)
	flush := func() error {
		if acc == nil {
			return nil
		}
		stats.Keys++
		return emit.Emit(lastKey, acc)
	}

	for h.Len() > 0 {
		group := popGroup(h)
		key := group[0].cur.key
		if acc != nil && key != lastKey {
			if err := flush(); err != nil {
				return err
			}
			acc = nil
		}
		if acc == nil {
			acc = make(summary.Buckets)
			lastKey = key
		}
		for _, c := range group {
			acc.Merge(c.cur.val, opts.Yearly)
		}
		advanceGroup(ctx, h, group, stats)
	}
	return flush()
}

// combineBatch loads every input into one store. Each input is staged in
// its own store first so a read failure drops the whole file.
func combineBatch(ctx context.Context, inputs []source.Input, emit summary.Emitter, opts CombineOptions, stats *Stats) error {
	log := logctx.FromContext(ctx)
	store := summary.NewStore(0)
	parse := entryParser(opts.Simplifier)

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		failed := len(stats.Failed)
		c := openCursor(ctx, i, in, parse, stats, false)
		if c == nil {
			continue
		}

		staged := summary.NewStore(0)
		for {
			staged.MergeBuckets(c.cur.key, c.cur.val, opts.Yearly)
			if err := c.advance(); err != nil {
				c.close()
				if !errors.Is(err, io.EOF) {
					stats.fail(log, in.Name, err)
				}
				break
			}
		}
		if len(stats.Failed) > failed {
			continue
		}

		for _, key := range staged.Keys() {
			b, _ := staged.Take(key)
			store.MergeBuckets(key, b, false)
		}
		log.Debug().Str("file", in.Name).Int("keys", store.Len()).Msg("input loaded")
	}

	return store.Drain(func(key string, buckets summary.Buckets) error {
		stats.Keys++
		return emit.Emit(key, buckets)
	})
}
