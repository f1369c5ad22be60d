// Package merge combines and intersects key-sorted summary files with a
// k-way merge over per-file cursors.
package merge

import (
	"bufio"
	"container/heap"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/source"
)

// ErrNoInputs is returned when a merge is started without inputs.
var ErrNoInputs = errors.New("no input files")

// FileError records an input dropped from a merge.
type FileError struct {
	Name string
	Err  error
}

// Stats describes a finished merge.
type Stats struct {
	Inputs    int
	Lines     int64
	Malformed int64
	// Keys is the number of entries emitted (combine) or merge steps (overlap).
	Keys   int64
	Failed []FileError
}

func (s *Stats) fail(log zerolog.Logger, name string, err error) {
	s.Failed = append(s.Failed, FileError{Name: name, Err: err})
	log.Error().Err(err).Str("file", name).Msg("input dropped from merge")
}

// keyed is one item of a cursor together with its comparison key.
type keyed[T any] struct {
	key string
	val T
}

// parseFunc turns one line into zero or more items in key order.
type parseFunc[T any] func(line string) ([]keyed[T], error)

// cursor walks one sorted input.
type cursor[T any] struct {
	index int
	name  string
	br    *bufio.Reader
	rc    io.Closer
	parse parseFunc[T]
	log   zerolog.Logger
	stats *Stats
	// checkOrder enables the one-time warning for keys that go backwards.
	checkOrder bool

	lineNo  int64
	pending []keyed[T]
	cur     keyed[T]
	prevKey string
	hasPrev bool
	warned  bool
}

// advance moves to the next item. It returns io.EOF at the end of input.
// Blank and malformed lines are skipped; malformed ones are logged.
func (c *cursor[T]) advance() error {
	for len(c.pending) == 0 {
		line, err := c.br.ReadString('\n')
		if line == "" && err != nil {
			return err
		}
		c.lineNo++
		c.stats.Lines++

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		items, perr := c.parse(line)
		if perr != nil {
			c.stats.Malformed++
			c.log.Warn().Int64("line", c.lineNo).Err(perr).Msg("malformed line skipped")
			continue
		}
		c.pending = items
	}

	c.cur, c.pending = c.pending[0], c.pending[1:]
	if c.checkOrder && c.hasPrev && c.cur.key < c.prevKey && !c.warned {
		c.warned = true
		c.log.Warn().
			Int64("line", c.lineNo).
			Str("key", c.cur.key).
			Str("previous", c.prevKey).
			Msg("input is not sorted by key; entries for a key may be split")
	}
	c.prevKey, c.hasPrev = c.cur.key, true
	return nil
}

func (c *cursor[T]) close() {
	c.rc.Close()
}

// cursorHeap orders cursors by current key, then by input position.
type cursorHeap[T any] []*cursor[T]

func (h cursorHeap[T]) Len() int { return len(h) }

func (h cursorHeap[T]) Less(i, j int) bool {
	if h[i].cur.key != h[j].cur.key {
		return h[i].cur.key < h[j].cur.key
	}
	return h[i].index < h[j].index
}

func (h cursorHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap[T]) Push(x interface{}) { *h = append(*h, x.(*cursor[T])) }

func (h *cursorHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// openCursor opens in and positions it on its first item. It returns nil
// for empty and failed inputs; failures are recorded in stats.
func openCursor[T any](ctx context.Context, index int, in source.Input, parse parseFunc[T], stats *Stats, checkOrder bool) *cursor[T] {
	log := logctx.FromContext(ctx)
	rc, err := in.Open(ctx)
	if err != nil {
		stats.fail(log, in.Name, err)
		return nil
	}
	c := &cursor[T]{
		index:      index,
		name:       in.Name,
		br:         bufio.NewReaderSize(rc, 256*1024),
		rc:         rc,
		parse:      parse,
		log:        logctx.FromContext(logctx.WithStream(ctx, in.Name)),
		stats:      stats,
		checkOrder: checkOrder,
	}
	switch err := c.advance(); {
	case errors.Is(err, io.EOF):
		c.close()
		return nil
	case err != nil:
		c.close()
		stats.fail(log, in.Name, err)
		return nil
	}
	return c
}

// openCursors opens every input into a heap ordered by current key.
func openCursors[T any](ctx context.Context, inputs []source.Input, parse parseFunc[T], stats *Stats) *cursorHeap[T] {
	h := make(cursorHeap[T], 0, len(inputs))
	for i, in := range inputs {
		if c := openCursor(ctx, i, in, parse, stats, true); c != nil {
			h = append(h, c)
		}
	}
	heap.Init(&h)
	return &h
}

// popGroup removes every cursor positioned at the smallest key. The group
// is ordered by input position.
func popGroup[T any](h *cursorHeap[T]) []*cursor[T] {
	first := heap.Pop(h).(*cursor[T])
	group := []*cursor[T]{first}
	for h.Len() > 0 && (*h)[0].cur.key == first.cur.key {
		group = append(group, heap.Pop(h).(*cursor[T]))
	}
	return group
}

// advanceGroup moves each cursor of group forward and pushes the live ones
// back. A cursor that fails mid-stream is dropped and recorded.
func advanceGroup[T any](ctx context.Context, h *cursorHeap[T], group []*cursor[T], stats *Stats) {
	for _, c := range group {
		switch err := c.advance(); {
		case errors.Is(err, io.EOF):
			c.close()
		case err != nil:
			c.close()
			stats.fail(logctx.FromContext(ctx), c.name, err)
		default:
			heap.Push(h, c)
		}
	}
}

// closeAll releases cursors left in h after an early return.
func closeAll[T any](h *cursorHeap[T]) {
	for _, c := range *h {
		c.close()
	}
	*h = (*h)[:0]
}
