// Package ingest drives record streams through format detection, decoding
// and aggregation. Each stream is isolated: a stream that cannot be opened,
// detected or read is recorded as failed and the run moves on.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/rs/zerolog"
)

const (
	readBufferSize = 1 << 20
	// cancelCheckInterval is how many lines are read between context checks.
	cancelCheckInterval = 1 << 14
)

// Sink receives decoded records. *summary.Aggregator implements it; an
// error from Ingest aborts the run.
type Sink interface {
	Ingest(rec cdx.Record) error
}

// Options configures a run.
type Options struct {
	// Format overrides detection for every stream without its own format.
	Format cdx.Format
	Decode cdx.Options
}

// StreamStats describes one stream after it was processed.
type StreamStats struct {
	Name      string
	Format    cdx.Format
	Lines     int64
	Records   int64
	Skipped   int64
	Malformed int64
	Elapsed   time.Duration
	// Err is set when the stream was abandoned. Records ingested before
	// the failure are kept.
	Err error
}

// Report collects per-stream statistics.
type Report struct {
	Streams []StreamStats
}

// Failed returns the streams that were abandoned.
func (r *Report) Failed() []StreamStats {
	var failed []StreamStats
	for _, s := range r.Streams {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Totals sums the counters of all streams.
func (r *Report) Totals() StreamStats {
	var t StreamStats
	for _, s := range r.Streams {
		t.Lines += s.Lines
		t.Records += s.Records
		t.Skipped += s.Skipped
		t.Malformed += s.Malformed
		t.Elapsed += s.Elapsed
	}
	return t
}

// sinkError marks failures that must stop the whole run.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Run processes inputs in order, feeding sink. It returns an error only
// when sink fails or ctx is canceled; stream failures land in the Report.
func Run(ctx context.Context, inputs []source.Input, sink Sink, opts Options) (*Report, error) {
	log := logctx.FromContext(ctx)
	tracker := logging.NewStreamTracker(int64(len(inputs)))
	report := &Report{Streams: make([]StreamStats, 0, len(inputs))}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sctx := logctx.WithStream(ctx, in.Name)
		stats := runStream(sctx, in, sink, opts)
		report.Streams = append(report.Streams, stats)

		slog := logctx.FromContext(sctx)
		var se *sinkError
		switch {
		case errors.As(stats.Err, &se):
			return report, se.err
		case errors.Is(stats.Err, context.Canceled), errors.Is(stats.Err, context.DeadlineExceeded):
			return report, stats.Err
		case stats.Err != nil:
			tracker.RecordFailure()
			slog.Error().Err(stats.Err).Int64("records", stats.Records).Msg("stream abandoned")
		default:
			tracker.RecordStream(stats.Records)
			logging.StreamComplete(slog, "summarize", stats.Elapsed).
				Str("format", stats.Format.String()).
				Count("lines", stats.Lines).
				Count("records", stats.Records).
				Count("skipped", stats.Skipped).
				Count("malformed", stats.Malformed).
				Rate(stats.Lines).
				LogDebug("stream completed")
		}
	}

	logging.PhaseComplete(log, "summarize", tracker.Elapsed()).
		Streams(tracker).
		Rate(tracker.Records()).
		Log("all streams processed")
	return report, nil
}

func runStream(ctx context.Context, in source.Input, sink Sink, opts Options) StreamStats {
	start := time.Now()
	stats := StreamStats{Name: in.Name, Format: in.Format}
	if stats.Format == cdx.FormatUnknown {
		stats.Format = opts.Format
	}

	rc, err := in.Open(ctx)
	if err != nil {
		stats.Err = err
		return stats
	}
	defer rc.Close()

	stats.Err = decodeStream(ctx, rc, sink, opts.Decode, &stats)
	stats.Elapsed = time.Since(start)
	return stats
}

func decodeStream(ctx context.Context, r io.Reader, sink Sink, opts cdx.Options, stats *StreamStats) error {
	br := bufio.NewReaderSize(r, readBufferSize)
	ls := &lineState{log: logctx.FromContext(ctx), sink: sink, opts: opts, stats: stats}

	if stats.Format != cdx.FormatUnknown {
		dec, err := cdx.NewDecoder(stats.Format, opts)
		if err != nil {
			return err
		}
		ls.dec = dec
	}

	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			stats.Lines++
			if err := ls.handle(strings.TrimRight(line, "\r\n")); err != nil {
				return err
			}
			if stats.Lines%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read after line %d: %w", stats.Lines, readErr)
		}
	}
}

// lineState carries the decoder chosen for one stream.
type lineState struct {
	log   zerolog.Logger
	sink  Sink
	opts  cdx.Options
	stats *StreamStats
	dec   cdx.Decoder
}

func (ls *lineState) handle(line string) error {
	if ls.dec == nil {
		if strings.TrimSpace(line) == "" {
			ls.stats.Skipped++
			return nil
		}
		f, err := cdx.Detect(line)
		if err != nil {
			ls.log.Error().Int64("line", ls.stats.Lines).Str("text", clip(line)).Msg("unsupported CDX format")
			return fmt.Errorf("line %d: %w: %q", ls.stats.Lines, err, clip(line))
		}
		if ls.dec, err = cdx.NewDecoder(f, ls.opts); err != nil {
			return err
		}
		ls.stats.Format = f
		ls.log.Debug().Str("format", f.String()).Msg("format detected")
	}

	res := ls.dec.Decode(line)
	switch res.Outcome {
	case cdx.Decoded:
		if err := ls.sink.Ingest(res.Record); err != nil {
			return &sinkError{err: err}
		}
		ls.stats.Records++
	case cdx.Skipped:
		ls.stats.Skipped++
	case cdx.Malformed:
		ls.stats.Malformed++
		ls.log.Warn().Int64("line", ls.stats.Lines).Str("reason", res.Reason).Msg("malformed line skipped")
	}
	return nil
}

const maxLoggedLine = 200

// clip shortens line for log output.
func clip(line string) string {
	if len(line) <= maxLoggedLine {
		return line
	}
	return line[:maxLoggedLine] + "..."
}
