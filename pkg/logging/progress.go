package logging

import (
	"sync/atomic"
	"time"

	"github.com/eunmann/cdxsum/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// StreamTracker counts input streams and records across a run.
// It is safe for concurrent use.
type StreamTracker struct {
	total     int64
	completed atomic.Int64
	failed    atomic.Int64
	records   atomic.Int64
	startTime time.Time
}

// NewStreamTracker creates a tracker for total input streams.
func NewStreamTracker(total int64) *StreamTracker {
	return &StreamTracker{total: total, startTime: time.Now()}
}

// RecordStream records a finished stream and the records it yielded.
func (st *StreamTracker) RecordStream(records int64) {
	st.completed.Add(1)
	st.records.Add(records)
}

// RecordFailure records a stream that could not be opened or read.
func (st *StreamTracker) RecordFailure() {
	st.failed.Add(1)
}

// Progress returns completed, failed and total stream counts.
func (st *StreamTracker) Progress() (completed, failed, total int64) {
	return st.completed.Load(), st.failed.Load(), st.total
}

// ProgressPct returns the share of streams finished (0-100).
func (st *StreamTracker) ProgressPct() float64 {
	if st.total == 0 {
		return 100.0
	}
	done := st.completed.Load() + st.failed.Load()
	return float64(done) * 100.0 / float64(st.total)
}

// Records returns the record count over all finished streams.
func (st *StreamTracker) Records() int64 {
	return st.records.Load()
}

// Elapsed returns time since tracking started.
func (st *StreamTracker) Elapsed() time.Duration {
	return time.Since(st.startTime)
}

// CompletionEvent builds consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]interface{}
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds a byte count, with a human-readable companion in pretty mode.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.fields[key] = bytes
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return ce
}

// Count adds a count, with a human-readable companion in pretty mode.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Count(n)
	}
	return ce
}

// Streams adds stream progress fields from a tracker.
func (ce *CompletionEvent) Streams(st *StreamTracker) *CompletionEvent {
	completed, failed, total := st.Progress()
	ce.fields["streams_done"] = completed
	ce.fields["streams_failed"] = failed
	ce.fields["streams_total"] = total
	ce.fields["progress_pct"] = st.ProgressPct()
	return ce.Count("records", st.Records())
}

// Rate adds a records-per-second field over the event's elapsed time.
func (ce *CompletionEvent) Rate(records int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["records_per_sec"] = float64(records) / ce.elapsed.Seconds()
		if IsPrettyMode() {
			ce.fields["rate_h"] = humanfmt.Rate(records, ce.elapsed)
		}
	}
	return ce
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the completion event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

// PhaseComplete starts a phase_completed event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// StreamComplete starts a stream_completed event for one input.
func StreamComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "stream_completed", phase, elapsed)
}

// FileCreated starts a file_created event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}
