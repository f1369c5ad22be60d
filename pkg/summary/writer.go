package summary

import (
	"bufio"
	"fmt"
	"io"
)

// Emitter receives the complete buckets of one key.
type Emitter interface {
	Emit(key string, buckets Buckets) error
}

// EmitFunc adapts a function to Emitter.
type EmitFunc func(key string, buckets Buckets) error

// Emit calls f.
func (f EmitFunc) Emit(key string, buckets Buckets) error { return f(key, buckets) }

// Writer serializes entries as summary lines.
type Writer struct {
	w       *bufio.Writer
	compact bool
	buf     []byte
	lines   int64
}

// NewWriter creates a summary line writer. With compact set, zero-valued
// counter fields are omitted.
func NewWriter(w io.Writer, compact bool) *Writer {
	return &Writer{
		w:       bufio.NewWriterSize(w, 256*1024),
		compact: compact,
		buf:     make([]byte, 0, 4096),
	}
}

// Emit writes one summary line.
func (w *Writer) Emit(key string, buckets Buckets) error {
	w.buf = AppendLine(w.buf[:0], key, buckets, w.compact)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write summary line for %s: %w", key, err)
	}
	w.lines++
	return nil
}

// Lines returns the number of lines written.
func (w *Writer) Lines() int64 {
	return w.lines
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	return nil
}
