package cdx

import "time"

// Default bounds for yearly buckets.
const (
	DefaultMinYear = 1991
)

// metadataMIME marks WARC metadata records, which are not captures.
const metadataMIME = "application/warc-fields"

// Record is one normalized capture, consumed immediately by the aggregator.
type Record struct {
	// Key is the aggregation key: a full host or its level-2 reduction.
	Key string
	// Bucket is YYYY or YYYYMM.
	Bucket int
	// Scheme is "", "http" or "https".
	Scheme string
	// MIME is the raw mime type, or counter.UnknownMIME when absent.
	MIME string
	// Length is the (compressed) record size in bytes; 0 when unavailable.
	Length uint64
	// StatusClass is the first digit of the HTTP status.
	StatusClass byte
}

// Outcome classifies the result of decoding one line.
type Outcome uint8

const (
	// Decoded means Result.Record holds a capture.
	Decoded Outcome = iota
	// Skipped means the line is valid but carries nothing to count
	// (header, metadata record, non-2xx status, out-of-range year).
	Skipped
	// Malformed means the line could not be parsed.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case Skipped:
		return "skipped"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the outcome of decoding one line.
type Result struct {
	Outcome Outcome
	Record  Record
	// Reason describes why the line was skipped or malformed.
	Reason string
}

func decoded(r Record) Result         { return Result{Outcome: Decoded, Record: r} }
func skipped(reason string) Result   { return Result{Outcome: Skipped, Reason: reason} }
func malformed(reason string) Result { return Result{Outcome: Malformed, Reason: reason} }

// Options are the per-run mode flags shared by all decoders.
type Options struct {
	// Monthly selects YYYYMM buckets instead of YYYY.
	Monthly bool
	// FullHost aggregates by full host instead of level-2 domain.
	FullHost bool
	// MinYear and MaxYear bound yearly buckets (inclusive).
	MinYear int
	MaxYear int
}

// DefaultOptions returns yearly, level-2 options bounded by DefaultMinYear
// and the current year.
func DefaultOptions() Options {
	return Options{
		MinYear: DefaultMinYear,
		MaxYear: time.Now().Year(),
	}
}
