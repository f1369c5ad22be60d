// Package summary holds per-host, per-time-bucket aggregates: the summary
// line format, the in-memory store, and the streaming aggregator that
// produces summary files from decoded index records.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/eunmann/cdxsum/pkg/counter"
)

// ErrMalformedLine indicates a summary line that cannot be parsed.
var ErrMalformedLine = errors.New("malformed summary line")

// Buckets maps a time bucket (YYYY or YYYYMM) to its counters.
type Buckets map[int]*counter.Vector

// Get returns the vector for bucket, creating it when absent.
func (b Buckets) Get(bucket int) *counter.Vector {
	v, ok := b[bucket]
	if !ok {
		v = &counter.Vector{}
		b[bucket] = v
	}
	return v
}

// Merge adds every bucket of other into b. With yearly set, monthly
// buckets of other are folded into their year.
func (b Buckets) Merge(other Buckets, yearly bool) {
	for bucket, v := range other {
		if yearly {
			bucket = YearOf(bucket)
		}
		b.Get(bucket).Merge(v)
	}
}

// Keys returns the buckets in ascending order.
func (b Buckets) Keys() []int {
	keys := make([]int, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// YearOf reduces a YYYYMM bucket to YYYY; YYYY buckets are returned unchanged.
func YearOf(bucket int) int {
	if bucket >= 100000 {
		return bucket / 100
	}
	return bucket
}

// Entry is one parsed summary line.
type Entry struct {
	Key     string
	Buckets Buckets
}

// ParseLine parses "<key> <json>" where json maps bucket strings to
// counter objects. Absent counter fields are zero.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	sp := strings.IndexByte(line, ' ')
	if sp <= 0 {
		return Entry{}, fmt.Errorf("%w: missing key separator", ErrMalformedLine)
	}
	key := line[:sp]

	var raw map[string]map[string]uint64
	if err := json.Unmarshal([]byte(line[sp+1:]), &raw); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	buckets := make(Buckets, len(raw))
	for name, fields := range raw {
		bucket, err := strconv.Atoi(name)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: bucket %q", ErrMalformedLine, name)
		}
		v := counter.FromMap(fields)
		buckets.Get(bucket).Merge(&v)
	}
	return Entry{Key: key, Buckets: buckets}, nil
}

// AppendLine appends "<key> <json>\n" with buckets in ascending order.
func AppendLine(buf []byte, key string, buckets Buckets, compact bool) []byte {
	buf = append(buf, key...)
	buf = append(buf, ' ', '{')
	for i, bucket := range buckets.Keys() {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, int64(bucket), 10)
		buf = append(buf, `": `...)
		buf = buckets[bucket].AppendJSON(buf, compact)
	}
	return append(buf, '}', '\n')
}
