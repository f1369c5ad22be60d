package summary

import (
	"strconv"

	"github.com/eunmann/cdxsum/pkg/counter"
)

// TotalsOptions selects the columns of a flat totals line.
type TotalsOptions struct {
	// NoYear drops the bucket column; totals are summed over all buckets.
	NoYear bool
	// NoTotal drops the n_total and s_total columns.
	NoTotal bool
}

// AppendTotals appends the space-delimited "host [bucket] [n_total s_total]"
// lines for e. Buckets with a zero n_total are left out when totals are
// written.
func AppendTotals(buf []byte, e Entry, opts TotalsOptions) []byte {
	switch {
	case opts.NoYear && opts.NoTotal:
		return append(append(buf, e.Key...), '\n')
	case opts.NoTotal:
		for _, bucket := range e.Buckets.Keys() {
			buf = append(buf, e.Key...)
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(bucket), 10)
			buf = append(buf, '\n')
		}
		return buf
	case opts.NoYear:
		var n, s uint64
		for _, v := range e.Buckets {
			n += v.N[counter.Total]
			s += v.S[counter.Total]
		}
		if n == 0 {
			return buf
		}
		return appendTotalsLine(buf, e.Key, -1, n, s)
	default:
		for _, bucket := range e.Buckets.Keys() {
			v := e.Buckets[bucket]
			if v.N[counter.Total] == 0 {
				continue
			}
			buf = appendTotalsLine(buf, e.Key, bucket, v.N[counter.Total], v.S[counter.Total])
		}
		return buf
	}
}

func appendTotalsLine(buf []byte, key string, bucket int, n, s uint64) []byte {
	buf = append(buf, key...)
	if bucket >= 0 {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(bucket), 10)
	}
	buf = append(buf, ' ')
	buf = strconv.AppendUint(buf, n, 10)
	buf = append(buf, ' ')
	buf = strconv.AppendUint(buf, s, 10)
	return append(buf, '\n')
}
