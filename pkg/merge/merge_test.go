package merge

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/eunmann/cdxsum/pkg/counter"
	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

func stringInput(name string, lines ...string) source.Input {
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	return source.Input{
		Name: name,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

var errBroken = errors.New("connection reset")

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errBroken }

// brokenInput yields lines and then fails.
func brokenInput(name string, lines ...string) source.Input {
	return source.Input{
		Name: name,
		Open: func(context.Context) (io.ReadCloser, error) {
			r := io.MultiReader(strings.NewReader(strings.Join(lines, "\n")+"\n"), brokenReader{})
			return io.NopCloser(r), nil
		},
	}
}

// summaryLine renders key with html counters n and s in each bucket.
func summaryLine(key string, buckets map[int][2]uint64) string {
	b := make(summary.Buckets)
	for bucket, ns := range buckets {
		b.Get(bucket).AddMIME("text/html", ns[0], ns[1])
	}
	return strings.TrimSuffix(string(summary.AppendLine(nil, key, b, true)), "\n")
}

type collected struct {
	keys    []string
	buckets map[string]summary.Buckets
}

func collect() (*collected, summary.Emitter) {
	c := &collected{buckets: make(map[string]summary.Buckets)}
	return c, summary.EmitFunc(func(key string, b summary.Buckets) error {
		c.keys = append(c.keys, key)
		c.buckets[key] = b
		return nil
	})
}

func total(b summary.Buckets, bucket int) (uint64, uint64) {
	v, ok := b[bucket]
	if !ok {
		return 0, 0
	}
	return v.N[counter.Total], v.S[counter.Total]
}
