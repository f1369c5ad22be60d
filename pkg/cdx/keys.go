package cdx

import (
	"strconv"
	"strings"
)

// surtLabels returns the comma-delimited domain labels of a SURT, TLD first.
// The host part ends at ')' or at a ':' port separator.
func surtLabels(surt string) []string {
	if i := strings.IndexAny(surt, "):"); i >= 0 {
		surt = surt[:i]
	}
	parts := strings.Split(surt, ",")
	labels := parts[:0]
	for _, p := range parts {
		if p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// KeyFromSURT derives the aggregation key from a SURT such as "com,example,www)/".
// Full host reverses the labels ("www.example.com"); level-2 joins the
// second label with the TLD ("example.com").
func KeyFromSURT(surt string, fullHost bool) string {
	labels := surtLabels(surt)
	switch {
	case len(labels) == 0:
		return ""
	case fullHost:
		rev := make([]string, len(labels))
		for i, l := range labels {
			rev[len(labels)-1-i] = l
		}
		return strings.Join(rev, ".")
	case len(labels) == 1:
		return labels[0]
	default:
		return labels[1] + "." + labels[0]
	}
}

// HostFromMassaged recovers the host from a massaged URL such as
// "example.com:8080/path?q": everything before the first '/', ':' or '?'.
func HostFromMassaged(massaged string) string {
	if i := strings.IndexAny(massaged, "/:?"); i >= 0 {
		return massaged[:i]
	}
	return massaged
}

// Level2 reduces a dotted host to its last two labels.
func Level2(host string) string {
	last := strings.LastIndexByte(host, '.')
	if last <= 0 {
		return host
	}
	prev := strings.LastIndexByte(host[:last], '.')
	return host[prev+1:]
}

// KeyFromMassaged derives the aggregation key from a massaged URL.
func KeyFromMassaged(massaged string, fullHost bool) string {
	host := HostFromMassaged(massaged)
	if fullHost {
		return host
	}
	return Level2(host)
}

// looksLikeSURT reports whether an N field is SURT-shaped: a comma-delimited
// host part without dots.
func looksLikeSURT(field string) bool {
	host := field
	if i := strings.IndexAny(host, "):"); i >= 0 {
		host = host[:i]
	}
	return strings.Contains(host, ",") && !strings.Contains(host, ".")
}

// bucketFromTimestamp returns YYYY or YYYYMM from a capture timestamp.
func bucketFromTimestamp(ts string, opts Options) (int, Result, bool) {
	n := 4
	if opts.Monthly {
		n = 6
	}
	if len(ts) < n || !isDigits(ts[:n]) {
		return 0, malformed("invalid timestamp " + strconv.Quote(ts)), false
	}
	bucket, err := strconv.Atoi(ts[:n])
	if err != nil {
		return 0, malformed("invalid timestamp " + strconv.Quote(ts)), false
	}
	if !opts.Monthly && (bucket < opts.MinYear || bucket > opts.MaxYear) {
		return 0, skipped("year out of range"), false
	}
	return bucket, Result{}, true
}

// schemeOf returns "http" or "https" when url starts with that scheme.
func schemeOf(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "https"
	case strings.HasPrefix(url, "http://"):
		return "http"
	default:
		return ""
	}
}

// parseLength returns the numeric value of a size field; "-" and
// non-numeric values are zero.
func parseLength(s string) uint64 {
	if !isDigits(s) {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
