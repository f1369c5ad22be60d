package merge

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/eunmann/cdxsum/pkg/source"
	"github.com/eunmann/cdxsum/pkg/summary"
)

func combineInputs() []source.Input {
	return []source.Input{
		stringInput("f1",
			summaryLine("a.com", map[int][2]uint64{2010: {1, 10}}),
			summaryLine("c.com", map[int][2]uint64{201001: {2, 20}, 201002: {3, 30}}),
		),
		stringInput("f2",
			summaryLine("a.com", map[int][2]uint64{2010: {4, 40}, 2011: {5, 50}}),
			summaryLine("b.com", map[int][2]uint64{2012: {6, 60}}),
		),
	}
}

func TestCombineModesAgree(t *testing.T) {
	for _, sorted := range []bool{false, true} {
		got, emit := collect()
		stats, err := Combine(context.Background(), combineInputs(), emit, CombineOptions{AssumeSorted: sorted})
		if err != nil {
			t.Fatalf("sorted=%v: Combine: %v", sorted, err)
		}
		if !slices.Equal(got.keys, []string{"a.com", "b.com", "c.com"}) {
			t.Errorf("sorted=%v: keys = %v", sorted, got.keys)
		}
		if n, s := total(got.buckets["a.com"], 2010); n != 5 || s != 50 {
			t.Errorf("sorted=%v: a.com 2010 = %d/%d, want 5/50", sorted, n, s)
		}
		if n, _ := total(got.buckets["a.com"], 2011); n != 5 {
			t.Errorf("sorted=%v: a.com 2011 = %d, want 5", sorted, n)
		}
		if n, _ := total(got.buckets["c.com"], 201002); n != 3 {
			t.Errorf("sorted=%v: monthly bucket lost: %d", sorted, n)
		}
		if stats.Keys != 3 || stats.Lines != 4 {
			t.Errorf("sorted=%v: stats = %+v", sorted, stats)
		}
	}
}

func TestCombineYearly(t *testing.T) {
	got, emit := collect()
	if _, err := Combine(context.Background(), combineInputs(), emit, CombineOptions{Yearly: true, AssumeSorted: true}); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	b := got.buckets["c.com"]
	if len(b) != 1 {
		t.Fatalf("c.com buckets = %v, want only 2010", b.Keys())
	}
	if n, s := total(b, 2010); n != 5 || s != 50 {
		t.Errorf("c.com 2010 = %d/%d, want 5/50", n, s)
	}
}

// Combining the combined output with itself doubles every counter.
func TestCombineDoublesUnderSelfMerge(t *testing.T) {
	var buf bytes.Buffer
	w := summary.NewWriter(&buf, false)
	if _, err := Combine(context.Background(), combineInputs(), w, CombineOptions{}); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	once := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")

	got, emit := collect()
	inputs := []source.Input{stringInput("x", once...), stringInput("y", once...)}
	if _, err := Combine(context.Background(), inputs, emit, CombineOptions{AssumeSorted: true}); err != nil {
		t.Fatalf("Combine twice: %v", err)
	}

	for _, l := range once {
		e, err := summary.ParseLine(l)
		if err != nil {
			t.Fatal(err)
		}
		for bucket, v := range e.Buckets {
			d := got.buckets[e.Key][bucket]
			for i := range v.N {
				if d.N[i] != 2*v.N[i] || d.S[i] != 2*v.S[i] {
					t.Fatalf("%s %d: category %d = %d/%d, want %d/%d",
						e.Key, bucket, i, d.N[i], d.S[i], 2*v.N[i], 2*v.S[i])
				}
			}
		}
	}
}

func TestCombineSimplify(t *testing.T) {
	inputs := []source.Input{stringInput("f",
		summaryLine("news.example.co.uk", map[int][2]uint64{2015: {1, 1}}),
		summaryLine("www.example.co.uk", map[int][2]uint64{2015: {2, 2}}),
		summaryLine("www.other.co.uk", map[int][2]uint64{2015: {4, 4}}),
	)}

	lvl2, _ := ParseSimplifier("lvl2")
	got, emit := collect()
	if _, err := Combine(context.Background(), inputs, emit, CombineOptions{Simplifier: lvl2}); err != nil {
		t.Fatalf("Combine lvl2: %v", err)
	}
	if n, _ := total(got.buckets["co.uk"], 2015); n != 7 || len(got.keys) != 1 {
		t.Errorf("lvl2 = %v, co.uk n=%d", got.keys, n)
	}

	psl, _ := ParseSimplifier("publicsuffixlist")
	got, emit = collect()
	if _, err := Combine(context.Background(), inputs, emit, CombineOptions{Simplifier: psl}); err != nil {
		t.Fatalf("Combine psl: %v", err)
	}
	if !slices.Equal(got.keys, []string{"example.co.uk", "other.co.uk"}) {
		t.Errorf("psl keys = %v", got.keys)
	}
	if n, _ := total(got.buckets["example.co.uk"], 2015); n != 3 {
		t.Errorf("example.co.uk n = %d, want 3", n)
	}
}

func TestCombineRejectsUnorderedSimplifierWhenSorted(t *testing.T) {
	lvl2, _ := ParseSimplifier("lvl2")
	_, emit := collect()
	_, err := Combine(context.Background(), combineInputs(), emit, CombineOptions{AssumeSorted: true, Simplifier: lvl2})
	if !errors.Is(err, ErrOrderNotPreserved) {
		t.Fatalf("err = %v, want ErrOrderNotPreserved", err)
	}
}

func TestParseSimplifier(t *testing.T) {
	for name, want := range map[string]string{
		"":                 SimplifyNone,
		"none":             SimplifyNone,
		"lvl2":             SimplifyLevel2,
		"publicsuffixlist": SimplifyPublicSuffixList,
	} {
		s, err := ParseSimplifier(name)
		if err != nil || s.Name() != want {
			t.Errorf("ParseSimplifier(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := ParseSimplifier("tld"); err == nil {
		t.Error("expected error for unknown simplifier")
	}
	psl, _ := ParseSimplifier("psl")
	if got := psl.Simplify("co.uk"); got != "co.uk" {
		t.Errorf("public suffix itself = %q", got)
	}
}

func TestCombineDropsFailedInputs(t *testing.T) {
	inputs := append(combineInputs(),
		source.NewOpener(source.Options{}, nil).Input(filepath.Join(t.TempDir(), "missing.jsonl")),
		brokenInput("broken", summaryLine("a.com", map[int][2]uint64{2010: {100, 100}})),
	)

	got, emit := collect()
	stats, err := Combine(context.Background(), inputs, emit, CombineOptions{})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(stats.Failed) != 2 {
		t.Fatalf("failed = %+v, want 2 inputs", stats.Failed)
	}
	if !errors.Is(stats.Failed[1].Err, errBroken) {
		t.Errorf("broken input err = %v", stats.Failed[1].Err)
	}
	if n, _ := total(got.buckets["a.com"], 2010); n != 5 {
		t.Errorf("a.com 2010 = %d, want 5 (broken input must not contribute)", n)
	}
}

func TestCombineSkipsMalformedLines(t *testing.T) {
	inputs := []source.Input{stringInput("f",
		summaryLine("a.com", map[int][2]uint64{2010: {1, 1}}),
		"not a summary line",
		`b.com {"20x0": {}}`,
		summaryLine("c.com", map[int][2]uint64{2010: {1, 1}}),
	)}
	got, emit := collect()
	stats, err := Combine(context.Background(), inputs, emit, CombineOptions{AssumeSorted: true})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if stats.Malformed != 2 || !slices.Equal(got.keys, []string{"a.com", "c.com"}) {
		t.Errorf("malformed = %d, keys = %v", stats.Malformed, got.keys)
	}
}

func TestCombineNoInputs(t *testing.T) {
	_, emit := collect()
	if _, err := Combine(context.Background(), nil, emit, CombineOptions{}); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("err = %v, want ErrNoInputs", err)
	}
}
