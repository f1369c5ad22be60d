package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/cdxsum/pkg/config"
	"github.com/eunmann/cdxsum/pkg/export"
	"github.com/eunmann/cdxsum/pkg/hostindex"
)

const (
	cdxjA = `com,example)/ 20150601000000 {"url": "https://example.com/", "mime": "text/html", "status": "200", "length": "1024"}`
	cdxjB = `org,example)/a.png 20160101000000 {"url": "http://example.org/a.png", "mime": "image/png", "status": "200", "length": "10"}`

	exampleLine = `example.com {"2015": {"n_html": 1, "n_https": 1, "n_total": 1, "s_html": 1024, "s_https": 1024, "s_total": 1024}}`
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), args, strings.NewReader(stdin), &out, io.Discard)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRunUnknownCommand(t *testing.T) {
	if _, err := run(t, "", "unknown"); err == nil {
		t.Fatal("expected error with unknown command")
	}
}

func TestSummarizeStdin(t *testing.T) {
	out, err := run(t, cdxjA+"\n", "summarize", "--compact")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out != exampleLine+"\n" {
		t.Errorf("output = %q, want %q", out, exampleLine)
	}
}

func TestSummarizeFileOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.cdxj", cdxjA+"\n"+cdxjB+"\n")
	missing := filepath.Join(dir, "missing.cdxj")
	outPath := filepath.Join(dir, "summary.txt")

	if _, err := run(t, "", "summarize", "--compact", "--fullhost", "-o", outPath, in, missing); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	got := strings.Split(strings.TrimSpace(readFile(t, outPath)), "\n")
	if len(got) != 2 {
		t.Fatalf("lines = %q", got)
	}
	if !strings.HasPrefix(got[0], `example.com {"2015": `) || !strings.HasPrefix(got[1], `example.org {"2016": {"n_image": 1, "n_http": 1`) {
		t.Errorf("lines = %q", got)
	}
}

func TestSummarizeRejectsBadFlags(t *testing.T) {
	if _, err := run(t, "", "summarize", "--format", "warc"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := run(t, "", "summarize", "--gz", "--nogz"); err == nil {
		t.Error("expected error for --gz with --nogz")
	}
	if _, err := run(t, "", "summarize", "--min-year", "2020", "--max-year", "2010"); err == nil {
		t.Error("expected error for inverted years")
	}
}

func TestCombine(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", exampleLine+"\n")
	b := writeFile(t, dir, "b.txt", exampleLine+"\n")

	for _, sorted := range []bool{false, true} {
		args := []string{"combine", "--compact", a, b}
		if sorted {
			args = append(args, "--assume-sorted")
		}
		out, err := run(t, "", args...)
		if err != nil {
			t.Fatalf("combine (sorted=%v): %v", sorted, err)
		}
		want := `example.com {"2015": {"n_html": 2, "n_https": 2, "n_total": 2, "s_html": 2048, "s_https": 2048, "s_total": 2048}}` + "\n"
		if out != want {
			t.Errorf("combine (sorted=%v) = %q, want %q", sorted, out, want)
		}
	}
}

func TestCombineIncompatibleOptions(t *testing.T) {
	_, err := run(t, "", "combine", "--assume-sorted", "--aggregate-hosts", "lvl2", "x.txt")
	if !errors.Is(err, config.ErrIncompatibleOptions) {
		t.Fatalf("err = %v, want ErrIncompatibleOptions", err)
	}
}

func TestConfigFileAndFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "cdxsum.yaml", "combine:\n  assume_sorted: true\n  aggregate_hosts: lvl2\n")
	if _, err := run(t, "", "--config", cfg, "combine", "x.txt"); !errors.Is(err, config.ErrIncompatibleOptions) {
		t.Fatalf("err = %v, want ErrIncompatibleOptions from config file", err)
	}

	in := writeFile(t, dir, "a.txt", "news."+exampleLine+"\n")
	out, err := run(t, "", "--config", cfg, "combine", "--assume-sorted=false", "--compact", in)
	if err != nil {
		t.Fatalf("flag should override config: %v", err)
	}
	if !strings.HasPrefix(out, "example.com {") {
		t.Errorf("lvl2 from config not applied: %q", out)
	}
}

func TestTotals(t *testing.T) {
	out, err := run(t, exampleLine+"\nnot a summary\n", "totals")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if out != "example.com 2015 1 1024\n" {
		t.Errorf("totals = %q", out)
	}
}

func TestOverlap(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "f1", "a.com 2010 1 10\nb.com 2010 2 20\n")
	f2 := writeFile(t, dir, "f2", "a.com 2010 3 30\n")

	out, err := run(t, "", "overlap", f1, f2)
	if err != nil {
		t.Fatalf("overlap: %v", err)
	}
	if !strings.Contains(out, `AND `) || !strings.Contains(out, `{"2010": [1, 1, 10, 3, 30]}`) {
		t.Errorf("json = %s", out)
	}

	out, err = run(t, "", "overlap", "--csv", "--out-sep", ";", f1, f2)
	if err != nil {
		t.Fatalf("overlap --csv: %v", err)
	}
	if !strings.HasPrefix(out, "Hosts:\n\"Year\";") {
		t.Errorf("csv = %s", out)
	}

	xlsx := filepath.Join(dir, "overlap.xlsx")
	if _, err := run(t, "", "overlap", "--xlsx", xlsx, f1, f2); err != nil {
		t.Fatalf("overlap --xlsx: %v", err)
	}
	if info, err := os.Stat(xlsx); err != nil || info.Size() == 0 {
		t.Errorf("xlsx not written: %v", err)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.txt", exampleLine+"\n")
	outPath := filepath.Join(dir, "out.parquet")

	if _, err := run(t, "", "export", "-o", outPath, in); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, err := parquet.ReadFile[export.Row](outPath)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 1 || rows[0].Host != "example.com" || rows[0].SHTML != 1024 {
		t.Errorf("rows = %+v", rows)
	}

	if _, err := run(t, "", "export", in); err == nil {
		t.Error("expected error without -o")
	}
}

func TestIndexBuildAndLookup(t *testing.T) {
	dir := t.TempDir()
	other := `example.org {"2016": {"n_image": 1, "n_total": 1, "s_image": 10, "s_total": 10}}`
	path := writeFile(t, dir, "summary.txt", exampleLine+"\n"+other+"\n")

	if _, err := run(t, "", "index", "build", path); err != nil {
		t.Fatalf("index build: %v", err)
	}
	if _, err := os.Stat(hostindex.DefaultPath(path)); err != nil {
		t.Fatalf("index file: %v", err)
	}

	out, err := run(t, "", "index", "lookup", "--compact", path, "example.org")
	if err != nil {
		t.Fatalf("index lookup: %v", err)
	}
	if out != other+"\n" {
		t.Errorf("lookup = %q, want %q", out, other)
	}

	if _, err := run(t, "", "index", "lookup", path, "missing.com"); !errors.Is(err, hostindex.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
