package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eunmann/cdxsum/pkg/cdx"
)

func TestOutbackInputs(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/collections":
			io.WriteString(w, `["web","news"]`)
		case "/web", "/news":
			queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
			io.WriteString(w, "example.com/ 20150601000000 http://example.com/ text/html 200 X - - 10 0 a.warc.gz\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ob := NewOutback(OutbackConfig{URL: srv.URL + "/", RequestsPerSecond: 100})
	inputs, err := ob.Inputs(context.Background())
	if err != nil {
		t.Fatalf("Inputs: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("got %d inputs, want 2", len(inputs))
	}
	if inputs[0].Name != srv.URL+"/web?url=&matchType=range" {
		t.Errorf("input name = %q", inputs[0].Name)
	}
	for _, in := range inputs {
		if in.Format != cdx.FormatNbamskrMSVg {
			t.Errorf("%s format = %s", in.Name, in.Format)
		}
		rc, err := in.Open(context.Background())
		if err != nil {
			t.Fatalf("open %s: %v", in.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if len(data) == 0 {
			t.Errorf("%s returned no data", in.Name)
		}
	}
	if len(queries) != 2 || queries[0] != "/web?url=&matchType=range" {
		t.Errorf("queries = %v", queries)
	}
}

func TestOutbackErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ob := NewOutback(OutbackConfig{URL: srv.URL})
	if _, err := ob.Collections(context.Background()); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestOutbackCanceledContext(t *testing.T) {
	ob := NewOutback(OutbackConfig{URL: "http://127.0.0.1:1", RequestsPerSecond: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ob.Collections(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
