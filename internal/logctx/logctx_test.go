package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	logger := FromContext(nil)
	var buf bytes.Buffer
	l := logger.Output(&buf)
	l.Info().Msg("x")
	if buf.Len() == 0 {
		t.Error("default logger wrote nothing")
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf).With().Str("run", "r1").Logger())

	l := FromContext(ctx)
	l.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"run":"r1"`) {
		t.Errorf("expected run field, got: %s", buf.String())
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer
	//nolint:staticcheck // nil context is part of the contract
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("WithLogger(nil) returned nil context")
	}
	l := FromContext(ctx)
	l.Info().Msg("ok")
	if buf.Len() == 0 {
		t.Error("logger from nil-based context wrote nothing")
	}
}

func TestWithStreamAndFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStream(ctx, "a.cdx.gz")
	ctx = WithStr(ctx, "format", "cdxj")
	ctx = WithInt(ctx, "index", 3)

	l := FromContext(ctx)
	l.Info().Msg("decoded")

	out := buf.String()
	for _, want := range []string{`"file":"a.cdx.gz"`, `"format":"cdxj"`, `"index":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s, got: %s", want, out)
		}
	}
}

func TestChainedContextsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	parent := WithLogger(context.Background(), zerolog.New(&buf))
	_ = WithStream(parent, "child.cdx")

	l := FromContext(parent)
	l.Info().Msg("parent")
	if strings.Contains(buf.String(), "child.cdx") {
		t.Errorf("child field leaked into parent: %s", buf.String())
	}
}

func TestSetDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	old := DefaultLogger()
	SetDefaultLogger(zerolog.New(&buf))
	defer SetDefaultLogger(old)

	l := FromContext(context.Background())
	l.Info().Msg("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("expected default logger output, got: %s", buf.String())
	}
}
