package memdiag

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/cdxsum/internal/logctx"
)

func TestStartDisabled(t *testing.T) {
	tr := Start(context.Background(), 0)
	if tr != nil {
		t.Fatal("expected nil tracker for zero interval")
	}
	tr.Stop()
	if tr.Peak() != 0 {
		t.Error("nil tracker Peak should be 0")
	}
}

func TestTrackerSamples(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf).Level(zerolog.DebugLevel))

	tr := Start(ctx, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	tr.Stop()
	tr.Stop()

	if tr.Peak() == 0 {
		t.Error("Peak = 0 after sampling")
	}
	out := buf.String()
	if !strings.Contains(out, `"reason":"start"`) || !strings.Contains(out, `"reason":"stop"`) {
		t.Errorf("missing start/stop samples in %s", out)
	}
}

func TestTrackerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := Start(logctx.WithLogger(ctx, zerolog.Nop()), time.Millisecond)
	cancel()
	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}
