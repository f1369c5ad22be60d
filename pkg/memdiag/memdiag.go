// Package memdiag logs heap usage at a fixed interval during long runs.
//
// Enable it with logging.memory_interval in the config file; samples are
// logged at debug level.
package memdiag

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/humanfmt"
)

// Stats is a snapshot of runtime memory statistics.
type Stats struct {
	HeapAlloc uint64
	HeapInuse uint64
	Sys       uint64
	NumGC     uint32
}

// Read returns current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc: m.HeapAlloc,
		HeapInuse: m.HeapInuse,
		Sys:       m.Sys,
		NumGC:     m.NumGC,
	}
}

// Tracker samples memory until stopped. A nil Tracker is valid and does
// nothing.
type Tracker struct {
	log  zerolog.Logger
	peak atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Start samples every interval until ctx ends or Stop is called. It
// returns nil when interval is not positive.
func Start(ctx context.Context, interval time.Duration) *Tracker {
	if interval <= 0 {
		return nil
	}
	t := &Tracker{
		log:  logctx.FromContext(ctx),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	t.sample("start")
	go t.loop(ctx, interval)
	return t
}

func (t *Tracker) loop(ctx context.Context, interval time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.sample("interval")
		}
	}
}

func (t *Tracker) sample(reason string) Stats {
	s := Read()
	for {
		peak := t.peak.Load()
		if s.HeapAlloc <= peak || t.peak.CompareAndSwap(peak, s.HeapAlloc) {
			break
		}
	}
	t.log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanfmt.Bytes(int64(s.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(s.HeapInuse))).
		Str("sys", humanfmt.Bytes(int64(s.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(t.peak.Load()))).
		Uint32("num_gc", s.NumGC).
		Msg("memory")
	return s
}

// Stop ends sampling and logs a final sample.
func (t *Tracker) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
		t.sample("stop")
	})
}

// Peak returns the largest heap allocation seen so far.
func (t *Tracker) Peak() uint64 {
	if t == nil {
		return 0
	}
	return t.peak.Load()
}
