package summary

import (
	"context"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/humanfmt"
	"github.com/eunmann/cdxsum/pkg/sysmem"
	"github.com/rs/zerolog"
)

// memoryCheckInterval is how many records are ingested between memory checks
// in batch mode.
const memoryCheckInterval = 1 << 16

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// AssumeSorted declares that all records of a key arrive in one
	// contiguous run. The key's buckets are emitted and dropped as soon as a
	// different key is seen. Unsorted input then yields several lines for
	// the same key; this is not detected.
	AssumeSorted bool

	// MemoryWarnBytes is the batch-mode store size above which a warning is
	// logged once. 0 uses half of system memory.
	MemoryWarnBytes int64
}

// Aggregator folds decoded records into a Store and emits summary entries.
//
// The aggregator is NOT safe for concurrent use.
type Aggregator struct {
	store *Store
	emit  Emitter
	cfg   AggregatorConfig
	log   zerolog.Logger

	active    string
	hasActive bool

	records   int64
	emitted   int64
	memWarned bool
}

// NewAggregator creates an aggregator that owns store for its lifetime.
func NewAggregator(ctx context.Context, store *Store, emit Emitter, cfg AggregatorConfig) *Aggregator {
	if store == nil {
		store = NewStore(0)
	}
	if cfg.MemoryWarnBytes <= 0 {
		cfg.MemoryWarnBytes = int64(sysmem.Budget(0.5))
	}
	return &Aggregator{
		store: store,
		emit:  emit,
		cfg:   cfg,
		log:   logctx.FromContext(ctx),
	}
}

// Ingest adds one record. In assume-sorted mode a key change first emits
// the complete state of the previous key.
func (a *Aggregator) Ingest(rec cdx.Record) error {
	if a.cfg.AssumeSorted {
		if a.hasActive && rec.Key != a.active {
			if err := a.flushKey(a.active); err != nil {
				return err
			}
		}
		a.active = rec.Key
		a.hasActive = true
	}

	a.store.Vector(rec.Key, rec.Bucket).Add(rec.MIME, rec.Scheme, rec.Length)
	a.records++

	if !a.cfg.AssumeSorted && !a.memWarned && a.records%memoryCheckInterval == 0 {
		a.checkMemory()
	}
	return nil
}

func (a *Aggregator) flushKey(key string) error {
	buckets, ok := a.store.Take(key)
	if !ok {
		return nil
	}
	a.emitted++
	return a.emit.Emit(key, buckets)
}

func (a *Aggregator) checkMemory() {
	used := a.store.EstimatedMemoryUsage()
	if used < a.cfg.MemoryWarnBytes {
		return
	}
	a.memWarned = true
	a.log.Warn().
		Str("estimated", humanfmt.Bytes(used)).
		Int("keys", a.store.Len()).
		Msg("aggregate store is large; consider assume-sorted mode for sorted input")
}

// Close emits everything still held, in key order.
func (a *Aggregator) Close() error {
	a.hasActive = false
	return a.store.Drain(func(key string, buckets Buckets) error {
		a.emitted++
		return a.emit.Emit(key, buckets)
	})
}

// Records returns the number of records ingested.
func (a *Aggregator) Records() int64 {
	return a.records
}

// Emitted returns the number of entries emitted so far.
func (a *Aggregator) Emitted() int64 {
	return a.emitted
}

// HeldKeys returns the number of keys currently held in memory.
func (a *Aggregator) HeldKeys() int {
	return a.store.Len()
}
