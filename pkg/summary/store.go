package summary

import (
	"slices"

	"github.com/eunmann/cdxsum/pkg/counter"
)

// Store maps aggregation keys to their buckets.
//
// The store is NOT safe for concurrent use; it is owned by one Aggregator
// (or one combine run) at a time.
type Store struct {
	hosts   map[string]Buckets
	vectors int
}

// NewStore creates an empty store with the given initial capacity.
func NewStore(initialCapacity int) *Store {
	if initialCapacity <= 0 {
		initialCapacity = 1024
	}
	return &Store{hosts: make(map[string]Buckets, initialCapacity)}
}

// Vector returns the counters for (key, bucket), creating them when absent.
func (s *Store) Vector(key string, bucket int) *counter.Vector {
	b, ok := s.hosts[key]
	if !ok {
		b = make(Buckets)
		s.hosts[key] = b
	}
	v, ok := b[bucket]
	if !ok {
		v = &counter.Vector{}
		b[bucket] = v
		s.vectors++
	}
	return v
}

// MergeBuckets adds buckets into key, folding months into years when yearly is set.
func (s *Store) MergeBuckets(key string, buckets Buckets, yearly bool) {
	for bucket, v := range buckets {
		if yearly {
			bucket = YearOf(bucket)
		}
		s.Vector(key, bucket).Merge(v)
	}
}

// Take removes key from the store and returns its buckets.
func (s *Store) Take(key string) (Buckets, bool) {
	b, ok := s.hosts[key]
	if !ok {
		return nil, false
	}
	delete(s.hosts, key)
	s.vectors -= len(b)
	return b, true
}

// Keys returns all keys in lexicographic order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.hosts))
	for k := range s.hosts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return len(s.hosts)
}

// VectorCount returns the number of (key, bucket) vectors held.
func (s *Store) VectorCount() int {
	return s.vectors
}

// EstimatedMemoryUsage returns an approximate memory usage in bytes.
func (s *Store) EstimatedMemoryUsage() int64 {
	// Per key: map entry + key string + bucket map header (~160 bytes).
	// Per vector: 26 uint64 counters + map entry + pointer (~240 bytes).
	const bytesPerKey = 160
	const bytesPerVector = 240
	return int64(len(s.hosts))*bytesPerKey + int64(s.vectors)*bytesPerVector
}

// Drain calls fn for every key in lexicographic order and empties the store.
// It stops at the first error.
func (s *Store) Drain(fn func(key string, buckets Buckets) error) error {
	for _, key := range s.Keys() {
		b, _ := s.Take(key)
		if err := fn(key, b); err != nil {
			return err
		}
	}
	return nil
}
