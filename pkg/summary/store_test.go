package summary

import (
	"errors"
	"slices"
	"testing"

	"github.com/eunmann/cdxsum/pkg/counter"
)

func TestStoreMergeAndTake(t *testing.T) {
	s := NewStore(0)
	s.Vector("b.com", 2010).AddMIME("text/html", 1, 10)

	monthly := make(Buckets)
	monthly.Get(201003).AddMIME("text/html", 2, 20)
	monthly.Get(201011).AddMIME("image/png", 3, 30)
	s.MergeBuckets("a.com", monthly, true)
	s.MergeBuckets("a.com", monthly, false)

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	// a.com: 2010 (folded), 201003, 201011; b.com: 2010.
	if s.VectorCount() != 4 {
		t.Errorf("VectorCount = %d, want 4", s.VectorCount())
	}
	if s.EstimatedMemoryUsage() <= 0 {
		t.Error("EstimatedMemoryUsage should be positive")
	}

	b, ok := s.Take("a.com")
	if !ok {
		t.Fatal("Take(a.com) missing")
	}
	if got := b[2010].N[counter.Total]; got != 5 {
		t.Errorf("folded 2010 total = %d, want 5", got)
	}
	if got := b[201011].N[counter.Image]; got != 3 {
		t.Errorf("201011 image = %d, want 3", got)
	}
	if s.VectorCount() != 1 {
		t.Errorf("VectorCount after Take = %d, want 1", s.VectorCount())
	}
	if _, ok := s.Take("a.com"); ok {
		t.Error("second Take should miss")
	}
}

func TestStoreDrainOrder(t *testing.T) {
	s := NewStore(4)
	for _, k := range []string{"c.com", "a.com", "b.com"} {
		s.Vector(k, 2015).AddMIME("text/html", 1, 1)
	}

	var keys []string
	err := s.Drain(func(key string, _ Buckets) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"a.com", "b.com", "c.com"}) {
		t.Errorf("drain order = %v", keys)
	}
	if s.Len() != 0 || s.VectorCount() != 0 {
		t.Errorf("store not empty after Drain: %d keys, %d vectors", s.Len(), s.VectorCount())
	}
}

func TestStoreDrainStopsOnError(t *testing.T) {
	s := NewStore(0)
	s.Vector("a.com", 2015)
	s.Vector("b.com", 2015)

	boom := errors.New("boom")
	calls := 0
	err := s.Drain(func(string, Buckets) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v after %d calls, want boom after 1", err, calls)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 key left", s.Len())
	}
}
