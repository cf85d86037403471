// Package dedupe suppresses redelivered chunk notifications within one
// worker process. The trigger platform delivers at-least-once, so the same
// chunk key can arrive more than once.
package dedupe

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter remembers chunk keys that have already been handled. It is a Bloom
// filter: Seen can report false positives at the configured rate but never
// false negatives, so a duplicate is always caught while a fresh chunk is
// skipped at most with probability fpRate.
type Filter struct {
	mu sync.Mutex
	bf *bloom.BloomFilter
}

// New sizes the filter for the expected number of chunk keys and target
// false-positive rate.
func New(expected uint, fpRate float64) *Filter {
	return &Filter{bf: bloom.NewWithEstimates(expected, fpRate)}
}

// Seen reports whether key was marked before.
func (f *Filter) Seen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bf.Test([]byte(key))
}

// Mark records key as handled. Call only after the chunk's results are
// persisted, so a failed invocation stays eligible for redelivery.
func (f *Filter) Mark(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bf.Add([]byte(key))
}
