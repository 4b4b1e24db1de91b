// Package cache holds the most recent successful outcome for each exact
// evaluation input. Lookups key on the input's fingerprint sum and verify
// structural equality, so hash collisions can never serve a wrong outcome.
package cache

import (
	"sync"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
)

type entry struct {
	input   evaluation.Input
	outcome evaluation.Outcome
}

// Cache is an in-memory mapping from evaluation input to its latest
// successful outcome. It is safe for concurrent use and may be shared by
// several clients. Entries live for the cache's lifetime; the key space is
// bounded by the distinct (visitor, user, traits) combinations one session
// produces, so there is no eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64][]entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[uint64][]entry)}
}

// Get returns the cached outcome for an input structurally equal to the given
// one, or nil when no such outcome exists. The returned outcome is a copy;
// callers may hold it without synchronization.
func (c *Cache) Get(in evaluation.Input) *evaluation.Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries[in.Sum()] {
		if e.input.Equal(in) {
			out := e.outcome
			return &out
		}
	}
	return nil
}

// Set stores the outcome for the given input, replacing any previous outcome
// for a structurally equal input.
func (c *Cache) Set(in evaluation.Input, out evaluation.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.entries[in.Sum()]
	for i, e := range bucket {
		if e.input.Equal(in) {
			bucket[i].outcome = out
			return
		}
	}
	c.entries[in.Sum()] = append(bucket, entry{input: in, outcome: out})
}

// Len returns the number of cached outcomes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
