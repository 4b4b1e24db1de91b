// Package visitor manages the anonymous visitor identity used for
// percentage-based rollouts: a single string key persisted in a small
// key-value store (a cookie in browser-like hosts, a file for CLI sessions).
package visitor

import (
	"sync"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the visitor key when the SDK is embedded
// in an HTTP service.
const CookieName = "fbvk"

// Store persists the visitor key across evaluations. Get returns "" when no
// key is stored. Implementations must be safe for concurrent use.
type Store interface {
	Get() string
	Set(key string)
}

// NewKey generates a fresh visitor identifier.
func NewKey() string {
	return uuid.NewString()
}

// ResolveKey picks the visitor key for the next evaluation. Priority order:
// the persisted key, then the in-flight request's key, then the last settled
// outcome's server-assigned key, then the per-client generated fallback.
func ResolveKey(stored, pending, settled, generated string) string {
	for _, key := range []string{stored, pending, settled, generated} {
		if key != "" {
			return key
		}
	}
	return ""
}

// MemoryStore keeps the visitor key in memory for the life of the process.
// It is the default store for library consumers that bring no persistence.
type MemoryStore struct {
	mu  sync.Mutex
	key string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored key, or "" when none was set.
func (s *MemoryStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Set stores the key.
func (s *MemoryStore) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}
