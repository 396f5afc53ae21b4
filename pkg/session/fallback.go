package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// FallbackStore is the in-process tier used while the remote backend is
// unreachable: an LRU bounded by entry count with the same TTL semantics as
// the remote tier. Data here does not survive a process restart.
type FallbackStore struct {
	cache *expirable.LRU[string, []byte]

	mu     sync.Mutex
	claims *expirable.LRU[string, struct{}]
}

// DefaultFallbackCapacity bounds the fallback tier when no capacity is
// configured.
const DefaultFallbackCapacity = 1000

// NewFallbackStore creates a bounded TTL cache. ttl <= 0 means entries never
// expire (tests only).
func NewFallbackStore(capacity int, ttl time.Duration) *FallbackStore {
	if capacity <= 0 {
		capacity = DefaultFallbackCapacity
	}
	return &FallbackStore{
		cache:  expirable.NewLRU[string, []byte](capacity, nil, ttl),
		claims: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// Get returns the raw record and whether it was present and unexpired.
func (f *FallbackStore) Get(id string) ([]byte, bool) {
	return f.cache.Get(id)
}

// Set stores the raw record, evicting the least-recently-used entry when at
// capacity.
func (f *FallbackStore) Set(id string, raw []byte) {
	f.cache.Add(id, raw)
}

// TryClaim mirrors the remote SETNX semantics under a local mutex: true for
// the first claim of an ID, false afterwards.
func (f *FallbackStore) TryClaim(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, claimed := f.claims.Get(id); claimed {
		return false
	}
	f.claims.Add(id, struct{}{})
	return true
}

// Delete removes the record and its claim.
func (f *FallbackStore) Delete(id string) {
	f.cache.Remove(id)
	f.mu.Lock()
	f.claims.Remove(id)
	f.mu.Unlock()
}

// Len reports the current entry count, for health reporting.
func (f *FallbackStore) Len() int {
	return f.cache.Len()
}
