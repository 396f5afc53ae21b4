package session

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Store is durable key-value persistence for sessions with TTL expiry.
//
// Load never fails the caller: a miss, a corrupt record, or an unreachable
// backend all yield a fresh default session. TryClaimCallback is the sole
// concurrency-safety primitive behind the exactly-once report guarantee: it
// returns true exactly once per session ID.
type Store interface {
	Load(ctx context.Context, id string) *Session
	Save(ctx context.Context, id string, s *Session) error
	TryClaimCallback(ctx context.Context, id string) bool
	Delete(ctx context.Context, id string) error

	// Lock/Unlock delimit the per-session critical section. Claim and save
	// for one key are linearizable with respect to each other as long as
	// callers hold the key's lock.
	Lock(id string)
	Unlock(id string)

	// Degraded reports whether the remote tier is currently unreachable and
	// the store is serving from the local fallback.
	Degraded() bool
}

// keyedMutex provides per-key mutual exclusion via lock striping. Two
// distinct keys may share a stripe (coarser serialization, never weaker).
type keyedMutex struct {
	stripes [64]sync.Mutex
}

func (k *keyedMutex) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &k.stripes[h.Sum32()%uint32(len(k.stripes))]
}

func (k *keyedMutex) Lock(id string)   { k.stripe(id).Lock() }
func (k *keyedMutex) Unlock(id string) { k.stripe(id).Unlock() }

// LayeredStore fronts a remote Redis tier with a bounded in-process fallback.
// Writes go through to both tiers, so state and claims taken during a remote
// outage survive the recovery: a remote miss falls back to the local tier,
// and a callback claim refuses when either tier already holds it. Any remote
// failure is absorbed; degradation is logged once per transition and the
// remote tier is re-attempted on every call, so recovery is automatic.
//
// Caveat, by contract: fallback data is process-local and lost on restart;
// during degradation state is not shared across instances.
type LayeredStore struct {
	remote   *RedisStore // nil when no remote is configured
	fallback *FallbackStore
	ttl      time.Duration

	locks    keyedMutex
	mu       sync.Mutex // guards degraded transitions for log-once behavior
	degraded bool
}

// NewLayeredStore builds the two-tier store. remote may be nil, in which
// case the fallback tier serves everything.
func NewLayeredStore(remote *RedisStore, fallbackCap int, ttl time.Duration) *LayeredStore {
	return &LayeredStore{
		remote:   remote,
		fallback: NewFallbackStore(fallbackCap, ttl),
		ttl:      ttl,
	}
}

func (ls *LayeredStore) Lock(id string)   { ls.locks.Lock(id) }
func (ls *LayeredStore) Unlock(id string) { ls.locks.Unlock(id) }

func (ls *LayeredStore) Degraded() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.degraded
}

func (ls *LayeredStore) noteFailure(op string, err error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.degraded {
		ls.degraded = true
		log.Printf("[STORE] remote %s failed, serving from fallback tier: %v", op, err)
	}
}

func (ls *LayeredStore) noteRecovery() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.degraded {
		ls.degraded = false
		log.Printf("[STORE] remote tier recovered, resuming normal persistence")
	}
}

// Load returns the stored session or a fresh default on miss. Corrupt
// records are treated as misses. A remote miss still consults the fallback
// tier: a session written during an outage exists only there until the next
// save re-persists it remotely.
func (ls *LayeredStore) Load(ctx context.Context, id string) *Session {
	if ls.remote != nil {
		raw, err := ls.remote.Load(ctx, id)
		if err == nil {
			ls.noteRecovery()
			if raw != nil {
				if s := decodeSession(id, raw); s != nil {
					return s
				}
			}
		} else {
			ls.noteFailure("GET", err)
		}
	}

	if raw, ok := ls.fallback.Get(id); ok {
		if s := decodeSession(id, raw); s != nil {
			return s
		}
	}
	return New(id)
}

// Save persists the session to both tiers with the store TTL, so the
// fallback can serve reads across a later remote miss or outage. Save only
// errors if the session cannot be encoded.
func (ls *LayeredStore) Save(ctx context.Context, id string, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if ls.remote != nil {
		if err := ls.remote.Save(ctx, id, raw, ls.ttl); err == nil {
			ls.noteRecovery()
		} else {
			ls.noteFailure("SET", err)
		}
	}

	ls.fallback.Set(id, raw)
	return nil
}

// TryClaimCallback atomically flips the session's callback claim. It returns
// true only for the first successful claim; every later call for the same ID
// returns false for the lifetime of the session key.
//
// The local tier is consulted first and always records the claim. A claim
// taken during a remote outage therefore keeps refusing after the remote
// recovers, even though the remote SETNX never saw it.
func (ls *LayeredStore) TryClaimCallback(ctx context.Context, id string) bool {
	if !ls.fallback.TryClaim(id) {
		return false
	}
	if ls.remote != nil {
		ok, err := ls.remote.TryClaim(ctx, id, ls.ttl)
		if err == nil {
			ls.noteRecovery()
			return ok
		}
		ls.noteFailure("SETNX", err)
	}
	return true
}

// Delete removes the session and its claim from both tiers.
func (ls *LayeredStore) Delete(ctx context.Context, id string) error {
	ls.fallback.Delete(id)
	if ls.remote != nil {
		if err := ls.remote.Delete(ctx, id); err != nil {
			ls.noteFailure("DEL", err)
			return nil
		}
		ls.noteRecovery()
	}
	return nil
}

func decodeSession(id string, raw []byte) *Session {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Printf("[STORE] discarding corrupt session record for %s: %v", id, err)
		return nil
	}
	if s.SessionID == "" {
		s.SessionID = id
	}
	return &s
}

var _ Store = (*LayeredStore)(nil)
