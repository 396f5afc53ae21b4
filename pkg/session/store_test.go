package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*LayeredStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	remote := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	return NewLayeredStore(remote, 100, time.Hour), mr
}

func TestLayeredStore_Roundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	s := New("s1")
	s.Append(SenderScammer, "hello", time.Now())
	s.RaiseLevel(LevelSuspected, 0.6)
	s.Intel.AddUPIID("scammer@ybl")

	if err := store.Save(ctx, "s1", s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := store.Load(ctx, "s1")
	if got.Level != LevelSuspected {
		t.Errorf("Level = %v, want suspected", got.Level)
	}
	if got.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1", got.TotalMessages)
	}
	if len(got.Intel.UPIIDs) != 1 || got.Intel.UPIIDs[0] != "scammer@ybl" {
		t.Errorf("Intel = %+v", got.Intel)
	}
}

func TestLayeredStore_LoadMissReturnsFresh(t *testing.T) {
	store, _ := newTestStore(t)

	got := store.Load(context.Background(), "never-seen")
	if got == nil {
		t.Fatal("Load returned nil")
	}
	if got.SessionID != "never-seen" || got.Level != LevelSafe || got.TurnCount != 0 {
		t.Errorf("miss did not yield fresh default: %+v", got)
	}
}

func TestLayeredStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	remote := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	// Short real TTL: both tiers hold a copy, so both must expire for the
	// session to read as gone.
	store := NewLayeredStore(remote, 100, 50*time.Millisecond)
	ctx := context.Background()

	s := New("s1")
	s.TurnCount = 3
	if err := store.Save(ctx, "s1", s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(time.Minute)
	time.Sleep(80 * time.Millisecond)

	got := store.Load(ctx, "s1")
	if got.TurnCount != 0 {
		t.Errorf("expired session survived: %+v", got)
	}
}

func TestLayeredStore_CorruptRecord(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set(DefaultKeyPrefix+"bad", "{not json")

	got := store.Load(context.Background(), "bad")
	if got == nil || got.TurnCount != 0 {
		t.Errorf("corrupt record did not yield fresh default: %+v", got)
	}
}

func TestLayeredStore_ClaimOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.TryClaimCallback(ctx, "s1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("claim won %d times, want exactly 1", wins.Load())
	}
	if store.TryClaimCallback(ctx, "s1") {
		t.Error("claim succeeded again after being taken")
	}
	if !store.TryClaimCallback(ctx, "s2") {
		t.Error("claim for a different session should succeed")
	}
}

func TestLayeredStore_DegradationAndRecovery(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if store.Degraded() {
		t.Fatal("store degraded before any failure")
	}

	mr.SetError("forced outage")

	s := New("s1")
	s.TurnCount = 5
	if err := store.Save(ctx, "s1", s); err != nil {
		t.Fatalf("Save during outage should fall back, got: %v", err)
	}
	if !store.Degraded() {
		t.Error("store not marked degraded after remote failure")
	}

	// State written during the outage is served from the fallback tier.
	got := store.Load(ctx, "s1")
	if got.TurnCount != 5 {
		t.Errorf("fallback tier lost state: %+v", got)
	}

	// Claims still resolve exactly once while degraded.
	if !store.TryClaimCallback(ctx, "s1") {
		t.Error("first claim during outage failed")
	}
	if store.TryClaimCallback(ctx, "s1") {
		t.Error("second claim during outage succeeded")
	}

	mr.SetError("")

	// The remote never saw the outage-era write; the fallback copy must
	// still serve the load rather than a fresh default.
	back := store.Load(ctx, "s1")
	if back.TurnCount != 5 {
		t.Errorf("outage-era state lost after recovery: %+v", back)
	}
	if store.Degraded() {
		t.Error("store still degraded after remote recovered")
	}

	// The outage-era claim keeps refusing even though the remote SETNX
	// never recorded it.
	if store.TryClaimCallback(ctx, "s1") {
		t.Error("claim re-granted after recovery")
	}

	if err := store.Save(ctx, "s1", back); err != nil {
		t.Fatalf("Save after recovery failed: %v", err)
	}
	if got := store.Load(ctx, "s1"); got.TurnCount != 5 {
		t.Errorf("state not re-persisted after recovery: %+v", got)
	}
}

func TestLayeredStore_NoRemote(t *testing.T) {
	store := NewLayeredStore(nil, 100, time.Hour)
	ctx := context.Background()

	s := New("s1")
	s.TurnCount = 2
	if err := store.Save(ctx, "s1", s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := store.Load(ctx, "s1"); got.TurnCount != 2 {
		t.Errorf("fallback-only roundtrip lost state: %+v", got)
	}
	if !store.TryClaimCallback(ctx, "s1") {
		t.Error("first claim failed")
	}
	if store.TryClaimCallback(ctx, "s1") {
		t.Error("second claim succeeded")
	}
}

func TestLayeredStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	s := New("s1")
	s.TurnCount = 1
	if err := store.Save(ctx, "s1", s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := store.Load(ctx, "s1"); got.TurnCount != 0 {
		t.Errorf("session survived delete: %+v", got)
	}
}
