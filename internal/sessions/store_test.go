package sessions

import (
	"sync"
	"testing"
	"time"
)

func TestStore_GetOrCreateIsStableAcrossCalls(t *testing.T) {
	s := NewStore(t.TempDir(), "agent-1", nil)

	a := s.GetOrCreate("agent:agent-1:main")
	b := s.GetOrCreate("agent:agent-1:main")
	if a.ID != b.ID {
		t.Fatalf("expected stable id, got %q then %q", a.ID, b.ID)
	}
}

func TestStore_GetOrCreateConcurrentCallersObserveSameID(t *testing.T) {
	s := NewStore(t.TempDir(), "agent-1", nil)
	const n = 50

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ids[idx] = s.GetOrCreate("agent:agent-1:main").ID
		}(i)
	}
	wg.Wait()

	first := ids[0]
	for i, id := range ids {
		if id != first {
			t.Fatalf("caller %d observed id %q, want %q", i, id, first)
		}
	}
}

func TestStore_UpdateAddsTokensAdditively(t *testing.T) {
	s := NewStore(t.TempDir(), "agent-1", nil)
	s.GetOrCreate("k")

	s.Update("k", Patch{AddInputTokens: 10, AddOutputTokens: 5})
	got := s.Update("k", Patch{AddInputTokens: 3, AddOutputTokens: 1})

	if got.Cumulative.Input != 13 || got.Cumulative.Output != 6 || got.Cumulative.Total != 19 {
		t.Fatalf("cumulative = %+v, want input=13 output=6 total=19", got.Cumulative)
	}
}

func TestStore_ResetAllocatesNewIDAndZeroesCounters(t *testing.T) {
	s := NewStore(t.TempDir(), "agent-1", nil)
	orig := s.GetOrCreate("k")
	s.Update("k", Patch{AddInputTokens: 100})

	reset := s.Reset("k")
	if reset.ID == orig.ID {
		t.Fatal("expected a fresh id after reset")
	}
	if reset.Cumulative.Input != 0 {
		t.Fatalf("expected zeroed counters after reset, got %+v", reset.Cumulative)
	}
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "agent-1", nil)
	created := s.GetOrCreate("agent:agent-1:main")
	s.Update("agent:agent-1:main", Patch{AddInputTokens: 7})

	reloaded := NewStore(dir, "agent-1", nil)
	got, ok := reloaded.Get("agent:agent-1:main")
	if !ok {
		t.Fatal("expected session to survive reload")
	}
	if got.ID != created.ID {
		t.Fatalf("id = %q, want %q", got.ID, created.ID)
	}
	if got.Cumulative.Input != 7 {
		t.Fatalf("input tokens = %d, want 7", got.Cumulative.Input)
	}
}

func TestStore_GetMissingKeyReturnsFalse(t *testing.T) {
	s := NewStore(t.TempDir(), "agent-1", nil)
	if _, ok := s.Get("nope"); ok {
		t.Fatal("expected ok=false for a key never created")
	}
}

func TestStore_UpdateBumpsUpdatedAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(t.TempDir(), "agent-1", func() time.Time { return now })
	s.GetOrCreate("k")

	now = now.Add(5 * time.Minute)
	got := s.Update("k", Patch{AddInputTokens: 1})
	if got.UpdatedAtMs != now.UnixMilli() {
		t.Fatalf("updatedAt = %d, want %d", got.UpdatedAtMs, now.UnixMilli())
	}
}
