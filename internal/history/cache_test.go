package history

import (
	"testing"
	"time"
)

func sampleSummary(matchID string, userIDs ...uint64) MatchSummary {
	summary := MatchSummary{
		MatchID:   matchID,
		GameID:    "tetris",
		RoomID:    "tetris_r1",
		TableID:   "tetris_r1_t1",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
	for i, userID := range userIDs {
		summary.Occupants = append(summary.Occupants, Occupant{
			UserID:      userID,
			DisplayName: "player",
			Seat:        i + 1,
		})
	}
	return summary
}

func TestRecentCache_HitRequiresEnoughItems(t *testing.T) {
	cache := newRecentCache()
	cache.put(1, []MatchSummary{sampleSummary("m1", 1), sampleSummary("m2", 1)})

	items, ok := cache.get(1, 2)
	if !ok || len(items) != 2 {
		t.Fatalf("expected cache hit with 2 items, got ok=%v len=%d", ok, len(items))
	}

	if _, ok := cache.get(1, 3); ok {
		t.Fatalf("expected miss when asking for more than cached")
	}
	if _, ok := cache.get(2, 1); ok {
		t.Fatalf("expected miss for unknown user")
	}
}

func TestRecentCache_InvalidateDropsEveryOccupant(t *testing.T) {
	cache := newRecentCache()
	cache.put(1, []MatchSummary{sampleSummary("m1", 1)})
	cache.put(2, []MatchSummary{sampleSummary("m1", 2)})
	cache.put(3, []MatchSummary{sampleSummary("m0", 3)})

	cache.invalidate(sampleSummary("m9", 1, 2))

	if _, ok := cache.get(1, 1); ok {
		t.Fatalf("expected user 1 entry invalidated")
	}
	if _, ok := cache.get(2, 1); ok {
		t.Fatalf("expected user 2 entry invalidated")
	}
	if _, ok := cache.get(3, 1); !ok {
		t.Fatalf("expected unrelated user 3 entry kept")
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0); got != defaultRecentLimit {
		t.Fatalf("clampLimit(0) = %d, want %d", got, defaultRecentLimit)
	}
	if got := clampLimit(-5); got != defaultRecentLimit {
		t.Fatalf("clampLimit(-5) = %d, want %d", got, defaultRecentLimit)
	}
	if got := clampLimit(7); got != 7 {
		t.Fatalf("clampLimit(7) = %d", got)
	}
	if got := clampLimit(500); got != 100 {
		t.Fatalf("clampLimit(500) = %d, want 100", got)
	}
}
