package history

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultRecentLimit = 20
	recentCacheUsers   = 1024
)

var ErrNotFound = errors.New("not found")

// Occupant is one seat of a finished match.
type Occupant struct {
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
}

// MatchSummary is the finalized record the lobby emits when a table
// transitions playing -> finished. The lobby never waits on its storage.
type MatchSummary struct {
	MatchID   string     `json:"match_id"`
	GameID    string     `json:"game_id"`
	RoomID    string     `json:"room_id"`
	TableID   string     `json:"table_id"`
	Occupants []Occupant `json:"occupants"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Aborted   bool       `json:"aborted"`
}

// Service is the persistence collaborator for match summaries.
type Service interface {
	Close() error
	RecordMatch(summary MatchSummary)
	Recent(ctx context.Context, userID uint64, limit int) ([]MatchSummary, error)
}

type noopService struct{}

func (n *noopService) Close() error { return nil }

func (n *noopService) RecordMatch(_ MatchSummary) {}

func (n *noopService) Recent(_ context.Context, _ uint64, _ int) ([]MatchSummary, error) {
	return []MatchSummary{}, nil
}

// NewServiceFromEnv selects the history backend from HISTORY_MODE:
// "memory" (noop), "local" (sqlite) or "db" (postgres, the default).
func NewServiceFromEnv() (Service, string, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("HISTORY_MODE")))
	switch mode {
	case "memory", "none":
		return &noopService{}, "memory-noop", nil
	case "local", "sqlite":
		service, err := NewSQLiteServiceFromEnv()
		if err != nil {
			return nil, "local", err
		}
		return service, "local", nil
	case "", "db", "postgres", "postgresql":
		service, err := NewPostgresServiceFromEnv()
		if err != nil {
			return nil, "db", err
		}
		return service, "db", nil
	default:
		return nil, mode, errors.New("invalid HISTORY_MODE (supported: memory, local, db)")
	}
}

// recentCache keeps each user's most recent summaries so the read API does
// not hit the store for every lobby refresh. Entries are dropped whole on
// write; the next read repopulates from the store.
type recentCache struct {
	entries *lru.Cache[uint64, []MatchSummary]
}

func newRecentCache() *recentCache {
	entries, err := lru.New[uint64, []MatchSummary](recentCacheUsers)
	if err != nil {
		// lru.New only fails on non-positive size.
		panic(err)
	}
	return &recentCache{entries: entries}
}

func (c *recentCache) get(userID uint64, limit int) ([]MatchSummary, bool) {
	items, ok := c.entries.Get(userID)
	if !ok || len(items) < limit {
		return nil, false
	}
	out := make([]MatchSummary, limit)
	copy(out, items[:limit])
	return out, true
}

func (c *recentCache) put(userID uint64, items []MatchSummary) {
	c.entries.Add(userID, items)
}

func (c *recentCache) invalidate(summary MatchSummary) {
	for _, occ := range summary.Occupants {
		c.entries.Remove(occ.UserID)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func envIntOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
