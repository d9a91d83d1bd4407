package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultLocalDBName = "arcade_local.db"

type SQLiteService struct {
	db    *sql.DB
	cache *recentCache
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath := strings.TrimSpace(os.Getenv("HISTORY_SQLITE_PATH"))
	if dbPath == "" {
		dbPath = filepath.Join("data", defaultLocalDBName)
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteHistorySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{db: db, cache: newRecentCache()}, nil
}

func ensureSQLiteHistorySchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS matches (
    match_id   TEXT PRIMARY KEY,
    game_id    TEXT NOT NULL,
    room_id    TEXT NOT NULL,
    table_id   TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at   TIMESTAMP NOT NULL,
    aborted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS match_players (
    match_id     TEXT NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    user_id      INTEGER NOT NULL,
    display_name TEXT NOT NULL,
    seat         INTEGER NOT NULL,
    PRIMARY KEY (match_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_match_players_user ON match_players(user_id);
CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches(ended_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordMatch persists a finalized summary. Failures are logged and dropped:
// the lobby transition that produced the summary has already completed.
func (s *SQLiteService) RecordMatch(summary MatchSummary) {
	if strings.TrimSpace(summary.MatchID) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := insertMatch(ctx, s.db, summary, sqlitePlaceholders); err != nil {
		log.Printf("[History] record match %s failed: %v", summary.MatchID, err)
		return
	}
	s.cache.invalidate(summary)
}

func (s *SQLiteService) Recent(ctx context.Context, userID uint64, limit int) ([]MatchSummary, error) {
	limit = clampLimit(limit)
	if items, ok := s.cache.get(userID, limit); ok {
		return items, nil
	}
	items, err := selectRecent(ctx, s.db, userID, limit, sqlitePlaceholders)
	if err != nil {
		return nil, err
	}
	s.cache.put(userID, items)
	return items, nil
}

// placeholderFn rewrites ?-style placeholders for the backend in use.
type placeholderFn func(query string) string

func sqlitePlaceholders(query string) string { return query }

func postgresPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func insertMatch(ctx context.Context, db *sql.DB, summary MatchSummary, ph placeholderFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	aborted := 0
	if summary.Aborted {
		aborted = 1
	}
	if _, err := tx.ExecContext(ctx, ph(
		`INSERT INTO matches (match_id, game_id, room_id, table_id, started_at, ended_at, aborted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		summary.MatchID, summary.GameID, summary.RoomID, summary.TableID,
		summary.StartedAt.UTC(), summary.EndedAt.UTC(), aborted,
	); err != nil {
		return err
	}
	for _, occ := range summary.Occupants {
		if _, err := tx.ExecContext(ctx, ph(
			`INSERT INTO match_players (match_id, user_id, display_name, seat) VALUES (?, ?, ?, ?)`),
			summary.MatchID, int64(occ.UserID), occ.DisplayName, occ.Seat,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func selectRecent(ctx context.Context, db *sql.DB, userID uint64, limit int, ph placeholderFn) ([]MatchSummary, error) {
	rows, err := db.QueryContext(ctx, ph(
		`SELECT m.match_id, m.game_id, m.room_id, m.table_id, m.started_at, m.ended_at, m.aborted
		 FROM matches m
		 JOIN match_players mp ON mp.match_id = m.match_id
		 WHERE mp.user_id = ?
		 ORDER BY m.ended_at DESC
		 LIMIT ?`),
		int64(userID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]MatchSummary, 0, limit)
	for rows.Next() {
		var s MatchSummary
		var aborted int
		if err := rows.Scan(&s.MatchID, &s.GameID, &s.RoomID, &s.TableID, &s.StartedAt, &s.EndedAt, &aborted); err != nil {
			return nil, err
		}
		s.Aborted = aborted != 0
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		occupants, err := selectOccupants(ctx, db, summaries[i].MatchID, ph)
		if err != nil {
			return nil, err
		}
		summaries[i].Occupants = occupants
	}
	return summaries, nil
}

func selectOccupants(ctx context.Context, db *sql.DB, matchID string, ph placeholderFn) ([]Occupant, error) {
	rows, err := db.QueryContext(ctx, ph(
		`SELECT user_id, display_name, seat FROM match_players WHERE match_id = ? ORDER BY seat`),
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occupants []Occupant
	for rows.Next() {
		var occ Occupant
		var uid int64
		if err := rows.Scan(&uid, &occ.DisplayName, &occ.Seat); err != nil {
			return nil, err
		}
		occ.UserID = uint64(uid)
		occupants = append(occupants, occ)
	}
	return occupants, rows.Err()
}
