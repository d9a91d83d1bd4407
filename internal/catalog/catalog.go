package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SeatsPerTable is fixed for every arcade game in the catalog.
const SeatsPerTable = 4

// GameConfig describes the room topology for one game. The catalog is
// external read-only configuration; the lobby never mutates it.
type GameConfig struct {
	GameID    string `json:"game_id"`
	Name      string `json:"name"`
	Rooms     int    `json:"rooms"`
	MaxTables int    `json:"max_tables"`
	MaxUsers  int    `json:"max_users"`
}

// Catalog is the set of games the lobby serves, in a stable order.
type Catalog struct {
	games []GameConfig
	byID  map[string]GameConfig
}

func defaultGames() []GameConfig {
	return []GameConfig{
		{GameID: "tetris", Name: "Tetris", Rooms: 2, MaxTables: 6, MaxUsers: 40},
		{GameID: "snake", Name: "Snake", Rooms: 2, MaxTables: 4, MaxUsers: 24},
		{GameID: "breakout", Name: "Breakout", Rooms: 1, MaxTables: 4, MaxUsers: 20},
	}
}

// New builds a catalog from explicit game configs, applying defaults and
// rejecting unusable entries.
func New(games []GameConfig) (*Catalog, error) {
	if len(games) == 0 {
		return nil, fmt.Errorf("catalog has no games")
	}
	c := &Catalog{byID: make(map[string]GameConfig, len(games))}
	for _, g := range games {
		g.GameID = strings.TrimSpace(g.GameID)
		if g.GameID == "" {
			return nil, fmt.Errorf("catalog entry with empty game_id")
		}
		if _, dup := c.byID[g.GameID]; dup {
			return nil, fmt.Errorf("duplicate game_id %q", g.GameID)
		}
		if g.Name == "" {
			g.Name = g.GameID
		}
		if g.Rooms <= 0 {
			g.Rooms = 1
		}
		if g.MaxTables <= 0 {
			return nil, fmt.Errorf("game %q: max_tables must be positive", g.GameID)
		}
		if g.MaxUsers <= 0 {
			return nil, fmt.Errorf("game %q: max_users must be positive", g.GameID)
		}
		c.byID[g.GameID] = g
		c.games = append(c.games, g)
	}
	return c, nil
}

// LoadFile reads a catalog from a JSON file containing a list of games.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var games []GameConfig
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(games)
}

// LoadFromEnv loads the catalog from CATALOG_PATH, falling back to the
// built-in arcade set when unset. Returns the catalog and the source mode.
func LoadFromEnv() (*Catalog, string, error) {
	path := strings.TrimSpace(os.Getenv("CATALOG_PATH"))
	if path == "" {
		c, err := New(defaultGames())
		return c, "builtin", err
	}
	c, err := LoadFile(path)
	return c, "file", err
}

// Games returns all configured games in catalog order.
func (c *Catalog) Games() []GameConfig {
	out := make([]GameConfig, len(c.games))
	copy(out, c.games)
	return out
}

// Game looks up a single game config.
func (c *Catalog) Game(gameID string) (GameConfig, bool) {
	g, ok := c.byID[gameID]
	return g, ok
}
