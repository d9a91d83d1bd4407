package room

import (
	"errors"
	"fmt"
	"sync"

	"arcade-lobby/internal/presence"
	"arcade-lobby/internal/table"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomNotFound  = errors.New("room not found")
	ErrTableNotFound = errors.New("table not found")
)

// Fullness is the room's two-state occupancy label.
type Fullness string

const (
	FullnessOpen Fullness = "open"
	FullnessFull Fullness = "full"
)

// Config fixes a room's identity and bounds at creation time.
type Config struct {
	RoomID    string
	GameID    string
	Name      string
	MaxTables int
	MaxUsers  int
}

// Room owns a fixed pool of table actors and the online-user counter. The
// pool is created up front and never grows or shrinks with load.
type Room struct {
	cfg Config

	mu          sync.Mutex
	members     map[uint64]string
	onlineUsers int

	tables  []*table.Table
	tableID map[string]*table.Table
}

// Snapshot is the room's public state plus its table list, used for the
// initial client sync after enter_room.
type Snapshot struct {
	RoomID      string           `json:"roomId"`
	GameID      string           `json:"gameId"`
	Name        string           `json:"name"`
	MaxTables   int              `json:"maxTables"`
	MaxUsers    int              `json:"maxUsers"`
	OnlineUsers int              `json:"onlineUsers"`
	Fullness    Fullness         `json:"fullness"`
	Tables      []table.Snapshot `json:"tables"`
}

// EventSink is the fan-out contract for room and table state changes.
type EventSink interface {
	table.EventSink
	RoomState(snap Snapshot)
}

type nopSink struct{}

func (nopSink) RoomState(Snapshot) {}

func (nopSink) TableState(string, table.Snapshot) {}

func (nopSink) SeatState(string, string, table.SeatSnapshot, table.Status, int) {}

func newRoom(cfg Config, tracker *presence.Tracker, hist historyService, sink EventSink) *Room {
	r := &Room{
		cfg:     cfg,
		members: make(map[uint64]string),
		tableID: make(map[string]*table.Table, cfg.MaxTables),
	}
	for i := 0; i < cfg.MaxTables; i++ {
		id := fmt.Sprintf("%s_t%d", cfg.RoomID, i+1)
		t := table.New(id, table.Config{
			RoomID:     cfg.RoomID,
			GameID:     cfg.GameID,
			MaxPlayers: table.NumSeats,
		}, tracker, hist, sink)
		r.tables = append(r.tables, t)
		r.tableID[id] = t
	}
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.cfg.RoomID }

// Table looks up a table by ID within the room's fixed pool.
func (r *Room) Table(tableID string) (*table.Table, error) {
	t, ok := r.tableID[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// enter admits a user, maintaining the counter. Re-entering is idempotent
// and does not double count.
func (r *Room) enter(userID uint64, name string, tracker *presence.Tracker) (Snapshot, error) {
	r.mu.Lock()
	if _, already := r.members[userID]; already {
		r.members[userID] = name
		r.mu.Unlock()
		return r.Snapshot(), nil
	}
	if r.onlineUsers >= r.cfg.MaxUsers {
		r.mu.Unlock()
		return Snapshot{}, ErrRoomFull
	}
	r.members[userID] = name
	r.onlineUsers++
	r.mu.Unlock()

	tracker.Set(userID, presence.RoomLocation(r.cfg.RoomID))
	return r.Snapshot(), nil
}

// leave removes a user. Callers release any held seat first; leave only
// handles membership and the counter.
func (r *Room) leave(userID uint64, tracker *presence.Tracker) bool {
	r.mu.Lock()
	_, member := r.members[userID]
	if member {
		delete(r.members, userID)
		r.onlineUsers--
	}
	r.mu.Unlock()

	if member {
		tracker.Set(userID, presence.IdleLocation())
	}
	return member
}

// OnlineUsers returns the current counter value.
func (r *Room) OnlineUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineUsers
}

func (r *Room) fullness() Fullness {
	if r.onlineUsers >= r.cfg.MaxUsers {
		return FullnessFull
	}
	return FullnessOpen
}

// Snapshot captures the room state and every table's snapshot.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	snap := Snapshot{
		RoomID:      r.cfg.RoomID,
		GameID:      r.cfg.GameID,
		Name:        r.cfg.Name,
		MaxTables:   r.cfg.MaxTables,
		MaxUsers:    r.cfg.MaxUsers,
		OnlineUsers: r.onlineUsers,
		Fullness:    r.fullness(),
	}
	r.mu.Unlock()

	snap.Tables = make([]table.Snapshot, 0, len(r.tables))
	for _, t := range r.tables {
		snap.Tables = append(snap.Tables, t.Snapshot())
	}
	return snap
}

func (r *Room) stop() {
	for _, t := range r.tables {
		t.Stop()
	}
}
