// Package room owns the per-game room pools: fixed table sets, online-user
// counters and the registry that routes lobby operations to table actors.
package room

import (
	"fmt"
	"log"
	"sync"

	"arcade-lobby/internal/catalog"
	"arcade-lobby/internal/history"
	"arcade-lobby/internal/presence"
	"arcade-lobby/internal/table"
)

type historyService = history.Service

// Registry is the single process-wide owner of room runtime state.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string

	presence *presence.Tracker
	history  historyService
	sink     EventSink
}

func NewRegistry(tracker *presence.Tracker, hist historyService, sink EventSink) *Registry {
	if sink == nil {
		sink = nopSink{}
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		presence: tracker,
		history:  hist,
		sink:     sink,
	}
}

// CreateRoomPool instantiates a room and its fixed table pool. Idempotent
// per room ID: an existing room is returned untouched.
func (reg *Registry) CreateRoomPool(cfg Config) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.rooms[cfg.RoomID]; ok {
		return existing
	}
	r := newRoom(cfg, reg.presence, reg.history, reg.sink)
	reg.rooms[cfg.RoomID] = r
	reg.order = append(reg.order, cfg.RoomID)
	log.Printf("[Registry] room %s created (game=%s, tables=%d, maxUsers=%d)",
		cfg.RoomID, cfg.GameID, cfg.MaxTables, cfg.MaxUsers)
	return r
}

// InitFromCatalog creates the room pools for every game in the catalog.
func (reg *Registry) InitFromCatalog(cat *catalog.Catalog) {
	for _, g := range cat.Games() {
		for i := 1; i <= g.Rooms; i++ {
			reg.CreateRoomPool(Config{
				RoomID:    fmt.Sprintf("%s_r%d", g.GameID, i),
				GameID:    g.GameID,
				Name:      fmt.Sprintf("%s Room %d", g.Name, i),
				MaxTables: g.MaxTables,
				MaxUsers:  g.MaxUsers,
			})
		}
	}
}

// Room looks up a room by ID.
func (reg *Registry) Room(roomID string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Rooms returns snapshots of every room in creation order.
func (reg *Registry) Rooms() []Snapshot {
	reg.mu.RLock()
	ids := append([]string(nil), reg.order...)
	reg.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if r, err := reg.Room(id); err == nil {
			snaps = append(snaps, r.Snapshot())
		}
	}
	return snaps
}

// EnterRoom admits a user to a room and sets their presence. A user located
// in another room is transitively removed from it first, seat included, the
// same sequence the explicit leave_room path runs. Presence must never point
// at a room the user did not go through this path to reach.
func (reg *Registry) EnterRoom(roomID string, userID uint64, name string) (Snapshot, error) {
	r, err := reg.Room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	if loc := reg.presence.Get(userID); loc.Kind != presence.Idle && loc.RoomID != roomID {
		if lerr := reg.LeaveRoom(loc.RoomID, userID); lerr != nil {
			log.Printf("[Registry] leave of room %s before entering %s failed for user %d: %v",
				loc.RoomID, roomID, userID, lerr)
			return Snapshot{}, lerr
		}
	}

	snap, err := r.enter(userID, name, reg.presence)
	if err != nil {
		return Snapshot{}, err
	}
	reg.sink.RoomState(snap)
	return snap, nil
}

// LeaveRoom removes a user from a room, transitively releasing any seat
// they hold there first.
func (reg *Registry) LeaveRoom(roomID string, userID uint64) error {
	r, err := reg.Room(roomID)
	if err != nil {
		return err
	}

	if loc := reg.presence.Get(userID); loc.Kind == presence.Seated && loc.RoomID == roomID {
		if t, terr := r.Table(loc.TableID); terr == nil {
			if serr := t.SubmitEvent(table.Event{Type: table.EventDropUser, UserID: userID}); serr != nil {
				log.Printf("[Registry] seat release on leave failed for user %d: %v", userID, serr)
			}
		}
	}

	if r.leave(userID, reg.presence) {
		reg.sink.RoomState(r.Snapshot())
	}
	return nil
}

// ListTables returns a snapshot of every table in the room.
func (reg *Registry) ListTables(roomID string) ([]table.Snapshot, error) {
	r, err := reg.Room(roomID)
	if err != nil {
		return nil, err
	}
	return r.Snapshot().Tables, nil
}

func (reg *Registry) roomTable(roomID, tableID string) (*table.Table, error) {
	r, err := reg.Room(roomID)
	if err != nil {
		return nil, err
	}
	return r.Table(tableID)
}

// ClaimSeat routes a seat claim to the owning table actor.
func (reg *Registry) ClaimSeat(roomID, tableID string, userID uint64, name string, seat int) (table.Snapshot, error) {
	t, err := reg.roomTable(roomID, tableID)
	if err != nil {
		return table.Snapshot{}, err
	}
	if err := t.SubmitEvent(table.Event{
		Type:        table.EventClaimSeat,
		UserID:      userID,
		DisplayName: name,
		Seat:        seat,
	}); err != nil {
		return table.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// ReleaseSeat routes a seat release to the owning table actor.
func (reg *Registry) ReleaseSeat(roomID, tableID string, userID uint64, seat int) (table.Snapshot, error) {
	t, err := reg.roomTable(roomID, tableID)
	if err != nil {
		return table.Snapshot{}, err
	}
	if err := t.SubmitEvent(table.Event{
		Type:   table.EventReleaseSeat,
		UserID: userID,
		Seat:   seat,
	}); err != nil {
		return table.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// SetReady flips a seated user's ready flag; the table starts the match when
// the last required occupant readies up.
func (reg *Registry) SetReady(roomID, tableID string, userID uint64, ready bool) (table.Snapshot, error) {
	t, err := reg.roomTable(roomID, tableID)
	if err != nil {
		return table.Snapshot{}, err
	}
	if err := t.SubmitEvent(table.Event{
		Type:   table.EventSetReady,
		UserID: userID,
		Ready:  ready,
	}); err != nil {
		return table.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// FinishMatch applies the external match-ended signal to a playing table.
func (reg *Registry) FinishMatch(roomID, tableID string, userID uint64) (table.Snapshot, error) {
	t, err := reg.roomTable(roomID, tableID)
	if err != nil {
		return table.Snapshot{}, err
	}
	if err := t.SubmitEvent(table.Event{
		Type:   table.EventFinishMatch,
		UserID: userID,
	}); err != nil {
		return table.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// DropUser is the implicit leave-everything path for a disconnecting user:
// release any seat, drop room membership, delete the presence record.
func (reg *Registry) DropUser(userID uint64) {
	loc := reg.presence.Get(userID)
	if loc.Kind == presence.Idle {
		reg.presence.Clear(userID)
		return
	}
	if err := reg.LeaveRoom(loc.RoomID, userID); err != nil {
		log.Printf("[Registry] drop user %d from room %s failed: %v", userID, loc.RoomID, err)
	}
	reg.presence.Clear(userID)
}

// Stop shuts down every table actor.
func (reg *Registry) Stop() {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.rooms {
		r.stop()
	}
}
