package presence

import (
	"errors"
	"sync"
)

var (
	ErrAlreadySeated = errors.New("already seated at another table")
	ErrNotInRoom     = errors.New("not in the required room")
)

// Kind is where a user currently is.
type Kind int

const (
	Idle Kind = iota
	InRoom
	Seated
)

// Location is the single authoritative record of a user's position. A user
// has at most one Location at any instant; the seat fields are set only for
// Seated records.
type Location struct {
	Kind    Kind
	RoomID  string
	TableID string
	Seat    int
}

func IdleLocation() Location { return Location{Kind: Idle} }

func RoomLocation(roomID string) Location {
	return Location{Kind: InRoom, RoomID: roomID}
}

func SeatLocation(roomID, tableID string, seat int) Location {
	return Location{Kind: Seated, RoomID: roomID, TableID: tableID, Seat: seat}
}

// Tracker holds one location record per connected user. All transitions are
// serialized under a single mutex, which is what makes ReserveSeat a safe
// arbitration point for claims racing across different table actors.
type Tracker struct {
	mu    sync.Mutex
	users map[uint64]Location
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[uint64]Location)}
}

// Get returns the user's current location, Idle if none is recorded.
func (t *Tracker) Get(userID uint64) Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	loc, ok := t.users[userID]
	if !ok {
		return IdleLocation()
	}
	return loc
}

// Set unconditionally overwrites the user's location. Callers invoke it only
// after the corresponding room/table mutation has succeeded.
func (t *Tracker) Set(userID uint64, loc Location) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[userID] = loc
}

// Clear removes the record entirely (disconnect/logout).
func (t *Tracker) Clear(userID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// ReserveSeat atomically transitions an in-room user to a seat. It fails with
// ErrAlreadySeated if the user holds any seat system-wide and ErrNotInRoom if
// the user is not present in roomID. Two table actors racing to seat the same
// user serialize here, so at most one reservation succeeds.
func (t *Tracker) ReserveSeat(userID uint64, roomID, tableID string, seat int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	loc, ok := t.users[userID]
	if !ok || loc.Kind == Idle {
		return ErrNotInRoom
	}
	if loc.Kind == Seated {
		return ErrAlreadySeated
	}
	if loc.RoomID != roomID {
		return ErrNotInRoom
	}
	t.users[userID] = SeatLocation(roomID, tableID, seat)
	return nil
}

// ReleaseToRoom drops a seated user back to in-room presence. Releasing a
// seat never makes the user idle; leaving the room does that explicitly.
func (t *Tracker) ReleaseToRoom(userID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	loc, ok := t.users[userID]
	if !ok || loc.Kind != Seated {
		return
	}
	t.users[userID] = RoomLocation(loc.RoomID)
}

// CountInRoom reports how many presence records reference roomID, directly or
// through a seat. Used by invariant tests, not by the allocation path.
func (t *Tracker) CountInRoom(roomID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, loc := range t.users {
		if loc.Kind != Idle && loc.RoomID == roomID {
			n++
		}
	}
	return n
}
