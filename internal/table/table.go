// Package table implements the per-table arbitration unit of the lobby: an
// actor that owns a 4-seat vector, derives the table status from occupancy,
// and is the only writer of seat state.
package table

import (
	"fmt"
	"log"
	"sync"
	"time"

	"arcade-lobby/internal/history"
	"arcade-lobby/internal/presence"

	"github.com/google/uuid"
)

// Status is derived from seat occupancy and the match lifecycle.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Config contains the fixed identity of a table within its room.
type Config struct {
	RoomID     string
	GameID     string
	MaxPlayers int
}

// SeatSnapshot is one seat's public state.
type SeatSnapshot struct {
	Seat        int    `json:"seat"`
	UserID      uint64 `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Ready       bool   `json:"ready,omitempty"`
}

// Snapshot is the full public state of a table.
type Snapshot struct {
	TableID        string         `json:"tableId"`
	RoomID         string         `json:"roomId"`
	GameID         string         `json:"gameId"`
	Status         Status         `json:"status"`
	CurrentPlayers int            `json:"currentPlayers"`
	MaxPlayers     int            `json:"maxPlayers"`
	Seats          []SeatSnapshot `json:"seats"`
	MatchID        string         `json:"matchId,omitempty"`
	GameStartTime  *time.Time     `json:"gameStartTime,omitempty"`
	GameEndTime    *time.Time     `json:"gameEndTime,omitempty"`
}

// EventSink receives state-change notifications for fan-out. Implemented by
// the broadcast hub; tables never talk to connections directly.
type EventSink interface {
	TableState(roomID string, snap Snapshot)
	SeatState(roomID, tableID string, seat SeatSnapshot, status Status, currentPlayers int)
}

type nopSink struct{}

func (nopSink) TableState(string, Snapshot) {}

func (nopSink) SeatState(string, string, SeatSnapshot, Status, int) {}

// Event types for the actor message queue.
type EventType int

const (
	EventClaimSeat EventType = iota
	EventReleaseSeat
	EventSetReady
	EventFinishMatch
	EventDropUser
	EventClose
)

// Event is a message to the table actor. Response carries the typed outcome
// back to the submitter.
type Event struct {
	Type        EventType
	UserID      uint64
	DisplayName string
	Seat        int
	Ready       bool
	Response    chan error
}

// Table serializes all seat mutations for one table through a single actor
// goroutine, so concurrent claims on the same table apply in receipt order
// while different tables proceed independently.
type Table struct {
	ID     string
	Config Config

	mu             sync.RWMutex
	seats          seatVector
	status         Status
	matchID        string
	matchOccupants []history.Occupant
	startedAt      time.Time
	endedAt        time.Time
	closed         bool
	stopOnce       sync.Once

	events chan Event
	done   chan struct{}

	presence *presence.Tracker
	history  history.Service
	sink     EventSink
}

// New creates a table and starts its actor goroutine.
func New(id string, cfg Config, tracker *presence.Tracker, hist history.Service, sink EventSink) *Table {
	if cfg.MaxPlayers <= 0 || cfg.MaxPlayers > NumSeats {
		cfg.MaxPlayers = NumSeats
	}
	if sink == nil {
		sink = nopSink{}
	}
	t := &Table{
		ID:       id,
		Config:   cfg,
		status:   StatusEmpty,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		presence: tracker,
		history:  hist,
		sink:     sink,
	}
	go t.run()
	return t
}

func (t *Table) run() {
	for {
		select {
		case event := <-t.events:
			err := t.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-t.done:
			return
		}
	}
}

func (t *Table) handleEvent(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed && e.Type != EventClose {
		return ErrTableClosed
	}

	var err error
	switch e.Type {
	case EventClaimSeat:
		err = t.handleClaimSeat(e.UserID, e.DisplayName, e.Seat)
	case EventReleaseSeat:
		err = t.handleReleaseSeat(e.UserID, e.Seat)
	case EventSetReady:
		err = t.handleSetReady(e.UserID, e.Ready)
	case EventFinishMatch:
		err = t.handleFinishMatch(e.UserID)
	case EventDropUser:
		err = t.handleDropUser(e.UserID)
	case EventClose:
		t.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
	if err == nil {
		t.verifyPresenceLocked()
	}
	return err
}

// SubmitEvent sends an event to the actor and waits for its outcome.
func (t *Table) SubmitEvent(e Event) error {
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrTableClosed
	}

	select {
	case t.events <- e:
	case <-t.done:
		return ErrTableClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-t.done:
		return ErrTableClosed
	}
}

// Stop shuts down the table actor.
func (t *Table) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Table) stopLocked() {
	t.closed = true
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

func (t *Table) handleClaimSeat(userID uint64, name string, seatNo int) error {
	if t.status == StatusPlaying {
		return ErrTableLocked
	}
	if occupied, err := t.seats.occupied(seatNo); err != nil {
		return err
	} else if occupied {
		return ErrSeatOccupied
	}

	// The presence reservation is the system-wide arbitration point: a user
	// racing claims onto two tables loses exactly one of them here.
	if err := t.presence.ReserveSeat(userID, t.Config.RoomID, t.ID, seatNo); err != nil {
		return err
	}
	if err := t.seats.claim(seatNo, userID, name); err != nil {
		t.presence.ReleaseToRoom(userID)
		return err
	}

	prev := t.status
	t.refreshStatusLocked()
	log.Printf("[Table %s] user %d claimed seat %d", t.ID, userID, seatNo)

	t.emitSeatLocked(seatNo)
	if t.status != prev {
		t.emitTableLocked()
	}
	return nil
}

func (t *Table) handleReleaseSeat(userID uint64, seatNo int) error {
	if err := t.seats.release(seatNo, userID); err != nil {
		return err
	}
	t.presence.ReleaseToRoom(userID)

	prev := t.status
	if t.status == StatusPlaying && t.seats.occupantCount() == 0 {
		t.finishMatchLocked(true)
	} else {
		t.refreshStatusLocked()
	}
	log.Printf("[Table %s] user %d released seat %d", t.ID, userID, seatNo)

	t.emitSeatLocked(seatNo)
	if t.status != prev {
		t.emitTableLocked()
	}
	return nil
}

func (t *Table) handleSetReady(userID uint64, ready bool) error {
	if t.status == StatusPlaying {
		return ErrTableLocked
	}
	seatNo, err := t.seats.setReady(userID, ready)
	if err != nil {
		return err
	}
	t.emitSeatLocked(seatNo)

	if ready && t.status == StatusWaiting && t.seats.occupantCount() == t.Config.MaxPlayers && t.seats.allReady() {
		t.startMatchLocked()
	}
	return nil
}

func (t *Table) handleFinishMatch(userID uint64) error {
	if _, seated := t.seats.seatOf(userID); !seated {
		return ErrNotOccupant
	}
	if t.status != StatusPlaying {
		return ErrMatchNotRunning
	}
	t.finishMatchLocked(false)
	return nil
}

func (t *Table) handleDropUser(userID uint64) error {
	seatNo, seated := t.seats.seatOf(userID)
	if !seated {
		return nil
	}
	return t.handleReleaseSeat(userID, seatNo)
}

func (t *Table) startMatchLocked() {
	t.status = StatusPlaying
	t.matchID = uuid.NewString()
	t.startedAt = time.Now().UTC()
	t.endedAt = time.Time{}

	t.matchOccupants = t.matchOccupants[:0]
	for i := range t.seats {
		s := t.seats[i]
		if s.userID == 0 {
			continue
		}
		t.matchOccupants = append(t.matchOccupants, history.Occupant{
			UserID:      s.userID,
			DisplayName: s.name,
			Seat:        i + 1,
		})
	}

	log.Printf("[Table %s] match %s started", t.ID, t.matchID)
	t.emitTableLocked()
}

// finishMatchLocked stamps the end time, hands the summary to the history
// collaborator off the critical path, releases every occupant back to the
// room, and reverts the table to empty.
func (t *Table) finishMatchLocked(aborted bool) {
	t.endedAt = time.Now().UTC()
	t.status = StatusFinished

	summary := history.MatchSummary{
		MatchID:   t.matchID,
		GameID:    t.Config.GameID,
		RoomID:    t.Config.RoomID,
		TableID:   t.ID,
		Occupants: append([]history.Occupant(nil), t.matchOccupants...),
		StartedAt: t.startedAt,
		EndedAt:   t.endedAt,
		Aborted:   aborted,
	}
	if t.history != nil {
		go t.history.RecordMatch(summary)
	}

	log.Printf("[Table %s] match %s finished (aborted=%v)", t.ID, t.matchID, aborted)
	t.emitTableLocked()

	for i := range t.seats {
		if t.seats[i].userID != 0 {
			t.presence.ReleaseToRoom(t.seats[i].userID)
		}
	}
	t.seats.clearAll()
	t.matchID = ""
	t.matchOccupants = nil
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	t.status = StatusEmpty
	t.emitTableLocked()
}

// refreshStatusLocked derives empty/waiting from occupancy. Playing and
// finished are entered only through the match lifecycle handlers.
func (t *Table) refreshStatusLocked() {
	if t.status == StatusPlaying || t.status == StatusFinished {
		return
	}
	if t.seats.occupantCount() == 0 {
		t.status = StatusEmpty
	} else {
		t.status = StatusWaiting
	}
}

// verifyPresenceLocked cross-checks every occupied seat against the presence
// tracker. A mismatch means the single-seat invariant is broken; continuing
// risks double-booking, so the table resets its own state.
func (t *Table) verifyPresenceLocked() {
	for i := range t.seats {
		userID := t.seats[i].userID
		if userID == 0 {
			continue
		}
		loc := t.presence.Get(userID)
		if loc.Kind == presence.Seated && loc.TableID == t.ID && loc.Seat == i+1 {
			continue
		}
		log.Printf("[Table %s] presence mismatch for user %d at seat %d, resetting table", t.ID, userID, i+1)
		t.resetLocked()
		return
	}
}

func (t *Table) resetLocked() {
	for i := range t.seats {
		if t.seats[i].userID != 0 {
			t.presence.ReleaseToRoom(t.seats[i].userID)
		}
	}
	t.seats.clearAll()
	t.matchID = ""
	t.matchOccupants = nil
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	t.status = StatusEmpty
	t.emitTableLocked()
}

func (t *Table) emitSeatLocked(seatNo int) {
	t.sink.SeatState(t.Config.RoomID, t.ID, t.seatSnapshotLocked(seatNo), t.status, t.seats.occupantCount())
}

func (t *Table) emitTableLocked() {
	t.sink.TableState(t.Config.RoomID, t.snapshotLocked())
}

func (t *Table) seatSnapshotLocked(seatNo int) SeatSnapshot {
	s := t.seats[seatNo-1]
	return SeatSnapshot{
		Seat:        seatNo,
		UserID:      s.userID,
		DisplayName: s.name,
		Ready:       s.ready,
	}
}

func (t *Table) snapshotLocked() Snapshot {
	snap := Snapshot{
		TableID:        t.ID,
		RoomID:         t.Config.RoomID,
		GameID:         t.Config.GameID,
		Status:         t.status,
		CurrentPlayers: t.seats.occupantCount(),
		MaxPlayers:     t.Config.MaxPlayers,
		Seats:          make([]SeatSnapshot, 0, NumSeats),
		MatchID:        t.matchID,
	}
	for i := 1; i <= NumSeats; i++ {
		snap.Seats = append(snap.Seats, t.seatSnapshotLocked(i))
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		snap.GameStartTime = &started
	}
	if !t.endedAt.IsZero() {
		ended := t.endedAt
		snap.GameEndTime = &ended
	}
	return snap
}

// Snapshot returns the table's current public state.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Status returns the table's current derived status.
func (t *Table) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
