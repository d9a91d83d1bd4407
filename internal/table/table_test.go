package table

import (
	"context"
	"sync"
	"testing"
	"time"

	"arcade-lobby/internal/history"
	"arcade-lobby/internal/presence"
)

type fakeHistory struct {
	summaries chan history.MatchSummary
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{summaries: make(chan history.MatchSummary, 4)}
}

func (f *fakeHistory) Close() error { return nil }

func (f *fakeHistory) RecordMatch(summary history.MatchSummary) {
	f.summaries <- summary
}

func (f *fakeHistory) Recent(_ context.Context, _ uint64, _ int) ([]history.MatchSummary, error) {
	return nil, nil
}

func (f *fakeHistory) wait(t *testing.T) history.MatchSummary {
	t.Helper()
	select {
	case summary := <-f.summaries:
		return summary
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for match summary")
		return history.MatchSummary{}
	}
}

func newLobbyTestTable(t *testing.T, users ...uint64) (*Table, *presence.Tracker, *fakeHistory) {
	t.Helper()

	tracker := presence.NewTracker()
	for _, userID := range users {
		tracker.Set(userID, presence.RoomLocation("tetris_r1"))
	}

	hist := newFakeHistory()
	tbl := New("tetris_r1_t1", Config{
		RoomID:     "tetris_r1",
		GameID:     "tetris",
		MaxPlayers: NumSeats,
	}, tracker, hist, nil)
	t.Cleanup(tbl.Stop)
	return tbl, tracker, hist
}

func claimSeat(t *testing.T, tbl *Table, userID uint64, seatNo int) {
	t.Helper()
	err := tbl.SubmitEvent(Event{
		Type:        EventClaimSeat,
		UserID:      userID,
		DisplayName: "player",
		Seat:        seatNo,
	})
	if err != nil {
		t.Fatalf("claim seat %d for user %d err: %v", seatNo, userID, err)
	}
}

func fillTable(t *testing.T, tbl *Table) {
	t.Helper()
	for seatNo := 1; seatNo <= NumSeats; seatNo++ {
		claimSeat(t, tbl, uint64(seatNo), seatNo)
	}
}

func readyAll(t *testing.T, tbl *Table) {
	t.Helper()
	for userID := uint64(1); userID <= NumSeats; userID++ {
		if err := tbl.SubmitEvent(Event{Type: EventSetReady, UserID: userID, Ready: true}); err != nil {
			t.Fatalf("set ready for user %d err: %v", userID, err)
		}
	}
}

func TestClaimSeat_UpdatesSeatAndPresence(t *testing.T) {
	tbl, tracker, _ := newLobbyTestTable(t, 1)

	claimSeat(t, tbl, 1, 2)

	snap := tbl.Snapshot()
	if snap.Status != StatusWaiting {
		t.Fatalf("expected waiting status, got %s", snap.Status)
	}
	if snap.CurrentPlayers != 1 {
		t.Fatalf("expected 1 occupant, got %d", snap.CurrentPlayers)
	}
	if snap.Seats[1].UserID != 1 {
		t.Fatalf("expected user 1 at seat 2, got %+v", snap.Seats[1])
	}

	loc := tracker.Get(1)
	if loc.Kind != presence.Seated || loc.TableID != tbl.ID || loc.Seat != 2 {
		t.Fatalf("unexpected presence after claim: %+v", loc)
	}
}

func TestClaimSeat_OccupiedAndInvalid(t *testing.T) {
	tbl, tracker, _ := newLobbyTestTable(t, 1, 2)

	claimSeat(t, tbl, 1, 1)

	err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 2, Seat: 1})
	if err != ErrSeatOccupied {
		t.Fatalf("expected ErrSeatOccupied, got %v", err)
	}
	if loc := tracker.Get(2); loc.Kind != presence.InRoom {
		t.Fatalf("loser of the seat must stay in-room, got %+v", loc)
	}

	if err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 2, Seat: 0}); err != ErrInvalidSeat {
		t.Fatalf("expected ErrInvalidSeat for seat 0, got %v", err)
	}
	if err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 2, Seat: NumSeats + 1}); err != ErrInvalidSeat {
		t.Fatalf("expected ErrInvalidSeat for seat %d, got %v", NumSeats+1, err)
	}
}

func TestClaimSeat_SecondSeatRejected(t *testing.T) {
	tbl, _, _ := newLobbyTestTable(t, 1)

	claimSeat(t, tbl, 1, 1)
	err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 1, Seat: 2})
	if err != presence.ErrAlreadySeated {
		t.Fatalf("expected ErrAlreadySeated, got %v", err)
	}

	snap := tbl.Snapshot()
	if snap.CurrentPlayers != 1 || snap.Seats[0].UserID != 1 {
		t.Fatalf("failed claim must not change seats: %+v", snap.Seats)
	}
}

func TestClaimSeat_ConcurrentSameSeatOneWinner(t *testing.T) {
	users := []uint64{1, 2, 3, 4, 5, 6, 7, 8}
	tbl, tracker, _ := newLobbyTestTable(t, users...)

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, userID := range users {
		wg.Add(1)
		go func(i int, userID uint64) {
			defer wg.Done()
			errs[i] = tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: userID, Seat: 3})
		}(i, userID)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch err {
		case nil:
			wins++
		case ErrSeatOccupied:
		default:
			t.Fatalf("user %d: unexpected error %v", users[i], err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner for seat 3, got %d", wins)
	}

	seated := 0
	for _, userID := range users {
		if tracker.Get(userID).Kind == presence.Seated {
			seated++
		}
	}
	if seated != 1 {
		t.Fatalf("expected exactly one seated presence record, got %d", seated)
	}
}

func TestSetReady_AllFourStartMatch(t *testing.T) {
	tbl, _, _ := newLobbyTestTable(t, 1, 2, 3, 4, 5)
	fillTable(t, tbl)

	for userID := uint64(1); userID <= 3; userID++ {
		if err := tbl.SubmitEvent(Event{Type: EventSetReady, UserID: userID, Ready: true}); err != nil {
			t.Fatalf("set ready err: %v", err)
		}
		if status := tbl.Status(); status != StatusWaiting {
			t.Fatalf("expected waiting before all ready, got %s", status)
		}
	}

	if err := tbl.SubmitEvent(Event{Type: EventSetReady, UserID: 4, Ready: true}); err != nil {
		t.Fatalf("final set ready err: %v", err)
	}

	snap := tbl.Snapshot()
	if snap.Status != StatusPlaying {
		t.Fatalf("expected playing after all ready, got %s", snap.Status)
	}
	if snap.MatchID == "" {
		t.Fatalf("expected match id once playing")
	}
	if snap.GameStartTime == nil {
		t.Fatalf("expected game start time once playing")
	}

	// A fifth user cannot take a seat mid-match even though none is free
	// anyway; the lock fires before the occupancy check.
	if err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 5, Seat: 1}); err != ErrTableLocked {
		t.Fatalf("expected ErrTableLocked during match, got %v", err)
	}
	if err := tbl.SubmitEvent(Event{Type: EventSetReady, UserID: 1, Ready: false}); err != ErrTableLocked {
		t.Fatalf("expected ErrTableLocked for ready toggle during match, got %v", err)
	}
}

func TestSetReady_NonOccupantRejected(t *testing.T) {
	tbl, _, _ := newLobbyTestTable(t, 1, 2)
	claimSeat(t, tbl, 1, 1)

	if err := tbl.SubmitEvent(Event{Type: EventSetReady, UserID: 2, Ready: true}); err != ErrNotOccupant {
		t.Fatalf("expected ErrNotOccupant, got %v", err)
	}
}

func TestReleaseSeat_WaitingBackToEmpty(t *testing.T) {
	tbl, tracker, _ := newLobbyTestTable(t, 1, 2)
	claimSeat(t, tbl, 1, 1)

	if err := tbl.SubmitEvent(Event{Type: EventReleaseSeat, UserID: 2, Seat: 1}); err != ErrNotOccupant {
		t.Fatalf("expected ErrNotOccupant for foreign release, got %v", err)
	}

	if err := tbl.SubmitEvent(Event{Type: EventReleaseSeat, UserID: 1, Seat: 1}); err != nil {
		t.Fatalf("release err: %v", err)
	}
	if status := tbl.Status(); status != StatusEmpty {
		t.Fatalf("expected empty after last leave, got %s", status)
	}
	if loc := tracker.Get(1); loc.Kind != presence.InRoom {
		t.Fatalf("expected in-room presence after release, got %+v", loc)
	}
}

func TestFinishMatch_RecordsSummaryAndResets(t *testing.T) {
	tbl, tracker, hist := newLobbyTestTable(t, 1, 2, 3, 4)
	fillTable(t, tbl)
	readyAll(t, tbl)

	if err := tbl.SubmitEvent(Event{Type: EventFinishMatch, UserID: 2}); err != nil {
		t.Fatalf("finish match err: %v", err)
	}

	summary := hist.wait(t)
	if summary.MatchID == "" || summary.Aborted {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Occupants) != NumSeats {
		t.Fatalf("expected %d occupants, got %d", NumSeats, len(summary.Occupants))
	}
	if summary.EndedAt.Before(summary.StartedAt) {
		t.Fatalf("end time precedes start time: %+v", summary)
	}

	snap := tbl.Snapshot()
	if snap.Status != StatusEmpty || snap.CurrentPlayers != 0 {
		t.Fatalf("expected empty table after finish, got %+v", snap)
	}
	for userID := uint64(1); userID <= NumSeats; userID++ {
		if loc := tracker.Get(userID); loc.Kind != presence.InRoom {
			t.Fatalf("user %d should be back in-room, got %+v", userID, loc)
		}
	}
}

func TestStartMatch_SummarySkipsEmptySeats(t *testing.T) {
	tbl, _, hist := newLobbyTestTable(t, 1, 2)
	claimSeat(t, tbl, 1, 1)
	claimSeat(t, tbl, 2, 3)

	// Start with a partially filled table, the shape a configuration with
	// fewer required players than seats would produce.
	tbl.mu.Lock()
	tbl.startMatchLocked()
	tbl.mu.Unlock()

	if err := tbl.SubmitEvent(Event{Type: EventFinishMatch, UserID: 1}); err != nil {
		t.Fatalf("finish match err: %v", err)
	}

	summary := hist.wait(t)
	if len(summary.Occupants) != 2 {
		t.Fatalf("expected the 2 seated users only, got %+v", summary.Occupants)
	}
	for _, occ := range summary.Occupants {
		if occ.UserID == 0 {
			t.Fatalf("empty seat leaked into the summary: %+v", summary.Occupants)
		}
	}
	if summary.Occupants[0].Seat != 1 || summary.Occupants[1].Seat != 3 {
		t.Fatalf("unexpected seat numbers: %+v", summary.Occupants)
	}
}

func TestFinishMatch_Preconditions(t *testing.T) {
	tbl, _, _ := newLobbyTestTable(t, 1, 2, 3, 4, 9)
	fillTable(t, tbl)

	if err := tbl.SubmitEvent(Event{Type: EventFinishMatch, UserID: 1}); err != ErrMatchNotRunning {
		t.Fatalf("expected ErrMatchNotRunning before start, got %v", err)
	}

	readyAll(t, tbl)
	if err := tbl.SubmitEvent(Event{Type: EventFinishMatch, UserID: 9}); err != ErrNotOccupant {
		t.Fatalf("expected ErrNotOccupant for outsider, got %v", err)
	}
}

func TestReleaseSeat_LastLeaverAbortsMatch(t *testing.T) {
	tbl, _, hist := newLobbyTestTable(t, 1, 2, 3, 4)
	fillTable(t, tbl)
	readyAll(t, tbl)

	for seatNo := 1; seatNo <= NumSeats; seatNo++ {
		err := tbl.SubmitEvent(Event{Type: EventReleaseSeat, UserID: uint64(seatNo), Seat: seatNo})
		if err != nil {
			t.Fatalf("release seat %d err: %v", seatNo, err)
		}
	}

	summary := hist.wait(t)
	if !summary.Aborted {
		t.Fatalf("expected aborted summary when everyone leaves mid-match")
	}
	if status := tbl.Status(); status != StatusEmpty {
		t.Fatalf("expected empty after abort, got %s", status)
	}
}

func TestDropUser_ReleasesHeldSeat(t *testing.T) {
	tbl, tracker, _ := newLobbyTestTable(t, 1, 2)
	claimSeat(t, tbl, 1, 4)

	if err := tbl.SubmitEvent(Event{Type: EventDropUser, UserID: 1}); err != nil {
		t.Fatalf("drop user err: %v", err)
	}
	if snap := tbl.Snapshot(); snap.CurrentPlayers != 0 {
		t.Fatalf("expected seat released on drop, got %+v", snap)
	}
	if loc := tracker.Get(1); loc.Kind != presence.InRoom {
		t.Fatalf("expected in-room presence after drop, got %+v", loc)
	}

	// Dropping a user who holds nothing is a no-op.
	if err := tbl.SubmitEvent(Event{Type: EventDropUser, UserID: 2}); err != nil {
		t.Fatalf("drop of seatless user err: %v", err)
	}
}

func TestSubmitEvent_AfterStop(t *testing.T) {
	tbl, _, _ := newLobbyTestTable(t, 1)
	tbl.Stop()

	if err := tbl.SubmitEvent(Event{Type: EventClaimSeat, UserID: 1, Seat: 1}); err != ErrTableClosed {
		t.Fatalf("expected ErrTableClosed, got %v", err)
	}
}
