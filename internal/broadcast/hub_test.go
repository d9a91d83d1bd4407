package broadcast

import (
	"encoding/json"
	"testing"

	"arcade-lobby/internal/protocol"
	"arcade-lobby/internal/room"
	"arcade-lobby/internal/table"
)

func drain(ch chan []byte) []protocol.Event {
	var events []protocol.Event
	for {
		select {
		case data := <-ch:
			var event protocol.Event
			if err := json.Unmarshal(data, &event); err != nil {
				panic(err)
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func roomSnap(roomID string) room.Snapshot {
	return room.Snapshot{RoomID: roomID, GameID: "tetris", OnlineUsers: 1}
}

func tableSnap(tableID string) table.Snapshot {
	return table.Snapshot{TableID: tableID, RoomID: "tetris_r1", Status: table.StatusWaiting}
}

func TestHub_RoomEventsReachRoomSubscribers(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 8)
	b := make(chan []byte, 8)
	hub.Register("conn_a", a)
	hub.Register("conn_b", b)
	hub.SubscribeRoom("conn_a", "tetris_r1")
	hub.SubscribeRoom("conn_b", "snake_r1")

	hub.RoomState(roomSnap("tetris_r1"))

	if got := drain(a); len(got) != 1 || got[0].Type != protocol.EventRoomState {
		t.Fatalf("expected one room_state for subscriber a, got %+v", got)
	}
	if got := drain(b); len(got) != 0 {
		t.Fatalf("expected nothing for other room's subscriber, got %+v", got)
	}
}

func TestHub_TableEventsDeduplicateRoomAndTableSubscribers(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 8)
	hub.Register("conn_a", a)
	hub.SubscribeRoom("conn_a", "tetris_r1")
	hub.SubscribeTable("conn_a", "tetris_r1_t1")

	hub.TableState("tetris_r1", tableSnap("tetris_r1_t1"))
	hub.SeatState("tetris_r1", "tetris_r1_t1", table.SeatSnapshot{Seat: 1, UserID: 5}, table.StatusWaiting, 1)

	got := drain(a)
	if len(got) != 2 {
		t.Fatalf("expected exactly one copy of each event, got %d: %+v", len(got), got)
	}
	if got[0].Type != protocol.EventTableState || got[1].Type != protocol.EventSeatState {
		t.Fatalf("unexpected event order: %+v", got)
	}
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 8)
	hub.Register("conn_a", a)
	hub.SubscribeRoom("conn_a", "tetris_r1")

	hub.RoomState(roomSnap("tetris_r1"))
	hub.TableState("tetris_r1", tableSnap("tetris_r1_t1"))
	hub.RoomState(roomSnap("tetris_r1"))

	got := drain(a)
	want := []protocol.EventType{protocol.EventRoomState, protocol.EventTableState, protocol.EventRoomState}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, event := range got {
		if event.Type != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, event.Type, want[i])
		}
	}
}

func TestHub_UnsubscribeRoomDropsTableStreams(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 8)
	hub.Register("conn_a", a)
	hub.SubscribeRoom("conn_a", "tetris_r1")
	hub.SubscribeTable("conn_a", "tetris_r1_t1")

	hub.UnsubscribeRoom("conn_a", "tetris_r1")

	hub.RoomState(roomSnap("tetris_r1"))
	hub.TableState("tetris_r1", tableSnap("tetris_r1_t1"))

	if got := drain(a); len(got) != 0 {
		t.Fatalf("expected no events after room unsubscribe, got %+v", got)
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 8)
	hub.Register("conn_a", a)
	hub.SubscribeRoom("conn_a", "tetris_r1")
	hub.Unregister("conn_a")

	hub.RoomState(roomSnap("tetris_r1"))

	if got := drain(a); len(got) != 0 {
		t.Fatalf("expected no events after unregister, got %+v", got)
	}

	// Subscribing an unknown connection is ignored rather than recreating it.
	hub.SubscribeRoom("conn_a", "tetris_r1")
	hub.RoomState(roomSnap("tetris_r1"))
	if got := drain(a); len(got) != 0 {
		t.Fatalf("expected stale subscribe to be ignored, got %+v", got)
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	a := make(chan []byte, 1)
	hub.Register("conn_a", a)
	hub.SubscribeRoom("conn_a", "tetris_r1")

	hub.RoomState(roomSnap("tetris_r1"))
	hub.RoomState(roomSnap("tetris_r1")) // must not block

	if got := drain(a); len(got) != 1 {
		t.Fatalf("expected single delivered event with full buffer, got %d", len(got))
	}
}
