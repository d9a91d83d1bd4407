// Package broadcast fans room and table state changes out to subscribed
// connections. The hub is the single room.EventSink for the whole registry.
package broadcast

import (
	"log"
	"sync"

	"arcade-lobby/internal/protocol"
	"arcade-lobby/internal/room"
	"arcade-lobby/internal/table"
)

type subscriber struct {
	send   chan []byte
	rooms  map[string]struct{}
	tables map[string]struct{}
}

// Hub routes encoded events to connection send channels. Sends never block:
// a connection whose buffer is full loses the frame and resyncs from the
// next snapshot it requests.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	roomSubs  map[string]map[string]struct{}
	tableSubs map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs:      make(map[string]*subscriber),
		roomSubs:  make(map[string]map[string]struct{}),
		tableSubs: make(map[string]map[string]struct{}),
	}
}

// Register attaches a connection's send channel to the hub.
func (h *Hub) Register(connID string, send chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[connID] = &subscriber{
		send:   send,
		rooms:  make(map[string]struct{}),
		tables: make(map[string]struct{}),
	}
}

// Unregister detaches a connection and drops all its subscriptions.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[connID]
	if !ok {
		return
	}
	for roomID := range sub.rooms {
		h.dropFromIndex(h.roomSubs, roomID, connID)
	}
	for tableID := range sub.tables {
		h.dropFromIndex(h.tableSubs, tableID, connID)
	}
	delete(h.subs, connID)
}

// SubscribeRoom opts a connection into a room's state stream.
func (h *Hub) SubscribeRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[connID]
	if !ok {
		return
	}
	sub.rooms[roomID] = struct{}{}
	if h.roomSubs[roomID] == nil {
		h.roomSubs[roomID] = make(map[string]struct{})
	}
	h.roomSubs[roomID][connID] = struct{}{}
}

// UnsubscribeRoom drops the room stream and every table stream under it.
func (h *Hub) UnsubscribeRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[connID]
	if !ok {
		return
	}
	delete(sub.rooms, roomID)
	h.dropFromIndex(h.roomSubs, roomID, connID)
	for tableID := range sub.tables {
		delete(sub.tables, tableID)
		h.dropFromIndex(h.tableSubs, tableID, connID)
	}
}

// SubscribeTable opts a connection into one table's seat stream.
func (h *Hub) SubscribeTable(connID, tableID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[connID]
	if !ok {
		return
	}
	sub.tables[tableID] = struct{}{}
	if h.tableSubs[tableID] == nil {
		h.tableSubs[tableID] = make(map[string]struct{})
	}
	h.tableSubs[tableID][connID] = struct{}{}
}

func (h *Hub) UnsubscribeTable(connID, tableID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[connID]
	if !ok {
		return
	}
	delete(sub.tables, tableID)
	h.dropFromIndex(h.tableSubs, tableID, connID)
}

// dropFromIndex removes connID from an index bucket, pruning empty buckets.
// Callers hold h.mu.
func (h *Hub) dropFromIndex(index map[string]map[string]struct{}, key, connID string) {
	bucket, ok := index[key]
	if !ok {
		return
	}
	delete(bucket, connID)
	if len(bucket) == 0 {
		delete(index, key)
	}
}

// RoomState implements room.EventSink.
func (h *Hub) RoomState(snap room.Snapshot) {
	data := protocol.MustEncodeEvent(protocol.EventRoomState, protocol.RoomStatePayload{Room: snap})
	h.mu.RLock()
	targets := h.collect(h.roomSubs[snap.RoomID], nil)
	h.mu.RUnlock()
	h.deliver(targets, data)
}

// TableState implements room.EventSink. Full table snapshots go to everyone
// in the room plus any direct table subscribers.
func (h *Hub) TableState(roomID string, snap table.Snapshot) {
	data := protocol.MustEncodeEvent(protocol.EventTableState, protocol.TableStatePayload{
		RoomID: roomID,
		Table:  snap,
	})
	h.mu.RLock()
	targets := h.collect(h.roomSubs[roomID], h.tableSubs[snap.TableID])
	h.mu.RUnlock()
	h.deliver(targets, data)
}

// SeatState implements room.EventSink, the incremental per-seat delta.
func (h *Hub) SeatState(roomID, tableID string, seat table.SeatSnapshot, status table.Status, currentPlayers int) {
	data := protocol.MustEncodeEvent(protocol.EventSeatState, protocol.SeatStatePayload{
		RoomID:         roomID,
		TableID:        tableID,
		Seat:           seat,
		Status:         status,
		CurrentPlayers: currentPlayers,
	})
	h.mu.RLock()
	targets := h.collect(h.roomSubs[roomID], h.tableSubs[tableID])
	h.mu.RUnlock()
	h.deliver(targets, data)
}

// collect resolves subscriber channels from up to two index buckets,
// deduplicating connections present in both. Callers hold h.mu.
func (h *Hub) collect(buckets ...map[string]struct{}) []chan []byte {
	seen := make(map[string]struct{})
	var out []chan []byte
	for _, bucket := range buckets {
		for connID := range bucket {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			if sub, ok := h.subs[connID]; ok {
				out = append(out, sub.send)
			}
		}
	}
	return out
}

func (h *Hub) deliver(targets []chan []byte, data []byte) {
	for _, send := range targets {
		select {
		case send <- data:
		default:
			log.Printf("[Hub] send buffer full, frame dropped")
		}
	}
}
