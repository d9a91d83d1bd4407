// Package protocol defines the JSON wire format spoken over the lobby
// WebSocket: client requests with a sequence number and typed payload,
// and server events carrying state snapshots.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"arcade-lobby/internal/presence"
	"arcade-lobby/internal/room"
	"arcade-lobby/internal/table"
)

// RequestType enumerates the client-initiated operations.
type RequestType string

const (
	RequestEnterRoom   RequestType = "enter_room"
	RequestLeaveRoom   RequestType = "leave_room"
	RequestJoinSeat    RequestType = "join_seat"
	RequestLeaveSeat   RequestType = "leave_seat"
	RequestSetReady    RequestType = "set_ready"
	RequestFinishMatch RequestType = "finish_match"
	RequestListRooms   RequestType = "list_rooms"
	RequestListTables  RequestType = "list_tables"
)

// Request is the client envelope. Seq is echoed back on the ack so clients
// can correlate responses with in-flight requests.
type Request struct {
	Type    RequestType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type EnterRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type JoinSeatPayload struct {
	RoomID  string `json:"roomId"`
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
}

type LeaveSeatPayload struct {
	RoomID  string `json:"roomId"`
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
}

type SetReadyPayload struct {
	RoomID  string `json:"roomId"`
	TableID string `json:"tableId"`
	Ready   bool   `json:"ready"`
}

type FinishMatchPayload struct {
	RoomID  string `json:"roomId"`
	TableID string `json:"tableId"`
}

type ListTablesPayload struct {
	RoomID string `json:"roomId"`
}

// EventType enumerates server-to-client messages.
type EventType string

const (
	EventAck        EventType = "ack"
	EventRoomState  EventType = "room_state"
	EventTableState EventType = "table_state"
	EventSeatState  EventType = "seat_state"
)

// Event is the server envelope.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reason is the machine-readable rejection code carried on a failed ack.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonRoomFull      Reason = "room_full"
	ReasonRoomNotFound  Reason = "room_not_found"
	ReasonTableNotFound Reason = "table_not_found"
	ReasonTableLocked   Reason = "table_locked"
	ReasonSeatOccupied  Reason = "seat_occupied"
	ReasonInvalidSeat   Reason = "invalid_seat"
	ReasonNotOccupant   Reason = "not_occupant"
	ReasonAlreadySeated Reason = "already_seated"
	ReasonBadRequest    Reason = "bad_request"
	ReasonInternal      Reason = "internal"
)

// Ack acknowledges one request. On success Reason is empty and State carries
// the updated snapshot payload for the request, when one exists.
type Ack struct {
	Seq     uint64          `json:"seq"`
	Request RequestType     `json:"request"`
	OK      bool            `json:"ok"`
	Reason  Reason          `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
}

// RoomStatePayload wraps a room snapshot.
type RoomStatePayload struct {
	Room room.Snapshot `json:"room"`
}

// RoomListPayload carries every room snapshot, the list_rooms response.
type RoomListPayload struct {
	Rooms []room.Snapshot `json:"rooms"`
}

// TableStatePayload wraps one table snapshot.
type TableStatePayload struct {
	RoomID string         `json:"roomId"`
	Table  table.Snapshot `json:"table"`
}

// TableListPayload carries every table snapshot in a room.
type TableListPayload struct {
	RoomID string           `json:"roomId"`
	Tables []table.Snapshot `json:"tables"`
}

// SeatStatePayload is the incremental per-seat delta.
type SeatStatePayload struct {
	RoomID         string             `json:"roomId"`
	TableID        string             `json:"tableId"`
	Seat           table.SeatSnapshot `json:"seat"`
	Status         table.Status       `json:"status"`
	CurrentPlayers int                `json:"currentPlayers"`
}

// DecodeRequest parses a client frame, rejecting unknown request types. On
// error it still returns whatever fields did parse, so the caller can echo
// Seq and Type back on the failure ack.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	switch req.Type {
	case RequestEnterRoom, RequestLeaveRoom, RequestJoinSeat, RequestLeaveSeat,
		RequestSetReady, RequestFinishMatch, RequestListRooms, RequestListTables:
		return req, nil
	default:
		return req, fmt.Errorf("unknown request type %q", req.Type)
	}
}

// EncodeEvent marshals a server event with its payload.
func EncodeEvent(typ EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Event{Type: typ, Payload: raw})
}

// MustEncodeEvent is EncodeEvent for payloads built from internal snapshots,
// which cannot fail to marshal.
func MustEncodeEvent(typ EventType, payload any) []byte {
	data, err := EncodeEvent(typ, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// ReasonForError maps domain errors onto wire reason codes.
func ReasonForError(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, room.ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, room.ErrRoomNotFound):
		return ReasonRoomNotFound
	case errors.Is(err, room.ErrTableNotFound):
		return ReasonTableNotFound
	case errors.Is(err, table.ErrTableLocked):
		return ReasonTableLocked
	case errors.Is(err, table.ErrSeatOccupied):
		return ReasonSeatOccupied
	case errors.Is(err, table.ErrInvalidSeat):
		return ReasonInvalidSeat
	case errors.Is(err, table.ErrNotOccupant), errors.Is(err, table.ErrMatchNotRunning), errors.Is(err, presence.ErrNotInRoom):
		return ReasonNotOccupant
	case errors.Is(err, presence.ErrAlreadySeated):
		return ReasonAlreadySeated
	default:
		return ReasonInternal
	}
}
