// Package gateway owns the WebSocket connection lifecycle: session
// resolution at upgrade time, request dispatch into the room registry and
// the teardown sequence on disconnect.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"arcade-lobby/internal/auth"
	"arcade-lobby/internal/broadcast"
	"arcade-lobby/internal/protocol"
	"arcade-lobby/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Connection represents one authenticated WebSocket client.
type Connection struct {
	ID          string
	UserID      uint64
	DisplayName string
	Conn        *websocket.Conn
	Send        chan []byte
	Gateway     *Gateway
	LastPing    time.Time

	// Current room/table association, written only from this
	// connection's readPump.
	RoomID  string
	TableID string
}

// Gateway manages WebSocket connections and routes lobby requests.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	userConns   map[uint64]*Connection // userID -> live connection

	registry *room.Registry
	hub      *broadcast.Hub
	auth     auth.Service
}

func New(registry *room.Registry, hub *broadcast.Hub, authService auth.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		userConns:   make(map[uint64]*Connection),
		registry:    registry,
		hub:         hub,
		auth:        authService,
	}
}

// HandleWebSocket authenticates the handshake and upgrades the connection.
// The session token rides on the "token" query parameter or an
// Authorization bearer header.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	userID, displayName, ok := g.auth.ResolveSession(token)
	if !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	c := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Gateway:     g,
		LastPing:    time.Now(),
	}

	g.mu.Lock()
	prev := g.userConns[userID]
	g.connections[c.ID] = c
	g.userConns[userID] = c
	total := len(g.connections)
	g.mu.Unlock()

	// A reconnect supersedes the old socket. The replaced connection's
	// teardown must not tear down the user's lobby state.
	if prev != nil {
		prev.Conn.Close()
	}

	g.hub.Register(c.ID, c.Send)
	log.Printf("[Gateway] Client connected: %s (userID=%d), total: %d", c.ID, userID, total)

	go c.readPump()
	go c.writePump()
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(65536)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastPing = time.Now()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleRequest(message)
		}
	}
}

func (c *Connection) handleRequest(data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		log.Printf("[Gateway] Bad frame from user %d: %v", c.UserID, err)
		c.sendAck(protocol.Ack{
			Seq:     req.Seq,
			Request: req.Type,
			OK:      false,
			Reason:  protocol.ReasonBadRequest,
			Message: "invalid request",
		})
		return
	}

	switch req.Type {
	case protocol.RequestEnterRoom:
		c.handleEnterRoom(req)
	case protocol.RequestLeaveRoom:
		c.handleLeaveRoom(req)
	case protocol.RequestJoinSeat:
		c.handleJoinSeat(req)
	case protocol.RequestLeaveSeat:
		c.handleLeaveSeat(req)
	case protocol.RequestSetReady:
		c.handleSetReady(req)
	case protocol.RequestFinishMatch:
		c.handleFinishMatch(req)
	case protocol.RequestListRooms:
		c.handleListRooms(req)
	case protocol.RequestListTables:
		c.handleListTables(req)
	}
}

func (c *Connection) handleEnterRoom(req protocol.Request) {
	var payload protocol.EnterRoomPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	snap, err := c.Gateway.registry.EnterRoom(payload.RoomID, c.UserID, c.DisplayName)
	if err != nil {
		c.sendFailure(req, err)
		return
	}

	c.Gateway.hub.SubscribeRoom(c.ID, payload.RoomID)
	c.RoomID = payload.RoomID
	c.sendSuccess(req, protocol.RoomStatePayload{Room: snap})
}

func (c *Connection) handleLeaveRoom(req protocol.Request) {
	var payload protocol.LeaveRoomPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	if err := c.Gateway.registry.LeaveRoom(payload.RoomID, c.UserID); err != nil {
		c.sendFailure(req, err)
		return
	}

	c.Gateway.hub.UnsubscribeRoom(c.ID, payload.RoomID)
	c.RoomID = ""
	c.TableID = ""
	c.sendSuccess(req, nil)
}

func (c *Connection) handleJoinSeat(req protocol.Request) {
	var payload protocol.JoinSeatPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	snap, err := c.Gateway.registry.ClaimSeat(payload.RoomID, payload.TableID, c.UserID, c.DisplayName, payload.Seat)
	if err != nil {
		c.sendFailure(req, err)
		return
	}

	c.Gateway.hub.SubscribeTable(c.ID, payload.TableID)
	c.TableID = payload.TableID
	c.sendSuccess(req, protocol.TableStatePayload{RoomID: payload.RoomID, Table: snap})
}

func (c *Connection) handleLeaveSeat(req protocol.Request) {
	var payload protocol.LeaveSeatPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	snap, err := c.Gateway.registry.ReleaseSeat(payload.RoomID, payload.TableID, c.UserID, payload.Seat)
	if err != nil {
		c.sendFailure(req, err)
		return
	}

	c.Gateway.hub.UnsubscribeTable(c.ID, payload.TableID)
	c.TableID = ""
	c.sendSuccess(req, protocol.TableStatePayload{RoomID: payload.RoomID, Table: snap})
}

func (c *Connection) handleSetReady(req protocol.Request) {
	var payload protocol.SetReadyPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	snap, err := c.Gateway.registry.SetReady(payload.RoomID, payload.TableID, c.UserID, payload.Ready)
	if err != nil {
		c.sendFailure(req, err)
		return
	}
	c.sendSuccess(req, protocol.TableStatePayload{RoomID: payload.RoomID, Table: snap})
}

func (c *Connection) handleFinishMatch(req protocol.Request) {
	var payload protocol.FinishMatchPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	snap, err := c.Gateway.registry.FinishMatch(payload.RoomID, payload.TableID, c.UserID)
	if err != nil {
		c.sendFailure(req, err)
		return
	}
	c.sendSuccess(req, protocol.TableStatePayload{RoomID: payload.RoomID, Table: snap})
}

func (c *Connection) handleListRooms(req protocol.Request) {
	c.sendSuccess(req, protocol.RoomListPayload{Rooms: c.Gateway.registry.Rooms()})
}

func (c *Connection) handleListTables(req protocol.Request) {
	var payload protocol.ListTablesPayload
	if !c.decodePayload(req, &payload) {
		return
	}

	tables, err := c.Gateway.registry.ListTables(payload.RoomID)
	if err != nil {
		c.sendFailure(req, err)
		return
	}
	c.sendSuccess(req, protocol.TableListPayload{RoomID: payload.RoomID, Tables: tables})
}

func (c *Connection) decodePayload(req protocol.Request, dst any) bool {
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		c.sendAck(protocol.Ack{
			Seq:     req.Seq,
			Request: req.Type,
			OK:      false,
			Reason:  protocol.ReasonBadRequest,
			Message: "invalid payload",
		})
		return false
	}
	return true
}

func (c *Connection) sendSuccess(req protocol.Request, state any) {
	ack := protocol.Ack{
		Seq:     req.Seq,
		Request: req.Type,
		OK:      true,
	}
	if state != nil {
		raw, err := json.Marshal(state)
		if err != nil {
			log.Printf("[Gateway] Encode state for %s failed: %v", req.Type, err)
		} else {
			ack.State = raw
		}
	}
	c.sendAck(ack)
}

func (c *Connection) sendFailure(req protocol.Request, err error) {
	c.sendAck(protocol.Ack{
		Seq:     req.Seq,
		Request: req.Type,
		OK:      false,
		Reason:  protocol.ReasonForError(err),
		Message: err.Error(),
	})
}

func (c *Connection) sendAck(ack protocol.Ack) {
	data, err := protocol.EncodeEvent(protocol.EventAck, ack)
	if err != nil {
		log.Printf("[Gateway] Encode ack failed: %v", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		// Drop if buffer full
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeConnection tears down a closing connection. Order matters: the hub
// unsubscribes first so the departing socket never sees its own teardown
// events, then the registry releases the seat and room membership. A
// connection superseded by a reconnect leaves the user's lobby state alone.
func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.ID)
	current := g.userConns[c.UserID] == c
	if current {
		delete(g.userConns, c.UserID)
	}
	total := len(g.connections)
	g.mu.Unlock()

	g.hub.Unregister(c.ID)
	if current {
		g.registry.DropUser(c.UserID)
	}
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, total)
}
