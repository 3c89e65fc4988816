package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents an individual live connection into the hub. The
// ID is the connection handle: one per websocket, gone on disconnect,
// never reused.
type Client struct {
	ID       string
	Username string

	ws  *websocket.Conn
	hub *Hub

	// Channel for outbound messages.
	dataQ chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]*Room
}

// newClient returns a new instance of Client.
func newClient(id, username string, ws *websocket.Conn, h *Hub) *Client {
	return &Client{
		ID:       id,
		Username: username,
		ws:       ws,
		hub:      h,
		dataQ:    make(chan []byte, h.cfg.MaxMessageQueue),
		rooms:    make(map[string]*Room),
	}
}

// RunListener is a blocking function that reads incoming messages from
// the client's WS connection until it's dropped or there's an error.
// This should be invoked as a goroutine.
func (c *Client) RunListener() {
	c.ws.SetReadLimit(int64(c.hub.cfg.MaxMessageLen))
	for {
		_, m, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		c.processMessage(m)
	}

	// WS connection is closed.
	c.ws.Close()
	c.hub.RemoveClient(c)
}

// RunWriter is a blocking function that writes messages in the client's
// queue to its WS connection. This should be invoked as a goroutine.
func (c *Client) RunWriter() {
	defer c.ws.Close()
	for {
		message, ok := <-c.dataQ
		if !ok {
			c.writeWSData(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.writeWSData(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// SendData queues a message to be written to the client's WS. Slow
// consumers with a full queue lose the message rather than stall the
// sender's handler. Messages to a closed client are dropped.
func (c *Client) SendData(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.dataQ <- b:
	default:
		c.hub.log.Printf("dropped message to %s@%s: queue full", c.Username, c.ID)
	}
}

// close marks the client dead and closes its outbound queue, releasing
// the writer pump. Idempotent.
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.dataQ)
	}
	c.mu.Unlock()
}

// writeWSData writes the given payload to the client's WS connection.
func (c *Client) writeWSData(msgType int, payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WSTimeout))
	return c.ws.WriteMessage(msgType, payload)
}

// sendError sends a capacity / validation rejection to the client.
func (c *Client) sendError(msg string) {
	c.SendData(makePayload(TypeRoomError, ErrorData{Message: msg}))
}

// addRoom records a room membership on the client for disconnect
// cleanup.
func (c *Client) addRoom(r *Room) {
	c.mu.Lock()
	c.rooms[r.ID] = r
	c.mu.Unlock()
}

// removeRoom drops a room membership record.
func (c *Client) removeRoom(id string) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()
}

// roomList snapshots the rooms the client is currently in.
func (c *Client) roomList() []*Room {
	c.mu.Lock()
	out := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r)
	}
	c.mu.Unlock()
	return out
}

// processMessage dispatches one incoming event frame. Unknown types
// fall through silently; the event set is closed.
func (c *Client) processMessage(b []byte) {
	var m payloadMsgWrap
	if err := json.Unmarshal(b, &m); err != nil {
		return
	}

	switch m.Type {
	// Random 1:1 pairing.
	case TypeFindPartner:
		c.hub.matchmaker.Enqueue(c.ID)

	case TypeNextPartner:
		c.hub.matchmaker.Next(c.ID)

	case TypeSignal:
		c.hub.matchmaker.Relay(c.ID, m.Data)

	// Chat rooms.
	case TypeGetRooms:
		c.SendData(makePayload(TypeRooms, c.hub.ListRooms()))

	case TypeCreateRoom:
		var req reqCreateRoom
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		c.createRoom(req)

	case TypeJoinRoom:
		var req reqJoinRoom
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		c.joinRoom(req)

	case TypeLeaveRoom:
		var req reqJoinRoom
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		c.leaveRoom(req.RoomID)

	case TypeRoomMessage:
		var req reqRoomMessage
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		if room, ok := c.hub.room(req.RoomID); ok {
			room.SendChat(c, req.Text)
		}

	// Presence and private messages.
	case TypeGetOnline:
		c.SendData(makePayload(TypeOnlineUsers, c.hub.OnlineUsers()))

	case TypePrivateMsg:
		var req reqPrivateMsg
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		c.hub.PrivateMessage(c, req.To, req.Text)

	// Group lounge.
	case TypeJoinLounge:
		c.hub.lounge.Join(c.ID)

	case TypeOffer, TypeAnswer, TypeCandidate:
		var sig loungeSignal
		if err := json.Unmarshal(m.Data, &sig); err != nil {
			return
		}
		c.hub.lounge.Signal(c.ID, m.Type, sig)

	default:
	}
}

// createRoom creates a room and puts the creator in it.
func (c *Client) createRoom(req reqCreateRoom) {
	room, err := c.hub.AddRoom(req.RoomName, req.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if err := room.Join(c, req.Password); err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.BroadcastRooms()
}

// joinRoom resolves a room (activating it from the store if needed)
// and joins it.
func (c *Client) joinRoom(req reqJoinRoom) {
	room, err := c.hub.ActivateRoom(req.RoomID)
	if err != nil {
		c.sendError("room is invalid or has expired")
		return
	}
	if err := room.Join(c, req.Password); err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.BroadcastRooms()
}

// leaveRoom leaves an active room.
func (c *Client) leaveRoom(roomID string) {
	room, ok := c.hub.room(roomID)
	if !ok {
		return
	}
	room.Leave(c)
	c.hub.BroadcastRooms()
}
