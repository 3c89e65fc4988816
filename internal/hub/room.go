package hub

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Join rejections surfaced to the requester as room-full-or-error
// events.
var (
	ErrRoomFull    = errors.New("room is full")
	ErrBadPassword = errors.New("incorrect room password")
)

// Room represents a capacity-bounded chat room.
type Room struct {
	ID       string
	Name     string
	Password []byte
	Capacity int

	hub *Hub

	mut          sync.RWMutex
	members      map[*Client]struct{}
	lastActivity time.Time
}

// NewRoom returns a new instance of Room.
func NewRoom(id, name string, password []byte, capacity int, h *Hub) *Room {
	return &Room{
		ID:           id,
		Name:         name,
		Password:     password,
		Capacity:     capacity,
		hub:          h,
		members:      make(map[*Client]struct{}, capacity),
		lastActivity: time.Now(),
	}
}

// Join adds a client to the room after capacity and password checks.
// The joiner gets a room-joined confirmation; everyone already inside
// gets a member-joined broadcast.
func (r *Room) Join(c *Client, password string) error {
	if len(r.Password) > 0 {
		if bcrypt.CompareHashAndPassword(r.Password, []byte(password)) != nil {
			return ErrBadPassword
		}
	}

	r.mut.Lock()
	if _, ok := r.members[c]; ok {
		// Repeat join, eg. after a page reload race. Just re-confirm.
		r.mut.Unlock()
		c.SendData(makePayload(TypeRoomJoined, RoomJoinedData{RoomID: r.ID}))
		return nil
	}
	if len(r.members) >= r.Capacity {
		r.mut.Unlock()
		return ErrRoomFull
	}
	r.members[c] = struct{}{}
	r.lastActivity = time.Now()
	r.mut.Unlock()

	c.addRoom(r)

	c.SendData(makePayload(TypeRoomJoined, RoomJoinedData{RoomID: r.ID}))
	r.broadcast(makePayload(TypeMemberJoined, MemberData{Username: c.Username}), c)
	r.hub.log.Printf("%s@%s joined room %s", c.Username, c.ID, r.ID)

	// A live room keeps its store record alive too.
	if err := r.hub.Store.ExtendRoomTTL(r.ID, r.hub.cfg.RoomAge); err != nil {
		r.hub.log.Printf("error extending room TTL in store: %v", err)
	}
	return nil
}

// Leave removes a client from the room and notifies the remaining
// members. Unknown members are a no-op.
func (r *Room) Leave(c *Client) {
	r.mut.Lock()
	if _, ok := r.members[c]; !ok {
		r.mut.Unlock()
		return
	}
	delete(r.members, c)
	r.lastActivity = time.Now()
	r.mut.Unlock()

	c.removeRoom(r.ID)

	r.broadcast(makePayload(TypeMemberLeft, MemberData{Username: c.Username}), nil)
	r.hub.log.Printf("%s@%s left room %s", c.Username, c.ID, r.ID)
}

// SendChat fans a chat message out to all members except the sender,
// stamped with the sender's label and the server time. Messages from
// non-members are dropped.
func (r *Room) SendChat(from *Client, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mut.Lock()
	if _, ok := r.members[from]; !ok {
		r.mut.Unlock()
		return
	}
	r.lastActivity = time.Now()
	r.mut.Unlock()

	r.broadcast(makePayload(TypeNewRoomMsg, RoomChatData{
		From:         from.ID,
		FromUsername: from.Username,
		Text:         text,
		Timestamp:    time.Now(),
	}), from)
}

// MemberCount returns the number of connected members.
func (r *Room) MemberCount() int {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return len(r.members)
}

// Expired reports whether the room has sat empty beyond the timeout.
func (r *Room) Expired(timeout time.Duration) bool {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return len(r.members) == 0 && time.Since(r.lastActivity) > timeout
}

// broadcast queues a payload to every member, optionally skipping one.
func (r *Room) broadcast(payload []byte, skip *Client) {
	r.mut.RLock()
	for m := range r.members {
		if m == skip {
			continue
		}
		m.SendData(payload)
	}
	r.mut.RUnlock()
}
