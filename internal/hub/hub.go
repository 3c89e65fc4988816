package hub

import (
	"crypto/rand"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hiddenface/hiddenface/store"
	"golang.org/x/crypto/bcrypt"
)

// Config represents the app configuration.
type Config struct {
	Address string `koanf:"address"`
	RootURL string `koanf:"root_url"`

	Name            string        `koanf:"name"`
	RoomIDLen       int           `koanf:"room_id_length"`
	MaxMessageLen   int           `koanf:"max_message_length"`
	MaxMessageQueue int           `koanf:"max_message_queue"`
	WSTimeout       time.Duration `koanf:"websocket_timeout"`
	MaxRooms        int           `koanf:"max_rooms"`
	RoomCapacity    int           `koanf:"room_capacity"`
	RoomTimeout     time.Duration `koanf:"room_timeout"`
	RoomAge         time.Duration `koanf:"room_age"`
}

// Hub acts as the controller and container for all live connections,
// the matchmaker, the lounge, and the chat rooms.
type Hub struct {
	Store store.Store

	cfg *Config
	log *log.Logger

	mut     sync.RWMutex
	clients map[string]*Client
	rooms   map[string]*Room

	matchmaker *Matchmaker
	lounge     *Lounge
}

// NewHub returns a new instance of Hub.
func NewHub(cfg *Config, st store.Store, l *log.Logger) *Hub {
	h := &Hub{
		Store:   st,
		cfg:     cfg,
		log:     l,
		clients: make(map[string]*Client),
		rooms:   make(map[string]*Room),
	}
	h.matchmaker = NewMatchmaker(h, l)
	h.lounge = NewLounge(h)
	go h.watchRooms()
	return h
}

// Matchmaker exposes the hub's matchmaker.
func (h *Hub) Matchmaker() *Matchmaker {
	return h.matchmaker
}

// AddClient registers a fresh WS connection as a client and starts its
// pumps. The username is the externally resolved display label; an
// empty one gets an anonymous handle.
func (h *Hub) AddClient(ws *websocket.Conn, username string) *Client {
	username = strings.TrimSpace(username)
	if username == "" {
		suffix, _ := GenerateGUID(6)
		username = "stranger-" + suffix
	}

	c := newClient(uuid.NewString(), username, ws, h)

	h.mut.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mut.Unlock()

	go c.RunListener()
	go c.RunWriter()

	h.log.Printf("%s@%s connected (%d online)", c.Username, c.ID, n)
	return c
}

// RemoveClient unregisters a client and unwinds everything it was part
// of: pairing, lounge, and room memberships. Called exactly once per
// connection, from the listener's exit path.
func (h *Hub) RemoveClient(c *Client) {
	h.mut.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mut.Unlock()
		return
	}
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mut.Unlock()

	// Closing the queue releases the writer pump.
	c.close()

	// The registry entry is gone, so the matchmaker sees the handle as
	// dead from here on. Tear down with notifications to survivors.
	h.matchmaker.Teardown(c.ID)
	h.lounge.Leave(c.ID)

	for _, r := range c.roomList() {
		r.Leave(c)
	}
	h.BroadcastRooms()

	h.log.Printf("%s@%s disconnected (%d online)", c.Username, c.ID, n)
}

// IsLive reports whether a connection handle is still registered.
func (h *Hub) IsLive(id string) bool {
	h.mut.RLock()
	_, ok := h.clients[id]
	h.mut.RUnlock()
	return ok
}

// Send delivers an event to a single connection. Returns false if the
// handle is no longer registered.
func (h *Hub) Send(id, typ string, data interface{}) bool {
	h.mut.RLock()
	c, ok := h.clients[id]
	h.mut.RUnlock()
	if !ok {
		return false
	}
	c.SendData(makePayload(typ, data))
	return true
}

// room looks up an active room without touching the store.
func (h *Hub) room(id string) (*Room, bool) {
	h.mut.RLock()
	r, ok := h.rooms[id]
	h.mut.RUnlock()
	return r, ok
}

// OnlineUsers returns a presence snapshot of all connected clients.
func (h *Hub) OnlineUsers() []OnlineUser {
	h.mut.RLock()
	out := make([]OnlineUser, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, OnlineUser{ID: c.ID, Username: c.Username})
	}
	h.mut.RUnlock()
	return out
}

// PrivateMessage relays a message to another connection, stamping the
// sender and the server time. Unknown targets are dropped silently;
// disconnect races are expected.
func (h *Hub) PrivateMessage(from *Client, to, text string) {
	text = strings.TrimSpace(text)
	if text == "" || to == "" {
		return
	}
	h.Send(to, TypePrivateMsg, PrivateMsgData{
		From:         from.ID,
		FromUsername: from.Username,
		Text:         text,
		Timestamp:    time.Now(),
	})
}

// AddRoom creates a new room in the store, adds it to the hub and
// returns it.
func (h *Hub) AddRoom(name, password string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name can't be empty")
	}
	if len(name) > 100 {
		return nil, errors.New("room name is too long")
	}

	var pwdHash []byte
	if password != "" {
		var err error
		pwdHash, err = bcrypt.GenerateFromPassword([]byte(password), 8)
		if err != nil {
			h.log.Printf("error hashing password: %v", err)
			return nil, errors.New("error creating room")
		}
	}

	id, err := h.generateRoomID(h.cfg.RoomIDLen, 5)
	if err != nil {
		return nil, err
	}

	// The count check and the insert happen under one lock so that
	// concurrent creates can't overshoot the cap.
	r := NewRoom(id, name, pwdHash, h.cfg.RoomCapacity, h)
	h.mut.Lock()
	if h.cfg.MaxRooms > 0 && len(h.rooms) >= h.cfg.MaxRooms {
		h.mut.Unlock()
		return nil, errors.New("too many rooms open right now")
	}
	h.rooms[id] = r
	h.mut.Unlock()

	// Add the room to the store so it survives restarts until its TTL.
	if err := h.Store.AddRoom(store.Room{
		ID:        id,
		Name:      name,
		Password:  pwdHash,
		Capacity:  h.cfg.RoomCapacity,
		CreatedAt: time.Now(),
	}, h.cfg.RoomAge); err != nil {
		h.log.Printf("error creating room in the store: %v", err)
		h.mut.Lock()
		delete(h.rooms, id)
		h.mut.Unlock()
		return nil, errors.New("error creating room")
	}

	h.BroadcastRooms()
	return r, nil
}

// ActivateRoom loads a room from the store into the hub if it's not
// already active.
func (h *Hub) ActivateRoom(id string) (*Room, error) {
	h.mut.RLock()
	room, ok := h.rooms[id]
	h.mut.RUnlock()
	if ok {
		return room, nil
	}

	r, err := h.Store.GetRoom(id)
	if err != nil {
		return nil, store.ErrRoomNotFound
	}

	capacity := r.Capacity
	if capacity <= 0 {
		capacity = h.cfg.RoomCapacity
	}
	return h.initRoom(r.ID, r.Name, r.Password, capacity), nil
}

// initRoom initializes a room on the hub.
func (h *Hub) initRoom(id, name string, password []byte, capacity int) *Room {
	r := NewRoom(id, name, password, capacity, h)
	h.mut.Lock()
	// Lost a race with another activation; keep the existing one.
	if prev, ok := h.rooms[id]; ok {
		h.mut.Unlock()
		return prev
	}
	h.rooms[id] = r
	h.mut.Unlock()
	return r
}

// ListRooms returns a listing snapshot of active rooms.
func (h *Hub) ListRooms() []RoomInfo {
	h.mut.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mut.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.ID, Name: r.Name, MemberCount: r.MemberCount()})
	}
	return out
}

// BroadcastRooms pushes the rooms listing snapshot to every connected
// client so room lists stay live without polling.
func (h *Hub) BroadcastRooms() {
	payload := makePayload(TypeRooms, h.ListRooms())

	h.mut.RLock()
	for _, c := range h.clients {
		c.SendData(payload)
	}
	h.mut.RUnlock()
}

// removeRoom removes a room from the hub and the store.
func (h *Hub) removeRoom(id string) {
	h.mut.Lock()
	delete(h.rooms, id)
	h.mut.Unlock()

	if err := h.Store.RemoveRoom(id); err != nil {
		h.log.Printf("error removing room from store: %v", err)
	}
}

// watchRooms periodically sweeps rooms that have sat empty past the
// inactivity timeout.
func (h *Hub) watchRooms() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		h.mut.RLock()
		expired := make([]*Room, 0)
		for _, r := range h.rooms {
			if r.Expired(h.cfg.RoomTimeout) {
				expired = append(expired, r)
			}
		}
		h.mut.RUnlock()

		for _, r := range expired {
			h.log.Printf("disposing idle room: %v", r.ID)
			h.removeRoom(r.ID)
		}
		if len(expired) > 0 {
			h.BroadcastRooms()
		}
	}
}

// generateRoomID generates a random room ID while checking the store
// for uniqueness up to numTries times.
func (h *Hub) generateRoomID(length, numTries int) (string, error) {
	for i := 0; i < numTries; i++ {
		id, err := GenerateGUID(length)
		if err != nil {
			h.log.Printf("error generating room ID: %v", err)
			return "", errors.New("error generating room ID")
		}

		exists, err := h.Store.RoomExists(id)
		if err != nil {
			h.log.Printf("error checking room ID in store: %v", err)
			return "", errors.New("error checking room ID")
		}

		// Got a unique ID.
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("unable to generate unique room ID")
}

// GenerateGUID generates a cryptographically random, alphanumeric
// string of length n.
func GenerateGUID(n int) (string, error) {
	const dictionary = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var bytes = make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for k, v := range bytes {
		bytes[k] = dictionary[v%byte(len(dictionary))]
	}
	return string(bytes), nil
}
