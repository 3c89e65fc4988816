package mem

import (
	"fmt"
	"sync"
	"time"

	"github.com/hiddenface/hiddenface/store"
)

// Config represents the InMemory store config structure.
type Config struct{}

// InMemory represents the in-memory implementation of the Store interface.
type InMemory struct {
	cfg   *Config
	rooms map[string]*room
	data  map[string][]byte
	mu    sync.Mutex
}

type room struct {
	store.Room
	Expire time.Time
}

// New returns a new in-memory store.
func New(cfg Config) (*InMemory, error) {
	s := &InMemory{
		cfg:   &cfg,
		rooms: map[string]*room{},
		data:  map[string][]byte{},
	}
	go s.watch()
	return s, nil
}

// watch the store to clean it up.
func (m *InMemory) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.cleanup()
	}
}

// cleanup removes expired rooms.
func (m *InMemory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, r := range m.rooms {
		if r.Expire.Before(now) {
			delete(m.rooms, id)
		}
	}
}

// AddRoom adds a room to the store.
func (m *InMemory) AddRoom(r store.Room, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[r.ID] = &room{
		Room:   r,
		Expire: r.CreatedAt.Add(ttl),
	}
	return nil
}

// GetRoom gets a room from the store.
func (m *InMemory) GetRoom(id string) (store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[id]
	if !ok {
		return store.Room{}, store.ErrRoomNotFound
	}
	return out.Room, nil
}

// ExtendRoomTTL extends a room's TTL.
func (m *InMemory) ExtendRoomTTL(id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return store.ErrRoomNotFound
	}

	room.Expire = time.Now().Add(ttl)
	return nil
}

// RoomExists checks if a room exists in the store.
func (m *InMemory) RoomExists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.rooms[id]
	return ok, nil
}

// RemoveRoom deletes a room from the store.
func (m *InMemory) RemoveRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, id)
	return nil
}

// Get value from a key.
func (m *InMemory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return d, nil
}

// Set a value.
func (m *InMemory) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = make([]byte, len(data))
	copy(m.data[key], data)
	return nil
}
