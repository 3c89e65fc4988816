package fs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hiddenface/hiddenface/store"
)

// Config represents the file store config structure.
type Config struct {
	Path string `koanf:"path"`
}

// File represents the file implementation of the Store interface.
// Everything is held in memory and periodically snapshotted to a
// single JSON file.
type File struct {
	cfg   *Config
	rooms map[string]*room
	data  map[string][]byte
	mu    sync.Mutex
	dirty bool
	log   *log.Logger
}

type room struct {
	store.Room
	Expire time.Time
}

type snapshot struct {
	Rooms map[string]*room
	Data  map[string][]byte
}

// New returns a new file store.
func New(cfg Config, l *log.Logger) (*File, error) {
	s := &File{
		cfg:   &cfg,
		rooms: map[string]*room{},
		data:  map[string][]byte{},
		log:   l,
	}
	err := s.load()
	go s.watch()
	return s, err
}

// watch periodically cleans up and persists the store.
func (m *File) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.cleanup()
		m.save()
	}
}

// cleanup removes expired rooms.
func (m *File) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, r := range m.rooms {
		if !r.Expire.IsZero() && r.Expire.Before(now) {
			delete(m.rooms, id)
			m.dirty = true
		}
	}
}

// load reads the snapshot from the file system.
func (m *File) load() error {
	data, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var x snapshot
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	if x.Rooms != nil {
		m.rooms = x.Rooms
	}
	if x.Data != nil {
		m.data = x.Data
	}
	return nil
}

// save writes the snapshot to the file system if it has changed.
func (m *File) save() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return
	}

	data, err := json.Marshal(snapshot{Rooms: m.rooms, Data: m.data})
	if err != nil {
		return
	}
	m.dirty = false
	go func() {
		if err := os.WriteFile(m.cfg.Path, data, 0644); err != nil {
			m.log.Printf("error writing file %q: %v", m.cfg.Path, err)
		}
	}()
}

// AddRoom adds a room to the store.
func (m *File) AddRoom(r store.Room, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[r.ID] = &room{
		Room:   r,
		Expire: r.CreatedAt.Add(ttl),
	}
	m.dirty = true
	return nil
}

// GetRoom gets a room from the store.
func (m *File) GetRoom(id string) (store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.rooms[id]
	if !ok {
		return store.Room{}, store.ErrRoomNotFound
	}
	return out.Room, nil
}

// ExtendRoomTTL extends a room's TTL.
func (m *File) ExtendRoomTTL(id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return store.ErrRoomNotFound
	}

	room.Expire = time.Now().Add(ttl)
	m.dirty = true
	return nil
}

// RoomExists checks if a room exists in the store.
func (m *File) RoomExists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.rooms[id]
	return ok, nil
}

// RemoveRoom deletes a room from the store.
func (m *File) RemoveRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; ok {
		delete(m.rooms, id)
		m.dirty = true
	}
	return nil
}

// Get value from a key.
func (m *File) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return d, nil
}

// Set a value.
func (m *File) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = make([]byte, len(data))
	copy(m.data[key], data)
	m.dirty = true
	return nil
}
