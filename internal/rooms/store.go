// Package rooms holds the catalog of rooms the sprite can inhabit: each
// room's wallpaper and its named standing spots. The catalog file doubles
// as configuration for the dashboard renderer.
package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrRoomNotFound is returned when a referenced room does not exist.
var ErrRoomNotFound = errors.New("room not found")

// Location is a named spot inside a room, in normalized coordinates.
type Location struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Room is one room in the catalog.
type Room struct {
	Wallpaper string     `json:"wallpaper"`
	Locations []Location `json:"locations"`
}

type catalog struct {
	Rooms map[string]Room `json:"rooms"`
}

// Store is the persistent room catalog.
type Store struct {
	mu   sync.Mutex
	path string
	cat  catalog
}

// DefaultCatalog is the wizard workshop the sprite starts out in.
func DefaultCatalog() map[string]Room {
	return map[string]Room{
		"workshop": {
			Wallpaper: "workshop.png",
			Locations: []Location{
				{Name: "fireplace", X: 0.18, Y: 0.62},
				{Name: "bookshelf", X: 0.42, Y: 0.35},
				{Name: "cauldron", X: 0.63, Y: 0.58},
				{Name: "crystal_ball", X: 0.78, Y: 0.40},
				{Name: "desk", X: 0.55, Y: 0.78},
				{Name: "stool", X: 0.30, Y: 0.80},
			},
		},
	}
}

// NewStore loads the catalog from path, seeding the default catalog when the
// file is missing or corrupt.
func NewStore(path string) *Store {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &s.cat); jsonErr == nil && len(s.cat.Rooms) > 0 {
			return s
		}
	}
	s.cat.Rooms = DefaultCatalog()
	return s
}

// All returns a copy of the catalog.
func (s *Store) All() map[string]Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Room, len(s.cat.Rooms))
	for name, room := range s.cat.Rooms {
		out[name] = room
	}
	return out
}

// Get returns one room.
func (s *Store) Get(name string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.cat.Rooms[name]
	return room, ok
}

// Locations returns a room's named spots, nil for unknown rooms.
func (s *Store) Locations(name string) []Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cat.Rooms[name].Locations
}

// Put creates or replaces a room.
func (s *Store) Put(name string, room Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat.Rooms[name] = room
	return s.save()
}

// PutLocation adds or replaces a named spot in an existing room.
func (s *Store) PutLocation(roomName string, loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.cat.Rooms[roomName]
	if !ok {
		return ErrRoomNotFound
	}
	replaced := false
	for i, existing := range room.Locations {
		if existing.Name == loc.Name {
			room.Locations[i] = loc
			replaced = true
			break
		}
	}
	if !replaced {
		room.Locations = append(room.Locations, loc)
	}
	s.cat.Rooms[roomName] = room
	return s.save()
}

// Delete removes a room.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cat.Rooms[name]; !ok {
		return ErrRoomNotFound
	}
	delete(s.cat.Rooms, name)
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rooms: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".rooms-*")
	if err != nil {
		return fmt.Errorf("write rooms: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write rooms: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write rooms: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write rooms: %w", err)
	}
	return nil
}
