// Package presence owns the durable presence record: the sprite's current
// mood, speech-bubble status, room, and location. The record is a single
// JSON file shared with the polling dashboard and with the external agent,
// which writes it directly as its side channel.
package presence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the whole presence state. Reads and writes are whole-record,
// last-writer-wins; field-level merging is the caller's problem.
type Record struct {
	Mood     string `json:"mood"`
	Status   string `json:"status"`
	Room     string `json:"room"`
	Location string `json:"location"`
}

// Store reads and writes the presence record file. Every read re-parses
// from disk because the agent may have written the file in the meantime.
type Store struct {
	path string
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Read loads the current record. An unreadable or corrupt file is an error;
// callers surface it rather than inventing state.
func (s *Store) Read() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Record{}, fmt.Errorf("read presence: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse presence: %w", err)
	}
	return rec, nil
}

// Write replaces the record. Temp-file + rename so the dashboard and the
// agent never see a torn write.
func (s *Store) Write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".presence-*")
	if err != nil {
		return fmt.Errorf("write presence: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write presence: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write presence: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write presence: %w", err)
	}
	return nil
}

// EnsureDefault seeds the record file if it does not exist yet, so a fresh
// deployment starts with a live sprite instead of a 500.
func (s *Store) EnsureDefault(rec Record) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.Write(rec)
}
