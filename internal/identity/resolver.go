// Package identity maps caller network addresses to the small closed set of
// people the sprite knows. An address is asked to identify itself once;
// after that the mapping is permanent (but can be silently corrected).
package identity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ID is one of the identities the sprite recognizes.
type ID string

const (
	Ryan  ID = "ryan"
	Kat   ID = "kat"
	Guest ID = "guest"

	// Unknown means the address has never identified itself.
	Unknown ID = ""
)

// Valid reports whether id is a member of the closed identity set.
func Valid(id ID) bool {
	switch id {
	case Ryan, Kat, Guest:
		return true
	}
	return false
}

// Resolver is the persistent address → identity map.
type Resolver struct {
	mu    sync.Mutex
	path  string
	known map[string]ID
}

// NewResolver loads the identity map from the JSON file at path. A missing
// or corrupt file degrades to an empty map; identity data is auxiliary and
// must never block touch handling.
func NewResolver(path string) *Resolver {
	r := &Resolver{path: path, known: make(map[string]ID)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("identity map unreadable, starting empty", "path", path, "error", err)
		}
		return r
	}
	if err := json.Unmarshal(data, &r.known); err != nil {
		slog.Warn("identity map corrupt, starting empty", "path", path, "error", err)
		r.known = make(map[string]ID)
	}
	return r
}

// Resolve returns the identity assigned to addr, or Unknown.
func (r *Resolver) Resolve(addr string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.known[addr]
}

// Assign writes a permanent mapping for addr. Re-assigning overwrites
// silently: the sprite only asks once, but it can be corrected.
func (r *Resolver) Assign(addr string, id ID) error {
	if !Valid(id) {
		return fmt.Errorf("unrecognized identity %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[addr] = id
	if err := r.save(); err != nil {
		return fmt.Errorf("persist identity map: %w", err)
	}
	return nil
}

// Count returns how many addresses have identified themselves.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.known)
}

func (r *Resolver) save() error {
	data, err := json.MarshalIndent(r.known, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".identity-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}
