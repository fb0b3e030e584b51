// Package spatial answers "what is the user pointing at" for a room and a
// normalized click position. Lookup is layered: an agent-written grid-cell
// cache wins over the offline-generated landmark map, which wins over a
// generic shrug.
package spatial

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const (
	// GridSize is the number of cells per axis over the unit square.
	GridSize = 10

	// ProximityThreshold is the max normalized distance at which a tap
	// still counts as pointing at a landmark. Inclusive.
	ProximityThreshold = 0.15
)

// Fallback descriptions. Never errors: a blind sprite still answers.
const (
	FallbackNothing = "nothing much over there, just cozy clutter ✨"
	FallbackBlind   = "my crystal ball is cloudy, can't see that spot 🔮"
)

var cellKeyRe = regexp.MustCompile(`^[0-9]_[0-9]$`)

// Landmark is one point of interest in a room's offline-generated map.
type Landmark struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// CellKey computes the coarse grid cell for a normalized position.
// Coordinates are clamped so a tap at exactly 1.0 lands in cell 9.
func CellKey(x, y float64) string {
	return fmt.Sprintf("%d_%d", cellIndex(x), cellIndex(y))
}

func cellIndex(v float64) int {
	i := int(v * GridSize)
	if i < 0 {
		i = 0
	}
	if i > GridSize-1 {
		i = GridSize - 1
	}
	return i
}

// ValidCellKey reports whether key is a well-formed "<x>_<y>" cell key.
func ValidCellKey(key string) bool {
	return cellKeyRe.MatchString(key)
}

// Resolver performs the layered lookup. The map file is written by
// cmd/mapimport; the cache file is written by the external agent (and by
// the /spatial-cache endpoint on its behalf), so both are re-read on every
// resolve rather than held in memory.
type Resolver struct {
	mu        sync.Mutex
	mapPath   string
	cachePath string
}

// NewResolver creates a resolver over the given spatial map and cache files.
func NewResolver(mapPath, cachePath string) *Resolver {
	return &Resolver{mapPath: mapPath, cachePath: cachePath}
}

// Resolve returns a human-readable description of the position in the room.
func (r *Resolver) Resolve(room string, x, y float64) string {
	cell := CellKey(x, y)

	if desc, ok := r.cacheLookup(room, cell); ok {
		return desc
	}

	landmarks, err := r.loadRoomMap(room)
	if err != nil {
		slog.Warn("spatial map unreadable", "room", room, "error", err)
		return FallbackBlind
	}

	best := ""
	bestDist := math.Inf(1)
	for _, lm := range landmarks {
		d := math.Hypot(lm.X-x, lm.Y-y)
		if d < bestDist {
			bestDist = d
			best = lm.Description
		}
	}
	if best != "" && bestDist <= ProximityThreshold {
		return best
	}
	return FallbackNothing
}

// CacheSet stores an agent-supplied description for a room cell. Once set,
// the cell is answered from the cache verbatim.
func (r *Resolver) CacheSet(room, cell, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache := r.loadCache()
	if cache[room] == nil {
		cache[room] = make(map[string]string)
	}
	cache[room][cell] = description

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spatial cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.cachePath), ".spatial-cache-*")
	if err != nil {
		return fmt.Errorf("write spatial cache: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write spatial cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write spatial cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.cachePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write spatial cache: %w", err)
	}
	return nil
}

func (r *Resolver) cacheLookup(room, cell string) (string, bool) {
	cache := r.loadCache()
	desc, ok := cache[room][cell]
	return desc, ok
}

// loadCache degrades to empty on any failure.
func (r *Resolver) loadCache() map[string]map[string]string {
	cache := make(map[string]map[string]string)
	data, err := os.ReadFile(r.cachePath)
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		slog.Warn("spatial cache corrupt, ignoring", "path", r.cachePath, "error", err)
		return make(map[string]map[string]string)
	}
	return cache
}

func (r *Resolver) loadRoomMap(room string) ([]Landmark, error) {
	data, err := os.ReadFile(r.mapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rooms map[string][]Landmark
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, err
	}
	return rooms[room], nil
}
