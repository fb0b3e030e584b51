// Package drift gives the sprite an idle life: while nothing else is going
// on it wanders between its current room's spots, driven by smooth noise so
// the movement meanders instead of teleporting at random.
package drift

import (
	"log/slog"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/rcfox/spritekeeper/internal/presence"
	"github.com/rcfox/spritekeeper/internal/rooms"
)

const (
	// Period is the wall-clock gap between wander checks.
	Period = 90 * time.Second

	// moveChance gates each check so the sprite mostly stays put.
	moveChance = 0.25

	// timeScale stretches the noise field so consecutive samples are
	// correlated (nearby spots, not jumps across the room).
	timeScale = 0.05
)

// RoomSource provides the named spots of a room.
type RoomSource interface {
	Locations(room string) []rooms.Location
}

// PresenceStore is the drift loop's view of the presence record.
type PresenceStore interface {
	Read() (presence.Record, error)
	Write(presence.Record) error
}

// Wanderer runs the idle wander loop. It writes only the location field and
// holds off entirely while a reaction session is active, so it never fights
// the touch engine or the agent over mood and status.
type Wanderer struct {
	store  PresenceStore
	rooms  RoomSource
	busy   func() bool
	noise  opensimplex.Noise
	chance float64
	period time.Duration
	stop   chan struct{}
}

// New creates a wanderer. busy reports whether a reaction session is active.
func New(store PresenceStore, rs RoomSource, busy func() bool, seed int64) *Wanderer {
	return &Wanderer{
		store:  store,
		rooms:  rs,
		busy:   busy,
		noise:  opensimplex.NewNormalized(seed),
		chance: moveChance,
		period: Period,
		stop:   make(chan struct{}),
	}
}

// Run loops until Stop is called. Meant to be launched as a goroutine.
func (w *Wanderer) Run() {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ticker.C:
			step++
			w.Step(float64(step))
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the loop.
func (w *Wanderer) Stop() {
	close(w.stop)
}

// Step performs one wander check at noise time t.
func (w *Wanderer) Step(t float64) {
	if w.busy() {
		return
	}

	rec, err := w.store.Read()
	if err != nil {
		slog.Debug("drift skipped, presence unreadable", "error", err)
		return
	}

	locs := w.rooms.Locations(rec.Room)
	if len(locs) < 2 {
		return
	}

	// Two independent slices of the same field: one gates movement, one
	// picks the destination.
	if w.noise.Eval2(t*timeScale, 17.3) > w.chance {
		return
	}
	idx := int(w.noise.Eval2(t*timeScale, 0.5) * float64(len(locs)))
	if idx >= len(locs) {
		idx = len(locs) - 1
	}

	dest := locs[idx].Name
	if dest == rec.Location {
		return
	}

	rec.Location = dest
	if err := w.store.Write(rec); err != nil {
		slog.Warn("drift write failed", "error", err)
		return
	}
	slog.Debug("sprite wandered", "room", rec.Room, "to", dest)
}
