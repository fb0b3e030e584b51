package touch

import (
	"sync"
	"time"

	"github.com/rcfox/spritekeeper/internal/identity"
)

// WakeWindow is the minimum gap between wake notifications per identity.
const WakeWindow = 30 * time.Second

// WakeThrottle rate-limits agent hand-offs: at most one wake per identity
// per window. Purely in-memory; a restart resets all windows. A suppressed
// wake is dropped, not deferred.
type WakeThrottle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[identity.ID]time.Time
	now    func() time.Time
}

// NewWakeThrottle creates a throttle with the given window.
func NewWakeThrottle(window time.Duration) *WakeThrottle {
	return &WakeThrottle{
		window: window,
		last:   make(map[identity.ID]time.Time),
		now:    time.Now,
	}
}

// TryWake reports whether a wake is allowed for id right now, and records
// the attempt if so. Strictly greater than the window: an attempt at
// exactly window elapsed is still suppressed.
func (t *WakeThrottle) TryWake(id identity.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if prev, ok := t.last[id]; ok && now.Sub(prev) <= t.window {
		return false
	}
	t.last[id] = now
	return true
}
