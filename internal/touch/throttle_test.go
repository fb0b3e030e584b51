package touch

import (
	"testing"
	"time"

	"github.com/rcfox/spritekeeper/internal/identity"
)

func TestWakeThrottleWindow(t *testing.T) {
	base := time.Now()
	clock := base
	th := NewWakeThrottle(30 * time.Second)
	th.now = func() time.Time { return clock }

	if !th.TryWake(identity.Ryan) {
		t.Fatal("first wake should be allowed")
	}

	clock = base.Add(29 * time.Second)
	if th.TryWake(identity.Ryan) {
		t.Fatal("wake at t=29s should be suppressed")
	}

	// A suppressed attempt must not extend the window.
	clock = base.Add(31 * time.Second)
	if !th.TryWake(identity.Ryan) {
		t.Fatal("wake at t=31s should be allowed")
	}
}

func TestWakeThrottleExactBoundarySuppressed(t *testing.T) {
	base := time.Now()
	clock := base
	th := NewWakeThrottle(30 * time.Second)
	th.now = func() time.Time { return clock }

	th.TryWake(identity.Kat)
	clock = base.Add(30 * time.Second)
	if th.TryWake(identity.Kat) {
		t.Fatal("wake at exactly the window should still be suppressed")
	}
}

func TestWakeThrottlePerIdentity(t *testing.T) {
	th := NewWakeThrottle(30 * time.Second)

	if !th.TryWake(identity.Ryan) {
		t.Fatal("ryan's first wake should be allowed")
	}
	if !th.TryWake(identity.Kat) {
		t.Fatal("kat's window is independent of ryan's")
	}
	if th.TryWake(identity.Ryan) {
		t.Fatal("ryan's second immediate wake should be suppressed")
	}
}
