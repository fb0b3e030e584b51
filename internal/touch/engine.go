// Package touch converts raw pointer events into time-bounded overrides of
// the presence record. It decides per event whether to react locally, hand
// off to the external agent, or answer with a spatial description, and it
// reverts overrides without clobbering anything written out-of-band.
package touch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcfox/spritekeeper/internal/entropy"
	"github.com/rcfox/spritekeeper/internal/identity"
	"github.com/rcfox/spritekeeper/internal/presence"
)

// Revert delays per branch.
const (
	TapRevertDelay      = 5 * time.Second
	ThinkingRevertDelay = 10 * time.Second
	SpatialRevertDelay  = 8 * time.Second
)

// ErrBadIdentity is returned by Identify for values outside the closed set.
var ErrBadIdentity = errors.New("identity not recognized")

// PresenceStore is the engine's view of the presence record.
type PresenceStore interface {
	Read() (presence.Record, error)
	Write(presence.Record) error
}

// IdentityResolver maps caller addresses to identities.
type IdentityResolver interface {
	Resolve(addr string) identity.ID
	Assign(addr string, id identity.ID) error
}

// SpatialResolver describes what a position in a room points at.
type SpatialResolver interface {
	Resolve(room string, x, y float64) string
}

// Waker gates hand-offs to the agent.
type Waker interface {
	TryWake(id identity.ID) bool
}

// Sink receives fire-and-forget wake notifications.
type Sink interface {
	Notify(message string)
}

// EventLog records touch events durably. Append takes every event; Enqueue
// adds it to the agent's pending work list.
type EventLog interface {
	Append(Event) error
	Enqueue(Event) error
}

// session is the ephemeral override bookkeeping. At most one exists at a
// time. baseline is the record's mood/status before the first reaction in
// an unbroken chain; applied is what the engine last wrote.
type session struct {
	baseline Reaction
	applied  Reaction
}

// Engine is the touch reaction state machine. All mutable state is guarded
// by mu: every touch handler and every revert callback runs its whole
// read-decide-write sequence under the lock, so the engine is the single
// writer over the record's mood and status.
type Engine struct {
	mu sync.Mutex

	presence PresenceStore
	ids      IdentityResolver
	spatial  SpatialResolver
	throttle Waker
	sink     Sink // nil disables wakes
	log      EventLog

	// Revert delays, overridable in tests.
	TapRevert      time.Duration
	ThinkingRevert time.Duration
	SpatialRevert  time.Duration

	sess  *session
	timer *time.Timer
	gen   uint64

	pick func(n int) int
	now  func() time.Time
}

// New wires an engine from its collaborators. sink may be nil (wakes
// disabled); everything else is required.
func New(p PresenceStore, ids IdentityResolver, sp SpatialResolver, w Waker, sink Sink, log EventLog) *Engine {
	return &Engine{
		presence:       p,
		ids:            ids,
		spatial:        sp,
		throttle:       w,
		sink:           sink,
		log:            log,
		TapRevert:      TapRevertDelay,
		ThinkingRevert: ThinkingRevertDelay,
		SpatialRevert:  SpatialRevertDelay,
		pick:           entropy.IntN,
		now:            time.Now,
	}
}

// HandleTouch classifies and executes one touch event from addr.
func (e *Engine) HandleTouch(addr string, kind Kind, x, y float64, onTarget bool) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	who := e.ids.Resolve(addr)
	ev := Event{
		ID:       uuid.NewString(),
		Identity: who,
		Kind:     kind,
		X:        x,
		Y:        y,
		OnTarget: onTarget,
		At:       e.now(),
	}

	// Identity gate: unknown addresses get no state mutation. Only a touch
	// on the sprite itself prompts for identification; off-target taps
	// from strangers are logged and otherwise ignored.
	if who == identity.Unknown {
		if onTarget {
			ev.Outcome = OutcomeIdentify
			e.record(ev)
			return Result{OK: true, Unknown: true, NeedsIdentify: true}, nil
		}
		ev.Outcome = OutcomeIgnored
		e.record(ev)
		return Result{OK: true, Unknown: true}, nil
	}

	switch {
	case kind == KindDoubleTap && onTarget:
		// Hand-off: interim placeholder now, agent wake if the throttle
		// window allows. The long revert covers an agent that never answers.
		if err := e.applyOverride(thinkingReaction, e.ThinkingRevert); err != nil {
			ev.Outcome = OutcomeError
			e.record(ev)
			return Result{}, err
		}
		if e.throttle.TryWake(who) {
			e.wake(who, x, y)
		} else {
			slog.Debug("wake suppressed by throttle", "who", who)
		}
		ev.Outcome = OutcomeHandoff
		e.record(ev)
		return Result{OK: true, Who: who}, nil

	case kind == KindDoubleTap && who != identity.Guest:
		// Off-target double-tap from a named person: describe what they are
		// pointing at. Status only; mood is left as it stands.
		rec, err := e.presence.Read()
		if err != nil {
			ev.Outcome = OutcomeError
			e.record(ev)
			return Result{}, err
		}
		desc := e.spatial.Resolve(rec.Room, x, y)
		if err := e.applyOverride(Reaction{Mood: rec.Mood, Status: desc}, e.SpatialRevert); err != nil {
			ev.Outcome = OutcomeError
			e.record(ev)
			return Result{}, err
		}
		ev.Outcome = OutcomeSpatial
		e.record(ev)
		return Result{OK: true, Who: who, Spatial: true, Description: desc}, nil

	case kind == KindTap && onTarget:
		if err := e.react(); err != nil {
			ev.Outcome = OutcomeError
			e.record(ev)
			return Result{}, err
		}
		ev.Outcome = OutcomeReacted
		e.record(ev)
		return Result{OK: true, Who: who}, nil

	default:
		// Off-target tap, or a guest double-tapping the scenery.
		ev.Outcome = OutcomeIgnored
		e.record(ev)
		return Result{OK: true, Who: who}, nil
	}
}

// Identify assigns an identity to addr and immediately runs the instant
// reaction branch, so a first-time visitor gets feedback in the same turn.
func (e *Engine) Identify(addr string, id identity.ID) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !identity.Valid(id) {
		return Result{}, fmt.Errorf("%w: %q", ErrBadIdentity, id)
	}
	if err := e.ids.Assign(addr, id); err != nil {
		return Result{}, err
	}
	if err := e.react(); err != nil {
		return Result{}, err
	}
	e.record(Event{
		ID:       uuid.NewString(),
		Identity: id,
		Kind:     KindTap,
		OnTarget: true,
		Outcome:  OutcomeIdentified,
		At:       e.now(),
	})
	return Result{OK: true, Who: id}, nil
}

// SessionActive reports whether a reaction override is currently in effect.
func (e *Engine) SessionActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Close cancels any pending revert timer. Pending reverts are simply lost
// on shutdown; presence state need not survive a restart in any phase.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// react runs the instant local reaction branch. Caller holds mu.
func (e *Engine) react() error {
	r := reactionPool[e.pick(len(reactionPool))]
	return e.applyOverride(r, e.TapRevert)
}

// applyOverride writes a reaction into the presence record and (re)schedules
// the revert. The baseline is captured only when no session is active: a
// chain of reactions reverts to the state before the first one. Caller
// holds mu.
func (e *Engine) applyOverride(r Reaction, delay time.Duration) error {
	rec, err := e.presence.Read()
	if err != nil {
		return err
	}

	if e.sess == nil {
		e.sess = &session{baseline: Reaction{Mood: rec.Mood, Status: rec.Status}}
	}
	e.sess.applied = r

	rec.Mood = r.Mood
	rec.Status = r.Status
	if err := e.presence.Write(rec); err != nil {
		// Leave the session cleared rather than tracking a write that
		// never landed.
		e.clearSession()
		return err
	}

	e.schedule(delay)
	return nil
}

// schedule arms the single revert timer, cancelling any previous one.
// Stop does not catch a callback that has already fired and is waiting on
// mu, so each timer carries a generation: only the latest one may revert.
// Caller holds mu.
func (e *Engine) schedule(delay time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(delay, func() { e.revert(gen) })
}

// revert fires when a reaction expires. It restores the baseline only if
// the record still holds exactly what this session wrote; anything else
// means the agent (or another writer) got there first, and that write wins.
func (e *Engine) revert(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.sess == nil {
		return
	}
	sess := e.sess
	e.clearSession()

	rec, err := e.presence.Read()
	if err != nil {
		slog.Warn("revert skipped, presence unreadable", "error", err)
		return
	}
	if rec.Mood != sess.applied.Mood || rec.Status != sess.applied.Status {
		slog.Debug("revert skipped, record changed out-of-band",
			"mood", rec.Mood, "status", rec.Status)
		return
	}

	rec.Mood = sess.baseline.Mood
	rec.Status = sess.baseline.Status
	if err := e.presence.Write(rec); err != nil {
		slog.Error("revert write failed", "error", err)
	}
}

func (e *Engine) clearSession() {
	e.sess = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// wake emits a fire-and-forget notification to the agent sink. Delivery
// failures are the sink's to log; nothing is retried or surfaced.
func (e *Engine) wake(who identity.ID, x, y float64) {
	if e.sink == nil {
		return
	}
	msg := fmt.Sprintf("%s double-tapped you at (%.2f, %.2f) — wake up and say something!", who, x, y)
	go e.sink.Notify(msg)
}

// record appends the event to the durable log, and to the agent's pending
// queue when the toucher is known. Log failures never fail the touch.
func (e *Engine) record(ev Event) {
	if e.log == nil {
		return
	}
	if err := e.log.Append(ev); err != nil {
		slog.Error("touch log append failed", "error", err)
	}
	if ev.Identity != identity.Unknown {
		if err := e.log.Enqueue(ev); err != nil {
			slog.Error("pending queue append failed", "error", err)
		}
	}
}
