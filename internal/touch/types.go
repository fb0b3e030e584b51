package touch

import (
	"time"

	"github.com/rcfox/spritekeeper/internal/identity"
)

// Kind classifies a raw pointer event.
type Kind string

const (
	KindTap       Kind = "tap"
	KindDoubleTap Kind = "doubletap"
)

// ValidKind reports whether k is a recognized event kind.
func ValidKind(k Kind) bool {
	return k == KindTap || k == KindDoubleTap
}

// Event is one touch event as logged. Position is normalized to the unit
// square; OnTarget means the pointer hit the sprite itself.
type Event struct {
	ID       string      `json:"id"`
	Identity identity.ID `json:"identity"`
	Kind     Kind        `json:"kind"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	OnTarget bool        `json:"on_target"`
	Outcome  string      `json:"outcome"`
	At       time.Time   `json:"at"`
}

// Outcome values recorded on logged events.
const (
	OutcomeReacted    = "reacted"
	OutcomeHandoff    = "handoff"
	OutcomeSpatial    = "spatial"
	OutcomeIdentify   = "needs-identify"
	OutcomeIdentified = "identified"
	OutcomeIgnored    = "ignored"
	OutcomeError      = "error"
)

// Result describes what the engine did with a touch, shaped for the HTTP
// response.
type Result struct {
	OK            bool        `json:"ok"`
	Who           identity.ID `json:"who,omitempty"`
	Unknown       bool        `json:"unknown,omitempty"`
	NeedsIdentify bool        `json:"needsIdentify,omitempty"`
	Spatial       bool        `json:"spatial,omitempty"`
	Description   string      `json:"description,omitempty"`
}
