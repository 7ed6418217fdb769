// Package session implements §4.7's scheduling session and tentative
// hold state machines as explicit, pure Transition functions — the
// idiomatic Go shape for a state machine, grounded on no direct
// teacher analogue but tested against every legal and illegal move
// named in the spec.
package session

import (
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// sessionTransitions enumerates every legal (from, to) session move.
var sessionTransitions = map[domain.SessionStatus]map[domain.SessionStatus]bool{
	domain.SessionOpen: {
		domain.SessionCandidatesReady: true,
		domain.SessionCancelled:       true,
	},
	domain.SessionCandidatesReady: {
		domain.SessionCommitted: true,
		domain.SessionCancelled: true,
		domain.SessionExpired:   true,
	},
}

// TransitionSession validates a session status move, returning the
// new status or a ValidationError naming the illegal transition.
// cancelled, committed, and expired are terminal — no transition maps
// are registered out of them.
func TransitionSession(from, to domain.SessionStatus) (domain.SessionStatus, error) {
	allowed, ok := sessionTransitions[from]
	if !ok || !allowed[to] {
		return from, tminuserrors.NewValidation("illegal session transition %s -> %s", from, to)
	}
	return to, nil
}

// holdTransitions enumerates every legal (from, to) hold move: held
// may resolve to committed, released, or expired; none of those three
// transition further.
var holdTransitions = map[domain.HoldStatus]map[domain.HoldStatus]bool{
	domain.HoldHeld: {
		domain.HoldCommitted: true,
		domain.HoldReleased:  true,
		domain.HoldExpired:   true,
	},
}

// TransitionHold validates a hold status move.
func TransitionHold(from, to domain.HoldStatus) (domain.HoldStatus, error) {
	allowed, ok := holdTransitions[from]
	if !ok || !allowed[to] {
		return from, tminuserrors.NewValidation("illegal hold transition %s -> %s", from, to)
	}
	return to, nil
}

// IsTerminalSession reports whether a session status accepts no
// further transitions.
func IsTerminalSession(s domain.SessionStatus) bool {
	_, ok := sessionTransitions[s]
	return !ok
}

// IsTerminalHold reports whether a hold status accepts no further
// transitions.
func IsTerminalHold(h domain.HoldStatus) bool {
	_, ok := holdTransitions[h]
	return !ok
}
