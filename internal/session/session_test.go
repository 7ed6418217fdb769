package session

import (
	"testing"

	"github.com/RamXX/tminus/internal/domain"
)

func TestTransitionSessionLegalMoves(t *testing.T) {
	cases := []struct {
		from, to domain.SessionStatus
	}{
		{domain.SessionOpen, domain.SessionCandidatesReady},
		{domain.SessionOpen, domain.SessionCancelled},
		{domain.SessionCandidatesReady, domain.SessionCommitted},
		{domain.SessionCandidatesReady, domain.SessionCancelled},
		{domain.SessionCandidatesReady, domain.SessionExpired},
	}
	for _, c := range cases {
		got, err := TransitionSession(c.from, c.to)
		if err != nil {
			t.Errorf("%s -> %s: unexpected error: %v", c.from, c.to, err)
		}
		if got != c.to {
			t.Errorf("%s -> %s: got %s", c.from, c.to, got)
		}
	}
}

func TestTransitionSessionIllegalMoves(t *testing.T) {
	cases := []struct {
		from, to domain.SessionStatus
	}{
		{domain.SessionOpen, domain.SessionCommitted},
		{domain.SessionCommitted, domain.SessionOpen},
		{domain.SessionCancelled, domain.SessionCandidatesReady},
		{domain.SessionExpired, domain.SessionCommitted},
	}
	for _, c := range cases {
		if _, err := TransitionSession(c.from, c.to); err == nil {
			t.Errorf("%s -> %s: expected error, got nil", c.from, c.to)
		}
	}
}

func TestTransitionHold(t *testing.T) {
	for _, to := range []domain.HoldStatus{domain.HoldCommitted, domain.HoldReleased, domain.HoldExpired} {
		if _, err := TransitionHold(domain.HoldHeld, to); err != nil {
			t.Errorf("held -> %s: unexpected error: %v", to, err)
		}
	}
	for _, from := range []domain.HoldStatus{domain.HoldCommitted, domain.HoldReleased, domain.HoldExpired} {
		if _, err := TransitionHold(from, domain.HoldHeld); err == nil {
			t.Errorf("%s -> held: expected error, got nil", from)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminalSession(domain.SessionOpen) {
		t.Error("open should not be terminal")
	}
	if !IsTerminalSession(domain.SessionCommitted) {
		t.Error("committed should be terminal")
	}
	if !IsTerminalSession(domain.SessionCancelled) {
		t.Error("cancelled should be terminal")
	}
	if !IsTerminalSession(domain.SessionExpired) {
		t.Error("expired should be terminal")
	}
	if IsTerminalHold(domain.HoldHeld) {
		t.Error("held should not be terminal")
	}
	if !IsTerminalHold(domain.HoldReleased) {
		t.Error("released should be terminal")
	}
}
