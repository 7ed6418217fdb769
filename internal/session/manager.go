package session

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/idgen"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// inactivityTimeout is the ~24h lazy-expiry threshold §4.7 and §5 name
// for a candidates_ready session with no activity.
const inactivityTimeout = 24 * time.Hour

// Store is the subset of internal/store's persistence API the
// scheduling manager needs, declared here so tests can substitute an
// in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	PutSession(ctx context.Context, s domain.Session) error
	CreateHold(ctx context.Context, h domain.Hold) error
	GetHold(ctx context.Context, id string) (domain.Hold, error)
	PutHold(ctx context.Context, h domain.Hold) error
	ListHoldsBySession(ctx context.Context, sessionID string) ([]domain.Hold, error)
	ListExpiredHolds(ctx context.Context, asOf time.Time) ([]domain.Hold, error)
}

// Manager drives sessions and holds through their state machines
// against a Store. It holds no in-memory session state of its own —
// every call reads and writes through the store, matching the
// single-writer-per-user model the coordinator uses for canonical state.
type Manager struct {
	store Store
}

// New builds a Manager over a store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// OpenSession starts a new session over a candidate-search window.
func (m *Manager) OpenSession(ctx context.Context, windowStart, windowEnd time.Time) (domain.Session, error) {
	now := time.Now().UTC()
	s := domain.Session{
		SessionID:      idgen.NewAt(idgen.PrefixSession, now),
		Status:         domain.SessionOpen,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// SetCandidates attaches scored candidates to an open session and
// advances it to candidates_ready.
func (m *Manager) SetCandidates(ctx context.Context, sessionID string, candidates []domain.Candidate) (domain.Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	next, err := TransitionSession(s.Status, domain.SessionCandidatesReady)
	if err != nil {
		return domain.Session{}, err
	}
	s.Status = next
	s.Candidates = candidates
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.LastActivityAt = now
	if err := m.store.PutSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// PlaceHold records a held reservation against one of a session's
// candidate intervals.
func (m *Manager) PlaceHold(ctx context.Context, sessionID string, start, end time.Time, ttl time.Duration) (domain.Hold, error) {
	now := time.Now().UTC()
	h := domain.Hold{
		HoldID:         idgen.NewAt(idgen.PrefixHold, now),
		SessionID:      sessionID,
		CandidateStart: start,
		CandidateEnd:   end,
		Status:         domain.HoldHeld,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.CreateHold(ctx, h); err != nil {
		return domain.Hold{}, err
	}
	if err := m.touchSession(ctx, sessionID, now); err != nil {
		return domain.Hold{}, err
	}
	return h, nil
}

// CommitSession commits one chosen hold: every held hold of the
// session — the chosen one included — transitions to released, and the
// session itself moves to committed. Per spec.md:623-626, the chosen
// hold is not a persisted artifact of the commit; the caller is
// responsible for separately creating the canonical event for the
// chosen interval via upsertCanonicalEvent.
func (m *Manager) CommitSession(ctx context.Context, sessionID, chosenHoldID string) (domain.Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	next, err := TransitionSession(s.Status, domain.SessionCommitted)
	if err != nil {
		return domain.Session{}, err
	}

	holds, err := m.store.ListHoldsBySession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	now := time.Now().UTC()
	foundChosen := false
	for _, h := range holds {
		if h.Status != domain.HoldHeld {
			continue
		}
		if h.HoldID == chosenHoldID {
			foundChosen = true
		}
		st, err := TransitionHold(h.Status, domain.HoldReleased)
		if err != nil {
			return domain.Session{}, err
		}
		h.Status = st
		h.UpdatedAt = now
		if err := m.store.PutHold(ctx, h); err != nil {
			return domain.Session{}, err
		}
	}
	if !foundChosen {
		return domain.Session{}, tminuserrors.NewNotFound("hold", chosenHoldID)
	}

	s.Status = next
	s.UpdatedAt = now
	s.LastActivityAt = now
	if err := m.store.PutSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// CancelSession cancels a session and releases every held hold of it.
func (m *Manager) CancelSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	next, err := TransitionSession(s.Status, domain.SessionCancelled)
	if err != nil {
		return domain.Session{}, err
	}
	if err := m.releaseHeldHolds(ctx, sessionID); err != nil {
		return domain.Session{}, err
	}
	now := time.Now().UTC()
	s.Status = next
	s.UpdatedAt = now
	s.LastActivityAt = now
	if err := m.store.PutSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (m *Manager) releaseHeldHolds(ctx context.Context, sessionID string) error {
	holds, err := m.store.ListHoldsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, h := range holds {
		if h.Status != domain.HoldHeld {
			continue
		}
		st, err := TransitionHold(h.Status, domain.HoldReleased)
		if err != nil {
			return err
		}
		h.Status = st
		h.UpdatedAt = now
		if err := m.store.PutHold(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) touchSession(ctx context.Context, sessionID string, at time.Time) error {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.LastActivityAt = at
	s.UpdatedAt = at
	return m.store.PutSession(ctx, s)
}

// SweepExpiredHolds expires every held hold past its expires_at, then
// auto-expires any candidates_ready session whose holds are now all
// terminal — the periodic reaper §5 names ("stale holds past
// expires_at are reaped by a sweep").
func (m *Manager) SweepExpiredHolds(ctx context.Context, asOf time.Time) (int, error) {
	expired, err := m.store.ListExpiredHolds(ctx, asOf)
	if err != nil {
		return 0, err
	}
	touched := map[string]bool{}
	for _, h := range expired {
		if h.Status != domain.HoldHeld {
			continue
		}
		st, err := TransitionHold(h.Status, domain.HoldExpired)
		if err != nil {
			continue // already terminal; nothing to do
		}
		h.Status = st
		h.UpdatedAt = asOf
		if err := m.store.PutHold(ctx, h); err != nil {
			return 0, err
		}
		touched[h.SessionID] = true
	}

	for sessionID := range touched {
		if err := m.maybeExpireSession(ctx, sessionID, asOf); err != nil {
			return 0, err
		}
	}

	// Sessions that have gone quiet for inactivityTimeout are not
	// handled here; ExpireInactiveSessions does that.
	return len(expired), nil
}

// maybeExpireSession moves a candidates_ready session to expired once
// every hold it owns has reached a terminal state.
func (m *Manager) maybeExpireSession(ctx context.Context, sessionID string, asOf time.Time) error {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != domain.SessionCandidatesReady {
		return nil
	}
	holds, err := m.store.ListHoldsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if !IsTerminalHold(h.Status) {
			return nil // at least one hold still open
		}
	}
	next, err := TransitionSession(s.Status, domain.SessionExpired)
	if err != nil {
		return nil
	}
	s.Status = next
	s.UpdatedAt = asOf
	if err := m.store.PutSession(ctx, s); err != nil {
		return err
	}
	return nil
}

// ExpireInactiveSessions lazily expires every candidates_ready session
// whose last activity is older than the 24h inactivity threshold.
func (m *Manager) ExpireInactiveSessions(ctx context.Context, sessions []domain.Session, asOf time.Time) (int, error) {
	count := 0
	for _, s := range sessions {
		if s.Status != domain.SessionCandidatesReady {
			continue
		}
		if asOf.Sub(s.LastActivityAt) < inactivityTimeout {
			continue
		}
		next, err := TransitionSession(s.Status, domain.SessionExpired)
		if err != nil {
			continue
		}
		if err := m.releaseHeldHolds(ctx, s.SessionID); err != nil {
			return count, err
		}
		s.Status = next
		s.UpdatedAt = asOf
		if err := m.store.PutSession(ctx, s); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
