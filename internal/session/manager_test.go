package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "tminus.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(store.New(db))
}

func TestCommitSessionReleasesAllHolds(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(8 * time.Hour)

	sess, err := m.OpenSession(ctx, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	candidates := []domain.Candidate{
		{Start: windowStart, End: windowStart.Add(time.Hour), Score: 0.9, Explanation: "best fit"},
		{Start: windowStart.Add(2 * time.Hour), End: windowStart.Add(3 * time.Hour), Score: 0.5, Explanation: "ok fit"},
	}
	sess, err = m.SetCandidates(ctx, sess.SessionID, candidates)
	if err != nil {
		t.Fatalf("set candidates: %v", err)
	}
	if sess.Status != domain.SessionCandidatesReady {
		t.Fatalf("expected candidates_ready, got %s", sess.Status)
	}

	chosen, err := m.PlaceHold(ctx, sess.SessionID, candidates[0].Start, candidates[0].End, time.Hour)
	if err != nil {
		t.Fatalf("place hold 1: %v", err)
	}
	_, err = m.PlaceHold(ctx, sess.SessionID, candidates[1].Start, candidates[1].End, time.Hour)
	if err != nil {
		t.Fatalf("place hold 2: %v", err)
	}

	sess, err = m.CommitSession(ctx, sess.SessionID, chosen.HoldID)
	if err != nil {
		t.Fatalf("commit session: %v", err)
	}
	if sess.Status != domain.SessionCommitted {
		t.Fatalf("expected committed, got %s", sess.Status)
	}

	holds, err := m.store.ListHoldsBySession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("list holds: %v", err)
	}
	if len(holds) != 2 {
		t.Fatalf("expected 2 holds, got %d", len(holds))
	}
	for _, h := range holds {
		if h.Status != domain.HoldReleased {
			t.Errorf("hold %s: expected released, got %s", h.HoldID, h.Status)
		}
	}
}

func TestCancelSessionReleasesAllHolds(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(8 * time.Hour)

	sess, err := m.OpenSession(ctx, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	sess, err = m.SetCandidates(ctx, sess.SessionID, []domain.Candidate{
		{Start: windowStart, End: windowStart.Add(time.Hour), Score: 1.0},
	})
	if err != nil {
		t.Fatalf("set candidates: %v", err)
	}
	if _, err := m.PlaceHold(ctx, sess.SessionID, windowStart, windowStart.Add(time.Hour), time.Hour); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	sess, err = m.CancelSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("cancel session: %v", err)
	}
	if sess.Status != domain.SessionCancelled {
		t.Fatalf("expected cancelled, got %s", sess.Status)
	}

	holds, err := m.store.ListHoldsBySession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("list holds: %v", err)
	}
	for _, h := range holds {
		if h.Status != domain.HoldReleased {
			t.Errorf("expected released, got %s", h.Status)
		}
	}
}

func TestSweepExpiredHoldsAutoExpiresSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sess, err := m.OpenSession(ctx, windowStart, windowStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	sess, err = m.SetCandidates(ctx, sess.SessionID, []domain.Candidate{
		{Start: windowStart, End: windowStart.Add(time.Hour), Score: 1.0},
	})
	if err != nil {
		t.Fatalf("set candidates: %v", err)
	}
	if _, err := m.PlaceHold(ctx, sess.SessionID, windowStart, windowStart.Add(time.Hour), time.Minute); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	past := time.Now().UTC().Add(time.Hour) // well past the 1-minute hold TTL
	n, err := m.SweepExpiredHolds(ctx, past)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired hold, got %d", n)
	}

	got, err := m.store.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != domain.SessionExpired {
		t.Fatalf("expected session auto-expired, got %s", got.Status)
	}
}

func TestCommitSessionUnknownHoldFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sess, err := m.OpenSession(ctx, windowStart, windowStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	sess, err = m.SetCandidates(ctx, sess.SessionID, []domain.Candidate{
		{Start: windowStart, End: windowStart.Add(time.Hour), Score: 1.0},
	})
	if err != nil {
		t.Fatalf("set candidates: %v", err)
	}
	if _, err := m.CommitSession(ctx, sess.SessionID, "hld_nonexistent"); err == nil {
		t.Fatal("expected error committing unknown hold")
	}
}
