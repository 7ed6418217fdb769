package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tagging"
)

type fakeAccountsStore struct {
	accounts []domain.AccountState
}

func (s *fakeAccountsStore) ListActiveAccounts(ctx context.Context) ([]domain.AccountState, error) {
	return s.accounts, nil
}

type fakeHolder struct {
	cursor string
}

func (h *fakeHolder) GetAccessToken(ctx context.Context) (string, error) { return "tok", nil }
func (h *fakeHolder) GetSyncCursor(ctx context.Context) (string, error)  { return h.cursor, nil }
func (h *fakeHolder) SetSyncCursor(ctx context.Context, cursor string, successTS time.Time) error {
	h.cursor = cursor
	return nil
}
func (h *fakeHolder) RateLimit(ctx context.Context, cost int) error { return nil }

type fakeHolders struct {
	holders map[string]Holder
}

func (h *fakeHolders) Holder(accountID string) (Holder, error) {
	holder, ok := h.holders[accountID]
	if !ok {
		return nil, fmt.Errorf("no holder for %s", accountID)
	}
	return holder, nil
}

type fakeProvider struct {
	deltas []coordinator.ProviderDelta
}

func (p *fakeProvider) FetchFull(ctx context.Context, accessToken string) ([]coordinator.ProviderDelta, string, error) {
	return p.deltas, "", nil
}

type fakeApplier struct {
	mu          sync.Mutex
	canonical   map[string]domain.CanonicalEvent // keyed by origin_event_id
	applyCalls  int
	recomputeN  int
	journal     []string
	activeMirrors []domain.Mirror
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{canonical: map[string]domain.CanonicalEvent{}}
}

func (a *fakeApplier) ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []coordinator.ProviderDelta) (coordinator.ApplyDeltaResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyCalls++
	var result coordinator.ApplyDeltaResult
	for _, d := range deltas {
		if _, ok := a.canonical[d.OriginEventID]; !ok {
			a.canonical[d.OriginEventID] = domain.CanonicalEvent{
				CanonicalEventID: "evt_" + d.OriginEventID,
				OriginAccountID:  originAccountID,
				OriginEventID:    d.OriginEventID,
			}
			result.Created++
		}
	}
	return result, nil
}

func (a *fakeApplier) FindCanonicalByOrigin(ctx context.Context, originAccountID, originEventID string) (domain.CanonicalEvent, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ev, ok := a.canonical[originEventID]
	return ev, ok, nil
}

func (a *fakeApplier) GetActiveMirrors(ctx context.Context) ([]domain.Mirror, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeMirrors, nil
}

func (a *fakeApplier) RecomputeProjections(ctx context.Context, opts coordinator.RecomputeOptions) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recomputeN, nil
}

func (a *fakeApplier) LogReconcileDiscrepancy(ctx context.Context, canonicalEventID, subtype, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.journal = append(a.journal, subtype)
	return nil
}

type fakeMirrorStore struct {
	mu      sync.Mutex
	mirrors map[string]domain.Mirror
}

func newFakeMirrorStore() *fakeMirrorStore { return &fakeMirrorStore{mirrors: map[string]domain.Mirror{}} }

func mkey(canonicalEventID, targetAccountID string) string { return canonicalEventID + "|" + targetAccountID }

func (s *fakeMirrorStore) GetMirror(ctx context.Context, canonicalEventID, targetAccountID string) (domain.Mirror, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mirrors[mkey(canonicalEventID, targetAccountID)]
	return m, ok, nil
}

func (s *fakeMirrorStore) PutMirror(ctx context.Context, m domain.Mirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors[mkey(m.CanonicalEventID, m.TargetAccountID)] = m
	return nil
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	deletes []queue.DeleteMirror
}

func (e *fakeEnqueuer) EnqueueDeleteMirror(ctx context.Context, msg queue.DeleteMirror) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes = append(e.deletes, msg)
	return nil
}

func TestReconcileAccountSynthesizesMissingCanonical(t *testing.T) {
	applier := newFakeApplier()
	mirrors := newFakeMirrorStore()
	provider := &fakeProvider{deltas: []coordinator.ProviderDelta{
		{Type: coordinator.DeltaCreated, OriginEventID: "prov_1", Event: &coordinator.ProviderEvent{Title: "x"}},
	}}
	holder := &fakeHolder{}
	driver := New(&fakeAccountsStore{}, &fakeHolders{holders: map[string]Holder{"acc_1": holder}}, provider, applier, mirrors, &fakeEnqueuer{}, zerolog.Nop())

	report, err := driver.ReconcileAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("reconcile account: %v", err)
	}
	if report.MissingCanonical != 1 {
		t.Fatalf("expected 1 missing canonical repaired, got %d", report.MissingCanonical)
	}
	found := false
	for _, s := range applier.journal {
		if s == SubtypeMissingCanonical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing_canonical journal entry, got %v", applier.journal)
	}
}

func TestReconcileAccountRepairsOrphanedMirror(t *testing.T) {
	applier := newFakeApplier()
	mirrors := newFakeMirrorStore() // no local mirror row recorded for canonical_evt_A
	enqueuer := &fakeEnqueuer{}
	tags := tagging.NewPrivate("canonical_evt_A", "acc_1")
	provider := &fakeProvider{deltas: []coordinator.ProviderDelta{
		{Type: coordinator.DeltaCreated, OriginEventID: "prov_managed_1", Tags: &tags},
	}}
	holder := &fakeHolder{}
	driver := New(&fakeAccountsStore{}, &fakeHolders{holders: map[string]Holder{"acc_1": holder}}, provider, applier, mirrors, enqueuer, zerolog.Nop())

	report, err := driver.ReconcileAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("reconcile account: %v", err)
	}
	if report.OrphanedMirrors != 1 {
		t.Fatalf("expected 1 orphaned mirror repaired, got %d", report.OrphanedMirrors)
	}
	if len(enqueuer.deletes) != 1 || enqueuer.deletes[0].CanonicalEventID != "canonical_evt_A" {
		t.Fatalf("expected a DELETE_MIRROR enqueued for canonical_evt_A, got %+v", enqueuer.deletes)
	}
}

func TestReconcileAccountTombstonesStaleMirror(t *testing.T) {
	applier := newFakeApplier()
	applier.activeMirrors = []domain.Mirror{
		{CanonicalEventID: "canonical_evt_B", TargetAccountID: "acc_1", State: domain.MirrorActive},
	}
	mirrors := newFakeMirrorStore()
	provider := &fakeProvider{} // provider no longer has any managed event for canonical_evt_B
	holder := &fakeHolder{}
	driver := New(&fakeAccountsStore{}, &fakeHolders{holders: map[string]Holder{"acc_1": holder}}, provider, applier, mirrors, &fakeEnqueuer{}, zerolog.Nop())

	report, err := driver.ReconcileAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("reconcile account: %v", err)
	}
	if report.StaleMirrors != 1 {
		t.Fatalf("expected 1 stale mirror tombstoned, got %d", report.StaleMirrors)
	}
	stored, ok, _ := mirrors.GetMirror(context.Background(), "canonical_evt_B", "acc_1")
	if !ok || stored.State != domain.MirrorTombstoned {
		t.Fatalf("expected mirror tombstoned, got %+v (ok=%v)", stored, ok)
	}
}

func TestReconcileAccountUpdatesLastSuccessCursor(t *testing.T) {
	applier := newFakeApplier()
	mirrors := newFakeMirrorStore()
	provider := &fakeProvider{}
	holder := &fakeHolder{cursor: "cursor_unchanged"}
	driver := New(&fakeAccountsStore{}, &fakeHolders{holders: map[string]Holder{"acc_1": holder}}, provider, applier, mirrors, &fakeEnqueuer{}, zerolog.Nop())

	if _, err := driver.ReconcileAccount(context.Background(), "acc_1"); err != nil {
		t.Fatalf("reconcile account: %v", err)
	}
	if holder.cursor != "cursor_unchanged" {
		t.Fatalf("expected cursor preserved, got %q", holder.cursor)
	}
}

func TestReconcileAllSweepsEveryAccountAndRunsHashRepairOnce(t *testing.T) {
	applier := newFakeApplier()
	applier.recomputeN = 3
	mirrors := newFakeMirrorStore()
	provider := &fakeProvider{}
	holders := &fakeHolders{holders: map[string]Holder{
		"acc_1": &fakeHolder{},
		"acc_2": &fakeHolder{},
	}}
	accounts := &fakeAccountsStore{accounts: []domain.AccountState{
		{AccountID: "acc_1"}, {AccountID: "acc_2"},
	}}
	driver := New(accounts, holders, provider, applier, mirrors, &fakeEnqueuer{}, zerolog.Nop())

	if err := driver.ReconcileAll(context.Background()); err != nil {
		t.Fatalf("reconcile all: %v", err)
	}
	if applier.applyCalls != 2 {
		t.Fatalf("expected one ApplyProviderDelta call per account, got %d", applier.applyCalls)
	}
	hashMismatchCount := 0
	for _, s := range applier.journal {
		if s == SubtypeHashMismatch {
			hashMismatchCount++
		}
	}
	if hashMismatchCount != 1 {
		t.Fatalf("expected hash mismatch repair logged exactly once for the whole sweep, got %d", hashMismatchCount)
	}
}
