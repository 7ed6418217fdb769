package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/queue"
)

type fakeReader struct {
	mu         sync.Mutex
	deliveries []queue.Delivery
	acked      []string
	dlq        []string
	served     bool
}

func (r *fakeReader) EnsureGroup(ctx context.Context, stream, group string) error { return nil }

func (r *fakeReader) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]queue.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.served {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r.served = true
	return r.deliveries, nil
}

func (r *fakeReader) Ack(ctx context.Context, stream, group string, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = append(r.acked, ids...)
	return nil
}

func (r *fakeReader) DeadLetter(ctx context.Context, sourceStream string, payload []byte, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dlq = append(r.dlq, reason)
	return nil
}

type fakeHolder struct{}

func (h *fakeHolder) GetAccessToken(ctx context.Context) (string, error) { return "tok", nil }
func (h *fakeHolder) RateLimit(ctx context.Context, cost int) error      { return nil }

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

type fakeStore struct {
	mu      sync.Mutex
	mirrors map[string]domain.Mirror
}

func newFakeStore() *fakeStore { return &fakeStore{mirrors: map[string]domain.Mirror{}} }

func key(canonicalEventID, targetAccountID string) string {
	return canonicalEventID + "|" + targetAccountID
}

func (s *fakeStore) GetMirror(ctx context.Context, canonicalEventID, targetAccountID string) (domain.Mirror, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mirrors[key(canonicalEventID, targetAccountID)]
	return m, ok, nil
}

func (s *fakeStore) PutMirror(ctx context.Context, m domain.Mirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors[key(m.CanonicalEventID, m.TargetAccountID)] = m
	return nil
}

type fakeProviderWriter struct {
	mu          sync.Mutex
	createCalls int
	patchCalls  int
	deleteCalls int
	createErr   error
	patchErr    error
	deleteErr   error
	newID       string
}

func (p *fakeProviderWriter) CreateEvent(ctx context.Context, accessToken, calendarID string, payload queue.ProjectedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return "", p.createErr
	}
	return p.newID, nil
}

func (p *fakeProviderWriter) PatchEvent(ctx context.Context, accessToken, calendarID, providerEventID string, payload queue.ProjectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patchCalls++
	return p.patchErr
}

func (p *fakeProviderWriter) DeleteEvent(ctx context.Context, accessToken, calendarID, providerEventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls++
	return p.deleteErr
}

func marshalUpsert(t *testing.T, msg queue.UpsertMirror) []byte {
	t.Helper()
	msg.Type = "UPSERT_MIRROR"
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal upsert: %v", err)
	}
	return b
}

func marshalDelete(t *testing.T, msg queue.DeleteMirror) []byte {
	t.Helper()
	msg.Type = "DELETE_MIRROR"
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal delete: %v", err)
	}
	return b
}

func projectedPayload(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(queue.ProjectedEvent{Summary: "Busy"})
	if err != nil {
		t.Fatalf("marshal projected: %v", err)
	}
	return b
}

func TestWriterCreatesNewMirrorAndMarksActive(t *testing.T) {
	payload := marshalUpsert(t, queue.UpsertMirror{
		CanonicalEventID: "evt_1",
		TargetAccountID:  "acc_target",
		TargetCalendarID: "cal_1",
		ProjectedPayload: projectedPayload(t),
		ProjectedHash:    "hash_1",
		IdempotencyKey:   "idem_1",
	})
	reader := &fakeReader{deliveries: []queue.Delivery{{ID: "1-0", Payload: payload}}}
	holders := &fakeHolders{holders: map[string]Holder{"acc_target": &fakeHolder{}}}
	store := newFakeStore()
	provider := &fakeProviderWriter{newID: "prov_evt_1"}

	w := New(reader, holders, store, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if provider.createCalls != 1 {
		t.Fatalf("expected 1 create call, got %d", provider.createCalls)
	}
	mirror, ok, _ := store.GetMirror(ctx, "evt_1", "acc_target")
	if !ok {
		t.Fatal("expected mirror to be stored")
	}
	if mirror.State != domain.MirrorActive {
		t.Fatalf("expected ACTIVE, got %s", mirror.State)
	}
	if mirror.ProviderEventID != "prov_evt_1" {
		t.Fatalf("expected provider_event_id set, got %q", mirror.ProviderEventID)
	}
	if mirror.LastProjectedHash != "hash_1" {
		t.Fatalf("expected last_projected_hash to carry the message's projected_hash verbatim, got %q", mirror.LastProjectedHash)
	}
	if len(reader.acked) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(reader.acked))
	}
}

func TestWriterPatchesExistingMirror(t *testing.T) {
	store := newFakeStore()
	_ = store.PutMirror(context.Background(), domain.Mirror{
		CanonicalEventID: "evt_2",
		TargetAccountID:  "acc_target",
		TargetCalendarID: "cal_1",
		ProviderEventID:  "prov_existing",
		State:            domain.MirrorActive,
	})
	payload := marshalUpsert(t, queue.UpsertMirror{
		CanonicalEventID: "evt_2",
		TargetAccountID:  "acc_target",
		TargetCalendarID: "cal_1",
		ProjectedPayload: projectedPayload(t),
		ProjectedHash:    "hash_2",
		IdempotencyKey:   "idem_2",
	})
	reader := &fakeReader{deliveries: []queue.Delivery{{ID: "1-0", Payload: payload}}}
	holders := &fakeHolders{holders: map[string]Holder{"acc_target": &fakeHolder{}}}
	provider := &fakeProviderWriter{}

	w := New(reader, holders, store, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if provider.patchCalls != 1 || provider.createCalls != 0 {
		t.Fatalf("expected patch not create, got patch=%d create=%d", provider.patchCalls, provider.createCalls)
	}
}

func TestWriterProviderFailureMarksErrorAndRetriesThenDLQs(t *testing.T) {
	payload := marshalUpsert(t, queue.UpsertMirror{
		CanonicalEventID: "evt_3",
		TargetAccountID:  "acc_target",
		TargetCalendarID: "cal_1",
		ProjectedPayload: projectedPayload(t),
		ProjectedHash:    "hash_3",
		IdempotencyKey:   "idem_3",
	})
	reader := &fakeReader{deliveries: []queue.Delivery{{ID: "1-0", Payload: payload}}}
	holders := &fakeHolders{holders: map[string]Holder{"acc_target": &fakeHolder{}}}
	store := newFakeStore()
	provider := &fakeProviderWriter{createErr: fmt.Errorf("provider unavailable")}

	cfg := DefaultConfig("test")
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond

	w := New(reader, holders, store, provider, cfg, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	if provider.createCalls != 2 { // initial attempt + 1 retry
		t.Fatalf("expected 2 create attempts, got %d", provider.createCalls)
	}
	mirror, ok, _ := store.GetMirror(context.Background(), "evt_3", "acc_target")
	if !ok || mirror.State != domain.MirrorError {
		t.Fatalf("expected mirror marked ERROR, got %+v (ok=%v)", mirror, ok)
	}
	if len(reader.dlq) != 1 {
		t.Fatalf("expected message dead-lettered, got %d", len(reader.dlq))
	}
}

func TestWriterDeleteTombstonesMirror(t *testing.T) {
	store := newFakeStore()
	_ = store.PutMirror(context.Background(), domain.Mirror{
		CanonicalEventID: "evt_4",
		TargetAccountID:  "acc_target",
		TargetCalendarID: "cal_1",
		ProviderEventID:  "prov_existing",
		State:            domain.MirrorActive,
	})
	payload := marshalDelete(t, queue.DeleteMirror{
		CanonicalEventID: "evt_4",
		TargetAccountID:  "acc_target",
		IdempotencyKey:   "idem_4",
	})
	reader := &fakeReader{deliveries: []queue.Delivery{{ID: "1-0", Payload: payload}}}
	holders := &fakeHolders{holders: map[string]Holder{"acc_target": &fakeHolder{}}}
	provider := &fakeProviderWriter{}

	w := New(reader, holders, store, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if provider.deleteCalls != 1 {
		t.Fatalf("expected 1 delete call, got %d", provider.deleteCalls)
	}
	mirror, ok, _ := store.GetMirror(context.Background(), "evt_4", "acc_target")
	if !ok || mirror.State != domain.MirrorTombstoned {
		t.Fatalf("expected mirror TOMBSTONED, got %+v (ok=%v)", mirror, ok)
	}
}
