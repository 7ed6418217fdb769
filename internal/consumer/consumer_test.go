package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tminuserrors"
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

type fakeHolder struct {
	token  string
	cursor string
}

func (h *fakeHolder) GetAccessToken(ctx context.Context) (string, error) { return h.token, nil }
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
		return nil, tminuserrors.NewNotFound("account", accountID)
	}
	return holder, nil
}

type fakeApplier struct {
	mu    sync.Mutex
	calls int
}

func (a *fakeApplier) ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []coordinator.ProviderDelta) (coordinator.ApplyDeltaResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return coordinator.ApplyDeltaResult{Created: len(deltas)}, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	full []queue.SyncFull
}

func (e *fakeEnqueuer) EnqueueSyncFull(ctx context.Context, msg queue.SyncFull) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.full = append(e.full, msg)
	return nil
}

type fakeProvider struct {
	incrementalErr error
	nextCursor     string
	deltas         []coordinator.ProviderDelta
}

func (p *fakeProvider) FetchIncremental(ctx context.Context, accessToken, cursor string) ([]coordinator.ProviderDelta, string, error) {
	if p.incrementalErr != nil {
		return nil, "", p.incrementalErr
	}
	return p.deltas, p.nextCursor, nil
}

func (p *fakeProvider) FetchFull(ctx context.Context, accessToken string) ([]coordinator.ProviderDelta, string, error) {
	return p.deltas, p.nextCursor, nil
}

func marshalSyncIncremental(accountID string) []byte {
	b, _ := json.Marshal(queue.SyncIncremental{Type: "SYNC_INCREMENTAL", AccountID: accountID})
	return b
}

func TestConsumerProcessesIncrementalAndAdvancesCursor(t *testing.T) {
	reader := &fakeReader{deliveries: []queue.Delivery{
		{ID: "1-0", Payload: marshalSyncIncremental("acc_A")},
	}}
	holder := &fakeHolder{token: "tok", cursor: "cursor_0"}
	holders := &fakeHolders{holders: map[string]Holder{"acc_A": holder}}
	applier := &fakeApplier{}
	provider := &fakeProvider{nextCursor: "cursor_1", deltas: []coordinator.ProviderDelta{{Type: coordinator.DeltaCreated, OriginEventID: "e1", Event: &coordinator.ProviderEvent{Title: "x"}}}}

	c := New(reader, holders, applier, &fakeEnqueuer{}, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	if applier.calls != 1 {
		t.Fatalf("expected 1 apply call, got %d", applier.calls)
	}
	if holder.cursor != "cursor_1" {
		t.Fatalf("expected cursor advanced to cursor_1, got %s", holder.cursor)
	}
	if len(reader.acked) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(reader.acked))
	}
}

func TestConsumerHandlesCursorStale(t *testing.T) {
	reader := &fakeReader{deliveries: []queue.Delivery{
		{ID: "1-0", Payload: marshalSyncIncremental("acc_A")},
	}}
	holder := &fakeHolder{token: "tok", cursor: "cursor_0"}
	holders := &fakeHolders{holders: map[string]Holder{"acc_A": holder}}
	applier := &fakeApplier{}
	enqueuer := &fakeEnqueuer{}
	provider := &fakeProvider{incrementalErr: &tminuserrors.CursorStaleError{AccountID: "acc_A"}}

	c := New(reader, holders, applier, enqueuer, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	if applier.calls != 0 {
		t.Fatalf("expected no apply call on stale cursor, got %d", applier.calls)
	}
	if len(enqueuer.full) != 1 || enqueuer.full[0].Reason != queue.SyncFullToken410 {
		t.Fatalf("expected one SYNC_FULL(token_410), got %+v", enqueuer.full)
	}
	if len(reader.acked) != 1 {
		t.Fatalf("expected message acked after stale cursor handling, got %d", len(reader.acked))
	}
}

func TestConsumerUnknownAccountDeadLetters(t *testing.T) {
	reader := &fakeReader{deliveries: []queue.Delivery{
		{ID: "1-0", Payload: marshalSyncIncremental("acc_unknown")},
	}}
	holders := &fakeHolders{holders: map[string]Holder{}}
	applier := &fakeApplier{}
	provider := &fakeProvider{}

	c := New(reader, holders, applier, &fakeEnqueuer{}, provider, DefaultConfig("test"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	if len(reader.dlq) != 1 {
		t.Fatalf("expected 1 dead-lettered message, got %d", len(reader.dlq))
	}
}
