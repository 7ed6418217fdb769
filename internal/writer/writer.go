// Package writer implements §4.8's canonical→provider pipeline: it
// drains UPSERT_MIRROR/DELETE_MIRROR messages and makes the
// corresponding provider-side write, the same worker/batch/retry shape
// as internal/consumer (and ultimately the teacher's analytics.Pipeline),
// pulling from the write stream instead of the sync stream and writing
// to a provider instead of reading from one.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/queue"
)

// Holder is the subset of accountholder.Actor's API the writer needs
// to authenticate outbound provider calls.
type Holder interface {
	GetAccessToken(ctx context.Context) (string, error)
	RateLimit(ctx context.Context, cost int) error
}

// Holders resolves a target account_id to its running holder actor.
type Holders interface {
	Holder(accountID string) (Holder, error)
}

// MirrorStore is the subset of internal/store's API the writer needs.
type MirrorStore interface {
	GetMirror(ctx context.Context, canonicalEventID, targetAccountID string) (domain.Mirror, bool, error)
	PutMirror(ctx context.Context, m domain.Mirror) error
}

// ProviderWriter makes the actual provider-side mutation. Providers
// are out of scope (spec.md §1's Non-goals) — this is the adapter seam
// a real calendar provider client would satisfy; tests supply a fake.
type ProviderWriter interface {
	CreateEvent(ctx context.Context, accessToken, calendarID string, payload queue.ProjectedEvent) (providerEventID string, err error)
	PatchEvent(ctx context.Context, accessToken, calendarID, providerEventID string, payload queue.ProjectedEvent) error
	DeleteEvent(ctx context.Context, accessToken, calendarID, providerEventID string) error
}

// Reader is the subset of *queue.Client the writer pulls from.
type Reader interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]queue.Delivery, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	DeadLetter(ctx context.Context, sourceStream string, payload []byte, reason string) error
}

// Config controls polling, batching, and retry behavior.
type Config struct {
	ConsumerName string
	BatchSize    int64
	BlockTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	Workers      int
}

// DefaultConfig returns sane defaults for a single writer instance.
func DefaultConfig(consumerName string) Config {
	return Config{
		ConsumerName: consumerName,
		BatchSize:    32,
		BlockTimeout: 5 * time.Second,
		MaxRetries:   5,
		RetryDelay:   500 * time.Millisecond,
		Workers:      4,
	}
}

const writerGroup = "tminus-writer"

// Writer is one canonical→provider pipeline instance.
type Writer struct {
	reader   Reader
	holders  Holders
	store    MirrorStore
	provider ProviderWriter
	cfg      Config
	logger   zerolog.Logger

	seenMu sync.Mutex
	seen   map[string]bool // idempotency_key -> applied, this process's lifetime only

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a writer instance.
func New(reader Reader, holders Holders, store MirrorStore, provider ProviderWriter, cfg Config, logger zerolog.Logger) *Writer {
	return &Writer{
		reader:   reader,
		holders:  holders,
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "writer").Str("consumer_name", cfg.ConsumerName).Logger(),
		seen:     make(map[string]bool),
	}
}

// Start ensures the consumer group exists and launches the poll loop.
func (w *Writer) Start(ctx context.Context) error {
	if err := w.reader.EnsureGroup(ctx, queue.StreamWrite, writerGroup); err != nil {
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info().Msg("canonical->provider writer started")
	return nil
}

// Stop cancels the poll loop and waits for the in-flight batch to drain.
func (w *Writer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info().Msg("canonical->provider writer stopped")
}

func (w *Writer) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := w.reader.ReadGroup(ctx, queue.StreamWrite, writerGroup, w.cfg.ConsumerName, w.cfg.BatchSize, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn().Err(err).Msg("read group failed")
			continue
		}
		if len(deliveries) == 0 {
			continue
		}
		w.processBatch(ctx, deliveries)
	}
}

func (w *Writer) processBatch(ctx context.Context, deliveries []queue.Delivery) {
	sem := make(chan struct{}, w.cfg.Workers)
	var wg sync.WaitGroup
	for _, d := range deliveries {
		d := d
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.processOne(ctx, d)
		}()
	}
	wg.Wait()
}

func (w *Writer) alreadyApplied(idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false
	}
	w.seenMu.Lock()
	defer w.seenMu.Unlock()
	return w.seen[idempotencyKey]
}

func (w *Writer) markApplied(idempotencyKey string) {
	if idempotencyKey == "" {
		return
	}
	w.seenMu.Lock()
	w.seen[idempotencyKey] = true
	w.seenMu.Unlock()
}

func (w *Writer) processOne(ctx context.Context, d queue.Delivery) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		w.deadLetter(ctx, d, "unparseable message: "+err.Error())
		return
	}

	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		switch env.Type {
		case "UPSERT_MIRROR":
			err = w.applyUpsert(ctx, d.Payload)
		case "DELETE_MIRROR":
			err = w.applyDelete(ctx, d.Payload)
		default:
			err = fmt.Errorf("unknown write message type %q", env.Type)
		}
		if err == nil {
			w.ack(ctx, d)
			return
		}
		w.logger.Warn().Err(err).Str("delivery_id", d.ID).Int("attempt", attempt+1).Msg("provider write failed")
		if attempt < w.cfg.MaxRetries {
			time.Sleep(w.cfg.RetryDelay * time.Duration(1<<uint(attempt)))
		}
	}
	w.deadLetter(ctx, d, err.Error())
}

func (w *Writer) applyUpsert(ctx context.Context, payload []byte) error {
	var msg queue.UpsertMirror
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal upsert_mirror: %w", err)
	}
	if w.alreadyApplied(msg.IdempotencyKey) {
		return nil
	}

	var projected queue.ProjectedEvent
	if err := json.Unmarshal(msg.ProjectedPayload, &projected); err != nil {
		return fmt.Errorf("unmarshal projected payload: %w", err)
	}

	mirror, ok, err := w.store.GetMirror(ctx, msg.CanonicalEventID, msg.TargetAccountID)
	if err != nil {
		return err
	}
	if !ok {
		mirror = domain.Mirror{CanonicalEventID: msg.CanonicalEventID, TargetAccountID: msg.TargetAccountID}
	}
	mirror.TargetCalendarID = msg.TargetCalendarID

	holder, err := w.holders.Holder(msg.TargetAccountID)
	if err != nil {
		return err
	}
	if err := holder.RateLimit(ctx, 1); err != nil {
		return err
	}
	token, err := holder.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	if mirror.ProviderEventID != "" {
		if err := w.provider.PatchEvent(ctx, token, msg.TargetCalendarID, mirror.ProviderEventID, projected); err != nil {
			mirror.State = domain.MirrorError
			mirror.ErrorMessage = err.Error()
			_ = w.store.PutMirror(ctx, mirror)
			return err
		}
	} else {
		providerEventID, err := w.provider.CreateEvent(ctx, token, msg.TargetCalendarID, projected)
		if err != nil {
			mirror.State = domain.MirrorError
			mirror.ErrorMessage = err.Error()
			_ = w.store.PutMirror(ctx, mirror)
			return err
		}
		mirror.ProviderEventID = providerEventID
	}

	mirror.LastProjectedHash = msg.ProjectedHash
	mirror.LastWriteTS = time.Now().UTC()
	mirror.State = domain.MirrorActive
	mirror.ErrorMessage = ""
	if err := w.store.PutMirror(ctx, mirror); err != nil {
		return err
	}
	w.markApplied(msg.IdempotencyKey)
	return nil
}

func (w *Writer) applyDelete(ctx context.Context, payload []byte) error {
	var msg queue.DeleteMirror
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal delete_mirror: %w", err)
	}
	if w.alreadyApplied(msg.IdempotencyKey) {
		return nil
	}

	mirror, ok, err := w.store.GetMirror(ctx, msg.CanonicalEventID, msg.TargetAccountID)
	if err != nil {
		return err
	}
	if !ok {
		w.markApplied(msg.IdempotencyKey)
		return nil // already gone locally; nothing to delete provider-side
	}

	providerEventID := msg.ProviderEventID
	if providerEventID == "" {
		providerEventID = mirror.ProviderEventID
	}
	if providerEventID == "" {
		w.markApplied(msg.IdempotencyKey)
		return nil // never made it to the provider
	}

	holder, err := w.holders.Holder(msg.TargetAccountID)
	if err != nil {
		return err
	}
	if err := holder.RateLimit(ctx, 1); err != nil {
		return err
	}
	token, err := holder.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	if err := w.provider.DeleteEvent(ctx, token, mirror.TargetCalendarID, providerEventID); err != nil {
		mirror.State = domain.MirrorError
		mirror.ErrorMessage = err.Error()
		_ = w.store.PutMirror(ctx, mirror)
		return err
	}

	mirror.State = domain.MirrorTombstoned
	mirror.LastWriteTS = time.Now().UTC()
	mirror.ErrorMessage = ""
	if err := w.store.PutMirror(ctx, mirror); err != nil {
		return err
	}
	w.markApplied(msg.IdempotencyKey)
	return nil
}

func (w *Writer) ack(ctx context.Context, d queue.Delivery) {
	if err := w.reader.Ack(ctx, queue.StreamWrite, writerGroup, d.ID); err != nil {
		w.logger.Warn().Err(err).Str("delivery_id", d.ID).Msg("ack failed")
	}
}

func (w *Writer) deadLetter(ctx context.Context, d queue.Delivery, reason string) {
	if err := w.reader.DeadLetter(ctx, queue.StreamWrite, d.Payload, reason); err != nil {
		w.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("dead letter failed")
	}
	w.ack(ctx, d)
}
