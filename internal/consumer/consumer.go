// Package consumer implements §4.8's provider→canonical pipeline: a
// multi-instance cooperative worker pulling sync-queue messages,
// grouping by account_id, and feeding the coordinator's
// applyProviderDelta — structured the way the teacher's
// analytics.Pipeline batches and retries, but pulling from a Redis
// Streams source (internal/queue) instead of an in-process channel and
// calling into an actor RPC instead of a sink.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// Holder is the subset of accountholder.Actor's API the consumer needs.
type Holder interface {
	GetAccessToken(ctx context.Context) (string, error)
	GetSyncCursor(ctx context.Context) (string, error)
	SetSyncCursor(ctx context.Context, cursor string, successTS time.Time) error
	RateLimit(ctx context.Context, cost int) error
}

// Holders resolves an account_id to its running holder actor.
type Holders interface {
	Holder(accountID string) (Holder, error)
}

// Applier is the subset of *coordinator.Coordinator the consumer calls
// into, declared as an interface so tests can substitute a recording fake.
type Applier interface {
	ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []coordinator.ProviderDelta) (coordinator.ApplyDeltaResult, error)
}

// Enqueuer is the subset of *queue.Client the consumer needs to trigger
// a full resync after a stale-cursor 410.
type Enqueuer interface {
	EnqueueSyncFull(ctx context.Context, msg queue.SyncFull) error
}

// Reader is the subset of *queue.Client the consumer pulls from.
type Reader interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]queue.Delivery, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	DeadLetter(ctx context.Context, sourceStream string, payload []byte, reason string) error
}

// ProviderClient fetches provider-side deltas. Providers themselves are
// out of scope (spec.md §1's Non-goals) — this is the adapter seam a
// real calendar provider client would satisfy; tests supply a fake.
type ProviderClient interface {
	FetchIncremental(ctx context.Context, accessToken, cursor string) (deltas []coordinator.ProviderDelta, nextCursor string, err error)
	FetchFull(ctx context.Context, accessToken string) (deltas []coordinator.ProviderDelta, nextCursor string, err error)
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

// DefaultConfig returns sane defaults for a single consumer instance.
func DefaultConfig(consumerName string) Config {
	return Config{
		ConsumerName: consumerName,
		BatchSize:    32,
		BlockTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryDelay:   500 * time.Millisecond,
		Workers:      4,
	}
}

const consumerGroup = "tminus-consumer"

// Consumer is one provider→canonical pipeline instance.
type Consumer struct {
	reader   Reader
	holders  Holders
	applier  Applier
	enqueue  Enqueuer
	provider ProviderClient
	cfg      Config
	logger   zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a consumer instance.
func New(reader Reader, holders Holders, applier Applier, enqueue Enqueuer, provider ProviderClient, cfg Config, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader:   reader,
		holders:  holders,
		applier:  applier,
		enqueue:  enqueue,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "consumer").Str("consumer_name", cfg.ConsumerName).Logger(),
	}
}

// Start ensures the consumer group exists and launches the poll loop.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.reader.EnsureGroup(ctx, queue.StreamSync, consumerGroup); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info().Msg("provider->canonical consumer started")
	return nil
}

// Stop cancels the poll loop and waits for the in-flight batch to drain.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Msg("provider->canonical consumer stopped")
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := c.reader.ReadGroup(ctx, queue.StreamSync, consumerGroup, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("read group failed")
			continue
		}
		if len(deliveries) == 0 {
			continue
		}
		c.processBatch(ctx, deliveries)
	}
}

// envelope is the common discriminator every sync-queue message shares.
type envelope struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
}

// processBatch groups a batch by account_id and processes each
// account's messages concurrently, bounded by cfg.Workers — within one
// account, messages still process in the order they were delivered.
func (c *Consumer) processBatch(ctx context.Context, deliveries []queue.Delivery) {
	grouped := map[string][]queue.Delivery{}
	var order []string
	for _, d := range deliveries {
		var env envelope
		if err := json.Unmarshal(d.Payload, &env); err != nil {
			c.deadLetter(ctx, d, "unparseable message: "+err.Error())
			continue
		}
		if _, ok := grouped[env.AccountID]; !ok {
			order = append(order, env.AccountID)
		}
		grouped[env.AccountID] = append(grouped[env.AccountID], d)
	}

	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for _, accountID := range order {
		accountID := accountID
		msgs := grouped[accountID]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.processAccount(ctx, accountID, msgs)
		}()
	}
	wg.Wait()
}

func (c *Consumer) processAccount(ctx context.Context, accountID string, deliveries []queue.Delivery) {
	holder, err := c.holders.Holder(accountID)
	if err != nil {
		for _, d := range deliveries {
			c.deadLetter(ctx, d, fmt.Sprintf("no holder for account %s: %v", accountID, err))
		}
		return
	}

	for _, d := range deliveries {
		c.processOne(ctx, holder, accountID, d)
	}
}

func (c *Consumer) processOne(ctx context.Context, holder Holder, accountID string, d queue.Delivery) {
	var env envelope
	_ = json.Unmarshal(d.Payload, &env)

	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		err = c.apply(ctx, holder, accountID, env.Type, d.Payload)
		if err == nil {
			c.ack(ctx, d)
			return
		}
		if _, stale := err.(*tminuserrors.CursorStaleError); stale {
			c.ack(ctx, d) // SYNC_FULL already enqueued by apply; this message is done
			return
		}
		if _, revoked := err.(*tminuserrors.AuthRevokedError); revoked {
			break // not retryable, account is dead until re-linked
		}
		c.logger.Warn().Err(err).Str("account_id", accountID).Int("attempt", attempt+1).Msg("sync message processing failed")
		if attempt < c.cfg.MaxRetries {
			time.Sleep(c.cfg.RetryDelay * time.Duration(1<<uint(attempt)))
		}
	}
	c.deadLetter(ctx, d, err.Error())
}

func (c *Consumer) apply(ctx context.Context, holder Holder, accountID, msgType string, payload []byte) error {
	if err := holder.RateLimit(ctx, 1); err != nil {
		return err
	}
	token, err := holder.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	var deltas []coordinator.ProviderDelta
	var nextCursor string

	switch msgType {
	case "SYNC_INCREMENTAL":
		cursor, err := holder.GetSyncCursor(ctx)
		if err != nil {
			return err
		}
		deltas, nextCursor, err = c.provider.FetchIncremental(ctx, token, cursor)
		if err != nil {
			if _, stale := err.(*tminuserrors.CursorStaleError); stale {
				if c.enqueue != nil {
					_ = c.enqueue.EnqueueSyncFull(ctx, queue.SyncFull{AccountID: accountID, Reason: queue.SyncFullToken410})
				}
			}
			return err
		}
	case "SYNC_FULL":
		deltas, nextCursor, err = c.provider.FetchFull(ctx, token)
		if err != nil {
			return err
		}
	default:
		var full queue.SyncFull
		if jsonErr := json.Unmarshal(payload, &full); jsonErr == nil && full.Type == "" {
			return fmt.Errorf("unknown sync message type %q", msgType)
		}
		deltas, nextCursor, err = c.provider.FetchFull(ctx, token)
		if err != nil {
			return err
		}
	}

	result, err := c.applier.ApplyProviderDelta(ctx, accountID, deltas)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		c.logger.Warn().Str("account_id", accountID).Int("error_count", len(result.Errors)).Msg("batch applied with per-delta errors")
	}

	return holder.SetSyncCursor(ctx, nextCursor, time.Now().UTC())
}

func (c *Consumer) ack(ctx context.Context, d queue.Delivery) {
	if err := c.reader.Ack(ctx, queue.StreamSync, consumerGroup, d.ID); err != nil {
		c.logger.Warn().Err(err).Str("delivery_id", d.ID).Msg("ack failed")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, d queue.Delivery, reason string) {
	if err := c.reader.DeadLetter(ctx, queue.StreamSync, d.Payload, reason); err != nil {
		c.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("dead letter failed")
	}
	c.ack(ctx, d)
}
