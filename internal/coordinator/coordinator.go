// Package coordinator implements §4.3's per-user single-writer actor:
// every mutating operation named in §6.3's RPC surface serializes
// through one goroutine draining a request channel, generalized from
// the teacher's analytics.Pipeline (a channel-drained goroutine with
// Start/Stop and a sync.WaitGroup) from "batch sink, fire and forget"
// to "one request/response pair per channel send" — the shape §4.3
// actually needs, since every RPC here has a caller waiting on a
// result or error.
package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/store"
)

// Enqueuer is the subset of internal/queue's producer API the
// coordinator needs to drive the canonical→provider pipeline and
// trigger full resyncs. Declared here (not imported as a concrete
// type) so tests can substitute a recording fake without touching
// Redis.
type Enqueuer interface {
	EnqueueUpsertMirror(ctx context.Context, msg queue.UpsertMirror) error
	EnqueueDeleteMirror(ctx context.Context, msg queue.DeleteMirror) error
	EnqueueSyncFull(ctx context.Context, msg queue.SyncFull) error
}

// request is one closure queued onto the actor's channel; do() blocks
// the caller until fn has run and reported its error.
type request struct {
	fn func(ctx context.Context)
}

// Coordinator is the single-writer entry point for one user's
// canonical store. All exported methods funnel through run() so
// mutations are totally ordered, per §5's scheduling model.
type Coordinator struct {
	userID   string
	store    *store.Store
	enqueue  Enqueuer
	logger   zerolog.Logger

	reqCh  chan request
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a coordinator bound to one user's store and message
// producer. Call Start before issuing any RPC.
func New(userID string, st *store.Store, enq Enqueuer, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		userID:  userID,
		store:   st,
		enqueue: enq,
		logger:  logger.With().Str("component", "coordinator").Str("user_id", userID).Logger(),
		reqCh:   make(chan request, 64),
	}
}

// Start launches the actor goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
	c.logger.Info().Msg("coordinator started")
}

// Stop cancels the actor and waits for the in-flight request (if any)
// to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Msg("coordinator stopped")
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.reqCh:
			req.fn(ctx)
		}
	}
}

// do submits fn to the actor and blocks until it completes, returning
// its error. Every RPC method is a thin wrapper around this.
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	req := request{fn: func(actorCtx context.Context) {
		done <- fn(actorCtx)
	}}
	select {
	case c.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
