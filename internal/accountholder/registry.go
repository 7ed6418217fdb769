package accountholder

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry owns every linked account's Actor for one user, keyed by
// account_id. internal/consumer, internal/writer, and
// internal/reconcile each declare their own narrow Holders interface
// against this same Holder(accountID) (X, error) shape; *Actor's full
// method set satisfies all three, so one Registry backs all of them.
type Registry struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	envelope *Envelope
	store   Store
	refresher TokenRefresher
	rate    float64
	burst   int
	logger  zerolog.Logger
}

// NewRegistry builds an empty registry. ratePerSecond/burst are
// applied to every actor it starts.
func NewRegistry(store Store, envelope *Envelope, refresher TokenRefresher, ratePerSecond float64, burst int, logger zerolog.Logger) *Registry {
	return &Registry{
		actors:    map[string]*Actor{},
		envelope:  envelope,
		store:     store,
		refresher: refresher,
		rate:      ratePerSecond,
		burst:     burst,
		logger:    logger,
	}
}

// StartAccount constructs and starts an actor for accountID if one
// isn't already running, idempotently.
func (r *Registry) StartAccount(ctx context.Context, accountID string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[accountID]; ok {
		return a, nil
	}
	a := New(accountID, r.store, r.envelope, r.refresher, r.rate, r.burst, r.logger)
	if err := a.Start(ctx); err != nil {
		return nil, fmt.Errorf("start actor for %s: %w", accountID, err)
	}
	r.actors[accountID] = a
	return a, nil
}

// Holder resolves accountID to its running actor.
func (r *Registry) Holder(accountID string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[accountID]
	if !ok {
		return nil, fmt.Errorf("no running holder for account %s", accountID)
	}
	return a, nil
}

// StopAll stops every running actor.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.actors {
		a.Stop()
	}
}
