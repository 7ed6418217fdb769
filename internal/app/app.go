// Package app wires one user's full stack — canonical store,
// coordinator actor, per-account holder actors, and the three
// background pipelines (sync consumer, provider writer, reconciliation
// driver) — into a single startable/stoppable unit, mirroring the
// teacher's main.go wiring order (store → actors → pipelines → router)
// but scoped per user instead of per process, per §6.4's "one SQLite
// database per user" layout.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/accountholder"
	"github.com/RamXX/tminus/internal/consumer"
	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/reconcile"
	"github.com/RamXX/tminus/internal/store"
	"github.com/RamXX/tminus/internal/writer"
)

// Deps are the process-wide collaborators shared by every user's App.
type Deps struct {
	Queue             *queue.Client
	Provider          Provider
	MasterKeyB64      string
	RatePerSecond     float64
	RateBurst         int
	QueueWorkers      int
	ReconcileSchedule string
	ReconcileEnabled  bool
	Logger            zerolog.Logger
}

// Provider bundles the three provider-facing adapter interfaces the
// pipelines need. Concrete provider integration is out of scope
// (spec.md §1 Non-goals); internal/provideradapter.Unconfigured
// satisfies this until a real client is wired in.
type Provider interface {
	accountholder.TokenRefresher
	consumer.ProviderClient
	writer.ProviderWriter
	reconcile.ProviderClient
}

// App is one user's running stack.
type App struct {
	UserID string

	db               *sql.DB
	store            *store.Store
	coord            *coordinator.Coordinator
	holders          *accountholder.Registry
	consumer         *consumer.Consumer
	writer           *writer.Writer
	reconcile        *reconcile.Driver
	reconcileEnabled bool
}

// Open opens the user's SQLite file under dataDir and builds every
// component, without starting any of them yet.
func Open(dataDir, userID string, deps Deps) (*App, error) {
	dbPath := filepath.Join(dataDir, userID+".db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store for user %s: %w", userID, err)
	}
	st := store.New(db)

	envelope, err := accountholder.NewEnvelope(deps.MasterKeyB64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("new envelope for user %s: %w", userID, err)
	}
	holders := accountholder.NewRegistry(st, envelope, deps.Provider, deps.RatePerSecond, deps.RateBurst, deps.Logger)

	coord := coordinator.New(userID, st, deps.Queue, deps.Logger)

	consumerCfg := consumer.DefaultConfig(userID)
	consumerCfg.Workers = deps.QueueWorkers
	c := consumer.New(deps.Queue, consumerHolders{holders}, coord, deps.Queue, deps.Provider, consumerCfg, deps.Logger)

	writerCfg := writer.DefaultConfig(userID)
	writerCfg.Workers = deps.QueueWorkers
	w := writer.New(deps.Queue, writerHolders{holders}, st, deps.Provider, writerCfg, deps.Logger)

	r := reconcile.New(st, reconcileHolders{holders}, deps.Provider, coord, st, deps.Queue, deps.Logger)

	return &App{
		UserID:           userID,
		db:               db,
		store:            st,
		coord:            coord,
		holders:          holders,
		consumer:         c,
		writer:           w,
		reconcile:        r,
		reconcileEnabled: deps.ReconcileEnabled,
	}, nil
}

// Coordinator exposes the user's coordinator for mounting into
// internal/httpapi.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Start launches the coordinator actor, then one holder actor per
// already-linked account, then every background pipeline. The
// reconciliation cron is skipped when Deps.ReconcileEnabled is false.
func (a *App) Start(ctx context.Context, reconcileSchedule string) error {
	a.coord.Start(ctx)

	accounts, err := a.store.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts for user %s: %w", a.UserID, err)
	}
	for _, acc := range accounts {
		if _, err := a.holders.StartAccount(ctx, acc.AccountID); err != nil {
			return fmt.Errorf("start holder for account %s: %w", acc.AccountID, err)
		}
	}

	if err := a.consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer for user %s: %w", a.UserID, err)
	}
	if err := a.writer.Start(ctx); err != nil {
		return fmt.Errorf("start writer for user %s: %w", a.UserID, err)
	}
	if a.reconcileEnabled {
		if err := a.reconcile.StartSchedule(ctx, reconcileSchedule); err != nil {
			return fmt.Errorf("start reconcile schedule for user %s: %w", a.UserID, err)
		}
	}
	return nil
}

// Stop tears down every component in reverse startup order and closes
// the user's database handle.
func (a *App) Stop() {
	a.reconcile.Stop()
	a.writer.Stop()
	a.consumer.Stop()
	a.holders.StopAll()
	a.coord.Stop()
	_ = a.db.Close()
}

// consumerHolders adapts *accountholder.Registry to consumer.Holders:
// Registry.Holder returns a concrete *accountholder.Actor, which Go
// only treats as satisfying consumer.Holder at an explicit assignment
// or return, not by embedding, hence this one-line wrapper (repeated
// for writer.Holders and reconcile.Holders below).
type consumerHolders struct{ reg *accountholder.Registry }

func (c consumerHolders) Holder(accountID string) (consumer.Holder, error) { return c.reg.Holder(accountID) }

type writerHolders struct{ reg *accountholder.Registry }

func (w writerHolders) Holder(accountID string) (writer.Holder, error) { return w.reg.Holder(accountID) }

type reconcileHolders struct{ reg *accountholder.Registry }

func (r reconcileHolders) Holder(accountID string) (reconcile.Holder, error) { return r.reg.Holder(accountID) }
