// Package reconcile implements §4.9's daily reconciliation driver: for
// every active account it re-reads the provider in full and repairs
// any drift between the provider's state and the local canonical/
// mirror tables, journaling every repair it makes. Scheduling is
// cron-driven the way r3e-network-service_layer's automation service
// drives its scheduled jobs, using the same robfig/cron/v3 dependency.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tagging"
)

// Reconcile repair subtypes, journaled via Applier.LogReconcileDiscrepancy.
const (
	SubtypeMissingCanonical = "missing_canonical"
	SubtypeOrphanedMirror   = "orphaned_mirror"
	SubtypeHashMismatch     = "hash_mismatch"
	SubtypeStaleMirror      = "stale_mirror"
)

// AccountsStore lists the accounts the driver sweeps daily.
type AccountsStore interface {
	ListActiveAccounts(ctx context.Context) ([]domain.AccountState, error)
}

// Holder is the subset of accountholder.Actor's API the driver needs.
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

// ProviderClient performs the full provider read §4.9 step 1 needs.
// Providers are out of scope (spec.md §1's Non-goals); tests supply a
// fake for this seam.
type ProviderClient interface {
	FetchFull(ctx context.Context, accessToken string) (deltas []coordinator.ProviderDelta, nextCursor string, err error)
}

// Applier is the subset of *coordinator.Coordinator the driver calls into.
type Applier interface {
	ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []coordinator.ProviderDelta) (coordinator.ApplyDeltaResult, error)
	FindCanonicalByOrigin(ctx context.Context, originAccountID, originEventID string) (domain.CanonicalEvent, bool, error)
	GetActiveMirrors(ctx context.Context) ([]domain.Mirror, error)
	RecomputeProjections(ctx context.Context, opts coordinator.RecomputeOptions) (int, error)
	LogReconcileDiscrepancy(ctx context.Context, canonicalEventID, subtype, reason string) error
}

// MirrorStore gives the driver direct mirror-row access for repairs
// that aren't expressed well as coordinator RPCs (orphan/stale marking).
type MirrorStore interface {
	GetMirror(ctx context.Context, canonicalEventID, targetAccountID string) (domain.Mirror, bool, error)
	PutMirror(ctx context.Context, m domain.Mirror) error
}

// Enqueuer is the subset of *queue.Client the driver needs to repair an
// orphaned provider-side mirror.
type Enqueuer interface {
	EnqueueDeleteMirror(ctx context.Context, msg queue.DeleteMirror) error
}

// Report summarizes one ReconcileAccount pass.
type Report struct {
	AccountID        string
	MissingCanonical int
	OrphanedMirrors  int
	StaleMirrors     int
	HashMismatches   int
}

// Driver runs the daily per-account reconciliation sweep.
type Driver struct {
	accounts AccountsStore
	holders  Holders
	provider ProviderClient
	applier  Applier
	mirrors  MirrorStore
	enqueue  Enqueuer
	logger   zerolog.Logger

	cron *cron.Cron
}

// New builds a reconciliation driver.
func New(accounts AccountsStore, holders Holders, provider ProviderClient, applier Applier, mirrors MirrorStore, enqueue Enqueuer, logger zerolog.Logger) *Driver {
	return &Driver{
		accounts: accounts,
		holders:  holders,
		provider: provider,
		applier:  applier,
		mirrors:  mirrors,
		enqueue:  enqueue,
		logger:   logger.With().Str("component", "reconcile").Logger(),
	}
}

// StartSchedule registers ReconcileAll to run on the given 5-field cron
// expression (e.g. "0 3 * * *" for 3am daily) and starts the scheduler.
func (d *Driver) StartSchedule(ctx context.Context, schedule string) error {
	d.cron = cron.New()
	_, err := d.cron.AddFunc(schedule, func() {
		if err := d.ReconcileAll(ctx); err != nil {
			d.logger.Error().Err(err).Msg("reconciliation sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register reconcile schedule %q: %w", schedule, err)
	}
	d.cron.Start()
	d.logger.Info().Str("schedule", schedule).Msg("reconciliation driver scheduled")
	return nil
}

// Stop halts the cron scheduler. Safe to call even if StartSchedule was
// never called.
func (d *Driver) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
}

// ReconcileAll sweeps every active account once. One account's failure
// is logged and does not abort the sweep.
func (d *Driver) ReconcileAll(ctx context.Context) error {
	accounts, err := d.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	d.logger.Info().Int("account_count", len(accounts)).Msg("reconciliation sweep starting")
	for _, a := range accounts {
		report, err := d.ReconcileAccount(ctx, a.AccountID)
		if err != nil {
			d.logger.Error().Err(err).Str("account_id", a.AccountID).Msg("reconcile account failed")
			continue
		}
		d.logger.Info().
			Str("account_id", a.AccountID).
			Int("missing_canonical", report.MissingCanonical).
			Int("orphaned_mirrors", report.OrphanedMirrors).
			Int("stale_mirrors", report.StaleMirrors).
			Msg("reconcile account complete")
	}

	// Hash-mismatch repair walks every canonical event regardless of
	// account, so it runs once per sweep rather than once per account.
	var hashReport Report
	if err := d.repairHashMismatches(ctx, &hashReport); err != nil {
		d.logger.Error().Err(err).Msg("hash mismatch repair failed")
	} else if hashReport.HashMismatches > 0 {
		d.logger.Info().Int("hash_mismatches", hashReport.HashMismatches).Msg("hash mismatch repair complete")
	}
	return nil
}

// ReconcileAccount runs §4.9's six-step algorithm for one account: a
// full provider read, canonical/mirror consistency repair, and a
// last-success cursor touch.
func (d *Driver) ReconcileAccount(ctx context.Context, accountID string) (Report, error) {
	report := Report{AccountID: accountID}

	holder, err := d.holders.Holder(accountID)
	if err != nil {
		return report, err
	}
	if err := holder.RateLimit(ctx, 1); err != nil {
		return report, err
	}
	token, err := holder.GetAccessToken(ctx)
	if err != nil {
		return report, err
	}

	deltas, _, err := d.provider.FetchFull(ctx, token)
	if err != nil {
		return report, fmt.Errorf("fetch full provider snapshot: %w", err)
	}

	var originDeltas []coordinator.ProviderDelta
	managedByCanonicalID := map[string]coordinator.ProviderDelta{}
	for _, delta := range deltas {
		if tagging.Classify(delta.Tags) == tagging.ClassManagedMirror {
			if delta.Tags != nil && delta.Tags.CanonicalEventID != "" {
				managedByCanonicalID[delta.Tags.CanonicalEventID] = delta
			}
			continue
		}
		originDeltas = append(originDeltas, delta)
	}

	if err := d.repairMissingCanonical(ctx, accountID, originDeltas, &report); err != nil {
		return report, err
	}
	if err := d.repairOrphanedAndStaleMirrors(ctx, accountID, managedByCanonicalID, &report); err != nil {
		return report, err
	}

	cursor, err := holder.GetSyncCursor(ctx)
	if err != nil {
		return report, err
	}
	if err := holder.SetSyncCursor(ctx, cursor, time.Now().UTC()); err != nil {
		return report, err
	}

	return report, nil
}

// repairMissingCanonical ensures every origin-classified provider event
// has a canonical row, synthesizing the ones that don't and journaling
// each synthesis under SubtypeMissingCanonical.
func (d *Driver) repairMissingCanonical(ctx context.Context, accountID string, originDeltas []coordinator.ProviderDelta, report *Report) error {
	var missing []coordinator.ProviderDelta
	for _, delta := range originDeltas {
		if _, found, err := d.applier.FindCanonicalByOrigin(ctx, accountID, delta.OriginEventID); err != nil {
			return err
		} else if !found {
			missing = append(missing, delta)
		}
	}

	if _, err := d.applier.ApplyProviderDelta(ctx, accountID, originDeltas); err != nil {
		return err
	}

	for _, delta := range missing {
		ev, found, err := d.applier.FindCanonicalByOrigin(ctx, accountID, delta.OriginEventID)
		if err != nil {
			return err
		}
		if !found {
			continue // applyOneDelta rejected it (e.g. malformed); nothing to journal
		}
		if err := d.applier.LogReconcileDiscrepancy(ctx, ev.CanonicalEventID, SubtypeMissingCanonical,
			fmt.Sprintf("synthesized from provider event %s on account %s", delta.OriginEventID, accountID)); err != nil {
			return err
		}
		report.MissingCanonical++
	}
	return nil
}

// repairOrphanedAndStaleMirrors handles §4.9's two mirror-presence
// checks: a managed provider event with no matching local mirror row
// is orphaned (repair: delete it provider-side); a locally ACTIVE
// mirror the provider no longer carries is stale (repair: tombstone it).
func (d *Driver) repairOrphanedAndStaleMirrors(ctx context.Context, accountID string, managedByCanonicalID map[string]coordinator.ProviderDelta, report *Report) error {
	for canonicalEventID, delta := range managedByCanonicalID {
		mirror, ok, err := d.mirrors.GetMirror(ctx, canonicalEventID, accountID)
		if err != nil {
			return err
		}
		if ok && mirror.State != domain.MirrorTombstoned && mirror.State != domain.MirrorDeleted {
			continue // expected; nothing to repair
		}
		if d.enqueue != nil {
			if err := d.enqueue.EnqueueDeleteMirror(ctx, queue.DeleteMirror{
				CanonicalEventID: canonicalEventID,
				TargetAccountID:  accountID,
				ProviderEventID:  delta.OriginEventID,
				IdempotencyKey:   fmt.Sprintf("reconcile|%s|%s|orphan", canonicalEventID, accountID),
			}); err != nil {
				return err
			}
		}
		if err := d.applier.LogReconcileDiscrepancy(ctx, canonicalEventID, SubtypeOrphanedMirror,
			fmt.Sprintf("provider-side managed event %s has no live local mirror", delta.OriginEventID)); err != nil {
			return err
		}
		report.OrphanedMirrors++
	}

	activeMirrors, err := d.applier.GetActiveMirrors(ctx)
	if err != nil {
		return err
	}
	for _, m := range activeMirrors {
		if m.TargetAccountID != accountID {
			continue
		}
		if _, stillPresent := managedByCanonicalID[m.CanonicalEventID]; stillPresent {
			continue
		}
		m.State = domain.MirrorTombstoned
		m.LastWriteTS = time.Now().UTC()
		if err := d.mirrors.PutMirror(ctx, m); err != nil {
			return err
		}
		if err := d.applier.LogReconcileDiscrepancy(ctx, m.CanonicalEventID, SubtypeStaleMirror,
			fmt.Sprintf("active mirror to account %s no longer present at provider", accountID)); err != nil {
			return err
		}
		report.StaleMirrors++
	}
	return nil
}

// repairHashMismatches rehashes every canonical event's projections and
// enqueues UPSERT_MIRROR wherever the stored hash is stale. This runs
// globally (not scoped to one account) since RecomputeProjections
// already walks every event; running it once per sweep is cheaper than
// once per account.
func (d *Driver) repairHashMismatches(ctx context.Context, report *Report) error {
	count, err := d.applier.RecomputeProjections(ctx, coordinator.RecomputeOptions{ForceRequeueNonActive: true})
	if err != nil {
		return err
	}
	if count > 0 {
		if err := d.applier.LogReconcileDiscrepancy(ctx, "", SubtypeHashMismatch,
			fmt.Sprintf("%d mirror(s) requeued for stale projection hash or non-active state", count)); err != nil {
			return err
		}
	}
	report.HashMismatches += count
	return nil
}
