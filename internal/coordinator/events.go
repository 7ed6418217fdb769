package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/idgen"
	"github.com/RamXX/tminus/internal/policy"
	"github.com/RamXX/tminus/internal/projection"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tagging"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// DeltaType enumerates the three shapes a provider delta can take.
type DeltaType string

const (
	DeltaCreated DeltaType = "created"
	DeltaUpdated DeltaType = "updated"
	DeltaDeleted DeltaType = "deleted"
)

// ProviderEvent is the provider-side event body carried by a
// created/updated delta; ApplyProviderDelta classifies the delta by its
// Tags before using it.
type ProviderEvent struct {
	Title          string
	Description    string
	Location       string
	StartTS        string
	EndTS          string
	Timezone       string
	AllDay         bool
	Status         domain.EventStatus
	Visibility     string
	Transparency   domain.Transparency
	RecurrenceRule string
}

// ProviderDelta is one entry of an applyProviderDelta batch, keyed by
// origin_event_id per §4.3.
type ProviderDelta struct {
	Type          DeltaType
	OriginEventID string
	Event         *ProviderEvent    // nil for DeltaDeleted
	Tags          *tagging.Private // extendedProperties.private, nil if untagged
}

// DeltaError records one failed delta within an otherwise-successful
// batch, per §4.3's "bad entries don't abort the batch" contract.
type DeltaError struct {
	OriginEventID string
	Reason        string
}

// ApplyDeltaResult is applyProviderDelta's return shape.
type ApplyDeltaResult struct {
	Created         int
	Updated         int
	Deleted         int
	MirrorsEnqueued int
	Errors          []DeltaError
}

// ApplyProviderDelta ingests a batch of provider deltas for one
// account, classifying, deduplicating, journaling, and projecting
// each per §4.3's five-step algorithm. A malformed delta is recorded
// in the result and does not abort the rest of the batch.
func (c *Coordinator) ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []ProviderDelta) (ApplyDeltaResult, error) {
	var result ApplyDeltaResult
	err := c.do(ctx, func(ctx context.Context) error {
		for _, d := range deltas {
			if err := c.applyOneDelta(ctx, originAccountID, d, &result); err != nil {
				result.Errors = append(result.Errors, DeltaError{OriginEventID: d.OriginEventID, Reason: err.Error()})
			}
		}
		return nil
	})
	return result, err
}

func (c *Coordinator) applyOneDelta(ctx context.Context, originAccountID string, d ProviderDelta, result *ApplyDeltaResult) error {
	// Step 1: classify. A managed mirror must never re-enter as an
	// origin event (Invariant E) — correct drift and stop.
	if tagging.Classify(d.Tags) == tagging.ClassManagedMirror {
		return c.reconcileManagedMirrorDrift(ctx, originAccountID, d, result)
	}

	if d.Type == DeltaDeleted {
		return c.applyOriginDelete(ctx, originAccountID, d.OriginEventID, result)
	}
	if d.Event == nil {
		return fmt.Errorf("delta %q: missing event payload", d.Type)
	}
	return c.applyOriginUpsert(ctx, originAccountID, d, result)
}

// reconcileManagedMirrorDrift handles a self-managed mirror event seen
// in observedAccountID's feed: it compares the stored hash of that
// account's mirror row against a fresh projection hash and enqueues a
// corrective write when they differ, without ever treating the event
// as new origin content.
func (c *Coordinator) reconcileManagedMirrorDrift(ctx context.Context, observedAccountID string, d ProviderDelta, result *ApplyDeltaResult) error {
	if d.Tags == nil || d.Tags.CanonicalEventID == "" {
		return nil
	}
	ev, err := c.store.GetEvent(ctx, d.Tags.CanonicalEventID)
	if err != nil {
		return nil // canonical gone; nothing to correct
	}
	mirror, ok, err := c.store.GetMirror(ctx, ev.CanonicalEventID, observedAccountID)
	if err != nil || !ok {
		return nil
	}
	edges, err := c.edgesInto(ctx, ev.OriginAccountID, observedAccountID)
	if err != nil || len(edges) == 0 {
		return nil
	}
	_, hash, err := projection.ProjectAndHash(ev, edges[0])
	if err != nil {
		return nil
	}
	if mirror.LastProjectedHash == hash {
		return nil // Invariant C: no-op when unchanged
	}
	if err := c.enqueueUpsertMirror(ctx, ev, edges[0], hash); err != nil {
		return err
	}
	result.MirrorsEnqueued++
	return nil
}

func (c *Coordinator) applyOriginDelete(ctx context.Context, originAccountID, originEventID string, result *ApplyDeltaResult) error {
	ev, found, err := c.store.FindEventByOrigin(ctx, originAccountID, originEventID)
	if err != nil {
		return err
	}
	if !found {
		return nil // unknown-event delete is silent, per §7
	}
	if err := c.deleteEventAndMirrors(ctx, ev, "provider:"+originAccountID, result); err != nil {
		return err
	}
	result.Deleted++
	return nil
}

func (c *Coordinator) applyOriginUpsert(ctx context.Context, originAccountID string, d ProviderDelta, result *ApplyDeltaResult) error {
	now := time.Now().UTC()
	existing, found, err := c.store.FindEventByOrigin(ctx, originAccountID, d.OriginEventID)
	if err != nil {
		return err
	}

	dedup := false
	var ev domain.CanonicalEvent
	if found {
		ev = existing
		ev.Version++
		dedup = d.Type == DeltaCreated
	} else {
		ev = domain.CanonicalEvent{
			CanonicalEventID: idgen.NewAt(idgen.PrefixEvent, now),
			OriginAccountID:  originAccountID,
			OriginEventID:    d.OriginEventID,
			Version:          1,
			CreatedAt:        now,
		}
	}
	ev.Title = d.Event.Title
	ev.Description = d.Event.Description
	ev.Location = d.Event.Location
	ev.StartTS = d.Event.StartTS
	ev.EndTS = d.Event.EndTS
	ev.Timezone = d.Event.Timezone
	ev.AllDay = d.Event.AllDay
	ev.Status = d.Event.Status
	ev.Visibility = d.Event.Visibility
	ev.Transparency = d.Event.Transparency
	ev.RecurrenceRule = d.Event.RecurrenceRule
	ev.Source = domain.SourceProvider
	ev.UpdatedAt = now

	if err := c.store.PutEvent(ctx, ev); err != nil {
		return err
	}

	changeType := domain.ChangeUpdated
	patch := map[string]any{}
	if !found {
		changeType = domain.ChangeCreated
		result.Created++
	} else if dedup {
		patch["dedup"] = true
		result.Updated++
	} else {
		result.Updated++
	}
	if err := c.journal(ctx, ev.CanonicalEventID, "provider:"+originAccountID, changeType, patch, ""); err != nil {
		return err
	}

	return c.projectEvent(ctx, ev, result)
}

// edgesInto returns the outgoing policy edges whose from_account_id
// matches an event's origin (defaulting to "internal"), restricted to
// one target when toFilter is non-empty.
func (c *Coordinator) edgesInto(ctx context.Context, fromAccountID, toFilter string) ([]domain.PolicyEdge, error) {
	defaultPolicy, ok, err := c.store.GetDefaultPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	edges, err := c.store.ListPolicyEdges(ctx, defaultPolicy.PolicyID)
	if err != nil {
		return nil, err
	}
	if fromAccountID == "" {
		fromAccountID = domain.InternalAccountID
	}
	var out []domain.PolicyEdge
	for _, e := range edges {
		if e.FromAccountID != fromAccountID {
			continue
		}
		if toFilter != "" && e.ToAccountID != toFilter {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// projectEvent computes the projected payload for every outgoing edge
// from ev's origin and enqueues UPSERT_MIRROR when the hash differs
// from the stored one (Invariant C: skip when unchanged).
func (c *Coordinator) projectEvent(ctx context.Context, ev domain.CanonicalEvent, result *ApplyDeltaResult) error {
	edges, err := c.edgesInto(ctx, originFor(ev), "")
	if err != nil {
		return err
	}
	for _, edge := range edges {
		_, hash, err := projection.ProjectAndHash(ev, edge)
		if err != nil {
			return err
		}
		existing, ok, err := c.store.GetMirror(ctx, ev.CanonicalEventID, edge.ToAccountID)
		if err != nil {
			return err
		}
		if ok && existing.LastProjectedHash == hash {
			continue // Invariant C
		}
		if err := c.enqueueUpsertMirror(ctx, ev, edge, hash); err != nil {
			return err
		}
		if result != nil {
			result.MirrorsEnqueued++
		}
	}
	return nil
}

func (c *Coordinator) enqueueUpsertMirror(ctx context.Context, ev domain.CanonicalEvent, edge domain.PolicyEdge, hash string) error {
	payload, err := projection.Project(ev, edge)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(toWireProjectedEvent(payload))
	if err != nil {
		return fmt.Errorf("marshal projected payload: %w", err)
	}
	idempotencyKey := idempotencyKeyFor(ev.CanonicalEventID, edge.ToAccountID, hash)

	if err := c.store.PutMirror(ctx, domain.Mirror{
		CanonicalEventID:  ev.CanonicalEventID,
		TargetAccountID:   edge.ToAccountID,
		LastProjectedHash: hash,
		State:             domain.MirrorPending,
	}); err != nil {
		return err
	}
	if c.enqueue == nil {
		return nil
	}
	return c.enqueue.EnqueueUpsertMirror(ctx, queue.UpsertMirror{
		CanonicalEventID: ev.CanonicalEventID,
		TargetAccountID:  edge.ToAccountID,
		ProjectedPayload: raw,
		ProjectedHash:    hash,
		IdempotencyKey:   idempotencyKey,
	})
}

func toWireProjectedEvent(p projection.Payload) queue.ProjectedEvent {
	we := queue.ProjectedEvent{
		Summary:      p.Summary,
		Description:  p.Description,
		Location:     p.Location,
		Transparency: string(p.Transparency),
		Visibility:   p.Visibility,
		ExtendedProperties: queue.ExtendedPropertiesPrivate{
			Private: map[string]string{
				"tminus":             p.Tags.TMinus,
				"managed":            p.Tags.Managed,
				"canonical_event_id": p.Tags.CanonicalEventID,
				"origin_account_id":  p.Tags.OriginAccountID,
			},
		},
	}
	if p.AllDay {
		we.Start = queue.EventTime{Date: p.Date}
		we.End = queue.EventTime{Date: p.EndDate}
	} else {
		we.Start = queue.EventTime{DateTime: p.DateTime, TimeZone: p.TimeZone}
		we.End = queue.EventTime{DateTime: p.EndDateTime, TimeZone: p.TimeZone}
	}
	return we
}

func idempotencyKeyFor(canonicalEventID, targetAccountID, hash string) string {
	sum := sha256.Sum256([]byte(canonicalEventID + "|" + targetAccountID + "|" + hash))
	return hex.EncodeToString(sum[:])
}

func originFor(ev domain.CanonicalEvent) string {
	if ev.OriginAccountID == "" {
		return domain.InternalAccountID
	}
	return ev.OriginAccountID
}

// deleteEventAndMirrors removes a canonical row, journals the delete,
// and enqueues DELETE_MIRROR for every existing mirror before dropping
// the mirror rows — the shared tail of deleteCanonicalEvent and
// applyProviderDelta's delete branch.
func (c *Coordinator) deleteEventAndMirrors(ctx context.Context, ev domain.CanonicalEvent, actor string, result *ApplyDeltaResult) error {
	mirrors, err := c.store.ListMirrors(ctx, ev.CanonicalEventID)
	if err != nil {
		return err
	}
	for _, m := range mirrors {
		if c.enqueue != nil {
			if err := c.enqueue.EnqueueDeleteMirror(ctx, queue.DeleteMirror{
				CanonicalEventID: m.CanonicalEventID,
				TargetAccountID:  m.TargetAccountID,
				ProviderEventID:  m.ProviderEventID,
				IdempotencyKey:   idempotencyKeyFor(m.CanonicalEventID, m.TargetAccountID, "deleted"),
			}); err != nil {
				return err
			}
		}
		if err := c.store.DeleteMirror(ctx, m.CanonicalEventID, m.TargetAccountID); err != nil {
			return err
		}
		if result != nil {
			result.MirrorsEnqueued++
		}
	}
	if err := c.store.DeleteEvent(ctx, ev.CanonicalEventID); err != nil {
		return err
	}
	return c.journal(ctx, ev.CanonicalEventID, actor, domain.ChangeDeleted, nil, "")
}

func (c *Coordinator) journal(ctx context.Context, canonicalEventID, actor string, changeType domain.ChangeType, patch map[string]any, reason string) error {
	var patchJSON string
	if len(patch) > 0 {
		raw, err := json.Marshal(patch)
		if err != nil {
			return fmt.Errorf("marshal journal patch: %w", err)
		}
		patchJSON = string(raw)
	}
	return c.store.AppendJournal(ctx, domain.JournalEntry{
		JournalID:        idgen.New(idgen.PrefixJournal),
		CanonicalEventID: canonicalEventID,
		TS:               time.Now().UTC(),
		Actor:            actor,
		ChangeType:       changeType,
		PatchJSON:        patchJSON,
		Reason:           reason,
	})
}

// UpsertCanonicalEvent is the user/API entry point of §4.3: it accepts
// partial shapes, defaulting origin_account_id/origin_event_id to
// "internal"/a minted id, then runs the same journal+project pipeline
// as a provider delta.
func (c *Coordinator) UpsertCanonicalEvent(ctx context.Context, ev domain.CanonicalEvent, actor domain.Source) (domain.CanonicalEvent, error) {
	var out domain.CanonicalEvent
	err := c.do(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		if ev.OriginAccountID == "" {
			ev.OriginAccountID = domain.InternalAccountID
		}

		var existing domain.CanonicalEvent
		found := false
		if ev.CanonicalEventID != "" {
			e, err := c.store.GetEvent(ctx, ev.CanonicalEventID)
			if err == nil {
				existing, found = e, true
			}
		}
		if !found && ev.OriginEventID != "" {
			e, ok, err := c.store.FindEventByOrigin(ctx, ev.OriginAccountID, ev.OriginEventID)
			if err != nil {
				return err
			}
			existing, found = e, ok
		}

		if found {
			ev.CanonicalEventID = existing.CanonicalEventID
			ev.OriginEventID = existing.OriginEventID
			ev.Version = existing.Version + 1
			ev.CreatedAt = existing.CreatedAt
		} else {
			if ev.CanonicalEventID == "" {
				ev.CanonicalEventID = idgen.NewAt(idgen.PrefixEvent, now)
			}
			if ev.OriginEventID == "" {
				ev.OriginEventID = idgen.NewAt(idgen.PrefixEvent, now)
			}
			ev.Version = 1
			ev.CreatedAt = now
		}
		if ev.Status == "" {
			ev.Status = domain.StatusConfirmed
		}
		if ev.Transparency == "" {
			ev.Transparency = domain.TransparencyOpaque
		}
		ev.Source = actor
		ev.UpdatedAt = now

		if err := c.store.PutEvent(ctx, ev); err != nil {
			return err
		}
		changeType := domain.ChangeCreated
		if found {
			changeType = domain.ChangeUpdated
		}
		if err := c.journal(ctx, ev.CanonicalEventID, string(actor), changeType, nil, ""); err != nil {
			return err
		}
		if err := c.projectEvent(ctx, ev, nil); err != nil {
			return err
		}
		out = ev
		return nil
	})
	return out, err
}

// DeleteResult is deleteCanonicalEvent's return shape.
type DeleteResult struct {
	Deleted bool
}

// DeleteCanonicalEvent hard-deletes a canonical event, cascading to
// its mirrors, and appends a deleted entry to the journal.
func (c *Coordinator) DeleteCanonicalEvent(ctx context.Context, id string, actor domain.Source) (DeleteResult, error) {
	var out DeleteResult
	err := c.do(ctx, func(ctx context.Context) error {
		ev, err := c.store.GetEvent(ctx, id)
		if _, ok := err.(*tminuserrors.NotFoundError); ok {
			return nil // deleteCanonicalEvent returns false, not an error
		}
		if err != nil {
			return err
		}
		if err := c.deleteEventAndMirrors(ctx, ev, string(actor), nil); err != nil {
			return err
		}
		out.Deleted = true
		return nil
	})
	return out, err
}

// RecomputeOptions controls recomputeProjections' scope.
type RecomputeOptions struct {
	CanonicalEventID      string // empty means every event
	ForceRequeueNonActive bool
}

// RecomputeProjections rehashes the given event (or every event) under
// its outgoing edges and enqueues UPSERT_MIRROR wherever the hash
// differs, or — when ForceRequeueNonActive is set — wherever the
// mirror's state isn't ACTIVE even if the hash matches, to recover
// stuck PENDING/ERROR rows.
func (c *Coordinator) RecomputeProjections(ctx context.Context, opts RecomputeOptions) (int, error) {
	var count int
	err := c.do(ctx, func(ctx context.Context) error {
		var events []domain.CanonicalEvent
		if opts.CanonicalEventID != "" {
			ev, err := c.store.GetEvent(ctx, opts.CanonicalEventID)
			if err != nil {
				return err
			}
			events = []domain.CanonicalEvent{ev}
		} else {
			all, err := c.store.ListEvents(ctx)
			if err != nil {
				return err
			}
			events = all
		}

		for _, ev := range events {
			edges, err := c.edgesInto(ctx, originFor(ev), "")
			if err != nil {
				return err
			}
			for _, edge := range edges {
				_, hash, err := projection.ProjectAndHash(ev, edge)
				if err != nil {
					return err
				}
				existing, ok, err := c.store.GetMirror(ctx, ev.CanonicalEventID, edge.ToAccountID)
				if err != nil {
					return err
				}
				needsRequeue := !ok || existing.LastProjectedHash != hash ||
					(opts.ForceRequeueNonActive && existing.State != domain.MirrorActive)
				if !needsRequeue {
					continue
				}
				if err := c.enqueueUpsertMirror(ctx, ev, edge, hash); err != nil {
					return err
				}
				count++
			}
		}
		return nil
	})
	return count, err
}

// ListQuery is listCanonicalEvents' filter set.
type ListQuery struct {
	TimeMin         time.Time
	TimeMax         time.Time
	OriginAccountID string
	OriginEventID   string
	UpdatedAfter    time.Time
	Source          domain.Source
	Limit           int
}

// ListCanonicalEvents returns events matching query, ordered by
// (start_ts ASC, canonical_event_id ASC) for stable pagination,
// bounded by Limit (default 100, capped at 1000).
func (c *Coordinator) ListCanonicalEvents(ctx context.Context, q ListQuery) ([]domain.CanonicalEvent, error) {
	var out []domain.CanonicalEvent
	err := c.do(ctx, func(ctx context.Context) error {
		from, to := q.TimeMin, q.TimeMax
		if from.IsZero() {
			from = time.Unix(0, 0).UTC()
		}
		if to.IsZero() {
			to = time.Now().UTC().AddDate(100, 0, 0)
		}
		events, err := c.store.ListEventsInWindow(ctx, from, to)
		if err != nil {
			return err
		}
		limit := q.Limit
		if limit <= 0 {
			limit = 100
		}
		if limit > 1000 {
			limit = 1000
		}
		for _, ev := range events {
			if q.OriginAccountID != "" && ev.OriginAccountID != q.OriginAccountID {
				continue
			}
			if q.OriginEventID != "" && ev.OriginEventID != q.OriginEventID {
				continue
			}
			if q.Source != "" && ev.Source != q.Source {
				continue
			}
			if !q.UpdatedAfter.IsZero() && !ev.UpdatedAt.After(q.UpdatedAfter) {
				continue
			}
			out = append(out, ev)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// CanonicalEventWithMirrors is getCanonicalEvent's return shape.
type CanonicalEventWithMirrors struct {
	Event   domain.CanonicalEvent
	Mirrors []domain.Mirror
}

// GetCanonicalEvent returns one event with its mirror rows.
func (c *Coordinator) GetCanonicalEvent(ctx context.Context, id string) (CanonicalEventWithMirrors, error) {
	var out CanonicalEventWithMirrors
	err := c.do(ctx, func(ctx context.Context) error {
		ev, err := c.store.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		mirrors, err := c.store.ListMirrors(ctx, id)
		if err != nil {
			return err
		}
		out = CanonicalEventWithMirrors{Event: ev, Mirrors: mirrors}
		return nil
	})
	return out, err
}

// FindCanonicalByOrigin looks up a canonical event by its
// (origin_account_id, origin_event_id) key.
func (c *Coordinator) FindCanonicalByOrigin(ctx context.Context, originAccountID, originEventID string) (domain.CanonicalEvent, bool, error) {
	var ev domain.CanonicalEvent
	var found bool
	err := c.do(ctx, func(ctx context.Context) error {
		e, ok, err := c.store.FindEventByOrigin(ctx, originAccountID, originEventID)
		ev, found = e, ok
		return err
	})
	return ev, found, err
}

// GetActiveMirrors returns every mirror row currently in ACTIVE state.
func (c *Coordinator) GetActiveMirrors(ctx context.Context) ([]domain.Mirror, error) {
	var out []domain.Mirror
	err := c.do(ctx, func(ctx context.Context) error {
		m, err := c.store.ListMirrorsByState(ctx, domain.MirrorActive)
		out = m
		return err
	})
	return out, err
}

// JournalQuery is queryJournal's filter set.
type JournalQuery struct {
	CanonicalEventID string
	Actor            string
	ChangeType       domain.ChangeType
	Since            time.Time
	Until            time.Time
	Limit            int
}

// QueryJournal returns journal entries matching query, newest first.
func (c *Coordinator) QueryJournal(ctx context.Context, q JournalQuery) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	err := c.do(ctx, func(ctx context.Context) error {
		entries, err := c.store.QueryJournal(ctx, q.CanonicalEventID, q.Since, q.Until, 0)
		if err != nil {
			return err
		}
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		for _, e := range entries {
			if q.Actor != "" && e.Actor != q.Actor {
				continue
			}
			if q.ChangeType != "" && e.ChangeType != q.ChangeType {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// LogReconcileDiscrepancy journals one reconciliation repair action,
// per §4.9 step 5's `reconcile:<subtype>` change types.
func (c *Coordinator) LogReconcileDiscrepancy(ctx context.Context, canonicalEventID, subtype, reason string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.journal(ctx, canonicalEventID, "reconcile", domain.ChangeType(string(domain.ChangeReconcilePrefix)+subtype), nil, reason)
	})
}

// policyResolve returns the default policy's edge from fromAccountID to
// toAccountID via policy.Resolve; it assumes it is already running
// inside the actor goroutine.
func (c *Coordinator) policyResolve(ctx context.Context, fromAccountID, toAccountID string) (domain.PolicyEdge, error) {
	defaultPolicy, ok, err := c.store.GetDefaultPolicy(ctx)
	if err != nil {
		return domain.PolicyEdge{}, err
	}
	if !ok {
		return policy.Resolve(nil, fromAccountID, toAccountID), nil
	}
	edges, err := c.store.ListPolicyEdges(ctx, defaultPolicy.PolicyID)
	if err != nil {
		return domain.PolicyEdge{}, err
	}
	return policy.Resolve(edges, fromAccountID, toAccountID), nil
}
