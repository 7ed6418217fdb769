package httpapi

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/availability"
	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/domain"
)

// Coordinator is the subset of *coordinator.Coordinator's API that
// internal/httpapi needs — every one of §6.3's 23 named operations,
// no more. Narrowing to an interface here follows the same
// dependency-injection shape internal/consumer, internal/writer, and
// internal/reconcile use against their own upstream actors, and lets
// router_test.go exercise a fake rather than a live actor.
type Coordinator interface {
	ApplyProviderDelta(ctx context.Context, originAccountID string, deltas []coordinator.ProviderDelta) (coordinator.ApplyDeltaResult, error)
	UpsertCanonicalEvent(ctx context.Context, ev domain.CanonicalEvent, actor domain.Source) (domain.CanonicalEvent, error)
	DeleteCanonicalEvent(ctx context.Context, id string, actor domain.Source) (coordinator.DeleteResult, error)
	ListCanonicalEvents(ctx context.Context, q coordinator.ListQuery) ([]domain.CanonicalEvent, error)
	GetCanonicalEvent(ctx context.Context, id string) (coordinator.CanonicalEventWithMirrors, error)
	QueryJournal(ctx context.Context, q coordinator.JournalQuery) ([]domain.JournalEntry, error)
	RecomputeProjections(ctx context.Context, opts coordinator.RecomputeOptions) (int, error)
	ComputeAvailability(ctx context.Context, q coordinator.AvailabilityQuery) (availability.Result, error)
	GetSyncHealth(ctx context.Context) (coordinator.SyncHealth, error)
	CreatePolicy(ctx context.Context, name string) (domain.Policy, error)
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (coordinator.PolicyWithEdges, error)
	SetPolicyEdges(ctx context.Context, policyID string, edges []domain.PolicyEdge) error
	EnsureDefaultPolicy(ctx context.Context, accountIDs []string) (domain.Policy, error)
	UnlinkAccount(ctx context.Context, accountID string) (coordinator.UnlinkResult, error)
	AddConstraint(ctx context.Context, kind domain.ConstraintKind, configJSON string, activeFrom, activeTo *time.Time) (domain.Constraint, error)
	DeleteConstraint(ctx context.Context, id string) (bool, error)
	ListConstraints(ctx context.Context, kind domain.ConstraintKind) ([]domain.Constraint, error)
	GetConstraint(ctx context.Context, id string) (domain.Constraint, error)
	FindCanonicalByOrigin(ctx context.Context, originAccountID, originEventID string) (domain.CanonicalEvent, bool, error)
	GetPolicyEdges(ctx context.Context, policyID string) ([]domain.PolicyEdge, error)
	GetActiveMirrors(ctx context.Context) ([]domain.Mirror, error)
	LogReconcileDiscrepancy(ctx context.Context, canonicalEventID, subtype, reason string) error
}
