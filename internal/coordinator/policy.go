package coordinator

import (
	"context"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/idgen"
	"github.com/RamXX/tminus/internal/policy"
)

// CreatePolicy mints a new, empty named policy.
func (c *Coordinator) CreatePolicy(ctx context.Context, name string) (domain.Policy, error) {
	var out domain.Policy
	err := c.do(ctx, func(ctx context.Context) error {
		p := domain.Policy{PolicyID: idgen.New(idgen.PrefixPolicy), Name: name}
		if err := c.store.CreatePolicy(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// ListPolicies returns every declared policy.
func (c *Coordinator) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	var out []domain.Policy
	err := c.do(ctx, func(ctx context.Context) error {
		p, err := c.store.ListPolicies(ctx)
		out = p
		return err
	})
	return out, err
}

// PolicyWithEdges is getPolicy's return shape.
type PolicyWithEdges struct {
	Policy domain.Policy
	Edges  []domain.PolicyEdge
}

// GetPolicy returns a policy with its edges.
func (c *Coordinator) GetPolicy(ctx context.Context, policyID string) (PolicyWithEdges, error) {
	var out PolicyWithEdges
	err := c.do(ctx, func(ctx context.Context) error {
		p, err := c.store.GetPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		edges, err := c.store.ListPolicyEdges(ctx, policyID)
		if err != nil {
			return err
		}
		out = PolicyWithEdges{Policy: p, Edges: edges}
		return nil
	})
	return out, err
}

// GetPolicyEdges returns just the edge set for a policy.
func (c *Coordinator) GetPolicyEdges(ctx context.Context, policyID string) ([]domain.PolicyEdge, error) {
	var out []domain.PolicyEdge
	err := c.do(ctx, func(ctx context.Context) error {
		edges, err := c.store.ListPolicyEdges(ctx, policyID)
		out = edges
		return err
	})
	return out, err
}

// SetPolicyEdges validates and atomically replaces a policy's edge
// set, then recomputes projections for every canonical event so the
// new rules take effect immediately.
func (c *Coordinator) SetPolicyEdges(ctx context.Context, policyID string, edges []domain.PolicyEdge) error {
	return c.do(ctx, func(ctx context.Context) error {
		if _, err := c.store.GetPolicy(ctx, policyID); err != nil {
			return err // NotFound surfaces verbatim per §4.2
		}
		if err := policy.ValidateEdges(edges); err != nil {
			return err
		}
		for i := range edges {
			edges[i].PolicyID = policyID
		}
		if err := c.store.SetPolicyEdges(ctx, policyID, edges); err != nil {
			return err
		}
		events, err := c.store.ListEvents(ctx)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := c.projectEvent(ctx, ev, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDefaultPolicy is idempotent: it creates one default policy if
// none exists, then for every unordered pair of distinct accounts
// ensures a bidirectional edge exists — preserving user-customized
// levels on edges already present, adding only the missing ones at
// (BUSY, BUSY_OVERLAY). A single account produces no edges.
func (c *Coordinator) EnsureDefaultPolicy(ctx context.Context, accountIDs []string) (domain.Policy, error) {
	var out domain.Policy
	err := c.do(ctx, func(ctx context.Context) error {
		p, ok, err := c.store.GetDefaultPolicy(ctx)
		if err != nil {
			return err
		}
		if !ok {
			p = domain.Policy{PolicyID: idgen.New(idgen.PrefixPolicy), Name: "default", IsDefault: true}
			if err := c.store.CreatePolicy(ctx, p); err != nil {
				return err
			}
		}

		existing, err := c.store.ListPolicyEdges(ctx, p.PolicyID)
		if err != nil {
			return err
		}
		have := make(map[[2]string]bool, len(existing))
		for _, e := range existing {
			have[[2]string{e.FromAccountID, e.ToAccountID}] = true
		}

		merged := append([]domain.PolicyEdge{}, existing...)
		for _, missing := range policy.DefaultEdges(p.PolicyID, accountIDs) {
			if have[[2]string{missing.FromAccountID, missing.ToAccountID}] {
				continue
			}
			merged = append(merged, missing)
		}
		if len(merged) != len(existing) {
			if err := c.store.SetPolicyEdges(ctx, p.PolicyID, merged); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	return out, err
}
