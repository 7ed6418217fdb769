package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// CreatePolicy inserts a new, empty (no edges yet) policy row.
func (s *Store) CreatePolicy(ctx context.Context, p domain.Policy) error {
	isDefault := 0
	if p.IsDefault {
		isDefault = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (policy_id, name, is_default) VALUES (?,?,?)`,
		p.PolicyID, p.Name, isDefault)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// GetPolicy fetches a policy by ID.
func (s *Store) GetPolicy(ctx context.Context, policyID string) (domain.Policy, error) {
	var p domain.Policy
	var isDefault int
	err := s.db.QueryRowContext(ctx, `SELECT policy_id, name, is_default FROM policies WHERE policy_id = ?`, policyID).
		Scan(&p.PolicyID, &p.Name, &isDefault)
	if err == sql.ErrNoRows {
		return domain.Policy{}, tminuserrors.NewNotFound("policy", policyID)
	}
	if err != nil {
		return domain.Policy{}, fmt.Errorf("get policy: %w", err)
	}
	p.IsDefault = isDefault != 0
	return p, nil
}

// ListPolicies returns every declared policy.
func (s *Store) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT policy_id, name, is_default FROM policies ORDER BY policy_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []domain.Policy
	for rows.Next() {
		var p domain.Policy
		var isDefault int
		if err := rows.Scan(&p.PolicyID, &p.Name, &isDefault); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p.IsDefault = isDefault != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetDefaultPolicy returns the policy flagged is_default, if any.
func (s *Store) GetDefaultPolicy(ctx context.Context) (domain.Policy, bool, error) {
	var p domain.Policy
	var isDefault int
	err := s.db.QueryRowContext(ctx, `SELECT policy_id, name, is_default FROM policies WHERE is_default = 1 LIMIT 1`).
		Scan(&p.PolicyID, &p.Name, &isDefault)
	if err == sql.ErrNoRows {
		return domain.Policy{}, false, nil
	}
	if err != nil {
		return domain.Policy{}, false, fmt.Errorf("get default policy: %w", err)
	}
	p.IsDefault = true
	return p, true, nil
}

// ListPolicyEdges returns every edge declared under one policy.
func (s *Store) ListPolicyEdges(ctx context.Context, policyID string) ([]domain.PolicyEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT policy_id, from_account_id, to_account_id, detail_level, calendar_kind
		 FROM policy_edges WHERE policy_id = ?`, policyID)
	if err != nil {
		return nil, fmt.Errorf("list policy edges: %w", err)
	}
	defer rows.Close()

	var out []domain.PolicyEdge
	for rows.Next() {
		var e domain.PolicyEdge
		if err := rows.Scan(&e.PolicyID, &e.FromAccountID, &e.ToAccountID, &e.DetailLevel, &e.CalendarKind); err != nil {
			return nil, fmt.Errorf("scan policy edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindEdge returns the edge governing projections from one account to
// another under a policy, if declared.
func (s *Store) FindEdge(ctx context.Context, policyID, fromAccountID, toAccountID string) (domain.PolicyEdge, bool, error) {
	var e domain.PolicyEdge
	err := s.db.QueryRowContext(ctx,
		`SELECT policy_id, from_account_id, to_account_id, detail_level, calendar_kind
		 FROM policy_edges WHERE policy_id = ? AND from_account_id = ? AND to_account_id = ?`,
		policyID, fromAccountID, toAccountID).
		Scan(&e.PolicyID, &e.FromAccountID, &e.ToAccountID, &e.DetailLevel, &e.CalendarKind)
	if err == sql.ErrNoRows {
		return domain.PolicyEdge{}, false, nil
	}
	if err != nil {
		return domain.PolicyEdge{}, false, fmt.Errorf("find edge: %w", err)
	}
	return e, true, nil
}

// SetPolicyEdges replaces every edge for a policy with the given set,
// in one transaction — the policy compiler always writes a whole edge
// set, never a partial patch.
func (s *Store) SetPolicyEdges(ctx context.Context, policyID string, edges []domain.PolicyEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_edges WHERE policy_id = ?`, policyID); err != nil {
		return fmt.Errorf("clear policy edges: %w", err)
	}
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policy_edges (policy_id, from_account_id, to_account_id, detail_level, calendar_kind)
			VALUES (?,?,?,?,?)
		`, policyID, e.FromAccountID, e.ToAccountID, e.DetailLevel, e.CalendarKind)
		if err != nil {
			return fmt.Errorf("insert policy edge: %w", err)
		}
	}
	return tx.Commit()
}
