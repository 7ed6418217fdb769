package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

func scanConstraint(row interface{ Scan(...any) error }) (domain.Constraint, error) {
	var c domain.Constraint
	var activeFrom, activeTo sql.NullString
	var createdAt string
	err := row.Scan(&c.ConstraintID, &c.Kind, &c.ConfigJSON, &activeFrom, &activeTo, &createdAt)
	if err != nil {
		return domain.Constraint{}, err
	}
	if activeFrom.Valid {
		t, _ := time.Parse(time.RFC3339, activeFrom.String)
		c.ActiveFrom = &t
	}
	if activeTo.Valid {
		t, _ := time.Parse(time.RFC3339, activeTo.String)
		c.ActiveTo = &t
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}

// CreateConstraint inserts a new constraint row.
func (s *Store) CreateConstraint(ctx context.Context, c domain.Constraint) error {
	var activeFrom, activeTo any
	if c.ActiveFrom != nil {
		activeFrom = c.ActiveFrom.UTC().Format(time.RFC3339)
	}
	if c.ActiveTo != nil {
		activeTo = c.ActiveTo.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO constraints (constraint_id, kind, config_json, active_from, active_to, created_at)
		VALUES (?,?,?,?,?,?)
	`, c.ConstraintID, c.Kind, c.ConfigJSON, activeFrom, activeTo, c.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	return nil
}

// GetConstraint fetches a constraint by ID.
func (s *Store) GetConstraint(ctx context.Context, id string) (domain.Constraint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT constraint_id, kind, config_json, active_from, active_to, created_at FROM constraints WHERE constraint_id = ?`, id)
	c, err := scanConstraint(row)
	if err == sql.ErrNoRows {
		return domain.Constraint{}, tminuserrors.NewNotFound("constraint", id)
	}
	if err != nil {
		return domain.Constraint{}, fmt.Errorf("get constraint: %w", err)
	}
	return c, nil
}

// ListActiveConstraints returns every constraint whose [active_from,
// active_to) window (if any) intersects [from, to) — the input to
// §4.5's availability evaluator.
func (s *Store) ListActiveConstraints(ctx context.Context, from, to time.Time) ([]domain.Constraint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT constraint_id, kind, config_json, active_from, active_to, created_at FROM constraints
		 WHERE (active_from IS NULL OR active_from < ?) AND (active_to IS NULL OR active_to > ?)
		 ORDER BY created_at ASC`,
		to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list active constraints: %w", err)
	}
	defer rows.Close()

	var out []domain.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListAllConstraints returns every constraint, optionally filtered by
// kind (empty string means no filter) — the backing read for
// listConstraints(kind?).
func (s *Store) ListAllConstraints(ctx context.Context, kind domain.ConstraintKind) ([]domain.Constraint, error) {
	query := `SELECT constraint_id, kind, config_json, active_from, active_to, created_at FROM constraints`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all constraints: %w", err)
	}
	defer rows.Close()

	var out []domain.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConstraint removes a constraint row.
func (s *Store) DeleteConstraint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM constraints WHERE constraint_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete constraint: %w", err)
	}
	return nil
}
