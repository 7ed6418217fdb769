package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
)

const mirrorColumns = `canonical_event_id, target_account_id, target_calendar_id,
	provider_event_id, last_projected_hash, last_write_ts, state, error_message`

func scanMirror(row interface{ Scan(...any) error }) (domain.Mirror, error) {
	var m domain.Mirror
	var lastWrite string
	err := row.Scan(
		&m.CanonicalEventID, &m.TargetAccountID, &m.TargetCalendarID,
		&m.ProviderEventID, &m.LastProjectedHash, &lastWrite, &m.State, &m.ErrorMessage,
	)
	if err == nil && lastWrite != "" {
		m.LastWriteTS, _ = time.Parse(time.RFC3339, lastWrite)
	}
	return m, err
}

// ListMirrors returns every mirror row for a canonical event.
func (s *Store) ListMirrors(ctx context.Context, canonicalEventID string) ([]domain.Mirror, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mirrorColumns+` FROM event_mirrors WHERE canonical_event_id = ?`, canonicalEventID)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	var out []domain.Mirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMirror fetches a single mirror row, if present.
func (s *Store) GetMirror(ctx context.Context, canonicalEventID, targetAccountID string) (domain.Mirror, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mirrorColumns+` FROM event_mirrors WHERE canonical_event_id = ? AND target_account_id = ?`,
		canonicalEventID, targetAccountID)
	m, err := scanMirror(row)
	if err == sql.ErrNoRows {
		return domain.Mirror{}, false, nil
	}
	if err != nil {
		return domain.Mirror{}, false, fmt.Errorf("get mirror: %w", err)
	}
	return m, true, nil
}

// ListMirrorsByTargetAccount returns every mirror projecting into one
// account, used on unlink to delete them all.
func (s *Store) ListMirrorsByTargetAccount(ctx context.Context, targetAccountID string) ([]domain.Mirror, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mirrorColumns+` FROM event_mirrors WHERE target_account_id = ?`, targetAccountID)
	if err != nil {
		return nil, fmt.Errorf("list mirrors by target: %w", err)
	}
	defer rows.Close()

	var out []domain.Mirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMirrorsByState returns every mirror in a given state, used by
// the coordinator's sync-health counters and GetActiveMirrors.
func (s *Store) ListMirrorsByState(ctx context.Context, state domain.MirrorState) ([]domain.Mirror, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mirrorColumns+` FROM event_mirrors WHERE state = ?`, state)
	if err != nil {
		return nil, fmt.Errorf("list mirrors by state: %w", err)
	}
	defer rows.Close()

	var out []domain.Mirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PutMirror upserts a mirror row.
func (s *Store) PutMirror(ctx context.Context, m domain.Mirror) error {
	lastWrite := ""
	if !m.LastWriteTS.IsZero() {
		lastWrite = m.LastWriteTS.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_mirrors (`+mirrorColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(canonical_event_id, target_account_id) DO UPDATE SET
			target_calendar_id=excluded.target_calendar_id,
			provider_event_id=excluded.provider_event_id,
			last_projected_hash=excluded.last_projected_hash,
			last_write_ts=excluded.last_write_ts,
			state=excluded.state,
			error_message=excluded.error_message
	`, m.CanonicalEventID, m.TargetAccountID, m.TargetCalendarID,
		m.ProviderEventID, m.LastProjectedHash, lastWrite, m.State, m.ErrorMessage)
	if err != nil {
		return fmt.Errorf("put mirror: %w", err)
	}
	return nil
}

// DeleteMirror removes a mirror row outright.
func (s *Store) DeleteMirror(ctx context.Context, canonicalEventID, targetAccountID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM event_mirrors WHERE canonical_event_id = ? AND target_account_id = ?`,
		canonicalEventID, targetAccountID)
	if err != nil {
		return fmt.Errorf("delete mirror: %w", err)
	}
	return nil
}
