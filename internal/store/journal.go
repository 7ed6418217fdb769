package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
)

// AppendJournal inserts one append-only journal row. Journal rows are
// never updated or deleted — §4.8's audit trail depends on that.
func (s *Store) AppendJournal(ctx context.Context, e domain.JournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (journal_id, canonical_event_id, ts, actor, change_type, patch_json, reason)
		VALUES (?,?,?,?,?,?,?)
	`, e.JournalID, e.CanonicalEventID, e.TS.UTC().Format(time.RFC3339Nano), e.Actor, e.ChangeType, e.PatchJSON, e.Reason)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// QueryJournal returns journal entries for a canonical event (or all,
// if canonicalEventID is empty) ordered oldest-first, optionally
// bounded by [since, until).
func (s *Store) QueryJournal(ctx context.Context, canonicalEventID string, since, until time.Time, limit int) ([]domain.JournalEntry, error) {
	query := `SELECT journal_id, canonical_event_id, ts, actor, change_type, patch_json, reason FROM journal WHERE 1=1`
	var args []any

	if canonicalEventID != "" {
		query += ` AND canonical_event_id = ?`
		args = append(args, canonicalEventID)
	}
	if !since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	if !until.IsZero() {
		query += ` AND ts < ?`
		args = append(args, until.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var ts string
		if err := rows.Scan(&e.JournalID, &e.CanonicalEventID, &ts, &e.Actor, &e.ChangeType, &e.PatchJSON, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// JournalStats returns the total row count and the timestamp of the
// most recent entry, for getSyncHealth()'s aggregate counters.
func (s *Store) JournalStats(ctx context.Context) (count int, lastTS time.Time, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&count); err != nil {
		return 0, time.Time{}, fmt.Errorf("count journal: %w", err)
	}
	var last sql.NullString
	if err = s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM journal`).Scan(&last); err != nil {
		return 0, time.Time{}, fmt.Errorf("max journal ts: %w", err)
	}
	if last.Valid {
		lastTS, _ = time.Parse(time.RFC3339Nano, last.String)
	}
	return count, lastTS, nil
}
