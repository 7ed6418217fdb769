package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// Store wraps a per-user SQLite handle with the CRUD methods the
// coordinator composes into its RPC surface. It is deliberately thin:
// no business rules live here, only queries — grounded on
// r3e-network-service_layer's database/sql-direct store_postgres.go
// shape, adapted from $N placeholders to SQLite's ?.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers (e.g. the journal
// writer) that need to participate in the same transaction.
func (s *Store) DB() *sql.DB { return s.db }

func scanEvent(row interface{ Scan(...any) error }) (domain.CanonicalEvent, error) {
	var ev domain.CanonicalEvent
	var allDay int
	err := row.Scan(
		&ev.CanonicalEventID, &ev.OriginAccountID, &ev.OriginEventID,
		&ev.Title, &ev.Description, &ev.Location,
		&ev.StartTS, &ev.EndTS, &ev.Timezone, &allDay,
		&ev.Status, &ev.Visibility, &ev.Transparency, &ev.RecurrenceRule,
		&ev.Source, &ev.Version, &ev.ConstraintID,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	ev.AllDay = allDay != 0
	return ev, err
}

const eventColumns = `canonical_event_id, origin_account_id, origin_event_id,
	title, description, location, start_ts, end_ts, timezone, all_day,
	status, visibility, transparency, recurrence_rule, source, version,
	constraint_id, created_at, updated_at`

// GetEvent fetches one canonical event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.CanonicalEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE canonical_event_id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return domain.CanonicalEvent{}, tminuserrors.NewNotFound("canonical event", id)
	}
	if err != nil {
		return domain.CanonicalEvent{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// FindEventByOrigin looks up an event by its (origin_account_id,
// origin_event_id) pair, the key the provider→canonical consumer
// dedups deltas against.
func (s *Store) FindEventByOrigin(ctx context.Context, originAccountID, originEventID string) (domain.CanonicalEvent, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE origin_account_id = ? AND origin_event_id = ?`,
		originAccountID, originEventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return domain.CanonicalEvent{}, false, nil
	}
	if err != nil {
		return domain.CanonicalEvent{}, false, fmt.Errorf("find event by origin: %w", err)
	}
	return ev, true, nil
}

// ListEventsInWindow returns every non-cancelled event whose interval
// intersects [from, to), ordered by start_ts, for availability
// evaluation and canonical listing.
func (s *Store) ListEventsInWindow(ctx context.Context, from, to time.Time) ([]domain.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status != ? AND start_ts < ? AND end_ts > ?
		 ORDER BY start_ts ASC`,
		domain.StatusCancelled, to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list events in window: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListEvents returns every event, for bulk recompute/reconcile passes.
func (s *Store) ListEvents(ctx context.Context) ([]domain.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY canonical_event_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListEventsByOriginAccount returns every event originating from one
// account, used when that account is unlinked.
func (s *Store) ListEventsByOriginAccount(ctx context.Context, accountID string) ([]domain.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE origin_account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list events by origin: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents returns the total number of canonical event rows, for
// getSyncHealth()'s aggregate counters.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// PutEvent inserts or replaces a canonical event (upsert keyed by
// canonical_event_id).
func (s *Store) PutEvent(ctx context.Context, ev domain.CanonicalEvent) error {
	allDay := 0
	if ev.AllDay {
		allDay = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(canonical_event_id) DO UPDATE SET
			origin_account_id=excluded.origin_account_id,
			origin_event_id=excluded.origin_event_id,
			title=excluded.title,
			description=excluded.description,
			location=excluded.location,
			start_ts=excluded.start_ts,
			end_ts=excluded.end_ts,
			timezone=excluded.timezone,
			all_day=excluded.all_day,
			status=excluded.status,
			visibility=excluded.visibility,
			transparency=excluded.transparency,
			recurrence_rule=excluded.recurrence_rule,
			source=excluded.source,
			version=excluded.version,
			constraint_id=excluded.constraint_id,
			updated_at=excluded.updated_at
	`,
		ev.CanonicalEventID, ev.OriginAccountID, ev.OriginEventID,
		ev.Title, ev.Description, ev.Location,
		ev.StartTS, ev.EndTS, ev.Timezone, allDay,
		ev.Status, ev.Visibility, ev.Transparency, ev.RecurrenceRule,
		ev.Source, ev.Version, ev.ConstraintID,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// DeleteEvent removes a canonical event outright (its mirror rows are
// deleted separately by the coordinator before this is called).
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE canonical_event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
