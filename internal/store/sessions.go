package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

const sessionColumns = `session_id, status, window_start, window_end,
	candidates_json, created_at, updated_at, last_activity_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	var candidatesJSON string
	err := row.Scan(
		&s.SessionID, &s.Status, &s.WindowStart, &s.WindowEnd,
		&candidatesJSON, &s.CreatedAt, &s.UpdatedAt, &s.LastActivityAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if candidatesJSON != "" {
		if err := json.Unmarshal([]byte(candidatesJSON), &s.Candidates); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal candidates: %w", err)
		}
	}
	return s, nil
}

// CreateSession inserts a new scheduling session row.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	return s.PutSession(ctx, sess)
}

// PutSession upserts a scheduling session, keyed by session_id.
func (s *Store) PutSession(ctx context.Context, sess domain.Session) error {
	candidatesJSON, err := json.Marshal(sess.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduling_sessions (`+sessionColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			status=excluded.status,
			window_start=excluded.window_start,
			window_end=excluded.window_end,
			candidates_json=excluded.candidates_json,
			updated_at=excluded.updated_at,
			last_activity_at=excluded.last_activity_at
	`,
		sess.SessionID, sess.Status, sess.WindowStart, sess.WindowEnd,
		string(candidatesJSON), sess.CreatedAt, sess.UpdatedAt, sess.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession fetches one scheduling session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM scheduling_sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return domain.Session{}, tminuserrors.NewNotFound("session", id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessionsByStatus returns every session in a given status, e.g.
// the candidates_ready sessions ExpireInactiveSessions takes as input.
func (s *Store) ListSessionsByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM scheduling_sessions WHERE status = ?`, status)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const holdColumns = `hold_id, session_id, candidate_start, candidate_end,
	status, expires_at, created_at, updated_at`

func scanHold(row interface{ Scan(...any) error }) (domain.Hold, error) {
	var h domain.Hold
	err := row.Scan(
		&h.HoldID, &h.SessionID, &h.CandidateStart, &h.CandidateEnd,
		&h.Status, &h.ExpiresAt, &h.CreatedAt, &h.UpdatedAt,
	)
	return h, err
}

// CreateHold inserts a new tentative hold row.
func (s *Store) CreateHold(ctx context.Context, h domain.Hold) error {
	return s.PutHold(ctx, h)
}

// PutHold upserts a tentative hold, keyed by hold_id.
func (s *Store) PutHold(ctx context.Context, h domain.Hold) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduling_holds (`+holdColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(hold_id) DO UPDATE SET
			status=excluded.status,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at
	`,
		h.HoldID, h.SessionID, h.CandidateStart, h.CandidateEnd,
		h.Status, h.ExpiresAt, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put hold: %w", err)
	}
	return nil
}

// GetHold fetches one hold by ID.
func (s *Store) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM scheduling_holds WHERE hold_id = ?`, id)
	h, err := scanHold(row)
	if err == sql.ErrNoRows {
		return domain.Hold{}, tminuserrors.NewNotFound("hold", id)
	}
	if err != nil {
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

// ListHoldsBySession returns every hold belonging to a session.
func (s *Store) ListHoldsBySession(ctx context.Context, sessionID string) ([]domain.Hold, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+holdColumns+` FROM scheduling_holds WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list holds by session: %w", err)
	}
	defer rows.Close()

	var out []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListExpiredHolds returns every held hold whose expires_at is at or
// before asOf, for the reaper sweep.
func (s *Store) ListExpiredHolds(ctx context.Context, asOf time.Time) ([]domain.Hold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+holdColumns+` FROM scheduling_holds WHERE status = ? AND expires_at <= ?`,
		domain.HoldHeld, asOf)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var out []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
