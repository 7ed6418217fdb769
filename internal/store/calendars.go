package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// PutCalendar upserts a declared calendar.
func (s *Store) PutCalendar(ctx context.Context, c domain.Calendar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendars (calendar_id, account_id, type, name)
		VALUES (?,?,?,?)
		ON CONFLICT(calendar_id) DO UPDATE SET account_id=excluded.account_id, type=excluded.type, name=excluded.name
	`, c.CalendarID, c.AccountID, c.Type, c.Name)
	if err != nil {
		return fmt.Errorf("put calendar: %w", err)
	}
	return nil
}

// GetCalendar fetches a calendar by ID.
func (s *Store) GetCalendar(ctx context.Context, id string) (domain.Calendar, error) {
	var c domain.Calendar
	err := s.db.QueryRowContext(ctx, `SELECT calendar_id, account_id, type, name FROM calendars WHERE calendar_id = ?`, id).
		Scan(&c.CalendarID, &c.AccountID, &c.Type, &c.Name)
	if err == sql.ErrNoRows {
		return domain.Calendar{}, tminuserrors.NewNotFound("calendar", id)
	}
	if err != nil {
		return domain.Calendar{}, fmt.Errorf("get calendar: %w", err)
	}
	return c, nil
}

// ListCalendarsByAccount returns every calendar declared under an
// account.
func (s *Store) ListCalendarsByAccount(ctx context.Context, accountID string) ([]domain.Calendar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT calendar_id, account_id, type, name FROM calendars WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var out []domain.Calendar
	for rows.Next() {
		var c domain.Calendar
		if err := rows.Scan(&c.CalendarID, &c.AccountID, &c.Type, &c.Name); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCalendar removes a calendar row.
func (s *Store) DeleteCalendar(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calendars WHERE calendar_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete calendar: %w", err)
	}
	return nil
}
