package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

const accountColumns = `account_id, encrypted_dek, encrypted_access_token,
	encrypted_refresh_token, access_token_expires_at, sync_cursor,
	last_success_at, channel_id, resource_id, channel_expires_at, active`

func scanAccountState(row interface{ Scan(...any) error }) (domain.AccountState, error) {
	var a domain.AccountState
	var active int
	err := row.Scan(
		&a.AccountID, &a.EncryptedDEK, &a.EncryptedAccessToken,
		&a.EncryptedRefreshToken, &a.AccessTokenExpiresAt, &a.SyncCursor,
		&a.LastSuccessAt, &a.ChannelID, &a.ResourceID, &a.ChannelExpiresAt, &active,
	)
	a.Active = active != 0
	return a, err
}

// GetAccountState fetches one account's holder state by account_id.
func (s *Store) GetAccountState(ctx context.Context, accountID string) (domain.AccountState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM account_state WHERE account_id = ?`, accountID)
	a, err := scanAccountState(row)
	if err == sql.ErrNoRows {
		return domain.AccountState{}, tminuserrors.NewNotFound("account", accountID)
	}
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("get account state: %w", err)
	}
	return a, nil
}

// PutAccountState upserts an account's holder state, keyed by account_id.
func (s *Store) PutAccountState(ctx context.Context, a domain.AccountState) error {
	active := 0
	if a.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_state (`+accountColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(account_id) DO UPDATE SET
			encrypted_dek=excluded.encrypted_dek,
			encrypted_access_token=excluded.encrypted_access_token,
			encrypted_refresh_token=excluded.encrypted_refresh_token,
			access_token_expires_at=excluded.access_token_expires_at,
			sync_cursor=excluded.sync_cursor,
			last_success_at=excluded.last_success_at,
			channel_id=excluded.channel_id,
			resource_id=excluded.resource_id,
			channel_expires_at=excluded.channel_expires_at,
			active=excluded.active
	`,
		a.AccountID, a.EncryptedDEK, a.EncryptedAccessToken,
		a.EncryptedRefreshToken, a.AccessTokenExpiresAt, a.SyncCursor,
		a.LastSuccessAt, a.ChannelID, a.ResourceID, a.ChannelExpiresAt, active,
	)
	if err != nil {
		return fmt.Errorf("put account state: %w", err)
	}
	return nil
}

// ListActiveAccounts returns every account currently linked, the
// population internal/reconcile's daily cron iterates over.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]domain.AccountState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM account_state WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountState
	for rows.Next() {
		a, err := scanAccountState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account state: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeactivateAccount flips an account to inactive without deleting its
// row, so a re-link can reuse the same sync_cursor history if desired.
func (s *Store) DeactivateAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE account_state SET active = 0 WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}
