// Package store is the per-user canonical SQLite persistence layer:
// one database file per user, opened with the pure-Go modernc.org/sqlite
// driver, schema-versioned and forward-migrated on open the way
// other_examples' leonletto-thrum schema.go does it (schema_version
// table, a CurrentVersion constant, idempotent Migrate).
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// CurrentVersion is the schema version this build expects.
const CurrentVersion = 2

// Open opens (creating if needed) the SQLite database at path and
// brings its schema up to CurrentVersion.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer actor owns this handle; WAL readers use separate handles if ever split out.
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate brings the schema at db forward to CurrentVersion. It is
// idempotent: calling it again on an up-to-date database is a no-op.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createVersionTable(tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	version, err := getSchemaVersion(tx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := version + 1; v <= CurrentVersion; v++ {
		if err := runMigration(tx, v); err != nil {
			return fmt.Errorf("migration v%d: %w", v, err)
		}
	}

	if err := setSchemaVersion(tx, CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return tx.Commit()
}

func createVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func getSchemaVersion(tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// runMigration applies the DDL for a single schema version. Each case
// is additive and forward-only, matching §6.4's "migrations run
// forward idempotently on actor wake-up."
func runMigration(tx *sql.Tx, version int) error {
	switch version {
	case 1:
		return runMigrationV1(tx)
	case 2:
		return runMigrationV2(tx)
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}
}

func runMigrationV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			canonical_event_id TEXT PRIMARY KEY,
			origin_account_id TEXT NOT NULL,
			origin_event_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_ts TEXT NOT NULL DEFAULT '',
			end_ts TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT '',
			all_day INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'confirmed',
			visibility TEXT NOT NULL DEFAULT 'default',
			transparency TEXT NOT NULL DEFAULT 'opaque',
			recurrence_rule TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'system',
			version INTEGER NOT NULL DEFAULT 1,
			constraint_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(origin_account_id, origin_event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_window ON events(start_ts, end_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_updated ON events(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_constraint ON events(constraint_id)`,

		`CREATE TABLE IF NOT EXISTS event_mirrors (
			canonical_event_id TEXT NOT NULL,
			target_account_id TEXT NOT NULL,
			target_calendar_id TEXT NOT NULL DEFAULT '',
			provider_event_id TEXT NOT NULL DEFAULT '',
			last_projected_hash TEXT NOT NULL DEFAULT '',
			last_write_ts TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'PENDING',
			error_message TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (canonical_event_id, target_account_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mirrors_target ON event_mirrors(target_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mirrors_state ON event_mirrors(state)`,

		`CREATE TABLE IF NOT EXISTS journal (
			journal_id TEXT PRIMARY KEY,
			canonical_event_id TEXT NOT NULL DEFAULT '',
			ts TEXT NOT NULL,
			actor TEXT NOT NULL,
			change_type TEXT NOT NULL,
			patch_json TEXT NOT NULL DEFAULT '{}',
			reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_event ON journal(canonical_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_ts ON journal(ts)`,

		`CREATE TABLE IF NOT EXISTS policies (
			policy_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS policy_edges (
			policy_id TEXT NOT NULL,
			from_account_id TEXT NOT NULL,
			to_account_id TEXT NOT NULL,
			detail_level TEXT NOT NULL,
			calendar_kind TEXT NOT NULL,
			PRIMARY KEY (policy_id, from_account_id, to_account_id)
		)`,

		`CREATE TABLE IF NOT EXISTS constraints (
			constraint_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			config_json TEXT NOT NULL,
			active_from TEXT,
			active_to TEXT,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS calendars (
			calendar_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendars_account ON calendars(account_id)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// runMigrationV2 adds §4.6's per-account actor state (encrypted
// tokens, sync cursor, notification channel) and §4.7's scheduling
// session / hold state machine, additive per §6.4's forward-only rule.
func runMigrationV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS account_state (
			account_id TEXT PRIMARY KEY,
			encrypted_dek TEXT NOT NULL DEFAULT '',
			encrypted_access_token TEXT NOT NULL DEFAULT '',
			encrypted_refresh_token TEXT NOT NULL DEFAULT '',
			access_token_expires_at TEXT NOT NULL DEFAULT '',
			sync_cursor TEXT NOT NULL DEFAULT '',
			last_success_at TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			channel_expires_at TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS scheduling_sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			window_start TEXT NOT NULL DEFAULT '',
			window_end TEXT NOT NULL DEFAULT '',
			candidates_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS scheduling_holds (
			hold_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			candidate_start TEXT NOT NULL,
			candidate_end TEXT NOT NULL,
			status TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_session ON scheduling_holds(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_expires ON scheduling_holds(expires_at)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
