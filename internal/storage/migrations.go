package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					source TEXT NOT NULL CHECK (source IN ('bank', 'vyapar')),
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					narration TEXT NOT NULL DEFAULT '',
					upi_id TEXT NOT NULL DEFAULT '',
					neft_name TEXT NOT NULL DEFAULT '',
					biz_type TEXT,
					biz_description TEXT,
					vendor_name TEXT,
					needs_invoice INTEGER,
					gst_type TEXT,
					enrichment_status TEXT NOT NULL DEFAULT 'none',
					match_group_id TEXT,
					recon_status TEXT NOT NULL DEFAULT 'unmatched',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user_source ON transactions(user_id, source)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_recon_status ON transactions(recon_status)`,

				`CREATE TABLE IF NOT EXISTS enrichment_rules (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					pattern_type TEXT NOT NULL,
					pattern_value TEXT NOT NULL,
					biz_type TEXT,
					biz_description TEXT,
					vendor_name TEXT,
					needs_invoice INTEGER,
					gst_type TEXT,
					match_count INTEGER NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 0,
					state TEXT NOT NULL DEFAULT 'active',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_user_state ON enrichment_rules(user_id, state)`,

				`CREATE TABLE IF NOT EXISTS match_groups (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('proposed', 'confirmed')),
					unbalanced INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS match_group_rows (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					match_group_id TEXT NOT NULL REFERENCES match_groups(id),
					bank_transaction_id TEXT,
					vyapar_transaction_id TEXT,
					CHECK (bank_transaction_id IS NOT NULL OR vyapar_transaction_id IS NOT NULL)
				)`,
				`CREATE INDEX idx_match_group_rows_group ON match_group_rows(match_group_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Enforce single active group membership per transaction",
		Up: func(tx *sql.Tx) error {
			// Partial unique indexes make the membership check atomic with
			// the insert: a second group claiming the same transaction id
			// fails the write instead of racing the read.
			queries := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_match_group_rows_bank
					ON match_group_rows(bank_transaction_id)
					WHERE bank_transaction_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_match_group_rows_vyapar
					ON match_group_rows(vyapar_transaction_id)
					WHERE vyapar_transaction_id IS NOT NULL`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Deduplicate active rules per pattern",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_active_pattern
				ON enrichment_rules(user_id, pattern_type, pattern_value)
				WHERE state = 'active'`)
			return err
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	final, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d after migration, expected %d", final, ExpectedSchemaVersion)
	}
	return nil
}

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
