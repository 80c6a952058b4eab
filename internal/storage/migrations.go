package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 2

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
				`CREATE TABLE IF NOT EXISTS budgets (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_budgets_user ON budgets(user_id)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					budget_id INTEGER NOT NULL REFERENCES budgets(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					type TEXT NOT NULL CHECK (type IN ('variable','fixed','savings','surplus','excluded')),
					allocation REAL NOT NULL DEFAULT 0,
					accumulated REAL NOT NULL DEFAULT 0,
					auto_move_category_id INTEGER,
					expected_merchant TEXT NOT NULL DEFAULT '',
					color TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_categories_budget ON categories(budget_id)`,

				`CREATE TABLE IF NOT EXISTS subcategories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					name TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS linked_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					plaid_item_id TEXT UNIQUE NOT NULL,
					access_token TEXT NOT NULL,
					institution_id TEXT NOT NULL DEFAULT '',
					institution_name TEXT NOT NULL DEFAULT '',
					sync_cursor TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_linked_items_user ON linked_items(user_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					item_id INTEGER REFERENCES linked_items(id) ON DELETE SET NULL,
					amount REAL NOT NULL,
					name TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					date DATETIME NOT NULL,
					source_categories TEXT NOT NULL DEFAULT '',
					pending INTEGER NOT NULL DEFAULT 0,
					reviewed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_name)`,

				`CREATE TABLE IF NOT EXISTS assignments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					subcategory_id INTEGER REFERENCES subcategories(id),
					amount REAL NOT NULL,
					is_manual INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_assignments_transaction ON assignments(transaction_id)`,
				`CREATE INDEX idx_assignments_category ON assignments(category_id)`,

				`CREATE TABLE IF NOT EXISTS fund_movements (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					counterparty_category_id INTEGER NOT NULL REFERENCES categories(id),
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('surplus','deficit')),
					amount REAL NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(category_id, year, month, kind)
				)`,

				`CREATE TABLE IF NOT EXISTS savings_snapshots (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					budget_id INTEGER NOT NULL,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					balance REAL NOT NULL,
					UNIQUE(category_id, year, month)
				)`,

				`CREATE TABLE IF NOT EXISTS monthly_summaries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					budget_id INTEGER,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					spent REAL NOT NULL DEFAULT 0,
					accumulated REAL NOT NULL DEFAULT 0,
					UNIQUE(user_id, category_id, year, month)
				)`,
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
		Description: "Persist notification resolution state on transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE transactions ADD COLUMN notify_channel TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE transactions ADD COLUMN notify_ts TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE transactions ADD COLUMN notify_state TEXT NOT NULL DEFAULT 'none'`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// runMigrations applies all pending migrations in order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var currentVersion int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", m.Version,
			"description", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	var finalVersion int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("schema version mismatch: have %d, want %d", finalVersion, ExpectedSchemaVersion)
	}

	return nil
}
