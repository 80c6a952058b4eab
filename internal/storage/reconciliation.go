package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

// CreateFundMovement inserts a movement record unless one already exists
// for its (category, year, month, kind) key. Returns whether a row was
// created; re-running reconciliation for a settled period creates none.
func (s *SQLiteStorage) CreateFundMovement(ctx context.Context, movement *model.FundMovement) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if movement == nil {
		return false, fmt.Errorf("movement cannot be nil")
	}
	if err := validateUserScope(movement.UserID); err != nil {
		return false, err
	}
	if movement.Kind != model.MovementSurplus && movement.Kind != model.MovementDeficit {
		return false, common.NewValidationError("kind", fmt.Sprintf("invalid movement kind %q", movement.Kind))
	}

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fund_movements
			(id, user_id, category_id, counterparty_category_id, year, month, kind, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		movement.ID, movement.UserID, movement.CategoryID, movement.CounterpartyCategoryID,
		movement.Year, movement.Month, string(movement.Kind), movement.Amount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert fund movement: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check fund movement insert: %w", err)
	}
	return affected > 0, nil
}

// ListFundMovements returns a user's movements for one period.
func (s *SQLiteStorage) ListFundMovements(ctx context.Context, userID string, year, month int) ([]model.FundMovement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, counterparty_category_id, year, month, kind, amount, created_at
		FROM fund_movements
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY created_at`,
		userID, year, month,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fund movements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var movements []model.FundMovement
	for rows.Next() {
		var m model.FundMovement
		var kind string
		if err := rows.Scan(&m.ID, &m.UserID, &m.CategoryID, &m.CounterpartyCategoryID,
			&m.Year, &m.Month, &kind, &m.Amount, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fund movement: %w", err)
		}
		m.Kind = model.MovementKind(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// UpsertSavingsSnapshot writes the period-end balance for a savings
// category, updating in place when the period was already snapshotted.
func (s *SQLiteStorage) UpsertSavingsSnapshot(ctx context.Context, snapshot *model.SavingsSnapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := validateUserScope(snapshot.UserID); err != nil {
		return err
	}

	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO savings_snapshots (id, user_id, budget_id, category_id, year, month, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category_id, year, month) DO UPDATE SET balance = excluded.balance`,
		snapshot.ID, snapshot.UserID, snapshot.BudgetID, snapshot.CategoryID,
		snapshot.Year, snapshot.Month, snapshot.Balance,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert savings snapshot: %w", err)
	}
	return nil
}

// GetSavingsSnapshot returns one snapshot, or ErrNotFound.
func (s *SQLiteStorage) GetSavingsSnapshot(ctx context.Context, userID string, categoryID int64, year, month int) (*model.SavingsSnapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	var snap model.SavingsSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, budget_id, category_id, year, month, balance
		FROM savings_snapshots
		WHERE user_id = ? AND category_id = ? AND year = ? AND month = ?`,
		userID, categoryID, year, month,
	).Scan(&snap.ID, &snap.UserID, &snap.BudgetID, &snap.CategoryID, &snap.Year, &snap.Month, &snap.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query savings snapshot: %w", err)
	}
	return &snap, nil
}

// UpsertMonthlySummary writes one period summary and reports the previous
// accumulated value so callers can apply deltas idempotently.
func (s *SQLiteStorage) UpsertMonthlySummary(ctx context.Context, summary *model.MonthlySummary) (float64, bool, error) {
	if err := validateContext(ctx); err != nil {
		return 0, false, err
	}
	if summary == nil {
		return 0, false, fmt.Errorf("summary cannot be nil")
	}
	if err := validateUserScope(summary.UserID); err != nil {
		return 0, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous float64
	existed := true
	err = tx.QueryRowContext(ctx, `
		SELECT accumulated FROM monthly_summaries
		WHERE user_id = ? AND category_id = ? AND year = ? AND month = ?`,
		summary.UserID, summary.CategoryID, summary.Year, summary.Month,
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		existed = false
	} else if err != nil {
		return 0, false, fmt.Errorf("failed to query monthly summary: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO monthly_summaries (user_id, budget_id, category_id, year, month, spent, accumulated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category_id, year, month)
		DO UPDATE SET spent = excluded.spent, accumulated = excluded.accumulated, budget_id = excluded.budget_id`,
		summary.UserID, summary.BudgetID, summary.CategoryID,
		summary.Year, summary.Month, summary.Spent, summary.Accumulated,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert monthly summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit monthly summary: %w", err)
	}
	return previous, existed, nil
}
