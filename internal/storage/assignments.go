package storage

import (
	"context"
	"fmt"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

// ReplaceAssignments atomically replaces the full assignment set for a
// transaction: all prior rows are deleted and the new set inserted inside
// one SQL transaction, so readers never see a partial mix.
func (s *SQLiteStorage) ReplaceAssignments(ctx context.Context, userID, transactionID string, assignments []model.Assignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUserScope(userID); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Ownership check inside the same transaction as the writes.
	var owner string
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM transactions WHERE id = ?`, transactionID,
	).Scan(&owner); err != nil {
		return common.ErrNotFound
	}
	if owner != userID {
		return common.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM assignments WHERE transaction_id = ?`, transactionID,
	); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assignments (transaction_id, category_id, subcategory_id, amount, is_manual)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx,
			transactionID, a.CategoryID, a.SubcategoryID, a.Amount, a.Manual,
		); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	return tx.Commit()
}

// GetAssignments returns the assignments for a transaction owned by the
// user, in insertion order.
func (s *SQLiteStorage) GetAssignments(ctx context.Context, userID, transactionID string) ([]model.Assignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.transaction_id, a.category_id, a.subcategory_id, a.amount, a.is_manual, a.created_at
		FROM assignments a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE a.transaction_id = ? AND t.user_id = ?
		ORDER BY a.id`,
		transactionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.TransactionID, &a.CategoryID, &a.SubcategoryID, &a.Amount, &a.Manual, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
