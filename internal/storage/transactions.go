package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

// CreateTransaction inserts a new transaction. The external id is the
// primary key; inserting an existing id returns ErrDuplicateEntry.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := validateString(txn.ID, "transaction id"); err != nil {
		return err
	}
	if err := validateUserScope(txn.UserID); err != nil {
		return err
	}

	state := txn.NotifyState
	if state == "" {
		state = model.NotifyStateNone
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, user_id, item_id, amount, name, merchant_name, date,
			source_categories, pending, reviewed, notify_channel, notify_ts, notify_state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.UserID, txn.ItemID, txn.Amount, txn.Name, txn.MerchantName,
		txn.Date, marshalCategories(txn.SourceCategories),
		txn.Pending, txn.Reviewed, txn.NotifyChannel, txn.NotifyTS, string(state),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "PRIMARY KEY constraint failed") {
			return common.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func marshalCategories(cats []string) string {
	if len(cats) == 0 {
		return ""
	}
	b, err := json.Marshal(cats)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalCategories(raw string) []string {
	if raw == "" {
		return nil
	}
	var cats []string
	if err := json.Unmarshal([]byte(raw), &cats); err != nil {
		return nil
	}
	return cats
}

const transactionColumns = `id, user_id, item_id, amount, name, merchant_name, date,
	source_categories, pending, reviewed, notify_channel, notify_ts, notify_state, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var txn model.Transaction
	var rawCategories, state string
	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.ItemID, &txn.Amount, &txn.Name, &txn.MerchantName, &txn.Date,
		&rawCategories, &txn.Pending, &txn.Reviewed,
		&txn.NotifyChannel, &txn.NotifyTS, &state, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	txn.SourceCategories = unmarshalCategories(rawCategories)
	txn.NotifyState = model.NotifyState(state)
	return &txn, nil
}

// GetTransaction returns one transaction owned by the user.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	return scanTransaction(row)
}

// TransactionExists reports whether a row exists for the external id.
func (s *SQLiteStorage) TransactionExists(ctx context.Context, id string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return count > 0, nil
}

// UpdateTransactionFromFeed overwrites the feed-mutable fields of an
// existing row in place. Returns false when no such row exists.
func (s *SQLiteStorage) UpdateTransactionFromFeed(ctx context.Context, id string, amount float64, name, merchantName string, pending bool) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount = ?, name = ?, merchant_name = ?, pending = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		amount, name, merchantName, pending, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check transaction update: %w", err)
	}
	return affected > 0, nil
}

// DeleteTransaction removes a row by external id; assignments cascade.
// Deleting a missing row is a no-op.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		slog.Debug("delete for unknown transaction", "transaction_id", id)
	}
	return nil
}

// ListTransactions returns the user's transactions, most recent first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY date DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// SetTransactionReviewed flags a transaction as reviewed (or not).
func (s *SQLiteStorage) SetTransactionReviewed(ctx context.Context, userID, id string, reviewed bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUserScope(userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET reviewed = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`,
		reviewed, id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set reviewed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reviewed update: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// SetTransactionNotification records where the chat notification lives
// and its resolution state.
func (s *SQLiteStorage) SetTransactionNotification(ctx context.Context, id, channel, ts string, state model.NotifyState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET notify_channel = ?, notify_ts = ?, notify_state = ? WHERE id = ?`,
		channel, ts, string(state), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set notification state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check notification update: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetMerchantHistory returns the user's recent categorizations joined to
// their merchants, most recent first, bounded by limit.
func (s *SQLiteStorage) GetMerchantHistory(ctx context.Context, userID string, limit int) ([]model.MerchantHistory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.merchant_name, t.date, a.category_id, a.subcategory_id, c.name
		FROM assignments a
		JOIN transactions t ON t.id = a.transaction_id
		JOIN categories c ON c.id = a.category_id
		WHERE t.user_id = ? AND t.merchant_name != ''
		ORDER BY t.date DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.MerchantHistory
	for rows.Next() {
		var h model.MerchantHistory
		if err := rows.Scan(&h.MerchantName, &h.Date, &h.CategoryID, &h.SubcategoryID, &h.CategoryName); err != nil {
			return nil, fmt.Errorf("failed to scan merchant history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// CategorySpent sums assignment amounts for a category within one
// calendar month.
func (s *SQLiteStorage) CategorySpent(ctx context.Context, userID string, categoryID int64, year, month int) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateUserScope(userID); err != nil {
		return 0, err
	}

	var spent sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(a.amount)
		FROM assignments a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE t.user_id = ? AND a.category_id = ?
		  AND CAST(strftime('%Y', t.date) AS INTEGER) = ?
		  AND CAST(strftime('%m', t.date) AS INTEGER) = ?`,
		userID, categoryID, year, month,
	).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("failed to sum category spend: %w", err)
	}
	if !spent.Valid {
		return 0, nil
	}
	return spent.Float64, nil
}
