package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

// CreateItem stores a new aggregator connection.
func (s *SQLiteStorage) CreateItem(ctx context.Context, item *model.LinkedItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item cannot be nil")
	}
	if err := validateUserScope(item.UserID); err != nil {
		return err
	}
	if err := validateString(item.PlaidItemID, "plaidItemID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO linked_items (user_id, plaid_item_id, access_token, institution_id, institution_name, sync_cursor)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.UserID, item.PlaidItemID, item.AccessToken,
		item.InstitutionID, item.InstitutionName, item.SyncCursor,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return common.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get item id: %w", err)
	}
	item.ID = id

	slog.Info("linked new item",
		"user_id", item.UserID,
		"institution", item.InstitutionName)
	return nil
}

const itemColumns = `id, user_id, plaid_item_id, access_token, institution_id, institution_name, sync_cursor, created_at`

func scanItem(row interface{ Scan(...any) error }) (*model.LinkedItem, error) {
	var item model.LinkedItem
	err := row.Scan(
		&item.ID, &item.UserID, &item.PlaidItemID, &item.AccessToken,
		&item.InstitutionID, &item.InstitutionName, &item.SyncCursor, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &item, nil
}

// GetItem returns one linked item owned by the user.
func (s *SQLiteStorage) GetItem(ctx context.Context, userID string, id int64) (*model.LinkedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM linked_items WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	return scanItem(row)
}

// GetItemByPlaidID resolves an item from the aggregator's item id. Used by
// the webhook path, where no authenticated user is present; the item row
// itself carries the owner.
func (s *SQLiteStorage) GetItemByPlaidID(ctx context.Context, plaidItemID string) (*model.LinkedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(plaidItemID, "plaidItemID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM linked_items WHERE plaid_item_id = ?`,
		plaidItemID,
	)
	return scanItem(row)
}

// ListItems returns all linked items for a user.
func (s *SQLiteStorage) ListItems(ctx context.Context, userID string) ([]model.LinkedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM linked_items WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.LinkedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItemCursor persists the sync cursor for an item.
func (s *SQLiteStorage) UpdateItemCursor(ctx context.Context, itemID int64, cursor string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE linked_items SET sync_cursor = ? WHERE id = ?`,
		cursor, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cursor update: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteItem unlinks an item. Transactions are retained with their item
// reference nulled (ON DELETE SET NULL).
func (s *SQLiteStorage) DeleteItem(ctx context.Context, userID string, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUserScope(userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM linked_items WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check item delete: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}

	slog.Info("unlinked item", "user_id", userID, "item_id", id)
	return nil
}
