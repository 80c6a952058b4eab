package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

// CreateBudget creates the user's budget. One budget per user.
func (s *SQLiteStorage) CreateBudget(ctx context.Context, userID, name string) (*model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, name) VALUES (?, ?)`,
		userID, name,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, common.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("failed to insert budget: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get budget id: %w", err)
	}

	budget := &model.Budget{ID: id, UserID: userID, Name: name, CreatedAt: time.Now()}

	// System categories exist for the whole life of the budget.
	if err := s.ensureSystemCategories(ctx, budget.ID); err != nil {
		return nil, err
	}

	return budget, nil
}

// GetActiveBudget returns the user's budget, or ErrNotFound.
func (s *SQLiteStorage) GetActiveBudget(ctx context.Context, userID string) (*model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	var budget model.Budget
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM budgets WHERE user_id = ?`,
		userID,
	).Scan(&budget.ID, &budget.UserID, &budget.Name, &budget.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query budget: %w", err)
	}
	return &budget, nil
}

// ensureSystemCategories lazily creates the surplus and excluded
// categories for a budget if they are missing.
func (s *SQLiteStorage) ensureSystemCategories(ctx context.Context, budgetID int64) error {
	system := []struct {
		name  string
		ctype model.CategoryType
	}{
		{"Surplus", model.CategoryTypeSurplus},
		{"Excluded", model.CategoryTypeExcluded},
	}

	for _, sc := range system {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM categories WHERE budget_id = ? AND type = ?`,
			budgetID, string(sc.ctype),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check system category: %w", err)
		}
		if count > 0 {
			continue
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO categories (budget_id, name, type) VALUES (?, ?, ?)`,
			budgetID, sc.name, string(sc.ctype),
		)
		if err != nil {
			return fmt.Errorf("failed to create system category %s: %w", sc.name, err)
		}
		slog.Debug("created system category", "budget_id", budgetID, "type", sc.ctype)
	}
	return nil
}

// CreateCategory creates a user-defined category in the user's budget.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, userID string, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("category cannot be nil")
	}
	if !category.Type.Valid() {
		return common.NewValidationError("type", fmt.Sprintf("invalid category type %q", category.Type))
	}
	if category.Type.IsSystem() {
		return common.NewValidationError("type", "system categories are created automatically")
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	if err := s.checkBudgetOwner(ctx, userID, category.BudgetID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (budget_id, name, type, allocation, accumulated, auto_move_category_id, expected_merchant, color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		category.BudgetID, category.Name, string(category.Type),
		category.Allocation, category.Accumulated,
		category.AutoMoveCategoryID, category.ExpectedMerchant, category.Color,
	)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category id: %w", err)
	}
	category.ID = id
	return nil
}

// CreateSubcategory adds a subcategory to an owned category.
func (s *SQLiteStorage) CreateSubcategory(ctx context.Context, userID string, sub *model.Subcategory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("subcategory cannot be nil")
	}
	if err := validateString(sub.Name, "name"); err != nil {
		return err
	}

	if _, err := s.GetCategory(ctx, userID, sub.CategoryID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO subcategories (category_id, name) VALUES (?, ?)`,
		sub.CategoryID, sub.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subcategory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get subcategory id: %w", err)
	}
	sub.ID = id
	return nil
}

func (s *SQLiteStorage) checkBudgetOwner(ctx context.Context, userID string, budgetID int64) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM budgets WHERE id = ?`, budgetID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check budget owner: %w", err)
	}
	if owner != userID {
		return common.ErrNotFound
	}
	return nil
}

const categoryColumns = `c.id, c.budget_id, c.name, c.type, c.allocation, c.accumulated,
	c.auto_move_category_id, c.expected_merchant, c.color, c.created_at`

func scanCategory(row interface{ Scan(...any) error }) (*model.Category, error) {
	var cat model.Category
	var ctype string
	err := row.Scan(
		&cat.ID, &cat.BudgetID, &cat.Name, &ctype, &cat.Allocation, &cat.Accumulated,
		&cat.AutoMoveCategoryID, &cat.ExpectedMerchant, &cat.Color, &cat.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	cat.Type = model.CategoryType(ctype)
	return &cat, nil
}

// GetCategory returns one category owned (transitively) by the user, with
// its subcategories loaded.
func (s *SQLiteStorage) GetCategory(ctx context.Context, userID string, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateUserScope(userID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories c
		JOIN budgets b ON b.id = c.budget_id
		WHERE c.id = ? AND b.user_id = ?`,
		id, userID,
	)
	cat, err := scanCategory(row)
	if err != nil {
		return nil, err
	}

	if err := s.loadSubcategories(ctx, []*model.Category{cat}); err != nil {
		return nil, err
	}
	return cat, nil
}

// GetBudgetCategories returns all categories of a budget, subcategories
// loaded, system categories ensured.
func (s *SQLiteStorage) GetBudgetCategories(ctx context.Context, userID string, budgetID int64) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := s.checkBudgetOwner(ctx, userID, budgetID); err != nil {
		return nil, err
	}

	if err := s.ensureSystemCategories(ctx, budgetID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories c
		WHERE c.budget_id = ?
		ORDER BY c.name`,
		budgetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cats []*model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	if err := s.loadSubcategories(ctx, cats); err != nil {
		return nil, err
	}

	result := make([]model.Category, len(cats))
	for i, c := range cats {
		result[i] = *c
	}
	return result, nil
}

func (s *SQLiteStorage) loadSubcategories(ctx context.Context, cats []*model.Category) error {
	byID := make(map[int64]*model.Category, len(cats))
	ids := make([]string, 0, len(cats))
	args := make([]any, 0, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
		ids = append(ids, "?")
		args = append(args, c.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE category_id IN (`+strings.Join(ids, ",")+`) ORDER BY name`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sub model.Subcategory
		if err := rows.Scan(&sub.ID, &sub.CategoryID, &sub.Name); err != nil {
			return fmt.Errorf("failed to scan subcategory: %w", err)
		}
		if cat, ok := byID[sub.CategoryID]; ok {
			cat.Subcategories = append(cat.Subcategories, sub)
		}
	}
	return rows.Err()
}

// UpdateCategory updates a category. System categories only permit color
// changes: the excluded and surplus categories cannot be renamed, retyped,
// reallocated, or relinked.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, userID string, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("category cannot be nil")
	}

	existing, err := s.GetCategory(ctx, userID, category.ID)
	if err != nil {
		return err
	}

	if existing.Type.IsSystem() {
		if category.Name != existing.Name ||
			category.Type != existing.Type ||
			category.Allocation != existing.Allocation ||
			category.ExpectedMerchant != existing.ExpectedMerchant ||
			!equalInt64Ptr(category.AutoMoveCategoryID, existing.AutoMoveCategoryID) {
			return common.NewValidationError("category", "system categories only permit color changes")
		}
	}
	if !category.Type.Valid() {
		return common.NewValidationError("type", fmt.Sprintf("invalid category type %q", category.Type))
	}
	if category.Type.IsSystem() != existing.Type.IsSystem() {
		return common.NewValidationError("type", "cannot convert between system and user categories")
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = ?, type = ?, allocation = ?, auto_move_category_id = ?, expected_merchant = ?, color = ?
		WHERE id = ?`,
		category.Name, string(category.Type), category.Allocation,
		category.AutoMoveCategoryID, category.ExpectedMerchant, category.Color,
		category.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

// DeleteCategory deletes a user category. System categories are never
// deletable.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, userID string, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	existing, err := s.GetCategory(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing.Type.IsSystem() {
		return common.NewValidationError("category", "system categories cannot be deleted")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

// AddCategoryAccumulated applies a relative delta to the running
// accumulated total. The relative UPDATE keeps concurrent increments from
// losing each other.
func (s *SQLiteStorage) AddCategoryAccumulated(ctx context.Context, userID string, id int64, delta float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET accumulated = accumulated + ?
		WHERE id = ? AND budget_id IN (SELECT id FROM budgets WHERE user_id = ?)`,
		delta, id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update accumulated total: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check accumulated update: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
