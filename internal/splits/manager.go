// Package splits manages category assignments for transactions,
// enforcing that split amounts always sum to the transaction total.
package splits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
)

// ErrAmountMismatch is returned when split amounts do not sum to the
// transaction amount within tolerance.
var ErrAmountMismatch = errors.New("split amounts do not sum to transaction amount")

// tolerance absorbs float rounding on user-entered amounts.
var tolerance = decimal.NewFromFloat(0.01)

// Split is one requested portion of a transaction.
type Split struct {
	SubcategoryID *int64
	CategoryID    int64
	Amount        float64
}

// Manager validates and commits assignment sets.
type Manager struct {
	store  service.Storage
	logger *slog.Logger
}

// NewManager creates a split manager.
func NewManager(store service.Storage) *Manager {
	return &Manager{
		store:  store,
		logger: slog.Default().With("component", "splits"),
	}
}

// Assign replaces the transaction's assignments with the given splits.
// The replacement is atomic; on validation failure nothing changes.
func (m *Manager) Assign(ctx context.Context, userID, transactionID string, splits []Split, manual bool) ([]model.Assignment, error) {
	if len(splits) == 0 {
		return nil, fmt.Errorf("at least one split is required")
	}

	txn, err := m.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if err := m.validateReferences(ctx, userID, splits); err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(decimal.NewFromFloat(s.Amount))
	}
	total := decimal.NewFromFloat(txn.Amount)
	if sum.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("%w: splits %s vs transaction %s",
			ErrAmountMismatch, sum.StringFixed(2), total.StringFixed(2))
	}

	assignments := make([]model.Assignment, 0, len(splits))
	for _, s := range splits {
		assignments = append(assignments, model.Assignment{
			TransactionID: transactionID,
			CategoryID:    s.CategoryID,
			SubcategoryID: s.SubcategoryID,
			Amount:        s.Amount,
			Manual:        manual,
		})
	}

	if err := m.store.ReplaceAssignments(ctx, userID, transactionID, assignments); err != nil {
		return nil, fmt.Errorf("failed to commit assignments: %w", err)
	}

	m.logger.Debug("assignments replaced",
		"transaction_id", transactionID,
		"splits", len(assignments),
		"manual", manual)
	return assignments, nil
}

// validateReferences rejects splits naming categories outside the user's
// budget or subcategories outside their category. The FK only proves the
// rows exist somewhere; ownership is checked here.
func (m *Manager) validateReferences(ctx context.Context, userID string, splits []Split) error {
	budget, err := m.store.GetActiveBudget(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve budget: %w", err)
	}
	categories, err := m.store.GetBudgetCategories(ctx, userID, budget.ID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	byID := make(map[int64]model.Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	for i, s := range splits {
		cat, ok := byID[s.CategoryID]
		if !ok {
			return common.NewValidationError("category_id",
				fmt.Sprintf("split %d: category %d is not in your budget", i+1, s.CategoryID))
		}
		if s.SubcategoryID != nil && cat.SubcategoryByID(*s.SubcategoryID) == nil {
			return common.NewValidationError("subcategory_id",
				fmt.Sprintf("split %d: subcategory %d does not belong to category %q", i+1, *s.SubcategoryID, cat.Name))
		}
	}
	return nil
}

// AssignRemainder builds the final split of a multi-way split from the
// transaction total minus the explicit amounts, then commits the set.
// Each explicit amount must be positive and the running sum must stay
// strictly below the total so the remainder is itself positive.
func (m *Manager) AssignRemainder(ctx context.Context, userID, transactionID string, explicit []Split, final Split, manual bool) ([]model.Assignment, error) {
	txn, err := m.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	total := decimal.NewFromFloat(txn.Amount)
	sum := decimal.Zero
	for i, s := range explicit {
		amt := decimal.NewFromFloat(s.Amount)
		if !amt.IsPositive() {
			return nil, fmt.Errorf("%w: split %d amount must be positive", ErrAmountMismatch, i+1)
		}
		sum = sum.Add(amt)
		if sum.GreaterThanOrEqual(total) {
			return nil, fmt.Errorf("%w: splits reach transaction total before the final split", ErrAmountMismatch)
		}
	}

	remainder, _ := total.Sub(sum).Float64()
	final.Amount = remainder

	return m.Assign(ctx, userID, transactionID, append(explicit, final), manual)
}
