// Package service defines the interfaces shared between components.
package service

import (
	"context"
	"time"

	"github.com/pennyflow/pennyflow/internal/model"
)

// RetryOptions configures retry behavior for fallible remote calls.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Storage is the ledger store: relational persistence for linked items,
// transactions, category assignments, budgets, and reconciliation records.
// Every method that reads or writes user-owned data takes the owning user
// id and must reject cross-user access.
type Storage interface {
	ItemStore
	BudgetStore
	TransactionStore
	AssignmentStore
	ReconciliationStore

	Close() error
}

// ItemStore persists aggregator connections.
type ItemStore interface {
	CreateItem(ctx context.Context, item *model.LinkedItem) error
	GetItem(ctx context.Context, userID string, id int64) (*model.LinkedItem, error)
	GetItemByPlaidID(ctx context.Context, plaidItemID string) (*model.LinkedItem, error)
	ListItems(ctx context.Context, userID string) ([]model.LinkedItem, error)
	// UpdateItemCursor persists the feed cursor; called after every batch.
	UpdateItemCursor(ctx context.Context, itemID int64, cursor string) error
	// DeleteItem unlinks the item. Dependent transactions are retained
	// with their item reference nulled.
	DeleteItem(ctx context.Context, userID string, id int64) error
}

// BudgetStore persists budgets, categories, and subcategories. Reading a
// budget's categories lazily creates the system-owned surplus and
// excluded categories when missing.
type BudgetStore interface {
	CreateBudget(ctx context.Context, userID, name string) (*model.Budget, error)
	GetActiveBudget(ctx context.Context, userID string) (*model.Budget, error)
	CreateCategory(ctx context.Context, userID string, category *model.Category) error
	CreateSubcategory(ctx context.Context, userID string, sub *model.Subcategory) error
	GetCategory(ctx context.Context, userID string, id int64) (*model.Category, error)
	GetBudgetCategories(ctx context.Context, userID string, budgetID int64) ([]model.Category, error)
	UpdateCategory(ctx context.Context, userID string, category *model.Category) error
	DeleteCategory(ctx context.Context, userID string, id int64) error
	// AddCategoryAccumulated applies a relative delta to the category's
	// running accumulated total as a single atomic update.
	AddCategoryAccumulated(ctx context.Context, userID string, id int64, delta float64) error
}

// TransactionStore persists ledger entries keyed by external id.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error)
	TransactionExists(ctx context.Context, id string) (bool, error)
	// UpdateTransactionFromFeed overwrites the feed-mutable fields in
	// place. Returns false when no row with that external id exists.
	UpdateTransactionFromFeed(ctx context.Context, id string, amount float64, name, merchantName string, pending bool) (bool, error)
	// DeleteTransaction removes the row and cascades its assignments.
	// Missing rows are not an error.
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	SetTransactionReviewed(ctx context.Context, userID, id string, reviewed bool) error
	SetTransactionNotification(ctx context.Context, id, channel, ts string, state model.NotifyState) error
	GetMerchantHistory(ctx context.Context, userID string, limit int) ([]model.MerchantHistory, error)
	// CategorySpent sums assignment amounts for a category in one period.
	CategorySpent(ctx context.Context, userID string, categoryID int64, year, month int) (float64, error)
}

// AssignmentStore persists category assignments.
type AssignmentStore interface {
	// ReplaceAssignments atomically deletes all prior assignments for the
	// transaction and inserts the new set. Readers never observe a
	// partial mix.
	ReplaceAssignments(ctx context.Context, userID, transactionID string, assignments []model.Assignment) error
	GetAssignments(ctx context.Context, userID, transactionID string) ([]model.Assignment, error)
}

// ReconciliationStore persists month-end records.
type ReconciliationStore interface {
	// CreateFundMovement inserts the movement unless one already exists
	// for its (category, year, month, kind) key; returns whether a row
	// was created.
	CreateFundMovement(ctx context.Context, movement *model.FundMovement) (bool, error)
	ListFundMovements(ctx context.Context, userID string, year, month int) ([]model.FundMovement, error)
	UpsertSavingsSnapshot(ctx context.Context, snapshot *model.SavingsSnapshot) error
	GetSavingsSnapshot(ctx context.Context, userID string, categoryID int64, year, month int) (*model.SavingsSnapshot, error)
	// UpsertMonthlySummary writes the summary and returns the previous
	// accumulated value, or ok=false when no prior row existed.
	UpsertMonthlySummary(ctx context.Context, summary *model.MonthlySummary) (float64, bool, error)
}
