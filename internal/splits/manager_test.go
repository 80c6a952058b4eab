package splits

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.SQLiteStorage, []model.Category) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	budget, err := store.CreateBudget(ctx, "user-1", "Monthly")
	require.NoError(t, err)

	names := []string{"Groceries", "Dining", "Household"}
	cats := make([]model.Category, 0, len(names))
	for _, name := range names {
		cat := &model.Category{BudgetID: budget.ID, Name: name, Type: model.CategoryTypeVariable, Allocation: 100}
		require.NoError(t, store.CreateCategory(ctx, "user-1", cat))
		cats = append(cats, *cat)
	}

	require.NoError(t, store.CreateTransaction(ctx, &model.Transaction{
		ID:           "tx-1",
		UserID:       "user-1",
		Amount:       45.00,
		Name:         "TARGET #500",
		MerchantName: "Target",
		Date:         time.Now(),
	}))

	return NewManager(store), store, cats
}

func TestAssign(t *testing.T) {
	m, store, cats := newTestManager(t)
	ctx := context.Background()

	assignments, err := m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 30.00},
		{CategoryID: cats[1].ID, Amount: 15.00},
	}, true)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.True(t, assignments[0].Manual)

	got, err := store.GetAssignments(ctx, "user-1", "tx-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAssign_SumMismatchLeavesPriorSet(t *testing.T) {
	m, store, cats := newTestManager(t)
	ctx := context.Background()

	_, err := m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 45.00},
	}, false)
	require.NoError(t, err)

	_, err = m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 30.00},
		{CategoryID: cats[1].ID, Amount: 20.00},
	}, true)
	require.ErrorIs(t, err, ErrAmountMismatch)

	// The rejected request changed nothing.
	got, err := store.GetAssignments(ctx, "user-1", "tx-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 45.00, got[0].Amount, 0.001)
	assert.False(t, got[0].Manual)
}

func TestAssign_Tolerance(t *testing.T) {
	m, _, cats := newTestManager(t)

	// A cent of float drift is accepted.
	_, err := m.Assign(context.Background(), "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 30.00},
		{CategoryID: cats[1].ID, Amount: 14.99},
	}, true)
	require.NoError(t, err)

	_, err = m.Assign(context.Background(), "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 30.00},
		{CategoryID: cats[1].ID, Amount: 14.97},
	}, true)
	require.ErrorIs(t, err, ErrAmountMismatch)
}

func TestAssign_ForeignCategoryRejected(t *testing.T) {
	m, store, cats := newTestManager(t)
	ctx := context.Background()

	otherBudget, err := store.CreateBudget(ctx, "user-2", "Monthly")
	require.NoError(t, err)
	otherCat := &model.Category{BudgetID: otherBudget.ID, Name: "Groceries", Type: model.CategoryTypeVariable}
	require.NoError(t, store.CreateCategory(ctx, "user-2", otherCat))

	_, err = m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: otherCat.ID, Amount: 45.00},
	}, true)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	got, err := store.GetAssignments(ctx, "user-1", "tx-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// A valid category alongside a foreign one still fails whole.
	_, err = m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, Amount: 30.00},
		{CategoryID: otherCat.ID, Amount: 15.00},
	}, true)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestAssign_ForeignSubcategoryRejected(t *testing.T) {
	m, store, cats := newTestManager(t)
	ctx := context.Background()

	sub := &model.Subcategory{CategoryID: cats[1].ID, Name: "Restaurants"}
	require.NoError(t, store.CreateSubcategory(ctx, "user-1", sub))

	// The subcategory exists but hangs off a different category.
	_, err := m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[0].ID, SubcategoryID: &sub.ID, Amount: 45.00},
	}, true)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	// Under its own category it passes.
	_, err = m.Assign(ctx, "user-1", "tx-1", []Split{
		{CategoryID: cats[1].ID, SubcategoryID: &sub.ID, Amount: 45.00},
	}, true)
	require.NoError(t, err)
}

func TestAssign_NoSplits(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Assign(context.Background(), "user-1", "tx-1", nil, false)
	require.Error(t, err)
}

func TestAssignRemainder(t *testing.T) {
	m, store, cats := newTestManager(t)
	ctx := context.Background()

	assignments, err := m.AssignRemainder(ctx, "user-1", "tx-1",
		[]Split{
			{CategoryID: cats[0].ID, Amount: 10.00},
			{CategoryID: cats[1].ID, Amount: 15.00},
		},
		Split{CategoryID: cats[2].ID},
		true,
	)
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	assert.InDelta(t, 20.00, assignments[2].Amount, 0.001)

	got, err := store.GetAssignments(ctx, "user-1", "tx-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 20.00, got[2].Amount, 0.001)
}

func TestAssignRemainder_Invalid(t *testing.T) {
	m, _, cats := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		explicit []Split
	}{
		{
			name:     "zero amount",
			explicit: []Split{{CategoryID: cats[0].ID, Amount: 0}},
		},
		{
			name:     "negative amount",
			explicit: []Split{{CategoryID: cats[0].ID, Amount: -5.00}},
		},
		{
			name: "explicit splits consume the total",
			explicit: []Split{
				{CategoryID: cats[0].ID, Amount: 25.00},
				{CategoryID: cats[1].ID, Amount: 20.00},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AssignRemainder(ctx, "user-1", "tx-1", tt.explicit, Split{CategoryID: cats[2].ID}, true)
			require.ErrorIs(t, err, ErrAmountMismatch)
		})
	}
}
