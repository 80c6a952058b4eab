package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/storage"
)

type surplusPrompt struct {
	category model.Category
	savings  []model.Category
	amount   float64
}

type deficitAlert struct {
	source   *model.Category
	category model.Category
	amount   float64
}

type stubNotifier struct {
	prompts []surplusPrompt
	alerts  []deficitAlert
}

func (s *stubNotifier) SendSurplusPrompt(_ context.Context, _ string, category model.Category, amount float64, savings []model.Category, _, _ int) error {
	s.prompts = append(s.prompts, surplusPrompt{category: category, amount: amount, savings: savings})
	return nil
}

func (s *stubNotifier) SendDeficitAlert(_ context.Context, category model.Category, amount float64, source *model.Category) error {
	s.alerts = append(s.alerts, deficitAlert{category: category, amount: amount, source: source})
	return nil
}

type fixture struct {
	store   *storage.SQLiteStorage
	budget  *model.Budget
	savings *model.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	budget, err := store.CreateBudget(ctx, "user-1", "Monthly")
	require.NoError(t, err)

	savings := &model.Category{
		BudgetID:    budget.ID,
		Name:        "Vacation Fund",
		Type:        model.CategoryTypeSavings,
		Accumulated: 100,
	}
	require.NoError(t, store.CreateCategory(ctx, "user-1", savings))

	return &fixture{store: store, budget: budget, savings: savings}
}

func (f *fixture) addCategory(t *testing.T, cat *model.Category) *model.Category {
	t.Helper()
	cat.BudgetID = f.budget.ID
	require.NoError(t, f.store.CreateCategory(context.Background(), "user-1", cat))
	return cat
}

// spend books one assigned transaction against a category in July 2026.
func (f *fixture) spend(t *testing.T, categoryID int64, amount float64) {
	t.Helper()
	ctx := context.Background()

	id := fmt.Sprintf("tx-%d-%.2f", categoryID, amount)
	require.NoError(t, f.store.CreateTransaction(ctx, &model.Transaction{
		ID:           id,
		UserID:       "user-1",
		Amount:       amount,
		Name:         "Spend",
		MerchantName: "Store",
		Date:         time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, f.store.ReplaceAssignments(ctx, "user-1", id, []model.Assignment{
		{TransactionID: id, CategoryID: categoryID, Amount: amount},
	}))
}

func (f *fixture) accumulated(t *testing.T, categoryID int64) float64 {
	t.Helper()
	cat, err := f.store.GetCategory(context.Background(), "user-1", categoryID)
	require.NoError(t, err)
	return cat.Accumulated
}

func TestReconcile_SurplusAutoMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	groceries := f.addCategory(t, &model.Category{
		Name:               "Groceries",
		Type:               model.CategoryTypeVariable,
		Allocation:         500,
		AutoMoveCategoryID: &f.savings.ID,
	})
	f.spend(t, groceries.ID, 380)

	r := New(f.store, nil)
	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Movements)
	assert.Equal(t, 1, result.Snapshots)
	assert.Zero(t, result.Failed)

	assert.InDelta(t, 220.00, f.accumulated(t, f.savings.ID), 0.001)

	movements, err := f.store.ListFundMovements(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, model.MovementSurplus, movements[0].Kind)
	assert.InDelta(t, 120.00, movements[0].Amount, 0.001)
	assert.Equal(t, groceries.ID, movements[0].CategoryID)
	assert.Equal(t, f.savings.ID, movements[0].CounterpartyCategoryID)
}

func TestReconcile_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	groceries := f.addCategory(t, &model.Category{
		Name:               "Groceries",
		Type:               model.CategoryTypeVariable,
		Allocation:         500,
		AutoMoveCategoryID: &f.savings.ID,
	})
	f.spend(t, groceries.ID, 380)

	r := New(f.store, nil)
	_, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)

	// The first run already snapshots the settled balance.
	snap, err := f.store.GetSavingsSnapshot(ctx, "user-1", f.savings.ID, 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 220.00, snap.Balance, 0.001)

	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Zero(t, result.Movements)
	assert.Zero(t, result.Failed)

	// The savings balance moved exactly once.
	assert.InDelta(t, 220.00, f.accumulated(t, f.savings.ID), 0.001)

	// The re-run records the same period-end snapshot.
	snap, err = f.store.GetSavingsSnapshot(ctx, "user-1", f.savings.ID, 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 220.00, snap.Balance, 0.001)

	movements, err := f.store.ListFundMovements(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestReconcile_SurplusWithoutLinkPrompts(t *testing.T) {
	f := newFixture(t)

	fun := f.addCategory(t, &model.Category{
		Name:       "Fun Money",
		Type:       model.CategoryTypeVariable,
		Allocation: 200,
	})
	f.spend(t, fun.ID, 150)

	notifier := &stubNotifier{}
	r := New(f.store, notifier)
	result, err := r.Reconcile(context.Background(), "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prompts)
	assert.Zero(t, result.Movements)

	require.Len(t, notifier.prompts, 1)
	assert.Equal(t, fun.ID, notifier.prompts[0].category.ID)
	assert.InDelta(t, 50.00, notifier.prompts[0].amount, 0.001)
	require.Len(t, notifier.prompts[0].savings, 1)
	assert.Equal(t, f.savings.ID, notifier.prompts[0].savings[0].ID)
}

func TestReconcile_DeficitCoveredFromSavings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	groceries := f.addCategory(t, &model.Category{
		Name:               "Groceries",
		Type:               model.CategoryTypeVariable,
		Allocation:         500,
		AutoMoveCategoryID: &f.savings.ID,
	})
	f.spend(t, groceries.ID, 560)

	r := New(f.store, nil)
	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Movements)

	assert.InDelta(t, 40.00, f.accumulated(t, f.savings.ID), 0.001)

	movements, err := f.store.ListFundMovements(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, model.MovementDeficit, movements[0].Kind)
	assert.InDelta(t, 60.00, movements[0].Amount, 0.001)
}

func TestReconcile_DeficitInsufficientSavings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	groceries := f.addCategory(t, &model.Category{
		Name:               "Groceries",
		Type:               model.CategoryTypeVariable,
		Allocation:         500,
		AutoMoveCategoryID: &f.savings.ID,
	})
	// Deficit of 150 against a balance of 100: the draw is all-or-nothing.
	f.spend(t, groceries.ID, 650)

	notifier := &stubNotifier{}
	r := New(f.store, notifier)
	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Zero(t, result.Movements)
	assert.Zero(t, result.Failed)

	assert.InDelta(t, 100.00, f.accumulated(t, f.savings.ID), 0.001)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, groceries.ID, notifier.alerts[0].category.ID)
	assert.InDelta(t, 150.00, notifier.alerts[0].amount, 0.001)
	require.NotNil(t, notifier.alerts[0].source)
	assert.Equal(t, f.savings.ID, notifier.alerts[0].source.ID)
}

func TestReconcile_SavingsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := New(f.store, nil)
	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Snapshots)

	snap, err := f.store.GetSavingsSnapshot(ctx, "user-1", f.savings.ID, 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 100.00, snap.Balance, 0.001)
}

func TestReconcile_FixedRollsDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rent := f.addCategory(t, &model.Category{
		Name:       "Rent",
		Type:       model.CategoryTypeFixed,
		Allocation: 1500,
	})
	f.spend(t, rent.ID, 1400)

	r := New(f.store, nil)
	result, err := r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FixedUpdates)
	assert.InDelta(t, 100.00, f.accumulated(t, rent.ID), 0.001)

	// Re-run without new spend: no double count.
	_, err = r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 100.00, f.accumulated(t, rent.ID), 0.001)

	// A late charge changes the month: only the delta is applied.
	f.spend(t, rent.ID, 50)
	_, err = r.Reconcile(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 50.00, f.accumulated(t, rent.ID), 0.001)
}
