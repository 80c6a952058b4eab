package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
)

func TestCreateFundMovement_IdempotentPerPeriod(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, variable, savings := seedBudget(t, store, "user-1")

	movement := &model.FundMovement{
		UserID:                 "user-1",
		CategoryID:             variable.ID,
		CounterpartyCategoryID: savings.ID,
		Year:                   2026,
		Month:                  7,
		Kind:                   model.MovementSurplus,
		Amount:                 120.00,
	}
	created, err := store.CreateFundMovement(ctx, movement)
	require.NoError(t, err)
	assert.True(t, created)

	// Same (category, year, month, kind) key: no second row.
	replay := &model.FundMovement{
		UserID:                 "user-1",
		CategoryID:             variable.ID,
		CounterpartyCategoryID: savings.ID,
		Year:                   2026,
		Month:                  7,
		Kind:                   model.MovementSurplus,
		Amount:                 120.00,
	}
	created, err = store.CreateFundMovement(ctx, replay)
	require.NoError(t, err)
	assert.False(t, created)

	// A deficit for the same period is a distinct key.
	deficit := &model.FundMovement{
		UserID:                 "user-1",
		CategoryID:             variable.ID,
		CounterpartyCategoryID: savings.ID,
		Year:                   2026,
		Month:                  7,
		Kind:                   model.MovementDeficit,
		Amount:                 30.00,
	}
	created, err = store.CreateFundMovement(ctx, deficit)
	require.NoError(t, err)
	assert.True(t, created)

	movements, err := store.ListFundMovements(ctx, "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestCreateFundMovement_InvalidKind(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.CreateFundMovement(context.Background(), &model.FundMovement{
		UserID:     "user-1",
		CategoryID: 1,
		Year:       2026,
		Month:      7,
		Kind:       "sideways",
		Amount:     1.00,
	})
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestUpsertSavingsSnapshot(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	budget, _, savings := seedBudget(t, store, "user-1")

	snap := &model.SavingsSnapshot{
		UserID:     "user-1",
		BudgetID:   budget.ID,
		CategoryID: savings.ID,
		Year:       2026,
		Month:      7,
		Balance:    100.00,
	}
	require.NoError(t, store.UpsertSavingsSnapshot(ctx, snap))

	// Re-running the period overwrites in place.
	snap.Balance = 145.00
	require.NoError(t, store.UpsertSavingsSnapshot(ctx, snap))

	got, err := store.GetSavingsSnapshot(ctx, "user-1", savings.ID, 2026, 7)
	require.NoError(t, err)
	assert.InDelta(t, 145.00, got.Balance, 0.001)

	_, err = store.GetSavingsSnapshot(ctx, "user-1", savings.ID, 2026, 8)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsertMonthlySummary_ReturnsPrevious(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	budget, _, _ := seedBudget(t, store, "user-1")

	first := &model.MonthlySummary{
		UserID:      "user-1",
		BudgetID:    &budget.ID,
		CategoryID:  1,
		Year:        2026,
		Month:       7,
		Spent:       80.00,
		Accumulated: -20.00,
	}
	previous, existed, err := store.UpsertMonthlySummary(ctx, first)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Zero(t, previous)

	second := &model.MonthlySummary{
		UserID:      "user-1",
		BudgetID:    &budget.ID,
		CategoryID:  1,
		Year:        2026,
		Month:       7,
		Spent:       95.00,
		Accumulated: -35.00,
	}
	previous, existed, err = store.UpsertMonthlySummary(ctx, second)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.InDelta(t, -20.00, previous, 0.001)
}
