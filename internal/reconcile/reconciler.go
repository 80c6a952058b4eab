// Package reconcile settles a budget period: moving variable-category
// surpluses and deficits against linked savings, snapshotting savings
// balances, and rolling fixed-category differences into running totals.
// Re-running a period is safe; settled work is not repeated.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
)

// tolerance below which a difference is treated as zero.
const tolerance = 0.01

// Notifier surfaces reconciliation outcomes that need a human decision.
type Notifier interface {
	SendSurplusPrompt(ctx context.Context, userID string, category model.Category, amount float64, savings []model.Category, year, month int) error
	SendDeficitAlert(ctx context.Context, category model.Category, amount float64, source *model.Category) error
}

// Result counts what one reconciliation run produced.
type Result struct {
	Movements    int
	Snapshots    int
	FixedUpdates int
	Prompts      int
	Failed       int
}

// Reconciler runs month-end settlement.
type Reconciler struct {
	store    service.Storage
	notifier Notifier
	logger   *slog.Logger
}

// New creates a Reconciler. notifier may be nil; prompts and alerts are
// then skipped with a log line.
func New(store service.Storage, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:    store,
		notifier: notifier,
		logger:   slog.Default().With("component", "reconcile"),
	}
}

// Reconcile settles one calendar month for a user. Category branches are
// independent: one category's failure is counted and logged but never
// stops the rest of the run.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, year, month int) (Result, error) {
	var result Result

	budget, err := r.store.GetActiveBudget(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to resolve budget: %w", err)
	}
	categories, err := r.store.GetBudgetCategories(ctx, userID, budget.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load categories: %w", err)
	}

	byID := make(map[int64]model.Category, len(categories))
	var savings []model.Category
	for _, cat := range categories {
		byID[cat.ID] = cat
		if cat.Type == model.CategoryTypeSavings {
			savings = append(savings, cat)
		}
	}

	// Variable categories settle first: their surplus/deficit movements
	// credit and debit savings balances.
	for _, cat := range categories {
		if cat.Type != model.CategoryTypeVariable {
			continue
		}
		if err := r.reconcileVariable(ctx, userID, budget, cat, byID, savings, year, month, &result); err != nil {
			result.Failed++
			r.logger.Error("failed to reconcile category",
				"category", cat.Name,
				"type", cat.Type,
				"error", err)
		}
	}

	// Snapshots and fixed rolls read the settled balances, so a re-run
	// (which moves nothing) records the same period-end values.
	categories, err = r.store.GetBudgetCategories(ctx, userID, budget.ID)
	if err != nil {
		return result, fmt.Errorf("failed to reload categories: %w", err)
	}
	for _, cat := range categories {
		var err error
		switch cat.Type {
		case model.CategoryTypeSavings:
			err = r.snapshotSavings(ctx, userID, budget, cat, year, month, &result)
		case model.CategoryTypeFixed:
			err = r.rollFixed(ctx, userID, budget, cat, year, month, &result)
		}
		if err != nil {
			result.Failed++
			r.logger.Error("failed to reconcile category",
				"category", cat.Name,
				"type", cat.Type,
				"error", err)
		}
	}

	r.logger.Info("reconciliation complete",
		"user_id", userID,
		"year", year,
		"month", month,
		"movements", result.Movements,
		"snapshots", result.Snapshots,
		"fixed_updates", result.FixedUpdates,
		"prompts", result.Prompts,
		"failed", result.Failed)
	return result, nil
}

func (r *Reconciler) reconcileVariable(ctx context.Context, userID string, budget *model.Budget, cat model.Category, byID map[int64]model.Category, savings []model.Category, year, month int, result *Result) error {
	spent, err := r.store.CategorySpent(ctx, userID, cat.ID, year, month)
	if err != nil {
		return fmt.Errorf("failed to compute spend: %w", err)
	}

	diff := cat.Allocation - spent
	if math.Abs(diff) <= tolerance {
		return nil
	}

	if diff > 0 {
		return r.applySurplus(ctx, userID, cat, diff, savings, year, month, result)
	}
	return r.applyDeficit(ctx, userID, cat, -diff, byID, result, year, month)
}

func (r *Reconciler) applySurplus(ctx context.Context, userID string, cat model.Category, amount float64, savings []model.Category, year, month int, result *Result) error {
	if cat.AutoMoveCategoryID == nil {
		// No linked target: ask the user instead of guessing.
		if r.notifier == nil {
			r.logger.Info("surplus with no auto-move target and no notifier",
				"category", cat.Name, "amount", amount)
			return nil
		}
		if err := r.notifier.SendSurplusPrompt(ctx, userID, cat, amount, savings, year, month); err != nil {
			return fmt.Errorf("failed to send surplus prompt: %w", err)
		}
		result.Prompts++
		return nil
	}

	created, err := r.store.CreateFundMovement(ctx, &model.FundMovement{
		UserID:                 userID,
		Kind:                   model.MovementSurplus,
		CategoryID:             cat.ID,
		CounterpartyCategoryID: *cat.AutoMoveCategoryID,
		Year:                   year,
		Month:                  month,
		Amount:                 amount,
	})
	if err != nil {
		return fmt.Errorf("failed to record surplus movement: %w", err)
	}
	if !created {
		r.logger.Debug("surplus already settled for period", "category", cat.Name)
		return nil
	}

	if err := r.store.AddCategoryAccumulated(ctx, userID, *cat.AutoMoveCategoryID, amount); err != nil {
		return fmt.Errorf("failed to credit savings target: %w", err)
	}
	result.Movements++
	return nil
}

func (r *Reconciler) applyDeficit(ctx context.Context, userID string, cat model.Category, amount float64, byID map[int64]model.Category, result *Result, year, month int) error {
	if cat.AutoMoveCategoryID == nil {
		r.logger.Info("deficit with no linked savings source",
			"category", cat.Name, "amount", amount)
		if r.notifier != nil {
			if err := r.notifier.SendDeficitAlert(ctx, cat, amount, nil); err != nil {
				r.logger.Warn("failed to send deficit alert", "error", err)
			}
		}
		return nil
	}

	source, ok := byID[*cat.AutoMoveCategoryID]
	if !ok {
		return fmt.Errorf("linked savings source %d not found", *cat.AutoMoveCategoryID)
	}

	// The draw is all-or-nothing: an underfunded source is left alone.
	if source.Accumulated < amount {
		r.logger.Warn("insufficient savings to cover deficit",
			"category", cat.Name,
			"source", source.Name,
			"deficit", amount,
			"available", source.Accumulated)
		if r.notifier != nil {
			if err := r.notifier.SendDeficitAlert(ctx, cat, amount, &source); err != nil {
				r.logger.Warn("failed to send deficit alert", "error", err)
			}
		}
		return nil
	}

	created, err := r.store.CreateFundMovement(ctx, &model.FundMovement{
		UserID:                 userID,
		Kind:                   model.MovementDeficit,
		CategoryID:             cat.ID,
		CounterpartyCategoryID: source.ID,
		Year:                   year,
		Month:                  month,
		Amount:                 amount,
	})
	if err != nil {
		return fmt.Errorf("failed to record deficit movement: %w", err)
	}
	if !created {
		r.logger.Debug("deficit already settled for period", "category", cat.Name)
		return nil
	}

	if err := r.store.AddCategoryAccumulated(ctx, userID, source.ID, -amount); err != nil {
		return fmt.Errorf("failed to debit savings source: %w", err)
	}
	result.Movements++
	return nil
}

func (r *Reconciler) snapshotSavings(ctx context.Context, userID string, budget *model.Budget, cat model.Category, year, month int, result *Result) error {
	if err := r.store.UpsertSavingsSnapshot(ctx, &model.SavingsSnapshot{
		UserID:     userID,
		BudgetID:   budget.ID,
		CategoryID: cat.ID,
		Year:       year,
		Month:      month,
		Balance:    cat.Accumulated,
	}); err != nil {
		return fmt.Errorf("failed to snapshot savings: %w", err)
	}
	result.Snapshots++
	return nil
}

// rollFixed stores the period difference in the monthly summary and
// applies only the change against any earlier run to the category's
// running total, so re-runs do not double-count.
func (r *Reconciler) rollFixed(ctx context.Context, userID string, budget *model.Budget, cat model.Category, year, month int, result *Result) error {
	spent, err := r.store.CategorySpent(ctx, userID, cat.ID, year, month)
	if err != nil {
		return fmt.Errorf("failed to compute spend: %w", err)
	}
	diff := cat.Allocation - spent

	previous, _, err := r.store.UpsertMonthlySummary(ctx, &model.MonthlySummary{
		UserID:      userID,
		BudgetID:    &budget.ID,
		CategoryID:  cat.ID,
		Year:        year,
		Month:       month,
		Spent:       spent,
		Accumulated: diff,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	if delta := diff - previous; math.Abs(delta) > tolerance {
		if err := r.store.AddCategoryAccumulated(ctx, userID, cat.ID, delta); err != nil {
			return fmt.Errorf("failed to roll accumulated total: %w", err)
		}
	}
	result.FixedUpdates++
	return nil
}
