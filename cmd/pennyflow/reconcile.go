package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle a budget month",
		Long: `Run month-end reconciliation: move variable-category surpluses and
deficits against linked savings, snapshot savings balances, and roll
fixed-category differences into running totals. Safe to re-run.`,
		RunE: runReconcile,
	}
	cmd.Flags().String("user", "", "user id to reconcile (required)")
	cmd.Flags().Int("year", 0, "year to reconcile (default: previous month)")
	cmd.Flags().Int("month", 0, "month to reconcile, 1-12 (default: previous month)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")
	year, _ := cmd.Flags().GetInt("year")
	month, _ := cmd.Flags().GetInt("month")

	if year == 0 || month == 0 {
		prev := time.Now().AddDate(0, -1, 0)
		year, month = prev.Year(), int(prev.Month())
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("month must be 1-12, got %d", month)
	}

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.reconciler.Reconcile(ctx, userID, year, month)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	slog.Info("reconciliation finished",
		"year", year,
		"month", month,
		"movements", result.Movements,
		"snapshots", result.Snapshots,
		"fixed_updates", result.FixedUpdates,
		"prompts", result.Prompts,
		"failed", result.Failed)
	return nil
}
