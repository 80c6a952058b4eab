package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync transactions for a user's linked accounts",
		RunE:  runSync,
	}
	cmd.Flags().String("user", "", "user id to sync (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	items, err := app.store.ListItems(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	if len(items) == 0 {
		slog.Info("no linked items to sync", "user_id", userID)
		return nil
	}

	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("syncing items"),
	)

	var added, modified, removed, failed int
	for i := range items {
		item := items[i]
		result, err := app.engine.Sync(ctx, &item)
		if err != nil {
			slog.Error("item sync failed",
				"item_id", item.ID,
				"institution", item.InstitutionName,
				"error", err)
			failed++
		} else {
			added += result.Added
			modified += result.Modified
			removed += result.Removed
			failed += result.Failed
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	slog.Info("sync finished",
		"items", len(items),
		"added", added,
		"modified", modified,
		"removed", removed,
		"failed", failed)
	return nil
}
