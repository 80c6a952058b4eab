// Package ingest runs the transaction ingestion pipeline: cursor-based
// sync from the aggregator, deduplicated upserts, classification, and
// best-effort notification. The same pipeline serves webhook pushes,
// manual sync requests, and file imports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pennyflow/pennyflow/internal/classify"
	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/feed"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
	"github.com/pennyflow/pennyflow/internal/splits"
)

// Categorizer produces category suggestions for new transactions.
type Categorizer interface {
	Classify(ctx context.Context, req classify.Request) (*classify.Suggestion, error)
}

// Assigner commits category assignments.
type Assigner interface {
	Assign(ctx context.Context, userID, transactionID string, s []splits.Split, manual bool) ([]model.Assignment, error)
}

// Notifier sends the confirmation message for a classified transaction.
type Notifier interface {
	SendClassified(ctx context.Context, txn *model.Transaction, assignment model.Assignment) error
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Cursor   string
	Added    int
	Modified int
	Removed  int
	Failed   int
}

// Engine drives ingestion for linked items.
type Engine struct {
	store      service.Storage
	feed       feed.Client
	classifier Categorizer
	assigner   Assigner
	notifier   Notifier
	logger     *slog.Logger
}

// NewEngine creates an ingestion engine. notifier may be nil when no
// messaging integration is configured.
func NewEngine(store service.Storage, feedClient feed.Client, classifier Categorizer, assigner Assigner, notifier Notifier) *Engine {
	return &Engine{
		store:      store,
		feed:       feedClient,
		classifier: classifier,
		assigner:   assigner,
		notifier:   notifier,
		logger:     slog.Default().With("component", "ingest"),
	}
}

// Sync pulls all pending changes for one item. Batches are processed
// strictly in order and the cursor is persisted after every batch, so an
// interrupted run resumes from the last completed batch. Individual
// record failures are logged and counted, never abort the loop.
func (e *Engine) Sync(ctx context.Context, item *model.LinkedItem) (SyncResult, error) {
	var result SyncResult

	cursor := ""
	if item.SyncCursor != nil {
		cursor = *item.SyncCursor
	}

	for {
		batch, err := e.feed.SyncBatch(ctx, item.AccessToken, cursor)
		if err != nil {
			return result, fmt.Errorf("sync batch failed: %w", err)
		}

		for _, rec := range batch.Added {
			if err := e.processAdded(ctx, item.UserID, &item.ID, rec, &result); err != nil {
				result.Failed++
				e.logger.Error("failed to process added record",
					"transaction_id", rec.ExternalID,
					"error", err)
			}
		}
		for _, rec := range batch.Modified {
			if err := e.processModified(ctx, item, rec, &result); err != nil {
				result.Failed++
				e.logger.Error("failed to process modified record",
					"transaction_id", rec.ExternalID,
					"error", err)
			}
		}
		for _, id := range batch.Removed {
			if err := e.store.DeleteTransaction(ctx, id); err != nil {
				result.Failed++
				e.logger.Error("failed to process removed record",
					"transaction_id", id,
					"error", err)
			} else {
				result.Removed++
			}
		}

		if err := e.store.UpdateItemCursor(ctx, item.ID, batch.NextCursor); err != nil {
			return result, fmt.Errorf("failed to persist cursor: %w", err)
		}
		cursor = batch.NextCursor
		result.Cursor = cursor

		if !batch.HasMore {
			break
		}
	}

	e.logger.Info("sync complete",
		"item_id", item.ID,
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed,
		"failed", result.Failed)
	return result, nil
}

func (e *Engine) processAdded(ctx context.Context, userID string, itemID *int64, rec feed.Record, result *SyncResult) error {
	exists, err := e.store.TransactionExists(ctx, rec.ExternalID)
	if err != nil {
		return err
	}
	if exists {
		e.logger.Debug("skipping already-processed transaction", "transaction_id", rec.ExternalID)
		return nil
	}

	txn := &model.Transaction{
		ID:               rec.ExternalID,
		UserID:           userID,
		ItemID:           itemID,
		Amount:           rec.Amount,
		Name:             rec.Name,
		MerchantName:     rec.MerchantName,
		Date:             rec.Date,
		SourceCategories: rec.Categories,
		Pending:          rec.Pending,
	}
	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			e.logger.Debug("duplicate transaction", "transaction_id", rec.ExternalID)
			return nil
		}
		return err
	}
	result.Added++

	e.classifyAndNotify(ctx, txn)
	return nil
}

func (e *Engine) processModified(ctx context.Context, item *model.LinkedItem, rec feed.Record, result *SyncResult) error {
	updated, err := e.store.UpdateTransactionFromFeed(ctx, rec.ExternalID, rec.Amount, rec.Name, rec.MerchantName, rec.Pending)
	if err != nil {
		return err
	}
	if updated {
		result.Modified++
		return nil
	}

	// A modified event can arrive before its added event was processed;
	// treat it as an add.
	e.logger.Debug("modified record has no row, treating as add", "transaction_id", rec.ExternalID)
	return e.processAdded(ctx, item.UserID, &item.ID, rec, result)
}

// classifyAndNotify runs classification and the confirmation message for
// a freshly inserted transaction. Both stages are best-effort: their
// failures never unwind the insert.
func (e *Engine) classifyAndNotify(ctx context.Context, txn *model.Transaction) {
	if e.classifier == nil {
		return
	}

	suggestion, err := e.classifier.Classify(ctx, classify.Request{
		UserID:           txn.UserID,
		Amount:           txn.Amount,
		MerchantName:     txn.MerchantName,
		Name:             txn.Name,
		SourceCategories: txn.SourceCategories,
	})
	if err != nil {
		e.logger.Warn("classification error", "transaction_id", txn.ID, "error", err)
		return
	}
	if suggestion == nil {
		return
	}

	assignments, err := e.assigner.Assign(ctx, txn.UserID, txn.ID, []splits.Split{{
		CategoryID:    suggestion.CategoryID,
		SubcategoryID: suggestion.SubcategoryID,
		Amount:        txn.Amount,
	}}, false)
	if err != nil {
		e.logger.Warn("failed to persist classification", "transaction_id", txn.ID, "error", err)
		return
	}

	if e.notifier == nil || len(assignments) == 0 {
		return
	}
	if err := e.notifier.SendClassified(ctx, txn, assignments[0]); err != nil {
		e.logger.Warn("failed to send notification", "transaction_id", txn.ID, "error", err)
	}
}
