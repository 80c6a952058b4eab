package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/pennyflow/pennyflow/internal/classify"
	"github.com/pennyflow/pennyflow/internal/config"
	"github.com/pennyflow/pennyflow/internal/feed"
	"github.com/pennyflow/pennyflow/internal/ingest"
	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/notify"
	"github.com/pennyflow/pennyflow/internal/reconcile"
	"github.com/pennyflow/pennyflow/internal/splits"
	"github.com/pennyflow/pennyflow/internal/storage"
)

// app holds the wired application components.
type app struct {
	cfg        *config.Config
	store      *storage.SQLiteStorage
	feed       feed.Client
	splitter   *splits.Manager
	workflow   *notify.Workflow
	engine     *ingest.Engine
	reconciler *reconcile.Reconciler
}

// buildApp wires the full component graph from configuration. The chat
// workflow and the classifier degrade to nil when their credentials are
// absent; ingestion still works, transactions just stay unclassified or
// unannounced.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	feedClient, err := feed.NewPlaidClient(cfg.Plaid)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create feed client: %w", err)
	}

	splitter := splits.NewManager(store)

	var workflow *notify.Workflow
	if cfg.Slack.BotToken != "" && cfg.Slack.Channel != "" {
		workflow = notify.NewWorkflow(store, splitter, slack.New(cfg.Slack.BotToken), cfg.Slack.Channel)
	} else {
		slog.Info("slack not configured, chat workflow disabled")
	}

	var classifier *classify.Classifier
	if cfg.LLM.APIKey != "" {
		llmClient, err := llm.NewClient(cfg.LLM)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		classifier = classify.New(store, llmClient, nil)
	} else {
		slog.Info("LLM not configured, classification disabled")
	}

	var categorizer ingest.Categorizer
	if classifier != nil {
		categorizer = classifier
	}
	var notifier ingest.Notifier
	if workflow != nil {
		notifier = workflow
	}

	engine := ingest.NewEngine(store, feedClient, categorizer, splitter, notifier)

	var reconcileNotifier reconcile.Notifier
	if workflow != nil {
		reconcileNotifier = workflow
	}
	reconciler := reconcile.New(store, reconcileNotifier)

	return &app{
		cfg:        cfg,
		store:      store,
		feed:       feedClient,
		splitter:   splitter,
		workflow:   workflow,
		engine:     engine,
		reconciler: reconciler,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
