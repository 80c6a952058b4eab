// Package server exposes the HTTP surface: aggregator and chat webhooks
// plus a JWT-guarded JSON API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pennyflow/pennyflow/internal/feed"
	"github.com/pennyflow/pennyflow/internal/ingest"
	"github.com/pennyflow/pennyflow/internal/notify"
	"github.com/pennyflow/pennyflow/internal/reconcile"
	"github.com/pennyflow/pennyflow/internal/service"
	"github.com/pennyflow/pennyflow/internal/splits"
)

// Server holds the wired application components behind the HTTP surface.
type Server struct {
	store      service.Storage
	feed       feed.Client
	engine     *ingest.Engine
	splitter   *splits.Manager
	workflow   *notify.Workflow
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
	jwtSecret  []byte
}

// New creates a Server. workflow may be nil when no chat integration is
// configured; the Slack webhook then answers 200 and does nothing.
func New(store service.Storage, feedClient feed.Client, engine *ingest.Engine, splitter *splits.Manager, workflow *notify.Workflow, reconciler *reconcile.Reconciler, jwtSecret string) *Server {
	return &Server{
		store:      store,
		feed:       feedClient,
		engine:     engine,
		splitter:   splitter,
		workflow:   workflow,
		reconciler: reconciler,
		jwtSecret:  []byte(jwtSecret),
		logger:     slog.Default().With("component", "server"),
	}
}

// Router builds the route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/webhooks/plaid", s.handlePlaidWebhook)
	r.Post("/webhooks/slack", s.handleSlackInteraction)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.jwtAuth)

		r.Post("/plaid/link-token", s.handleCreateLinkToken)
		r.Post("/plaid/exchange", s.handleExchangePublicToken)

		r.Get("/items", s.handleListItems)
		r.Get("/items/{item_id}/balances", s.handleGetBalances)
		r.Post("/items/{item_id}/sync", s.handleSyncItem)
		r.Delete("/items/{item_id}", s.handleDeleteItem)

		r.Get("/transactions", s.handleListTransactions)
		r.Post("/transactions/{transaction_id}/splits", s.handleSplitTransaction)

		r.Get("/budget", s.handleGetBudget)
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/import/ofx", s.handleImportOFX)
	})

	return r
}
