package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/splits"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateEntry):
		return http.StatusConflict
	case common.IsValidation(err), errors.Is(err, splits.ErrAmountMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.feed.CreateLinkToken(r.Context(), UserID(r.Context()))
	if err != nil {
		s.logger.Error("failed to create link token", "error", err)
		writeError(w, http.StatusBadGateway, "failed to create link token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link_token": token})
}

func (s *Server) handleExchangePublicToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
		writeError(w, http.StatusBadRequest, "public_token is required")
		return
	}

	userID := UserID(r.Context())
	accessToken, plaidItemID, err := s.feed.ExchangePublicToken(r.Context(), req.PublicToken)
	if err != nil {
		s.logger.Error("failed to exchange public token", "error", err)
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	item := &model.LinkedItem{
		UserID:      userID,
		PlaidItemID: plaidItemID,
		AccessToken: accessToken,
	}
	if inst, err := s.feed.GetInstitution(r.Context(), accessToken); err == nil {
		item.InstitutionID = inst.ID
		item.InstitutionName = inst.Name
	} else {
		s.logger.Warn("failed to resolve institution", "error", err)
	}

	if err := s.store.CreateItem(r.Context(), item); err != nil {
		writeError(w, statusFor(err), "failed to save item")
		return
	}

	// Pull the full history right away so the account is usable.
	go func() {
		if _, err := s.engine.Sync(contextWithoutCancel(r), item); err != nil {
			s.logger.Error("initial sync failed", "item_id", item.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) itemFromPath(w http.ResponseWriter, r *http.Request) (*model.LinkedItem, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "item_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}
	item, err := s.store.GetItem(r.Context(), UserID(r.Context()), itemID)
	if err != nil {
		writeError(w, statusFor(err), "item not found")
		return nil, false
	}
	return item, true
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	balances, err := s.feed.GetBalances(r.Context(), item.AccessToken)
	if err != nil {
		s.logger.Error("failed to fetch balances", "item_id", item.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch balances")
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleSyncItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}
	result, err := s.engine.Sync(r.Context(), item)
	if err != nil {
		s.logger.Error("manual sync failed", "item_id", item.ID, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.itemFromPath(w, r)
	if !ok {
		return
	}

	// Revoke at the aggregator first; a revocation failure leaves the
	// row so the user can retry.
	if err := s.feed.RemoveItem(r.Context(), item.AccessToken); err != nil {
		s.logger.Error("failed to revoke item", "item_id", item.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to revoke item")
		return
	}
	if err := s.store.DeleteItem(r.Context(), item.UserID, item.ID); err != nil {
		writeError(w, statusFor(err), "failed to delete item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns, err := s.store.ListTransactions(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeError(w, statusFor(err), "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleSplitTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transaction_id")

	var req struct {
		Splits []struct {
			CategoryID    int64   `json:"category_id"`
			SubcategoryID *int64  `json:"subcategory_id"`
			Amount        float64 `json:"amount"`
		} `json:"splits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Splits) == 0 {
		writeError(w, http.StatusBadRequest, "splits are required")
		return
	}

	parts := make([]splits.Split, 0, len(req.Splits))
	for _, sp := range req.Splits {
		parts = append(parts, splits.Split{
			CategoryID:    sp.CategoryID,
			SubcategoryID: sp.SubcategoryID,
			Amount:        sp.Amount,
		})
	}

	assignments, err := s.splitter.Assign(r.Context(), UserID(r.Context()), transactionID, parts, true)
	if err != nil {
		if errors.Is(err, splits.ErrAmountMismatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, statusFor(err), "failed to apply splits")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	budget, err := s.store.GetActiveBudget(r.Context(), userID)
	if err != nil {
		writeError(w, statusFor(err), "no active budget")
		return
	}
	categories, err := s.store.GetBudgetCategories(r.Context(), userID, budget.ID)
	if err != nil {
		writeError(w, statusFor(err), "failed to load categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"budget":     budget,
		"categories": categories,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Year == 0 || req.Month == 0 {
		// Default to the previous month.
		prev := time.Now().AddDate(0, -1, 0)
		req.Year, req.Month = prev.Year(), int(prev.Month())
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1-12")
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), UserID(r.Context()), req.Year, req.Month)
	if err != nil {
		writeError(w, statusFor(err), "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportOFX(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ImportOFX(r.Context(), UserID(r.Context()), r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse OFX file")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
