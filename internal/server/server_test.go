package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/pennyflow/internal/feed"
	"github.com/pennyflow/pennyflow/internal/ingest"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/reconcile"
	"github.com/pennyflow/pennyflow/internal/splits"
	"github.com/pennyflow/pennyflow/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	store  *storage.SQLiteStorage
	feed   *feed.MockClient
	server *Server
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	feedClient := feed.NewMockClient()
	splitter := splits.NewManager(store)
	engine := ingest.NewEngine(store, feedClient, nil, splitter, nil)
	reconciler := reconcile.New(store, nil)

	srv := New(store, feedClient, engine, splitter, nil, reconciler, testSecret)
	return &testServer{
		store:  store,
		feed:   feedClient,
		server: srv,
		router: srv.Router(),
	}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (ts *testServer) request(t *testing.T, method, path string, body []byte, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/items", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPIRejectsForeignSignature(t *testing.T) {
	ts := newTestServer(t)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExchangePublicToken(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"public_token": "public-sandbox-abc"}`)
	rec := ts.request(t, http.MethodPost, "/api/plaid/exchange", body, "user-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	var item model.LinkedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, "Mock Bank", item.InstitutionName)
	assert.NotZero(t, item.ID)

	rec = ts.request(t, http.MethodPost, "/api/plaid/exchange", []byte(`{}`), "user-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListItems(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	item := &model.LinkedItem{UserID: "user-1", PlaidItemID: "item-abc", AccessToken: "tok"}
	require.NoError(t, ts.store.CreateItem(ctx, item))

	rec := ts.request(t, http.MethodGet, "/api/items", nil, "user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []model.LinkedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	// Another user sees an empty list.
	rec = ts.request(t, http.MethodGet, "/api/items", nil, "user-2")
	require.Equal(t, http.StatusOK, rec.Code)
	items = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestSyncItem(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	item := &model.LinkedItem{UserID: "user-1", PlaidItemID: "item-abc", AccessToken: "tok"}
	require.NoError(t, ts.store.CreateItem(ctx, item))

	ts.feed.SyncBatchFn = func(_ context.Context, _, _ string) (*feed.SyncBatch, error) {
		return &feed.SyncBatch{
			NextCursor: "cursor-1",
			Added: []feed.Record{{
				ExternalID:   "tx-1",
				Name:         "Coffee",
				MerchantName: "Coffee",
				Amount:       4.50,
				Date:         time.Now(),
			}},
		}, nil
	}

	rec := ts.request(t, http.MethodPost, fmt.Sprintf("/api/items/%d/sync", item.ID), nil, "user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var result ingest.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Added)

	// A stranger cannot sync someone else's item.
	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/items/%d/sync", item.ID), nil, "user-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteItem(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	item := &model.LinkedItem{UserID: "user-1", PlaidItemID: "item-abc", AccessToken: "tok"}
	require.NoError(t, ts.store.CreateItem(ctx, item))

	rec := ts.request(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), nil, "user-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ts.feed.RemoveItemCalls)

	_, err := ts.store.GetItem(ctx, "user-1", item.ID)
	require.Error(t, err)
}

func TestDeleteItem_RevocationFailureKeepsRow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	item := &model.LinkedItem{UserID: "user-1", PlaidItemID: "item-abc", AccessToken: "tok"}
	require.NoError(t, ts.store.CreateItem(ctx, item))

	ts.feed.RemoveItemFn = func(_ context.Context, _ string) error {
		return fmt.Errorf("aggregator down")
	}

	rec := ts.request(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), nil, "user-1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// The row survives for a retry.
	_, err := ts.store.GetItem(ctx, "user-1", item.ID)
	require.NoError(t, err)
}

func TestSplitTransaction(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	budget, err := ts.store.CreateBudget(ctx, "user-1", "Monthly")
	require.NoError(t, err)
	groceries := &model.Category{BudgetID: budget.ID, Name: "Groceries", Type: model.CategoryTypeVariable}
	require.NoError(t, ts.store.CreateCategory(ctx, "user-1", groceries))
	dining := &model.Category{BudgetID: budget.ID, Name: "Dining", Type: model.CategoryTypeVariable}
	require.NoError(t, ts.store.CreateCategory(ctx, "user-1", dining))

	require.NoError(t, ts.store.CreateTransaction(ctx, &model.Transaction{
		ID: "tx-1", UserID: "user-1", Amount: 45.00, Name: "Target", Date: time.Now(),
	}))

	body := []byte(fmt.Sprintf(`{"splits": [
		{"category_id": %d, "amount": 30.00},
		{"category_id": %d, "amount": 15.00}
	]}`, groceries.ID, dining.ID))
	rec := ts.request(t, http.MethodPost, "/api/transactions/tx-1/splits", body, "user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var assignments []model.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignments))
	assert.Len(t, assignments, 2)

	// A sum mismatch is a client error.
	body = []byte(fmt.Sprintf(`{"splits": [{"category_id": %d, "amount": 10.00}]}`, groceries.ID))
	rec = ts.request(t, http.MethodPost, "/api/transactions/tx-1/splits", body, "user-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBudget(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/budget", nil, "user-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := ts.store.CreateBudget(context.Background(), "user-1", "Monthly")
	require.NoError(t, err)

	rec = ts.request(t, http.MethodGet, "/api/budget", nil, "user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "categories")
}

func TestReconcileEndpoint(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.store.CreateBudget(context.Background(), "user-1", "Monthly")
	require.NoError(t, err)

	rec := ts.request(t, http.MethodPost, "/api/reconcile", []byte(`{"year": 2026, "month": 7}`), "user-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/reconcile", []byte(`{"year": 2026, "month": 13}`), "user-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportOFXEndpoint_BadFile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/import/ofx", []byte("not ofx"), "user-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaidWebhook_AcksImmediately(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"webhook_type": "TRANSACTIONS", "webhook_code": "SYNC_UPDATES_AVAILABLE", "item_id": "item-unknown"}`)
	rec := ts.request(t, http.MethodPost, "/webhooks/plaid", body, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Non-transaction webhooks are acknowledged and ignored.
	body = []byte(`{"webhook_type": "ITEM", "webhook_code": "ERROR", "item_id": "item-abc"}`)
	rec = ts.request(t, http.MethodPost, "/webhooks/plaid", body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaidWebhook_RejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	ts.feed.VerifyWebhookFn = func(_ context.Context, _ []byte, _ string) error {
		return fmt.Errorf("body hash mismatch")
	}

	body := []byte(`{"webhook_type": "TRANSACTIONS", "webhook_code": "SYNC_UPDATES_AVAILABLE", "item_id": "item-abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/plaid", bytes.NewReader(body))
	req.Header.Set("Plaid-Verification", "not-a-real-jwt")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSlackWebhook_NoWorkflowConfigured(t *testing.T) {
	ts := newTestServer(t)

	form := "payload=" + `{"type": "block_actions"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
