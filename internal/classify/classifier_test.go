package classify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
	"github.com/pennyflow/pennyflow/internal/storage"
)

// trackingStore counts merchant history lookups on top of a real store.
type trackingStore struct {
	service.Storage
	historyCalls int
}

func (s *trackingStore) GetMerchantHistory(ctx context.Context, userID string, limit int) ([]model.MerchantHistory, error) {
	s.historyCalls++
	return s.Storage.GetMerchantHistory(ctx, userID, limit)
}

type fixture struct {
	store     *trackingStore
	llm       *llm.MockClient
	groceries model.Category
	dining    model.Category
	excluded  model.Category
	diningSub model.Subcategory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	raw, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, raw.Migrate(ctx))
	t.Cleanup(func() { _ = raw.Close() })

	budget, err := raw.CreateBudget(ctx, "user-1", "Monthly")
	require.NoError(t, err)

	groceries := &model.Category{BudgetID: budget.ID, Name: "Groceries", Type: model.CategoryTypeVariable, Allocation: 500}
	require.NoError(t, raw.CreateCategory(ctx, "user-1", groceries))

	dining := &model.Category{BudgetID: budget.ID, Name: "Dining", Type: model.CategoryTypeVariable, Allocation: 200}
	require.NoError(t, raw.CreateCategory(ctx, "user-1", dining))

	sub := &model.Subcategory{CategoryID: dining.ID, Name: "Restaurants"}
	require.NoError(t, raw.CreateSubcategory(ctx, "user-1", sub))

	cats, err := raw.GetBudgetCategories(ctx, "user-1", budget.ID)
	require.NoError(t, err)

	f := &fixture{
		store:     &trackingStore{Storage: raw},
		llm:       llm.NewMockClient(),
		groceries: *groceries,
		diningSub: *sub,
	}
	for _, c := range cats {
		switch {
		case c.Type == model.CategoryTypeExcluded:
			f.excluded = c
		case c.ID == dining.ID:
			f.dining = c
		}
	}
	require.NotZero(t, f.excluded.ID)
	return f
}

func TestClassify_TransferShortCircuit(t *testing.T) {
	f := newFixture(t)
	c := New(f.store, f.llm, nil)

	suggestion, err := c.Classify(context.Background(), Request{
		UserID:       "user-1",
		Name:         "ONLINE PAYMENT THANK YOU",
		MerchantName: "Chase",
		Amount:       250.00,
	})
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, f.excluded.ID, suggestion.CategoryID)
	assert.Nil(t, suggestion.SubcategoryID)

	// Transfers never reach history or the model.
	assert.Zero(t, f.store.historyCalls)
	assert.Empty(t, f.llm.ClassifyCalls)
}

func TestClassify_NoBudget(t *testing.T) {
	f := newFixture(t)
	c := New(f.store, f.llm, nil)

	suggestion, err := c.Classify(context.Background(), Request{
		UserID:       "user-without-budget",
		Name:         "COFFEE SHOP",
		MerchantName: "Coffee Shop",
		Amount:       4.50,
	})
	require.NoError(t, err)
	assert.Nil(t, suggestion)
	assert.Empty(t, f.llm.ClassifyCalls)
}

func TestClassify_ModelErrorLeavesUnclassified(t *testing.T) {
	f := newFixture(t)
	f.llm.ClassifyFn = func(_ context.Context, _ string) (llm.CategoryResponse, error) {
		return llm.CategoryResponse{}, errors.New("api timeout")
	}
	c := New(f.store, f.llm, nil)

	suggestion, err := c.Classify(context.Background(), Request{
		UserID:       "user-1",
		Name:         "WHOLEFDS #123",
		MerchantName: "Whole Foods",
		Amount:       60.00,
	})
	require.NoError(t, err)
	assert.Nil(t, suggestion)
}

func TestClassify_ValidatesModelAnswer(t *testing.T) {
	f := newFixture(t)

	foreignSub := f.diningSub.ID

	tests := []struct {
		wantSub  *int64
		name     string
		response llm.CategoryResponse
		wantCat  int64
		wantNil  bool
	}{
		{
			name:     "valid category without subcategories",
			response: llm.CategoryResponse{CategoryID: f.groceries.ID},
			wantCat:  f.groceries.ID,
		},
		{
			name:     "valid category and subcategory",
			response: llm.CategoryResponse{CategoryID: f.dining.ID, SubcategoryID: &f.diningSub.ID},
			wantCat:  f.dining.ID,
			wantSub:  &f.diningSub.ID,
		},
		{
			name:     "unknown category id",
			response: llm.CategoryResponse{CategoryID: 99999},
			wantNil:  true,
		},
		{
			name:     "null answer",
			response: llm.CategoryResponse{},
			wantNil:  true,
		},
		{
			name:     "foreign subcategory dropped",
			response: llm.CategoryResponse{CategoryID: f.groceries.ID, SubcategoryID: &foreignSub},
			wantCat:  f.groceries.ID,
		},
		{
			name:     "subcategory required but missing",
			response: llm.CategoryResponse{CategoryID: f.dining.ID},
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.llm.ClassifyFn = func(_ context.Context, _ string) (llm.CategoryResponse, error) {
				return tt.response, nil
			}
			c := New(f.store, f.llm, nil)

			suggestion, err := c.Classify(context.Background(), Request{
				UserID:       "user-1",
				Name:         "SOME MERCHANT",
				MerchantName: "Some Merchant",
				Amount:       10.00,
			})
			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, suggestion)
				return
			}
			require.NotNil(t, suggestion)
			assert.Equal(t, tt.wantCat, suggestion.CategoryID)
			if tt.wantSub == nil {
				assert.Nil(t, suggestion.SubcategoryID)
			} else {
				require.NotNil(t, suggestion.SubcategoryID)
				assert.Equal(t, *tt.wantSub, *suggestion.SubcategoryID)
			}
		})
	}
}

func TestClassify_MerchantHistoryInPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn := &model.Transaction{
		ID:           "tx-prior",
		UserID:       "user-1",
		Amount:       55.00,
		Name:         "WHOLEFDS #123",
		MerchantName: "Whole Foods",
		Date:         time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, f.store.CreateTransaction(ctx, txn))
	require.NoError(t, f.store.ReplaceAssignments(ctx, "user-1", txn.ID, []model.Assignment{
		{TransactionID: txn.ID, CategoryID: f.groceries.ID, Amount: 55.00},
	}))

	f.llm.ClassifyFn = func(_ context.Context, _ string) (llm.CategoryResponse, error) {
		return llm.CategoryResponse{CategoryID: f.groceries.ID}, nil
	}
	c := New(f.store, f.llm, nil)

	_, err := c.Classify(ctx, Request{
		UserID:       "user-1",
		Name:         "WHOLEFDS #456",
		MerchantName: "WHOLE FOODS MKT",
		Amount:       30.00,
	})
	require.NoError(t, err)

	require.Len(t, f.llm.ClassifyCalls, 1)
	prompt := f.llm.ClassifyCalls[0]
	assert.Contains(t, prompt, "Previous categorizations")
	assert.Contains(t, prompt, "Groceries")
	// Surplus is never offered as a candidate.
	assert.False(t, strings.Contains(strings.ToLower(prompt), "surplus"), "surplus category leaked into prompt")
}

func TestMerchantsMatch(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{name: "identical", a: "TARGET", b: "TARGET", want: true},
		{name: "store number suffix", a: "STARBUCKS", b: "STARBUCKS #123", want: true},
		{name: "unrelated", a: "TARGET", b: "COSTCO", want: false},
		// Accented names are measured in characters, not bytes; two of
		// five characters differ here, which is past the cutoff.
		{name: "accented characters", a: "ÉÉÉÉÉ", b: "ÉÉÉXY", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, merchantsMatch(tt.a, tt.b))
		})
	}
}

func TestKeywordDetector(t *testing.T) {
	d := NewKeywordDetector()

	tests := []struct {
		name       string
		txnName    string
		merchant   string
		categories []string
		want       bool
	}{
		{name: "autopay keyword", txnName: "CHASE CREDIT CRD AUTOPAY", want: true},
		{name: "payment thank you", txnName: "PAYMENT THANK YOU - WEB", want: true},
		{name: "zelle", txnName: "ZELLE TO JANE DOE", want: true},
		{name: "source category hint", txnName: "MONTHLY SWEEP", categories: []string{"Transfer", "Savings"}, want: true},
		{name: "plain purchase", txnName: "WHOLEFDS #123", merchant: "Whole Foods", categories: []string{"Food and Drink"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsTransfer(tt.txnName, tt.merchant, tt.categories))
		})
	}
}
