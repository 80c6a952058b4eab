package feed

import (
	"context"

	"github.com/pennyflow/pennyflow/internal/model"
)

// MockClient is a mock implementation of Client for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	SyncBatchFn           func(ctx context.Context, accessToken, cursor string) (*SyncBatch, error)
	CreateLinkTokenFn     func(ctx context.Context, userID string) (string, error)
	ExchangePublicTokenFn func(ctx context.Context, publicToken string) (string, string, error)
	GetInstitutionFn      func(ctx context.Context, accessToken string) (*model.Institution, error)
	GetBalancesFn         func(ctx context.Context, accessToken string) ([]model.AccountBalance, error)
	RemoveItemFn          func(ctx context.Context, accessToken string) error
	VerifyWebhookFn       func(ctx context.Context, body []byte, signature string) error

	// Call tracking
	SyncBatchCalls  []SyncBatchCall
	RemoveItemCalls int
}

// SyncBatchCall records the parameters of a SyncBatch call.
type SyncBatchCall struct {
	AccessToken string
	Cursor      string
}

// NewMockClient creates a new mock feed client.
func NewMockClient() *MockClient {
	return &MockClient{
		SyncBatchCalls: []SyncBatchCall{},
	}
}

// SyncBatch implements Client.SyncBatch.
func (m *MockClient) SyncBatch(ctx context.Context, accessToken, cursor string) (*SyncBatch, error) {
	m.SyncBatchCalls = append(m.SyncBatchCalls, SyncBatchCall{AccessToken: accessToken, Cursor: cursor})

	if m.SyncBatchFn != nil {
		return m.SyncBatchFn(ctx, accessToken, cursor)
	}
	return &SyncBatch{}, nil
}

// CreateLinkToken implements Client.CreateLinkToken.
func (m *MockClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if m.CreateLinkTokenFn != nil {
		return m.CreateLinkTokenFn(ctx, userID)
	}
	return "link-sandbox-mock", nil
}

// ExchangePublicToken implements Client.ExchangePublicToken.
func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	if m.ExchangePublicTokenFn != nil {
		return m.ExchangePublicTokenFn(ctx, publicToken)
	}
	return "access-sandbox-mock", "item-mock", nil
}

// GetInstitution implements Client.GetInstitution.
func (m *MockClient) GetInstitution(ctx context.Context, accessToken string) (*model.Institution, error) {
	if m.GetInstitutionFn != nil {
		return m.GetInstitutionFn(ctx, accessToken)
	}
	return &model.Institution{ID: "ins_mock", Name: "Mock Bank"}, nil
}

// GetBalances implements Client.GetBalances.
func (m *MockClient) GetBalances(ctx context.Context, accessToken string) ([]model.AccountBalance, error) {
	if m.GetBalancesFn != nil {
		return m.GetBalancesFn(ctx, accessToken)
	}
	return []model.AccountBalance{}, nil
}

// RemoveItem implements Client.RemoveItem.
func (m *MockClient) RemoveItem(ctx context.Context, accessToken string) error {
	m.RemoveItemCalls++

	if m.RemoveItemFn != nil {
		return m.RemoveItemFn(ctx, accessToken)
	}
	return nil
}

// VerifyWebhook implements Client.VerifyWebhook.
func (m *MockClient) VerifyWebhook(ctx context.Context, body []byte, signature string) error {
	if m.VerifyWebhookFn != nil {
		return m.VerifyWebhookFn(ctx, body, signature)
	}
	return nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.SyncBatchCalls = []SyncBatchCall{}
	m.RemoveItemCalls = 0
}

var _ Client = (*MockClient)(nil)
