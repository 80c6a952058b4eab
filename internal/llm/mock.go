package llm

import "context"

// MockClient is a mock implementation of Client for testing.
type MockClient struct {
	// ClassifyFn can be set by tests to control behavior
	ClassifyFn func(ctx context.Context, prompt string) (CategoryResponse, error)

	// Call tracking
	ClassifyCalls []string
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{
		ClassifyCalls: []string{},
	}
}

// Classify implements Client.Classify.
func (m *MockClient) Classify(ctx context.Context, prompt string) (CategoryResponse, error) {
	m.ClassifyCalls = append(m.ClassifyCalls, prompt)

	if m.ClassifyFn != nil {
		return m.ClassifyFn(ctx, prompt)
	}
	return CategoryResponse{}, nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.ClassifyCalls = []string{}
}

var _ Client = (*MockClient)(nil)
