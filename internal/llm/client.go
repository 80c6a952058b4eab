// Package llm provides clients for the language model providers used to
// suggest transaction categories.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (CategoryResponse, error)
}

// CategoryResponse is the model's category suggestion. IDs refer to the
// caller's category set and are validated there, never trusted here.
type CategoryResponse struct {
	SubcategoryID *int64 `json:"subcategory_id"`
	CategoryID    int64  `json:"category_id"`
}

// Config holds LLM provider configuration.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	case "gemini":
		return newGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
