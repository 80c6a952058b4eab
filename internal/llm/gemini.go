package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiClient implements the Client interface for Google's Gemini API.
type geminiClient struct {
	apiKey string
	model  string
}

// newGeminiClient creates a new Gemini API client.
func newGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &geminiClient{
		apiKey: cfg.APIKey,
		model:  model,
	}, nil
}

// Classify sends a classification request to Gemini.
func (c *geminiClient) Classify(ctx context.Context, prompt string) (CategoryResponse, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return CategoryResponse{}, fmt.Errorf("failed to create gemini client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: systemPrompt + "\n\n" + prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return CategoryResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return CategoryResponse{}, fmt.Errorf("empty response from model")
	}

	return parseCategoryResponse(rawText)
}
