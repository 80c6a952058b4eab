package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanMarkdownWrapper strips code fences the model sometimes adds despite
// being told not to.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		}
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}

// parseCategoryResponse extracts the suggested category from raw model
// output.
func parseCategoryResponse(content string) (CategoryResponse, error) {
	content = cleanMarkdownWrapper(content)

	var resp CategoryResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return CategoryResponse{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if resp.CategoryID == 0 {
		return CategoryResponse{}, fmt.Errorf("no category found in response")
	}
	return resp, nil
}

// systemPrompt is shared across providers.
const systemPrompt = "You are a financial transaction classifier. " +
	"Respond only with raw JSON in the exact format requested, with no markdown fences or extra text."
