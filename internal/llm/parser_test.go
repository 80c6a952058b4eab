package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain JSON untouched",
			input: `{"category_id": 3}`,
			want:  `{"category_id": 3}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"category_id\": 3}\n```",
			want:  `{"category_id": 3}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"category_id\": 3}\n```",
			want:  `{"category_id": 3}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  \n{\"category_id\": 3}\n  ",
			want:  `{"category_id": 3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseCategoryResponse(t *testing.T) {
	t.Run("category only", func(t *testing.T) {
		resp, err := parseCategoryResponse(`{"category_id": 7, "subcategory_id": null}`)
		require.NoError(t, err)
		assert.Equal(t, int64(7), resp.CategoryID)
		assert.Nil(t, resp.SubcategoryID)
	})

	t.Run("category and subcategory", func(t *testing.T) {
		resp, err := parseCategoryResponse("```json\n{\"category_id\": 7, \"subcategory_id\": 12}\n```")
		require.NoError(t, err)
		assert.Equal(t, int64(7), resp.CategoryID)
		require.NotNil(t, resp.SubcategoryID)
		assert.Equal(t, int64(12), *resp.SubcategoryID)
	})

	t.Run("null category is an error", func(t *testing.T) {
		_, err := parseCategoryResponse(`{"category_id": null, "subcategory_id": null}`)
		require.Error(t, err)
	})

	t.Run("not JSON", func(t *testing.T) {
		_, err := parseCategoryResponse("I think this is Groceries.")
		require.Error(t, err)
	})
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{name: "openai", provider: "openai"},
		{name: "anthropic", provider: "anthropic"},
		{name: "unknown", provider: "bard", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(Config{Provider: tt.provider, APIKey: "test-key"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}
