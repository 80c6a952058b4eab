// Package classify assigns budget categories to incoming transactions
// using transfer heuristics, merchant history, and an LLM suggestion that
// is validated against the budget's live category set.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
)

const (
	historyLimit = 50
	// maxHistoryInPrompt bounds how many prior categorizations of the
	// same merchant are shown to the model.
	maxHistoryInPrompt = 5
	// fuzzyThreshold is the normalized edit distance below which two
	// merchant names are considered the same merchant.
	fuzzyThreshold = 0.4
)

// Request carries the transaction fields the classifier needs.
type Request struct {
	UserID           string
	Name             string
	MerchantName     string
	SourceCategories []string
	Amount           float64
}

// Suggestion is a validated category assignment proposal. A nil
// *Suggestion means the transaction stays unclassified.
type Suggestion struct {
	SubcategoryID *int64
	CategoryID    int64
}

// Classifier produces category suggestions for transactions.
type Classifier struct {
	store    service.Storage
	llm      llm.Client
	detector TransferDetector
	logger   *slog.Logger
}

// New creates a Classifier. A nil detector falls back to the keyword
// heuristic.
func New(store service.Storage, llmClient llm.Client, detector TransferDetector) *Classifier {
	if detector == nil {
		detector = NewKeywordDetector()
	}
	return &Classifier{
		store:    store,
		llm:      llmClient,
		detector: detector,
		logger:   slog.Default().With("component", "classify"),
	}
}

// Classify suggests a category for the transaction. Model and API
// failures return (nil, nil): classification must never fail ingestion.
func (c *Classifier) Classify(ctx context.Context, req Request) (*Suggestion, error) {
	budget, err := c.store.GetActiveBudget(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrNoBudget) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve budget: %w", err)
	}

	categories, err := c.store.GetBudgetCategories(ctx, req.UserID, budget.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	// Surplus is never auto-assigned.
	candidates := make([]model.Category, 0, len(categories))
	var excluded *model.Category
	for i := range categories {
		cat := categories[i]
		if cat.Type == model.CategoryTypeSurplus {
			continue
		}
		if cat.Type == model.CategoryTypeExcluded {
			excluded = &categories[i]
		}
		candidates = append(candidates, cat)
	}

	// Transfers short-circuit straight to the excluded category without
	// touching history or the model.
	if c.detector.IsTransfer(req.Name, req.MerchantName, req.SourceCategories) {
		if excluded == nil {
			return nil, nil
		}
		c.logger.Debug("transfer detected",
			"merchant", req.MerchantName,
			"category_id", excluded.ID)
		return &Suggestion{CategoryID: excluded.ID}, nil
	}

	history, err := c.store.GetMerchantHistory(ctx, req.UserID, historyLimit)
	if err != nil {
		c.logger.Warn("failed to load merchant history", "error", err)
		history = nil
	}
	relevant := relevantHistory(req.MerchantName, history)

	prompt := buildPrompt(req, candidates, relevant)

	resp, err := c.llm.Classify(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification failed, leaving unclassified",
			"merchant", req.MerchantName,
			"error", err)
		return nil, nil
	}

	return validate(resp, candidates), nil
}

// relevantHistory selects prior categorizations of the same merchant
// using a normalized edit distance so formatting variants still match.
func relevantHistory(merchant string, history []model.MerchantHistory) []model.MerchantHistory {
	if merchant == "" {
		return nil
	}
	upper := strings.ToUpper(merchant)

	var out []model.MerchantHistory
	for _, h := range history {
		if len(out) >= maxHistoryInPrompt {
			break
		}
		if merchantsMatch(upper, strings.ToUpper(h.MerchantName)) {
			out = append(out, h)
		}
	}
	return out
}

func merchantsMatch(a, b string) bool {
	if a == b {
		return true
	}
	// The distance counts runes, so normalize by runes too.
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(maxLen) < fuzzyThreshold
}

// buildPrompt renders the classification request the model sees.
func buildPrompt(req Request, candidates []model.Category, history []model.MerchantHistory) string {
	var b strings.Builder

	b.WriteString("Classify this financial transaction into one of the budget categories below.\n\n")
	fmt.Fprintf(&b, "Transaction:\n- Name: %s\n- Merchant: %s\n- Amount: %.2f\n", req.Name, req.MerchantName, req.Amount)
	if len(req.SourceCategories) > 0 {
		fmt.Fprintf(&b, "- Source category hints: %s\n", strings.Join(req.SourceCategories, " > "))
	}

	b.WriteString("\nCategories:\n")
	for _, cat := range candidates {
		fmt.Fprintf(&b, "- id=%d name=%q type=%s", cat.ID, cat.Name, cat.Type)
		if cat.ExpectedMerchant != "" {
			fmt.Fprintf(&b, " expected_merchant=%q (priority match if the merchant corresponds)", cat.ExpectedMerchant)
		}
		b.WriteString("\n")
		for _, sub := range cat.Subcategories {
			fmt.Fprintf(&b, "  - subcategory id=%d name=%q\n", sub.ID, sub.Name)
		}
	}

	if len(history) > 0 {
		b.WriteString("\nPrevious categorizations of this merchant (most recent first):\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- %s -> %s (category_id=%d)\n", h.MerchantName, h.CategoryName, h.CategoryID)
		}
	}

	b.WriteString("\nRespond with raw JSON only, no markdown: " +
		`{"category_id": <int or null>, "subcategory_id": <int or null>}` + "\n" +
		"If the category has subcategories you must pick one. " +
		"Use null for both fields if no category fits.\n")

	return b.String()
}

// validate clamps the model's answer to the live category set. The model
// is never trusted to know current ids.
func validate(resp llm.CategoryResponse, candidates []model.Category) *Suggestion {
	if resp.CategoryID == 0 {
		return nil
	}

	var category *model.Category
	for i := range candidates {
		if candidates[i].ID == resp.CategoryID {
			category = &candidates[i]
			break
		}
	}
	if category == nil {
		return nil
	}

	if resp.SubcategoryID != nil {
		if category.SubcategoryByID(*resp.SubcategoryID) == nil {
			// Foreign subcategory: keep the category, drop the sub.
			resp.SubcategoryID = nil
		}
	}

	// A category with subcategories requires one; a bare category answer
	// is treated as unresolved rather than persisted half-done.
	if resp.SubcategoryID == nil && len(category.Subcategories) > 0 {
		return nil
	}

	return &Suggestion{
		CategoryID:    category.ID,
		SubcategoryID: resp.SubcategoryID,
	}
}
