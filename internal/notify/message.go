package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/pennyflow/pennyflow/internal/model"
)

const (
	actionConfirm    = "confirm"
	actionSplit      = "split"
	actionCategorize = "categorize"
	actionAbsorb     = "absorb"

	// buttonsPerBlock caps the buttons in one actions block; the rest
	// overflow into additional blocks.
	buttonsPerBlock = 5
)

// valueSep separates fields inside a button value.
const valueSep = "|"

func encodeValue(fields ...string) string {
	return strings.Join(fields, valueSep)
}

func decodeValue(value string) []string {
	return strings.Split(value, valueSep)
}

// categoryButton is one recategorization target.
type categoryButton struct {
	Label         string
	CategoryID    int64
	SubcategoryID *int64
}

// categoryButtons expands the candidate categories into buttons, one per
// subcategory for categories that have them. The currently assigned pair
// and the surplus category are left out.
func categoryButtons(categories []model.Category, current model.Assignment) []categoryButton {
	var buttons []categoryButton
	for _, cat := range categories {
		if cat.Type == model.CategoryTypeSurplus {
			continue
		}
		if len(cat.Subcategories) == 0 {
			if cat.ID == current.CategoryID && current.SubcategoryID == nil {
				continue
			}
			buttons = append(buttons, categoryButton{Label: cat.Name, CategoryID: cat.ID})
			continue
		}
		for _, sub := range cat.Subcategories {
			if cat.ID == current.CategoryID && current.SubcategoryID != nil && *current.SubcategoryID == sub.ID {
				continue
			}
			subID := sub.ID
			buttons = append(buttons, categoryButton{
				Label:         fmt.Sprintf("%s / %s", cat.Name, sub.Name),
				CategoryID:    cat.ID,
				SubcategoryID: &subID,
			})
		}
	}
	return buttons
}

// buildClassifiedBlocks renders the confirmation message for a freshly
// classified transaction.
func buildClassifiedBlocks(txn *model.Transaction, category *model.Category, assignment model.Assignment, spent float64, buttons []categoryButton) []slack.Block {
	label := category.Name
	if assignment.SubcategoryID != nil {
		if sub := category.SubcategoryByID(*assignment.SubcategoryID); sub != nil {
			label = fmt.Sprintf("%s / %s", category.Name, sub.Name)
		}
	}

	header := fmt.Sprintf("*%s* — $%.2f on %s\nCategorized as *%s*",
		txn.MerchantName, txn.Amount, txn.Date.Format("Jan 2"), label)
	if category.Allocation > 0 {
		header += fmt.Sprintf("\n%s this month: $%.2f of $%.2f", category.Name, spent, category.Allocation)
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, header, false, false), nil, nil),
	}

	confirmBtn := slack.NewButtonBlockElement(actionConfirm,
		encodeValue(txn.UserID, txn.ID),
		slack.NewTextBlockObject(slack.PlainTextType, "Looks right ✓", true, false))
	confirmBtn.Style = slack.StylePrimary
	splitBtn := slack.NewButtonBlockElement(actionSplit,
		encodeValue(txn.UserID, txn.ID),
		slack.NewTextBlockObject(slack.PlainTextType, "Split…", true, false))

	elements := []slack.BlockElement{confirmBtn, splitBtn}
	for i, b := range buttons {
		sub := "-"
		if b.SubcategoryID != nil {
			sub = fmt.Sprintf("%d", *b.SubcategoryID)
		}
		elements = append(elements, slack.NewButtonBlockElement(
			fmt.Sprintf("%s_%d", actionCategorize, i),
			encodeValue(txn.UserID, txn.ID, fmt.Sprintf("%d", b.CategoryID), sub),
			slack.NewTextBlockObject(slack.PlainTextType, b.Label, true, false)))
	}

	for i := 0; i < len(elements); i += buttonsPerBlock {
		end := i + buttonsPerBlock
		if end > len(elements) {
			end = len(elements)
		}
		blocks = append(blocks, slack.NewActionBlock(
			fmt.Sprintf("actions_%d", i/buttonsPerBlock),
			elements[i:end]...))
	}

	return blocks
}

// fallbackText is the plain-text push-notification rendering.
func fallbackText(txn *model.Transaction, categoryName string) string {
	return fmt.Sprintf("%s: $%.2f categorized as %s", txn.MerchantName, txn.Amount, categoryName)
}

// stripActionBlocks removes the interactive elements from a message's
// blocks, leaving the informational content.
func stripActionBlocks(blocks []slack.Block) []slack.Block {
	var out []slack.Block
	for _, b := range blocks {
		if b.BlockType() == slack.MBTAction {
			continue
		}
		out = append(out, b)
	}
	return out
}

// appendLines adds mrkdwn lines to the resolved message.
func appendLines(blocks []slack.Block, lines ...string) []slack.Block {
	for _, line := range lines {
		blocks = append(blocks,
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, line, false, false), nil, nil))
	}
	return blocks
}
