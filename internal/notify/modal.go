package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/pennyflow/pennyflow/internal/model"
)

const (
	callbackSplitCount   = "split_count"
	callbackSplitDetails = "split_details"

	maxSplits = 10
)

// buildSplitCountModal asks how many ways to split the transaction.
func buildSplitCountModal(userID, transactionID string, txn *model.Transaction) slack.ModalViewRequest {
	countInput := slack.NewPlainTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "e.g. 3", true, false),
		"count")

	prompt := fmt.Sprintf("Splitting *%s* ($%.2f). How many parts?", txn.MerchantName, txn.Amount)

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackSplitCount,
		PrivateMetadata: encodeValue(userID, transactionID),
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Split transaction", true, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Next", true, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", true, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, prompt, false, false), nil, nil),
			slack.NewInputBlock("split_count",
				slack.NewTextBlockObject(slack.PlainTextType, "Number of parts (2 or more)", true, false),
				nil, countInput),
		}},
	}
}

// categoryOption encodes a category/subcategory pair as a select option.
func categoryOption(cat model.Category, sub *model.Subcategory) *slack.OptionBlockObject {
	label := cat.Name
	value := fmt.Sprintf("%d:-", cat.ID)
	if sub != nil {
		label = fmt.Sprintf("%s / %s", cat.Name, sub.Name)
		value = fmt.Sprintf("%d:%d", cat.ID, sub.ID)
	}
	return slack.NewOptionBlockObject(value,
		slack.NewTextBlockObject(slack.PlainTextType, label, true, false), nil)
}

// buildSplitDetailsModal renders n input groups. The last group has no
// amount field; it consumes whatever remains of the transaction total.
func buildSplitDetailsModal(userID, transactionID string, txn *model.Transaction, categories []model.Category, n int) slack.ModalViewRequest {
	var options []*slack.OptionBlockObject
	for _, cat := range categories {
		if cat.Type == model.CategoryTypeSurplus {
			continue
		}
		if len(cat.Subcategories) == 0 {
			options = append(options, categoryOption(cat, nil))
			continue
		}
		for i := range cat.Subcategories {
			options = append(options, categoryOption(cat, &cat.Subcategories[i]))
		}
	}

	prompt := fmt.Sprintf("Splitting *%s* ($%.2f) into %d parts.", txn.MerchantName, txn.Amount, n)
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, prompt, false, false), nil, nil),
	}

	for i := 1; i <= n; i++ {
		catSelect := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
			slack.NewTextBlockObject(slack.PlainTextType, "Choose a category", true, false),
			"category", options...)

		label := fmt.Sprintf("Split %d category", i)
		if i == n {
			label = fmt.Sprintf("Split %d category (gets the remainder)", i)
		}
		blocks = append(blocks, slack.NewInputBlock(
			fmt.Sprintf("split_cat_%d", i),
			slack.NewTextBlockObject(slack.PlainTextType, label, true, false),
			nil, catSelect))

		if i < n {
			amountInput := slack.NewPlainTextInputBlockElement(
				slack.NewTextBlockObject(slack.PlainTextType, "e.g. 12.50", true, false),
				"amount")
			blocks = append(blocks, slack.NewInputBlock(
				fmt.Sprintf("split_amt_%d", i),
				slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("Split %d amount", i), true, false),
				nil, amountInput))
		}
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackSplitDetails,
		PrivateMetadata: encodeValue(userID, transactionID, strconv.Itoa(n)),
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Split transaction", true, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Save", true, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", true, false),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// parseSplitCount extracts and validates the requested split count.
func parseSplitCount(view slack.View) (int, map[string]string) {
	raw := view.State.Values["split_count"]["count"].Value
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, map[string]string{"split_count": "Enter a whole number."}
	}
	if n < 2 {
		return 0, map[string]string{"split_count": "A split needs at least 2 parts."}
	}
	if n > maxSplits {
		return 0, map[string]string{"split_count": fmt.Sprintf("At most %d parts are supported.", maxSplits)}
	}
	return n, nil
}

// splitEntry is one parsed group from the details modal.
type splitEntry struct {
	SubcategoryID *int64
	CategoryID    int64
	Amount        float64
}

// parseSplitDetails extracts the split groups. Only format-level checks
// happen here; sum validation belongs to the split manager.
func parseSplitDetails(view slack.View, n int) ([]splitEntry, map[string]string) {
	entries := make([]splitEntry, 0, n)
	errs := map[string]string{}

	for i := 1; i <= n; i++ {
		catBlock := fmt.Sprintf("split_cat_%d", i)
		selected := view.State.Values[catBlock]["category"].SelectedOption.Value
		catID, subID, err := parseCategoryValue(selected)
		if err != nil {
			errs[catBlock] = "Choose a category."
			continue
		}

		entry := splitEntry{CategoryID: catID, SubcategoryID: subID}
		if i < n {
			amtBlock := fmt.Sprintf("split_amt_%d", i)
			raw := strings.TrimSpace(view.State.Values[amtBlock]["amount"].Value)
			amount, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				errs[amtBlock] = "Enter a number like 12.50."
				continue
			}
			if amount <= 0 {
				errs[amtBlock] = "Amount must be greater than zero."
				continue
			}
			entry.Amount = amount
		}
		entries = append(entries, entry)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return entries, nil
}

func parseCategoryValue(value string) (int64, *int64, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, nil, fmt.Errorf("malformed category value %q", value)
	}
	catID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, nil, err
	}
	if parts[1] == "-" {
		return catID, nil, nil
	}
	subID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, nil, err
	}
	return catID, &subID, nil
}
