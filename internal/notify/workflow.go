package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
	"github.com/pennyflow/pennyflow/internal/splits"
)

// Splitter commits split assignments on behalf of the workflow.
type Splitter interface {
	Assign(ctx context.Context, userID, transactionID string, s []splits.Split, manual bool) ([]model.Assignment, error)
	AssignRemainder(ctx context.Context, userID, transactionID string, explicit []splits.Split, final splits.Split, manual bool) ([]model.Assignment, error)
}

// Workflow drives the chat confirmation loop. Every handler writes the
// database before touching the remote message; a failed remote edit
// after a successful write is logged and accepted.
type Workflow struct {
	store    service.Storage
	splitter Splitter
	api      API
	logger   *slog.Logger
	channel  string
}

// NewWorkflow creates the chat workflow posting to the given channel.
func NewWorkflow(store service.Storage, splitter Splitter, api API, channel string) *Workflow {
	return &Workflow{
		store:    store,
		splitter: splitter,
		api:      api,
		channel:  channel,
		logger:   slog.Default().With("component", "notify"),
	}
}

// SendClassified posts the confirmation message for a classified
// transaction and records where it lives.
func (w *Workflow) SendClassified(ctx context.Context, txn *model.Transaction, assignment model.Assignment) error {
	category, err := w.store.GetCategory(ctx, txn.UserID, assignment.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to load category: %w", err)
	}

	budget, err := w.store.GetActiveBudget(ctx, txn.UserID)
	if err != nil {
		return fmt.Errorf("failed to load budget: %w", err)
	}
	categories, err := w.store.GetBudgetCategories(ctx, txn.UserID, budget.ID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	spent, err := w.store.CategorySpent(ctx, txn.UserID, assignment.CategoryID, txn.Date.Year(), int(txn.Date.Month()))
	if err != nil {
		w.logger.Warn("failed to compute month-to-date spend", "error", err)
	}

	blocks := buildClassifiedBlocks(txn, category, assignment, spent, categoryButtons(categories, assignment))

	channelID, ts, err := w.api.PostMessageContext(ctx, w.channel,
		slack.MsgOptionText(fallbackText(txn, category.Name), false),
		slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}

	if err := w.store.SetTransactionNotification(ctx, txn.ID, channelID, ts, model.NotifyStateSent); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// HandleBlockAction routes a button click. Redelivered callbacks are
// tolerated: re-confirming a reviewed transaction is a no-op and
// recategorization reapplies the same deterministic assignment.
func (w *Workflow) HandleBlockAction(ctx context.Context, callback slack.InteractionCallback) error {
	if len(callback.ActionCallback.BlockActions) == 0 {
		return nil
	}
	action := callback.ActionCallback.BlockActions[0]

	switch {
	case action.ActionID == actionConfirm:
		fields := decodeValue(action.Value)
		if len(fields) != 2 {
			return fmt.Errorf("malformed confirm value %q", action.Value)
		}
		return w.confirm(ctx, fields[0], fields[1])

	case action.ActionID == actionSplit:
		fields := decodeValue(action.Value)
		if len(fields) != 2 {
			return fmt.Errorf("malformed split value %q", action.Value)
		}
		return w.openSplitModal(ctx, fields[0], fields[1], callback.TriggerID)

	case strings.HasPrefix(action.ActionID, actionCategorize):
		fields := decodeValue(action.Value)
		if len(fields) != 4 {
			return fmt.Errorf("malformed categorize value %q", action.Value)
		}
		return w.recategorize(ctx, fields[0], fields[1], fields[2], fields[3])

	case strings.HasPrefix(action.ActionID, actionAbsorb):
		return w.absorbSurplus(ctx, callback, action.Value)
	}

	w.logger.Warn("unknown block action", "action_id", action.ActionID)
	return nil
}

func (w *Workflow) confirm(ctx context.Context, userID, transactionID string) error {
	txn, err := w.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.Reviewed {
		w.logger.Debug("transaction already reviewed, ignoring replay", "transaction_id", transactionID)
		return nil
	}

	if err := w.store.SetTransactionReviewed(ctx, userID, transactionID, true); err != nil {
		return fmt.Errorf("failed to mark reviewed: %w", err)
	}
	if err := w.store.SetTransactionNotification(ctx, transactionID, txn.NotifyChannel, txn.NotifyTS, model.NotifyStateResolved); err != nil {
		return fmt.Errorf("failed to update notification state: %w", err)
	}

	w.resolveMessage(ctx, txn, "✓ Confirmed")
	return nil
}

func (w *Workflow) recategorize(ctx context.Context, userID, transactionID, rawCat, rawSub string) error {
	categoryID, err := strconv.ParseInt(rawCat, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed category id %q", rawCat)
	}
	var subcategoryID *int64
	if rawSub != "-" {
		id, err := strconv.ParseInt(rawSub, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed subcategory id %q", rawSub)
		}
		subcategoryID = &id
	}

	txn, err := w.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	// DB first. If this fails the message keeps its buttons so the user
	// can retry.
	if _, err := w.splitter.Assign(ctx, userID, transactionID, []splits.Split{{
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		Amount:        txn.Amount,
	}}, true); err != nil {
		return fmt.Errorf("failed to reassign: %w", err)
	}

	if err := w.store.SetTransactionReviewed(ctx, userID, transactionID, true); err != nil {
		return fmt.Errorf("failed to mark reviewed: %w", err)
	}
	if err := w.store.SetTransactionNotification(ctx, transactionID, txn.NotifyChannel, txn.NotifyTS, model.NotifyStateResolved); err != nil {
		return fmt.Errorf("failed to update notification state: %w", err)
	}

	label := fmt.Sprintf("category %d", categoryID)
	if category, err := w.store.GetCategory(ctx, userID, categoryID); err == nil {
		label = category.Name
		if subcategoryID != nil {
			if sub := category.SubcategoryByID(*subcategoryID); sub != nil {
				label = fmt.Sprintf("%s / %s", category.Name, sub.Name)
			}
		}
	}

	w.resolveMessage(ctx, txn, fmt.Sprintf("↪ Recategorized to *%s*", label))
	return nil
}

func (w *Workflow) openSplitModal(ctx context.Context, userID, transactionID, triggerID string) error {
	txn, err := w.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	modal := buildSplitCountModal(userID, transactionID, txn)
	if _, err := w.api.OpenViewContext(ctx, triggerID, modal); err != nil {
		return fmt.Errorf("failed to open modal: %w", err)
	}
	return nil
}

// HandleViewSubmission drives the two-step split flow. Validation
// failures return field-scoped errors and touch nothing.
func (w *Workflow) HandleViewSubmission(ctx context.Context, callback slack.InteractionCallback) (*slack.ViewSubmissionResponse, error) {
	switch callback.View.CallbackID {
	case callbackSplitCount:
		return w.handleSplitCount(ctx, callback)
	case callbackSplitDetails:
		return w.handleSplitDetails(ctx, callback)
	}
	w.logger.Warn("unknown view submission", "callback_id", callback.View.CallbackID)
	return nil, nil
}

func (w *Workflow) handleSplitCount(ctx context.Context, callback slack.InteractionCallback) (*slack.ViewSubmissionResponse, error) {
	meta := decodeValue(callback.View.PrivateMetadata)
	if len(meta) != 2 {
		return nil, fmt.Errorf("malformed modal metadata")
	}
	userID, transactionID := meta[0], meta[1]

	n, errs := parseSplitCount(callback.View)
	if errs != nil {
		return slack.NewErrorsViewSubmissionResponse(errs), nil
	}

	txn, err := w.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	budget, err := w.store.GetActiveBudget(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}
	categories, err := w.store.GetBudgetCategories(ctx, userID, budget.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	modal := buildSplitDetailsModal(userID, transactionID, txn, categories, n)
	return slack.NewUpdateViewSubmissionResponse(&modal), nil
}

func (w *Workflow) handleSplitDetails(ctx context.Context, callback slack.InteractionCallback) (*slack.ViewSubmissionResponse, error) {
	meta := decodeValue(callback.View.PrivateMetadata)
	if len(meta) != 3 {
		return nil, fmt.Errorf("malformed modal metadata")
	}
	userID, transactionID := meta[0], meta[1]
	n, err := strconv.Atoi(meta[2])
	if err != nil || n < 2 {
		return nil, fmt.Errorf("malformed modal metadata")
	}

	entries, errs := parseSplitDetails(callback.View, n)
	if errs != nil {
		return slack.NewErrorsViewSubmissionResponse(errs), nil
	}

	explicit := make([]splits.Split, 0, n-1)
	for _, e := range entries[:n-1] {
		explicit = append(explicit, splits.Split{
			CategoryID:    e.CategoryID,
			SubcategoryID: e.SubcategoryID,
			Amount:        e.Amount,
		})
	}
	final := splits.Split{
		CategoryID:    entries[n-1].CategoryID,
		SubcategoryID: entries[n-1].SubcategoryID,
	}

	assignments, err := w.splitter.AssignRemainder(ctx, userID, transactionID, explicit, final, true)
	if err != nil {
		if errors.Is(err, splits.ErrAmountMismatch) {
			return slack.NewErrorsViewSubmissionResponse(map[string]string{
				fmt.Sprintf("split_amt_%d", n-1): "Amounts must stay below the transaction total so the last split has a remainder.",
			}), nil
		}
		return nil, fmt.Errorf("failed to commit splits: %w", err)
	}

	txn, err := w.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if err := w.store.SetTransactionReviewed(ctx, userID, transactionID, true); err != nil {
		return nil, fmt.Errorf("failed to mark reviewed: %w", err)
	}
	if err := w.store.SetTransactionNotification(ctx, transactionID, txn.NotifyChannel, txn.NotifyTS, model.NotifyStateResolved); err != nil {
		return nil, fmt.Errorf("failed to update notification state: %w", err)
	}

	lines := make([]string, 0, len(assignments)+1)
	lines = append(lines, fmt.Sprintf("✂ Split %d ways:", len(assignments)))
	names := map[int64]string{}
	for _, a := range assignments {
		label, ok := names[a.CategoryID]
		if !ok {
			label = fmt.Sprintf("category %d", a.CategoryID)
			if category, err := w.store.GetCategory(ctx, userID, a.CategoryID); err == nil {
				label = category.Name
				names[a.CategoryID] = label
			}
		}
		lines = append(lines, fmt.Sprintf("• *%s* — $%.2f", label, a.Amount))
	}
	w.resolveMessage(ctx, txn, lines...)

	return nil, nil
}

// SendSurplusPrompt asks the user which savings category should absorb a
// month-end surplus that has no auto-move target.
func (w *Workflow) SendSurplusPrompt(ctx context.Context, userID string, category model.Category, amount float64, savings []model.Category, year, month int) error {
	if len(savings) == 0 {
		return fmt.Errorf("no savings categories to offer")
	}

	text := fmt.Sprintf("*%s* ended %04d-%02d $%.2f under budget. Where should the surplus go?",
		category.Name, year, month, amount)

	elements := make([]slack.BlockElement, 0, len(savings))
	for i, s := range savings {
		elements = append(elements, slack.NewButtonBlockElement(
			fmt.Sprintf("%s_%d", actionAbsorb, i),
			encodeValue(userID,
				strconv.FormatInt(category.ID, 10),
				strconv.FormatInt(s.ID, 10),
				strconv.Itoa(year),
				strconv.Itoa(month),
				strconv.FormatFloat(amount, 'f', 2, 64)),
			slack.NewTextBlockObject(slack.PlainTextType, s.Name, true, false)))
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	for i := 0; i < len(elements); i += buttonsPerBlock {
		end := i + buttonsPerBlock
		if end > len(elements) {
			end = len(elements)
		}
		blocks = append(blocks, slack.NewActionBlock(fmt.Sprintf("surplus_%d", i/buttonsPerBlock), elements[i:end]...))
	}

	_, _, err := w.api.PostMessageContext(ctx, w.channel,
		slack.MsgOptionText(fmt.Sprintf("%s has a $%.2f surplus", category.Name, amount), false),
		slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("failed to post surplus prompt: %w", err)
	}
	return nil
}

// SendDeficitAlert reports a deficit that could not be covered from the
// linked savings source.
func (w *Workflow) SendDeficitAlert(ctx context.Context, category model.Category, amount float64, source *model.Category) error {
	text := fmt.Sprintf("*%s* ended the month $%.2f over budget", category.Name, amount)
	if source != nil {
		text += fmt.Sprintf(" and *%s* only holds $%.2f — nothing was moved.", source.Name, source.Accumulated)
	} else {
		text += " and has no linked savings source."
	}

	_, _, err := w.api.PostMessageContext(ctx, w.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post deficit alert: %w", err)
	}
	return nil
}

// absorbSurplus applies a user's answer to a surplus prompt. The unique
// movement key makes double-clicks harmless.
func (w *Workflow) absorbSurplus(ctx context.Context, callback slack.InteractionCallback, value string) error {
	fields := decodeValue(value)
	if len(fields) != 6 {
		return fmt.Errorf("malformed absorb value %q", value)
	}
	userID := fields[0]
	categoryID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed category id: %w", err)
	}
	savingsID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed savings id: %w", err)
	}
	year, err := strconv.Atoi(fields[3])
	if err != nil {
		return fmt.Errorf("malformed year: %w", err)
	}
	month, err := strconv.Atoi(fields[4])
	if err != nil {
		return fmt.Errorf("malformed month: %w", err)
	}
	amount, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return fmt.Errorf("malformed amount: %w", err)
	}

	created, err := w.store.CreateFundMovement(ctx, &model.FundMovement{
		UserID:                 userID,
		Kind:                   model.MovementSurplus,
		CategoryID:             categoryID,
		CounterpartyCategoryID: savingsID,
		Year:                   year,
		Month:                  month,
		Amount:                 amount,
	})
	if err != nil {
		return fmt.Errorf("failed to record movement: %w", err)
	}
	if created {
		if err := w.store.AddCategoryAccumulated(ctx, userID, savingsID, amount); err != nil {
			return fmt.Errorf("failed to credit savings: %w", err)
		}
	} else {
		w.logger.Debug("surplus already absorbed, ignoring replay",
			"category_id", categoryID, "year", year, "month", month)
	}

	savingsName := fmt.Sprintf("category %d", savingsID)
	if category, err := w.store.GetCategory(ctx, userID, savingsID); err == nil {
		savingsName = category.Name
	}
	text := fmt.Sprintf("✓ Moved $%.2f to *%s*", amount, savingsName)
	if _, _, _, err := w.api.UpdateMessageContext(ctx, callback.Channel.ID, callback.Message.Timestamp,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil))); err != nil {
		w.logger.Warn("failed to edit surplus prompt", "error", err)
	}
	return nil
}

// resolveMessage strips the buttons from the transaction's message and
// appends resolution lines. Failures are logged, never propagated: the
// database is already correct.
func (w *Workflow) resolveMessage(ctx context.Context, txn *model.Transaction, lines ...string) {
	if txn.NotifyChannel == "" || txn.NotifyTS == "" {
		return
	}

	var blocks []slack.Block
	history, err := w.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: txn.NotifyChannel,
		Latest:    txn.NotifyTS,
		Inclusive: true,
		Limit:     1,
	})
	if err == nil && len(history.Messages) > 0 {
		blocks = stripActionBlocks(history.Messages[0].Blocks.BlockSet)
	} else {
		if err != nil {
			w.logger.Warn("failed to fetch message for edit", "error", err)
		}
		blocks = []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*%s* — $%.2f", txn.MerchantName, txn.Amount), false, false), nil, nil),
		}
	}
	blocks = appendLines(blocks, lines...)

	if _, _, _, err := w.api.UpdateMessageContext(ctx, txn.NotifyChannel, txn.NotifyTS,
		slack.MsgOptionText(lines[0], false),
		slack.MsgOptionBlocks(blocks...)); err != nil {
		w.logger.Warn("remote edit failed after database write, leaving stale message",
			"transaction_id", txn.ID,
			"error", err)
	}
}
