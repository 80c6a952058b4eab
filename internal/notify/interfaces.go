// Package notify implements the chat confirmation workflow: posting
// classified transactions to Slack with correction buttons, handling
// button and modal callbacks, and keeping the database ahead of the
// remote message at all times.
package notify

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the slice of the Slack client the workflow depends on.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

var _ API = (*slack.Client)(nil)
