// Package feed talks to the transaction aggregator. It exposes a narrow
// client interface so the ingest engine and HTTP handlers can be tested
// against a mock.
package feed

import (
	"context"
	"time"

	"github.com/pennyflow/pennyflow/internal/model"
)

// Record is one transaction as reported by the aggregator, normalized to
// our conventions: positive amounts are money out.
type Record struct {
	Date         time.Time
	ExternalID   string
	Name         string
	MerchantName string
	Categories   []string
	Amount       float64
	Pending      bool
}

// SyncBatch is one page of the aggregator's incremental sync stream.
type SyncBatch struct {
	NextCursor string
	Added      []Record
	Modified   []Record
	Removed    []string
	HasMore    bool
}

// Client is the aggregator surface the rest of the system depends on.
type Client interface {
	// SyncBatch fetches one page of changes after cursor. An empty cursor
	// requests the full history from the beginning.
	SyncBatch(ctx context.Context, accessToken, cursor string) (*SyncBatch, error)

	// CreateLinkToken starts the link flow for a user.
	CreateLinkToken(ctx context.Context, userID string) (string, error)

	// ExchangePublicToken trades the link flow's public token for a
	// long-lived access token and the aggregator's item id.
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)

	// GetInstitution resolves the institution behind an access token.
	GetInstitution(ctx context.Context, accessToken string) (*model.Institution, error)

	// GetBalances fetches current balances for the item's accounts.
	GetBalances(ctx context.Context, accessToken string) ([]model.AccountBalance, error)

	// RemoveItem revokes the access token at the aggregator.
	RemoveItem(ctx context.Context, accessToken string) error

	// VerifyWebhook validates a signed webhook delivery against its raw
	// body. A nil error means the payload is authentic.
	VerifyWebhook(ctx context.Context, body []byte, signature string) error
}
