package model

import "time"

// NotifyState tracks where a transaction's chat notification is in its
// lifecycle, so resolution is answerable without a remote round-trip.
type NotifyState string

const (
	// NotifyStateNone means no notification has been sent.
	NotifyStateNone NotifyState = "none"
	// NotifyStateSent means a message with action buttons is live.
	NotifyStateSent NotifyState = "sent"
	// NotifyStateResolved means the user confirmed or recategorized.
	NotifyStateResolved NotifyState = "resolved"
)

// Transaction represents a single ledger entry. ID is the external
// transaction id from the aggregator and is the dedup key. Amount follows
// the feed's sign convention: positive = money out, negative = money in.
type Transaction struct {
	Date             time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ID               string
	UserID           string
	Name             string
	MerchantName     string
	NotifyChannel    string
	NotifyTS         string
	NotifyState      NotifyState
	SourceCategories []string
	ItemID           *int64
	Amount           float64
	Pending          bool
	Reviewed         bool
}

// Assignment joins a transaction to a budget category, carrying the share
// of the transaction's amount attributed to that category. For a given
// transaction the assignment amounts must sum to the transaction amount.
type Assignment struct {
	CreatedAt     time.Time
	TransactionID string
	SubcategoryID *int64
	ID            int64
	CategoryID    int64
	Amount        float64
	Manual        bool
}

// MerchantHistory is one prior categorization of a merchant, used as
// classification context.
type MerchantHistory struct {
	Date          time.Time
	MerchantName  string
	CategoryName  string
	SubcategoryID *int64
	CategoryID    int64
}
