package model

import "time"

// LinkedItem is one aggregator connection (one per institution login).
// SyncCursor is the opaque resumable position of the transaction feed;
// nil means the item has never been synced.
type LinkedItem struct {
	CreatedAt       time.Time
	UserID          string
	PlaidItemID     string
	AccessToken     string
	InstitutionID   string
	InstitutionName string
	SyncCursor      *string
	ID              int64
}

// Institution describes a bank or financial institution.
type Institution struct {
	ID   string
	Name string
}

// AccountBalance is a point-in-time balance for one account of an item.
type AccountBalance struct {
	AccountID string
	Name      string
	Type      string
	Current   float64
	Available float64
}
