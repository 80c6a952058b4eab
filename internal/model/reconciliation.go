package model

import "time"

// MovementKind tags a fund movement as surplus (variable -> savings) or
// deficit (savings -> variable).
type MovementKind string

const (
	// MovementSurplus moves leftover allocation into a savings category.
	MovementSurplus MovementKind = "surplus"
	// MovementDeficit covers overspend from a savings category.
	MovementDeficit MovementKind = "deficit"
)

// FundMovement is an immutable audit record of money moved between two
// categories for a given (variable category, month, year). One movement
// per (category, year, month, kind) is ever recorded.
type FundMovement struct {
	CreatedAt              time.Time
	ID                     string
	UserID                 string
	Kind                   MovementKind
	CategoryID             int64
	CounterpartyCategoryID int64
	Year                   int
	Month                  int
	Amount                 float64
}

// SavingsSnapshot captures a savings category's accumulated total at
// period end. Unique per (category, year, month); re-running
// reconciliation updates the row in place.
type SavingsSnapshot struct {
	ID         string
	UserID     string
	BudgetID   int64
	CategoryID int64
	Year       int
	Month      int
	Balance    float64
}

// MonthlySummary aggregates a category's spend for one period. Unique per
// (user, category, year, month); recomputed idempotently.
type MonthlySummary struct {
	UserID      string
	BudgetID    *int64
	ID          int64
	CategoryID  int64
	Year        int
	Month       int
	Spent       float64
	Accumulated float64
}
