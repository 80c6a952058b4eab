// Package model defines the domain entities shared across the application.
package model

import "time"

// CategoryType governs how a category participates in allocation and
// month-end reconciliation.
type CategoryType string

const (
	// CategoryTypeVariable represents month-to-month discretionary spending.
	CategoryTypeVariable CategoryType = "variable"
	// CategoryTypeFixed represents recurring bills with a stable allocation.
	CategoryTypeFixed CategoryType = "fixed"
	// CategoryTypeSavings represents categories that accumulate a balance.
	CategoryTypeSavings CategoryType = "savings"
	// CategoryTypeSurplus is the system-owned sink for unassigned surplus.
	CategoryTypeSurplus CategoryType = "surplus"
	// CategoryTypeExcluded is the system-owned bucket for transfers and
	// other transactions that should not count against any budget.
	CategoryTypeExcluded CategoryType = "excluded"
)

// IsSystem reports whether the type is owned by the application rather
// than the user.
func (t CategoryType) IsSystem() bool {
	return t == CategoryTypeSurplus || t == CategoryTypeExcluded
}

// Valid reports whether t is a member of the closed category type set.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeVariable, CategoryTypeFixed, CategoryTypeSavings,
		CategoryTypeSurplus, CategoryTypeExcluded:
		return true
	}
	return false
}

// Budget is a user's single active budget.
type Budget struct {
	CreatedAt time.Time
	UserID    string
	Name      string
	ID        int64
}

// Category belongs to exactly one budget.
type Category struct {
	CreatedAt          time.Time
	Name               string
	Type               CategoryType
	Color              string
	ExpectedMerchant   string
	Subcategories      []Subcategory
	AutoMoveCategoryID *int64
	ID                 int64
	BudgetID           int64
	Allocation         float64
	Accumulated        float64
}

// Subcategory is an optional refinement of a category.
type Subcategory struct {
	Name       string
	ID         int64
	CategoryID int64
}

// SubcategoryByID returns the subcategory with the given id, or nil.
func (c *Category) SubcategoryByID(id int64) *Subcategory {
	for i := range c.Subcategories {
		if c.Subcategories[i].ID == id {
			return &c.Subcategories[i]
		}
	}
	return nil
}
