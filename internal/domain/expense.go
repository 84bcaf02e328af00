package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies an expense.
type Category string

// Known categories.
const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryEntertainment Category = "Entertainment"
	CategoryBills         Category = "Bills"
	CategoryOther         Category = "Other"
)

// DefaultCategory is applied when an expense is created without one.
const DefaultCategory = CategoryOther

var categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryEntertainment,
	CategoryBills,
	CategoryOther,
}

// Categories returns the accepted categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Expense is a single spending record owned by exactly one user.
type Expense struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Amount      float64   `json:"amount"`
	Category    Category  `json:"category"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SortField names a column expenses can be ordered by.
type SortField string

// Sortable fields.
const (
	SortByDate      SortField = "date"
	SortByAmount    SortField = "amount"
	SortByTitle     SortField = "title"
	SortByCategory  SortField = "category"
	SortByCreatedAt SortField = "created_at"
)

// SortOrder orders expense listings. The zero value means insertion order.
type SortOrder struct {
	Field SortField
	Desc  bool
}

// IsZero reports whether no explicit ordering was requested.
func (s SortOrder) IsZero() bool {
	return s.Field == ""
}

// ParseSortOrder accepts "field" or "-field"; "createdAt" is an alias of
// created_at. An empty string yields the zero SortOrder.
func ParseSortOrder(raw string) (SortOrder, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return SortOrder{}, nil
	}
	order := SortOrder{}
	if strings.HasPrefix(value, "-") {
		order.Desc = true
		value = strings.TrimPrefix(value, "-")
	}
	switch SortField(value) {
	case SortByDate, SortByAmount, SortByTitle, SortByCategory, SortByCreatedAt:
		order.Field = SortField(value)
	case "createdAt":
		order.Field = SortByCreatedAt
	default:
		return SortOrder{}, fmt.Errorf("unsupported sort field %q", value)
	}
	return order, nil
}

// ExpenseFilter narrows an owner's expenses.
type ExpenseFilter struct {
	Category Category
	From     time.Time
	To       time.Time
	Sort     SortOrder
}
