package expense

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
)

// Month identifies a calendar month in UTC.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Month{}, apperror.InvalidField("month", "Month must use the YYYY-MM format")
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// String formats m as "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Bounds returns the half-open range [start, end) covered by m.
func (m Month) Bounds() (time.Time, time.Time) {
	start := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// CategoryTotal aggregates one category.
type CategoryTotal struct {
	Category domain.Category `json:"category"`
	Total    float64         `json:"total"`
	Count    int             `json:"count"`
}

// DayTotal aggregates one calendar day.
type DayTotal struct {
	Day   string  `json:"day"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Summary is a spending overview for an owner.
type Summary struct {
	Month       string          `json:"month,omitempty"`
	Total       float64         `json:"total"`
	Count       int             `json:"count"`
	Average     float64         `json:"average"`
	TopCategory domain.Category `json:"top_category,omitempty"`
	ByCategory  []CategoryTotal `json:"by_category"`
	ByDay       []DayTotal      `json:"by_day"`
}

type bucket struct {
	total decimal.Decimal
	count int
}

// Summary aggregates the owner's expenses, restricted to month when non-nil.
func (s Service) Summary(ctx context.Context, ownerID string, month *Month) (*Summary, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated(errOwnerRequired)
	}
	filter := domain.ExpenseFilter{}
	if month != nil {
		filter.From, filter.To = month.Bounds()
	}
	expenses, err := s.expenses.ListExpenses(ctx, ownerID, filter)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("summarise expenses: %w", err))
	}
	out := summarise(expenses)
	if month != nil {
		out.Month = month.String()
	}
	return out, nil
}

func summarise(expenses []domain.Expense) *Summary {
	total := decimal.Zero
	byCategory := map[domain.Category]*bucket{}
	byDay := map[string]*bucket{}
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		total = total.Add(amount)
		add(byCategory, e.Category, amount)
		add(byDay, e.Date.UTC().Format(time.DateOnly), amount)
	}

	out := &Summary{
		Total:      round(total),
		Count:      len(expenses),
		ByCategory: make([]CategoryTotal, 0, len(byCategory)),
		ByDay:      make([]DayTotal, 0, len(byDay)),
	}
	if out.Count > 0 {
		out.Average = round(total.Div(decimal.NewFromInt(int64(out.Count))))
	}

	for c, b := range byCategory {
		out.ByCategory = append(out.ByCategory, CategoryTotal{Category: c, Total: round(b.total), Count: b.count})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		a, b := out.ByCategory[i], out.ByCategory[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Category < b.Category
	})
	if len(out.ByCategory) > 0 {
		out.TopCategory = out.ByCategory[0].Category
	}

	for d, b := range byDay {
		out.ByDay = append(out.ByDay, DayTotal{Day: d, Total: round(b.total), Count: b.count})
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Day < out.ByDay[j].Day })
	return out
}

func add[K comparable](m map[K]*bucket, key K, amount decimal.Decimal) {
	b, ok := m[key]
	if !ok {
		b = &bucket{total: decimal.Zero}
		m[key] = b
	}
	b.total = b.total.Add(amount)
	b.count++
}

func round(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
