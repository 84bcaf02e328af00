package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
	"github.com/splax/expensetracker/internal/validation"
)

// CreateInput carries the fields a caller may set on a new expense. Zero
// Category and nil Date fall back to defaults.
type CreateInput struct {
	Title       string     `json:"title" validate:"required,max=100"`
	Amount      *float64   `json:"amount" validate:"required,gte=0"`
	Category    string     `json:"category" validate:"omitempty,oneof=Food Transport Entertainment Bills Other"`
	Description string     `json:"description" validate:"max=500"`
	Date        *time.Time `json:"date"`
}

// ListFilter narrows a listing. Sort accepts "field" or "-field".
type ListFilter struct {
	Category string
	Sort     string
}

// Service manages expenses on behalf of their owners.
type Service struct {
	expenses repository.ExpenseRepository
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an expense service.
func New(expenses repository.ExpenseRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{expenses: expenses, logger: logger, now: time.Now}
}

var errOwnerRequired = errors.New("owner id required")

// ParseID returns the canonical form of a client supplied expense id.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", apperror.InvalidField("id", "Invalid expense ID")
	}
	return id.String(), nil
}

// Create validates input and stores a new expense owned by ownerID.
func (s Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Expense, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated(errOwnerRequired)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if math.IsInf(*in.Amount, 0) {
		return nil, apperror.InvalidField("amount", "Amount must be a finite number")
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	category := domain.DefaultCategory
	if in.Category != "" {
		category = domain.Category(in.Category)
	}
	date := now
	if in.Date != nil {
		date = in.Date.UTC().Truncate(time.Millisecond)
		if date.Before(minDate) || !date.Before(maxDate) {
			return nil, apperror.InvalidField("date", "Date must fall between years 0001 and 9999")
		}
	}
	expense := &domain.Expense{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Title:       in.Title,
		Amount:      *in.Amount,
		Category:    category,
		Date:        date,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.expenses.CreateExpense(ctx, expense); err != nil {
		return nil, apperror.Internal(fmt.Errorf("create expense: %w", err))
	}
	s.logger.InfoContext(ctx, "expense created", "user_id", ownerID, "expense_id", expense.ID)
	return expense, nil
}

// Dates are held to four-digit UTC years, the range RFC 3339 can render.
var (
	minDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(10000, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// List returns the owner's expenses, in insertion order unless a sort is given.
func (s Service) List(ctx context.Context, ownerID string, in ListFilter) ([]domain.Expense, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated(errOwnerRequired)
	}
	filter, err := buildFilter(in)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenses.ListExpenses(ctx, ownerID, filter)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("list expenses: %w", err))
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return expenses, nil
}

func buildFilter(in ListFilter) (domain.ExpenseFilter, error) {
	var (
		filter domain.ExpenseFilter
		fields []apperror.FieldError
	)
	if c := strings.TrimSpace(in.Category); c != "" {
		category := domain.Category(c)
		if !category.Valid() {
			fields = append(fields, apperror.FieldError{Field: "category", Message: categoryMessage()})
		}
		filter.Category = category
	}
	order, err := domain.ParseSortOrder(in.Sort)
	if err != nil {
		fields = append(fields, apperror.FieldError{
			Field:   "sort",
			Message: "Sort must be one of: date, amount, title, category, created_at",
		})
	}
	filter.Sort = order
	if len(fields) > 0 {
		return domain.ExpenseFilter{}, apperror.Validation(fields...)
	}
	return filter, nil
}

func categoryMessage() string {
	names := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		names = append(names, string(c))
	}
	return "Category must be one of: " + strings.Join(names, ", ")
}

// Get returns one expense. Expenses owned by someone else are NotFound.
func (s Service) Get(ctx context.Context, ownerID, rawID string) (*domain.Expense, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated(errOwnerRequired)
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	expense, err := s.expenses.GetExpense(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("Expense not found")
		}
		return nil, apperror.Internal(fmt.Errorf("get expense: %w", err))
	}
	return expense, nil
}

// Delete removes one of the owner's expenses and returns it.
func (s Service) Delete(ctx context.Context, ownerID, rawID string) (*domain.Expense, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated(errOwnerRequired)
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	expense, err := s.expenses.DeleteExpense(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("Expense not found")
		}
		return nil, apperror.Internal(fmt.Errorf("delete expense: %w", err))
	}
	s.logger.InfoContext(ctx, "expense deleted", "user_id", ownerID, "expense_id", expense.ID)
	return expense, nil
}
