package repository

import (
	"context"

	"github.com/splax/expensetracker/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	// CreateUser returns ErrConflict when the email is already taken.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// ExpenseRepository persists expenses. Every read and delete is scoped to the
// owning user id; rows owned by someone else behave as if they did not exist.
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, expense *domain.Expense) error
	ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error)
	GetExpense(ctx context.Context, userID, expenseID string) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, userID, expenseID string) (*domain.Expense, error)
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
