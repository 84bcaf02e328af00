package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ExpenseRepository = (*Repository)(nil)
	_ repository.Pinger            = (*Repository)(nil)
)

// Ping checks the pool can reach the server.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", repository.ErrConflict)
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

const expenseColumns = `id, user_id, title, amount, category, date, description, created_at, updated_at`

// CreateExpense inserts an expense.
func (r *Repository) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	const query = `INSERT INTO expenses (id, user_id, title, amount, category, date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		expense.ID, expense.UserID, expense.Title, expense.Amount, string(expense.Category),
		expense.Date, expense.Description, expense.CreatedAt, expense.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create expense: %w", repository.ErrConflict)
	}
	return err
}

// ListExpenses returns the user's expenses matching filter.
func (r *Repository) ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	var (
		conds = []string{"user_id = $1"}
		args  = []any{userID}
	)
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("date < $%d", len(args)))
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ` + orderClause(filter.Sort)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// GetExpense fetches one expense owned by userID.
func (r *Repository) GetExpense(ctx context.Context, userID, expenseID string) (*domain.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND user_id = $2`
	e, err := scanExpense(r.pool.QueryRow(ctx, query, expenseID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

// DeleteExpense removes an expense owned by userID and returns the removed row.
func (r *Repository) DeleteExpense(ctx context.Context, userID, expenseID string) (*domain.Expense, error) {
	query := `DELETE FROM expenses WHERE id = $1 AND user_id = $2 RETURNING ` + expenseColumns
	e, err := scanExpense(r.pool.QueryRow(ctx, query, expenseID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var (
		e        domain.Expense
		category string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount, &category, &e.Date, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = domain.Category(category)
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

var sortColumns = map[domain.SortField]string{
	domain.SortByDate:      "date",
	domain.SortByAmount:    "amount",
	domain.SortByTitle:     "title",
	domain.SortByCategory:  "category",
	domain.SortByCreatedAt: "created_at",
}

func orderClause(order domain.SortOrder) string {
	column, ok := sortColumns[order.Field]
	if !ok {
		return "seq ASC"
	}
	direction := "ASC"
	if order.Desc {
		direction = "DESC"
	}
	return column + " " + direction + ", seq ASC"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
