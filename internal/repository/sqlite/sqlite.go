// Package sqlite implements the repositories on an embedded SQLite database.
// It backs local development (DATABASE_DRIVER=sqlite) and the integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
)

// Open opens a SQLite database with foreign keys enforced. A single connection
// is used so that ":memory:" databases are shared by every query.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return conn, nil
}

// Repository implements persistence interfaces on SQLite.
type Repository struct {
	db *sql.DB
}

// New constructs a Repository over an already migrated database.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ExpenseRepository = (*Repository)(nil)
	_ repository.Pinger            = (*Repository)(nil)
)

// Ping checks the database handle.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, toUnix(user.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", repository.ErrConflict)
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

const expenseColumns = `id, user_id, title, amount, category, date, description, created_at, updated_at`

// CreateExpense inserts an expense.
func (r *Repository) CreateExpense(ctx context.Context, e *domain.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Amount, string(e.Category),
		toUnix(e.Date), e.Description, toUnix(e.CreatedAt), toUnix(e.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create expense: %w", repository.ErrConflict)
	}
	return err
}

// ListExpenses returns the user's expenses matching filter.
func (r *Repository) ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(filter.Category))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, toUnix(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "date < ?")
		args = append(args, toUnix(filter.To))
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ` + orderClause(filter.Sort)

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, expenseID, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

// DeleteExpense removes an expense owned by userID and returns the removed row.
func (r *Repository) DeleteExpense(ctx context.Context, userID, expenseID string) (*domain.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ? RETURNING `+expenseColumns, expenseID, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*domain.Expense, error) {
	var (
		e                          domain.Expense
		category                   string
		date, createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount, &category, &date, &e.Description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Category = domain.Category(category)
	e.Date = fromUnix(date)
	e.CreatedAt = fromUnix(createdAt)
	e.UpdatedAt = fromUnix(updatedAt)
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

// Times are stored as unix milliseconds, the precision the services keep.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromUnix(n int64) time.Time {
	return time.UnixMilli(n).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
