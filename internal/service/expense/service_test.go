package expense

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
)

type stubExpenseRepository struct {
	rows       []domain.Expense
	err        error
	lastFilter domain.ExpenseFilter
	creates    int
}

func (s *stubExpenseRepository) CreateExpense(ctx context.Context, e *domain.Expense) error {
	s.creates++
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, *e)
	return nil
}

func (s *stubExpenseRepository) ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Expense
	for _, e := range s.rows {
		if e.UserID != userID {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if !filter.From.IsZero() && e.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.Date.Before(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubExpenseRepository) GetExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	for _, e := range s.rows {
		if e.ID == id && e.UserID == userID {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubExpenseRepository) DeleteExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	for i, e := range s.rows {
		if e.ID == id && e.UserID == userID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

var fixedNow = time.Date(2025, time.March, 9, 8, 30, 0, 987654321, time.UTC)

func newTestService(repo repository.ExpenseRepository) Service {
	svc := New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func amount(v float64) *float64 { return &v }

func at(t time.Time) *time.Time { return &t }

func fieldNames(t *testing.T, err error) map[string]string {
	t.Helper()
	appErr := apperror.From(err)
	if appErr.Kind != apperror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	out := map[string]string{}
	for _, f := range appErr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestCreateAppliesDefaults(t *testing.T) {
	repo := &stubExpenseRepository{}
	svc := newTestService(repo)

	e, err := svc.Create(context.Background(), "alice", CreateInput{Title: "  Lunch ", Amount: amount(12.5)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := fixedNow.Truncate(time.Millisecond)
	if e.Title != "Lunch" || e.Category != domain.CategoryOther || e.UserID != "alice" {
		t.Fatalf("unexpected expense: %+v", e)
	}
	if !e.Date.Equal(want) || !e.CreatedAt.Equal(want) || !e.UpdatedAt.Equal(want) {
		t.Fatalf("expected timestamps %s, got %+v", want, e)
	}
	if e.ID == "" {
		t.Fatal("expected an id")
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected one stored row, got %d", len(repo.rows))
	}
}

func TestCreateKeepsExplicitFields(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	date := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	e, err := svc.Create(context.Background(), "alice", CreateInput{
		Title:       "Bus",
		Amount:      amount(0),
		Category:    "Transport",
		Description: " monthly pass\n",
		Date:        &date,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Category != domain.CategoryTransport || e.Amount != 0 || e.Description != " monthly pass\n" {
		t.Fatalf("unexpected expense: %+v", e)
	}
	if e.Date.Location() != time.UTC || !e.Date.Equal(date) {
		t.Fatalf("expected date normalised to UTC, got %s", e.Date)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := &stubExpenseRepository{}
	svc := newTestService(repo)

	cases := []struct {
		name  string
		in    CreateInput
		field string
		msg   string
	}{
		{"missing title", CreateInput{Title: "   ", Amount: amount(1)}, "title", "Title is required"},
		{"long title", CreateInput{Title: strings.Repeat("x", 101), Amount: amount(1)}, "title", "Title cannot exceed 100 characters"},
		{"missing amount", CreateInput{Title: "x"}, "amount", "Amount is required"},
		{"negative amount", CreateInput{Title: "x", Amount: amount(-1)}, "amount", "Amount cannot be negative"},
		{"bad category", CreateInput{Title: "x", Amount: amount(1), Category: "Travel"}, "category", "Category must be one of: Food, Transport, Entertainment, Bills, Other"},
		{"long description", CreateInput{Title: "x", Amount: amount(1), Description: strings.Repeat("d", 501)}, "description", "Description cannot exceed 500 characters"},
		{"date before year one", CreateInput{Title: "x", Amount: amount(1), Date: at(time.Date(0, time.December, 31, 0, 0, 0, 0, time.UTC))}, "date", "Date must fall between years 0001 and 9999"},
		{"date past year 9999 in UTC", CreateInput{Title: "x", Amount: amount(1), Date: at(time.Date(9999, time.December, 31, 23, 0, 0, 0, time.FixedZone("EST", -5*3600)))}, "date", "Date must fall between years 0001 and 9999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "alice", tc.in)
			fields := fieldNames(t, err)
			if fields[tc.field] != tc.msg {
				t.Fatalf("expected %s => %q, got %+v", tc.field, tc.msg, fields)
			}
		})
	}
	if repo.creates != 0 {
		t.Fatalf("validation failures must not reach the store, got %d inserts", repo.creates)
	}
}

func TestCreateAcceptsFarDates(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	for _, date := range []time.Time{
		time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1500, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC),
	} {
		e, err := svc.Create(context.Background(), "alice", CreateInput{Title: "x", Amount: amount(1), Date: at(date)})
		if err != nil {
			t.Fatalf("Create(%s): %v", date, err)
		}
		if !e.Date.Equal(date) {
			t.Fatalf("expected %s, got %s", date, e.Date)
		}
	}
}

func TestCreateTitleLimitCountsRunes(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	if _, err := svc.Create(context.Background(), "alice", CreateInput{Title: strings.Repeat("é", 100), Amount: amount(1)}); err != nil {
		t.Fatalf("expected 100 runes to be accepted: %v", err)
	}
}

func TestCreateStoreFailureIsInternal(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{err: errors.New("disk full")})
	_, err := svc.Create(context.Background(), "alice", CreateInput{Title: "x", Amount: amount(1)})
	if apperror.KindOf(err) != apperror.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestListFiltersAndValidates(t *testing.T) {
	repo := &stubExpenseRepository{}
	svc := newTestService(repo)
	ctx := context.Background()
	for _, in := range []CreateInput{
		{Title: "a", Amount: amount(1), Category: "Food"},
		{Title: "b", Amount: amount(2), Category: "Bills"},
		{Title: "c", Amount: amount(3), Category: "Food"},
	} {
		if _, err := svc.Create(ctx, "alice", in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := svc.Create(ctx, "bob", CreateInput{Title: "z", Amount: amount(9), Category: "Food"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	food, err := svc.List(ctx, "alice", ListFilter{Category: "Food", Sort: "-amount"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(food) != 2 || food[0].Title != "a" || food[1].Title != "c" {
		t.Fatalf("unexpected listing: %+v", food)
	}
	if repo.lastFilter.Sort != (domain.SortOrder{Field: domain.SortByAmount, Desc: true}) {
		t.Fatalf("sort not forwarded: %+v", repo.lastFilter.Sort)
	}

	fields := fieldNames(t, func() error { _, err := svc.List(ctx, "alice", ListFilter{Category: "Travel", Sort: "price"}); return err }())
	if _, ok := fields["category"]; !ok {
		t.Fatalf("expected category rejection, got %+v", fields)
	}
	if _, ok := fields["sort"]; !ok {
		t.Fatalf("expected sort rejection, got %+v", fields)
	}
}

func TestListEmptyIsNonNil(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	out, err := svc.List(context.Background(), "alice", ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
}

func TestGetAndDeleteAreOwnerScoped(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	ctx := context.Background()
	e, err := svc.Create(ctx, "alice", CreateInput{Title: "x", Amount: amount(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(ctx, "bob", e.ID); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected not found for foreign get, got %v", err)
	}
	if _, err := svc.Delete(ctx, "bob", e.ID); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	got, err := svc.Get(ctx, "alice", strings.ToUpper(e.ID))
	if err != nil || got.ID != e.ID {
		t.Fatalf("Get: %v %+v", err, got)
	}
	deleted, err := svc.Delete(ctx, "alice", e.ID)
	if err != nil || deleted.ID != e.ID {
		t.Fatalf("Delete: %v %+v", err, deleted)
	}
	if _, err := svc.Delete(ctx, "alice", e.ID); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "123", "not-a-uuid"} {
		_, err := ParseID(raw)
		fields := fieldNames(t, err)
		if fields["id"] != "Invalid expense ID" {
			t.Fatalf("ParseID(%q): unexpected %+v", raw, fields)
		}
	}
}

func TestMissingOwnerIsUnauthenticated(t *testing.T) {
	svc := newTestService(&stubExpenseRepository{})
	if _, err := svc.List(context.Background(), "", ListFilter{}); apperror.KindOf(err) != apperror.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
