package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/service/auth"
	"github.com/splax/expensetracker/internal/service/expense"
)

type credentialsResponse struct {
	Token string             `json:"token"`
	User  domain.UserProfile `json:"user"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	var payload auth.RegisterInput
	if err := decodeJSON(w, req, &payload); err != nil {
		return err
	}
	user, token, err := r.auth.Register(req.Context(), payload)
	r.metrics.recordAuth("register", err)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, credentialsResponse{Token: token, User: user.Profile()})
	return nil
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	var payload auth.LoginInput
	if err := decodeJSON(w, req, &payload); err != nil {
		return err
	}
	user, token, err := r.auth.Login(req.Context(), payload)
	r.metrics.recordAuth("login", err)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, credentialsResponse{Token: token, User: user.Profile()})
	return nil
}

func (r *Router) handleListExpenses(w http.ResponseWriter, req *http.Request) error {
	owner, err := ownerID(req)
	if err != nil {
		return err
	}
	query := req.URL.Query()
	expenses, err := r.expenses.List(req.Context(), owner, expense.ListFilter{
		Category: query.Get("category"),
		Sort:     query.Get("sort"),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, expenses)
	return nil
}

// createExpenseRequest is the wire form of a new expense. Any owner field a
// client sends is ignored.
type createExpenseRequest struct {
	Title       string          `json:"title"`
	Amount      json.RawMessage `json:"amount"`
	Category    string          `json:"category"`
	Date        *string         `json:"date"`
	Description string          `json:"description"`
}

func (p createExpenseRequest) input() (expense.CreateInput, error) {
	in := expense.CreateInput{
		Title:       p.Title,
		Category:    p.Category,
		Description: p.Description,
	}
	var fields []apperror.FieldError
	amount, err := parseAmount(p.Amount)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "amount", Message: "Amount must be a number"})
	}
	in.Amount = amount
	if p.Date != nil && strings.TrimSpace(*p.Date) != "" {
		date, err := parseDate(*p.Date)
		if err != nil {
			fields = append(fields, apperror.FieldError{Field: "date", Message: "Date must be an ISO 8601 date"})
		}
		in.Date = date
	}
	if len(fields) > 0 {
		return expense.CreateInput{}, apperror.Validation(fields...)
	}
	return in, nil
}

// parseAmount accepts a JSON number or a numeric string. A missing or null
// amount yields nil.
func parseAmount(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("amount %q is not finite", text)
	}
	return &v, nil
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unsupported date %q", raw)
}

func (r *Router) handleCreateExpense(w http.ResponseWriter, req *http.Request) error {
	owner, err := ownerID(req)
	if err != nil {
		return err
	}
	var payload createExpenseRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		return err
	}
	in, err := payload.input()
	if err != nil {
		return err
	}
	created, err := r.expenses.Create(req.Context(), owner, in)
	if err != nil {
		return err
	}
	r.metrics.recordExpense("create")
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (r *Router) handleGetExpense(w http.ResponseWriter, req *http.Request) error {
	owner, err := ownerID(req)
	if err != nil {
		return err
	}
	found, err := r.expenses.Get(req.Context(), owner, req.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, found)
	return nil
}

func (r *Router) handleDeleteExpense(w http.ResponseWriter, req *http.Request) error {
	owner, err := ownerID(req)
	if err != nil {
		return err
	}
	deleted, err := r.expenses.Delete(req.Context(), owner, req.PathValue("id"))
	if err != nil {
		return err
	}
	r.metrics.recordExpense("delete")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Expense deleted successfully",
		"expense": deleted,
	})
	return nil
}

func (r *Router) handleExpenseSummary(w http.ResponseWriter, req *http.Request) error {
	owner, err := ownerID(req)
	if err != nil {
		return err
	}
	var month *expense.Month
	if raw := strings.TrimSpace(req.URL.Query().Get("month")); raw != "" {
		m, err := expense.ParseMonth(raw)
		if err != nil {
			return err
		}
		month = &m
	}
	summary, err := r.expenses.Summary(req.Context(), owner, month)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, summary)
	return nil
}
