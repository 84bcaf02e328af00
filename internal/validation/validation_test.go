package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/expensetracker/internal/apperror"
)

type sample struct {
	Title    string   `json:"title" validate:"required,max=5"`
	Amount   *float64 `json:"amount" validate:"required,gte=0"`
	Kind     string   `json:"kind" validate:"omitempty,oneof=Food Bills"`
	Email    string   `json:"email_address" validate:"omitempty,email"`
	Password string   `json:"password" validate:"omitempty,min=6"`
}

func ptr(f float64) *float64 { return &f }

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(sample{Title: "Lunch", Amount: ptr(0)})
	assert.NoError(t, err)
}

func TestStructReportsEveryField(t *testing.T) {
	err := Struct(sample{
		Title:    strings.Repeat("x", 6),
		Amount:   ptr(-1),
		Kind:     "Travel",
		Email:    "not-an-email",
		Password: "abc",
	})
	require.Error(t, err)
	appErr := apperror.From(err)
	require.Equal(t, apperror.KindValidation, appErr.Kind)

	assert.ElementsMatch(t, []apperror.FieldError{
		{Field: "title", Message: "Title cannot exceed 5 characters"},
		{Field: "amount", Message: "Amount cannot be negative"},
		{Field: "kind", Message: "Kind must be one of: Food, Bills"},
		{Field: "email_address", Message: "Email address must be a valid email address"},
		{Field: "password", Message: "Password must be at least 6 characters"},
	}, appErr.Fields)
}

func TestStructRequiredFields(t *testing.T) {
	appErr := apperror.From(Struct(sample{}))
	require.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, []apperror.FieldError{
		{Field: "title", Message: "Title is required"},
		{Field: "amount", Message: "Amount is required"},
	}, appErr.Fields)
}

func TestStructMaxCountsRunes(t *testing.T) {
	assert.NoError(t, Struct(sample{Title: "ééééé", Amount: ptr(1)}))
}

func TestStructMaxBytesCountsBytes(t *testing.T) {
	type secret struct {
		Value string `json:"value" validate:"maxbytes=4"`
	}
	assert.NoError(t, Struct(secret{Value: "abcd"}))

	appErr := apperror.From(Struct(secret{Value: "éé é"}))
	require.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, []apperror.FieldError{
		{Field: "value", Message: "Value cannot exceed 4 bytes"},
	}, appErr.Fields)
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct("nope")
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}
