package utils

import (
	"errors"
	"testing"

	"ms-boxoffice/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leadForm struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Qty   int    `json:"qty" validate:"gt=0"`
}

func TestValidateStructReportsJSONFields(t *testing.T) {
	err := ValidateStruct(leadForm{Email: "not-an-email"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	coded, ok := apperrors.As(err)
	require.True(t, ok)
	details := coded.Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be a valid email address", details["email"])
	assert.Equal(t, "must be greater than 0", details["qty"])
}

func TestValidateStructAcceptsValidInput(t *testing.T) {
	assert.NoError(t, ValidateStruct(leadForm{Name: "Ada", Email: "ada@example.com", Qty: 2}))
}

func TestGenerateOrderIDIsUnique(t *testing.T) {
	assert.NotEqual(t, GenerateOrderID(), GenerateOrderID())
	assert.Len(t, GenerateOrderID(), 36)
}
