package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrInventoryExceeded.Newf("zone %s has %d left", "ga", 1)
	wrapped := fmt.Errorf("confirm payment: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInventoryExceeded))
	assert.False(t, errors.Is(wrapped, ErrPaymentDeclined))
	assert.Equal(t, CodeInventoryExceeded, CodeOf(wrapped))
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))
}

func TestWithCauseKeepsUnderlyingError(t *testing.T) {
	root := errors.New("smtp: connection refused")
	err := ErrFulfillmentDeliveryFailed.WithCause(root)

	assert.True(t, errors.Is(err, root))
	assert.True(t, errors.Is(err, ErrFulfillmentDeliveryFailed))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUncodedErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestDetailsSurvive(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]string{"email": "is required"})

	coded, ok := As(fmt.Errorf("wrap: %w", err))
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"email": "is required"}, coded.Details())
}
