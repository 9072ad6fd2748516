package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCents(t *testing.T) {
	assert.Equal(t, int64(4840), Cents(decimal.RequireFromString("48.4")))
	assert.Equal(t, int64(1999), Cents(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(500), Cents(decimal.NewFromInt(5)))
}

func TestSandboxIsIdempotentPerKey(t *testing.T) {
	sb := NewSandbox(logger.Discard())
	req := ChargeRequest{OrderID: "o1", IdempotencyKey: "o1:payment", Amount: decimal.NewFromInt(10), PaymentMethodID: "pm_card_visa"}

	first, err := sb.Authorize(context.Background(), req)
	require.NoError(t, err)
	second, err := sb.Authorize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, sb.Charges())
}

func TestSandboxDeclineAndTimeout(t *testing.T) {
	sb := NewSandbox(logger.Discard())

	_, err := sb.Authorize(context.Background(), ChargeRequest{IdempotencyKey: "a", PaymentMethodID: SandboxDeclinedMethod})
	assert.True(t, errors.Is(err, apperrors.ErrPaymentDeclined))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sb.Authorize(ctx, ChargeRequest{IdempotencyKey: "b", PaymentMethodID: SandboxTimeoutMethod})
	assert.True(t, errors.Is(err, apperrors.ErrPaymentTimeout))
	assert.Equal(t, 0, sb.Charges())
}

func TestSandboxRemembersDeclinesPerKey(t *testing.T) {
	sb := NewSandbox(logger.Discard())
	ctx := context.Background()
	declined := ChargeRequest{OrderID: "o1", IdempotencyKey: "o1:payment:1", Amount: decimal.NewFromInt(10), PaymentMethodID: SandboxDeclinedMethod}

	_, err := sb.Authorize(ctx, declined)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentDeclined))
	_, err = sb.Authorize(ctx, declined)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentDeclined), "a repeated key replays the decline")

	retry := declined
	retry.PaymentMethodID = "pm_card_visa"
	_, err = sb.Authorize(ctx, retry)
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)

	retry.IdempotencyKey = "o1:payment:2"
	_, err = sb.Authorize(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, 1, sb.Charges())
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	_, err := NewStripeGateway("", "usd", logger.Discard())
	assert.ErrorIs(t, err, ErrStripeClientInitFailed)

	gw, err := NewStripeGateway("sk_test_123", "usd", logger.Discard())
	require.NoError(t, err)
	assert.NotNil(t, gw)
}
