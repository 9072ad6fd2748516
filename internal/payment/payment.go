// Package payment charges buyers through the card gateway. The checkout
// funnel sees it only through ChargeRequest, SavedChargeRequest and Result.
package payment

import (
	"context"
	"errors"

	"ms-boxoffice/internal/apperrors"

	"github.com/shopspring/decimal"
)

// ErrIdempotencyKeyReused means a key was sent again with different
// parameters. The gateway keeps the first outcome of every key.
var ErrIdempotencyKeyReused = errors.New("idempotency key reused with different parameters")

// ChargeRequest is the first, buyer-present charge of an order. The payment
// method is saved on a gateway customer so post-purchase offers can be
// charged without asking for the card again.
type ChargeRequest struct {
	OrderID         string
	IdempotencyKey  string
	Amount          decimal.Decimal
	CustomerName    string
	CustomerEmail   string
	PaymentMethodID string
	Description     string
}

// SavedChargeRequest charges an add-on against the method saved by the
// first charge.
type SavedChargeRequest struct {
	OrderID         string
	IdempotencyKey  string
	Amount          decimal.Decimal
	CustomerID      string
	PaymentMethodID string
	Description     string
}

type Result struct {
	IntentID        string
	CustomerID      string
	PaymentMethodID string
	Status          string
}

// Cents converts a currency amount to the gateway's minor units.
func Cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// classifyContext turns a missed deadline into ErrPaymentTimeout.
func classifyContext(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.ErrPaymentTimeout.WithCause(err)
	}
	return nil
}
