package payment

import (
	"context"
	"fmt"
	"sync"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment method ids the sandbox treats specially.
const (
	SandboxDeclinedMethod = "pm_card_chargeDeclined"
	SandboxTimeoutMethod  = "pm_card_timeout"
)

// Sandbox is an in-memory gateway for local runs without Stripe keys. Every
// charge succeeds except the declined and timeout test methods. Like Stripe,
// it remembers the outcome of each idempotency key, declines included, and
// refuses a key reused with different parameters.
type Sandbox struct {
	mu       sync.Mutex
	attempts map[string]sandboxAttempt
	charged  int
	log      *logger.Logger
}

type sandboxAttempt struct {
	params string
	result Result
	err    error
}

func NewSandbox(log *logger.Logger) *Sandbox {
	return &Sandbox{attempts: map[string]sandboxAttempt{}, log: log}
}

func (s *Sandbox) Authorize(ctx context.Context, req ChargeRequest) (Result, error) {
	return s.charge(ctx, req.IdempotencyKey, req.Amount, req.PaymentMethodID, "cus_"+uuid.NewString()[:12], req.OrderID)
}

func (s *Sandbox) ChargeSaved(ctx context.Context, req SavedChargeRequest) (Result, error) {
	return s.charge(ctx, req.IdempotencyKey, req.Amount, req.PaymentMethodID, req.CustomerID, req.OrderID)
}

func (s *Sandbox) charge(ctx context.Context, key string, amount decimal.Decimal, method, customer, orderID string) (Result, error) {
	if method == SandboxTimeoutMethod {
		<-ctx.Done()
		return Result{}, classifyContext(ctx, ctx.Err())
	}

	params := amount.StringFixed(2) + "|" + method
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.attempts[key]; ok {
		if prior.params != params {
			return Result{}, fmt.Errorf("sandbox: key %s: %w", key, ErrIdempotencyKeyReused)
		}
		return prior.result, prior.err
	}

	attempt := sandboxAttempt{params: params}
	if method == SandboxDeclinedMethod {
		attempt.err = apperrors.ErrPaymentDeclined.Newf("your card was declined")
	} else {
		attempt.result = Result{
			IntentID:        "pi_sandbox_" + uuid.NewString()[:12],
			CustomerID:      customer,
			PaymentMethodID: method,
			Status:          "succeeded",
		}
		s.charged++
		s.log.Info("PAYMENT", fmt.Sprintf("Sandbox charge %s for order %s (%s)", attempt.result.IntentID, orderID, amount.StringFixed(2)))
	}
	s.attempts[key] = attempt
	return attempt.result, attempt.err
}

// Charges reports how many distinct charges were taken.
func (s *Sandbox) Charges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charged
}
