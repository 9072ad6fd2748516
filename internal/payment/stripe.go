package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway charges cards with Stripe PaymentIntents.
type StripeGateway struct {
	client   *client.API
	currency string
	log      *logger.Logger
}

func NewStripeGateway(secretKey, currency string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, nil)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, currency: currency, log: log}, nil
}

// Authorize creates a gateway customer for the buyer and confirms the
// first charge, saving the card for off-session add-on charges.
func (g *StripeGateway) Authorize(ctx context.Context, req ChargeRequest) (Result, error) {
	customerParams := &stripe.CustomerParams{
		Email: stripe.String(req.CustomerEmail),
		Name:  stripe.String(req.CustomerName),
	}
	customerParams.Context = ctx
	customerParams.AddMetadata("order_id", req.OrderID)
	customerParams.SetIdempotencyKey(req.IdempotencyKey + ":customer")

	customer, err := g.client.Customers.New(customerParams)
	if err != nil {
		return Result{}, g.classify(ctx, req.OrderID, err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:           stripe.Int64(Cents(req.Amount)),
		Currency:         stripe.String(g.currency),
		Customer:         stripe.String(customer.ID),
		PaymentMethod:    stripe.String(req.PaymentMethodID),
		Confirm:          stripe.Bool(true),
		SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
		Description:      stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return Result{}, g.classify(ctx, req.OrderID, err)
	}
	if err := requireSucceeded(intent); err != nil {
		g.log.Warn("STRIPE", fmt.Sprintf("Payment intent %s for order %s ended in %s", intent.ID, req.OrderID, intent.Status))
		return Result{}, err
	}

	g.log.Info("STRIPE", fmt.Sprintf("Charged order %s: intent %s (%s %s)", req.OrderID, intent.ID, req.Amount.StringFixed(2), g.currency))
	return Result{
		IntentID:        intent.ID,
		CustomerID:      customer.ID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          string(intent.Status),
	}, nil
}

// ChargeSaved charges an add-on off-session against the saved card.
func (g *StripeGateway) ChargeSaved(ctx context.Context, req SavedChargeRequest) (Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(Cents(req.Amount)),
		Currency:      stripe.String(g.currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return Result{}, g.classify(ctx, req.OrderID, err)
	}
	if err := requireSucceeded(intent); err != nil {
		return Result{}, err
	}

	g.log.Info("STRIPE", fmt.Sprintf("Charged add-on for order %s: intent %s (%s %s)", req.OrderID, intent.ID, req.Amount.StringFixed(2), g.currency))
	return Result{
		IntentID:        intent.ID,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          string(intent.Status),
	}, nil
}

func requireSucceeded(intent *stripe.PaymentIntent) error {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusProcessing:
		return nil
	case stripe.PaymentIntentStatusRequiresAction:
		return apperrors.ErrPaymentDeclined.Newf("card requires additional authentication")
	default:
		return apperrors.ErrPaymentDeclined.Newf("payment ended in status %s", intent.Status)
	}
}

// classify maps gateway failures onto the checkout error taxonomy: card
// errors are declines, missed deadlines are timeouts.
func (g *StripeGateway) classify(ctx context.Context, orderID string, err error) error {
	if timeout := classifyContext(ctx, err); timeout != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Payment for order %s timed out: %v", orderID, err))
		return timeout
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			g.log.Warn("STRIPE", fmt.Sprintf("Card declined for order %s: %s (%s)", orderID, stripeErr.Msg, stripeErr.DeclineCode))
			return apperrors.ErrPaymentDeclined.Newf("%s", stripeErr.Msg).WithCause(err)
		}
		if stripeErr.Type == stripe.ErrorTypeIdempotency {
			g.log.Error("STRIPE", fmt.Sprintf("Idempotency conflict for order %s: %s", orderID, stripeErr.Msg))
			return fmt.Errorf("stripe: %w: %v", ErrIdempotencyKeyReused, err)
		}
	}

	g.log.Error("STRIPE", fmt.Sprintf("Stripe API error for order %s: %v", orderID, err))
	return fmt.Errorf("stripe: %w", err)
}
