package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/pricing"
	"ms-boxoffice/internal/utils"

	"github.com/shopspring/decimal"
)

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order, expectedVersion int64) error
}

type InventoryStore interface {
	Reserve(ctx context.Context, eventID string, holds []models.InventoryHold) error
}

type EventSource interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// TxFunc receives stores bound to one transaction.
type TxFunc func(ctx context.Context, orders OrderStore, inventory InventoryStore) error

type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

type PaymentGateway interface {
	Authorize(ctx context.Context, req payment.ChargeRequest) (payment.Result, error)
	ChargeSaved(ctx context.Context, req payment.SavedChargeRequest) (payment.Result, error)
}

// ChangeNotifier is told about every committed order write.
type ChangeNotifier interface {
	Notify(ctx context.Context, change models.OrderChange) error
}

const protectionItemName = "Ticket Protection"

type OrderService struct {
	Orders   OrderStore
	Events   EventSource
	Tx       Transactor
	Payments PaymentGateway
	Notifier ChangeNotifier
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	PaymentTimeout time.Duration
	now            func() time.Time
}

func NewOrderService(orders OrderStore, events EventSource, tx Transactor, payments PaymentGateway, notifier ChangeNotifier, log *logger.Logger, m *metrics.Metrics, paymentTimeout time.Duration) *OrderService {
	return &OrderService{
		Orders:         orders,
		Events:         events,
		Tx:             tx,
		Payments:       payments,
		Notifier:       notifier,
		Logger:         log,
		Metrics:        m,
		PaymentTimeout: paymentTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- LEAD CAPTURE ----------------

type CustomerInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type DraftRequest struct {
	// OrderID resumes an existing draft instead of creating another.
	OrderID  string        `json:"orderId,omitempty"`
	EventID  string        `json:"eventId" validate:"required"`
	Customer CustomerInput `json:"customer"`
	Tickets  pricing.Cart  `json:"tickets"`
}

// CreateDraft captures a lead: the buyer, the event and the ticket
// selection. Nothing is persisted when validation fails.
func (s *OrderService) CreateDraft(ctx context.Context, req DraftRequest) (*models.Order, error) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	if err := validateDraft(req); err != nil {
		return nil, err
	}

	event, err := s.Events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if _, err := pricing.ComputeFinancials(event, req.Tickets, nil); err != nil {
		return nil, err
	}
	if err := catalog.Check(event, req.Tickets, nil); err != nil {
		return nil, err
	}

	items := pricing.LineItems(event, models.KindTicket, req.Tickets)
	customer := models.Customer{Name: req.Customer.Name, Email: req.Customer.Email}

	if req.OrderID != "" {
		existing, err := s.Orders.GetOrder(ctx, req.OrderID)
		switch {
		case errors.Is(err, apperrors.ErrOrderNotFound):
			s.Logger.LogOrder("DRAFT", req.OrderID, "unknown order id on re-entry, starting a new draft")
		case err != nil:
			return nil, err
		default:
			return s.reviseDraft(ctx, existing, event, customer, items)
		}
	}

	now := s.clock()
	order := &models.Order{
		ID:        utils.GenerateOrderID(),
		EventID:   event.ID,
		EventName: event.Name,
		Customer:  customer,
		Status:    models.StatusDraft,
		Stage:     models.StageDraftCreated,
		Items:     items,
		Upsells:   []models.Upsell{},
		Tags:      event.Tags,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Orders.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	s.Logger.LogOrder("DRAFT", order.ID, fmt.Sprintf("lead captured for event %s (%d tickets)", event.ID, req.Tickets.Qty()))
	s.Metrics.OrderTransition(string(models.StageDraftCreated))
	s.notify(ctx, nil, order)
	return order, nil
}

func validateDraft(req DraftRequest) error {
	details := map[string]string{}
	if err := utils.ValidateStruct(req); err != nil {
		coded, ok := apperrors.As(err)
		if !ok {
			return err
		}
		if fields, ok := coded.Details().(map[string]string); ok {
			for k, v := range fields {
				details[k] = v
			}
		}
	}
	if req.Tickets.Qty() == 0 {
		details["tickets"] = "select at least one ticket"
	}
	if len(details) > 0 {
		return apperrors.ErrValidation.WithDetails(details)
	}
	return nil
}

// reviseDraft updates the buyer and selection of a draft that has not been
// paid for yet.
func (s *OrderService) reviseDraft(ctx context.Context, existing *models.Order, event *models.Event, customer models.Customer, items []models.LineItem) (*models.Order, error) {
	if existing.Stage != models.StageDraftCreated || existing.EventID != event.ID {
		return nil, apperrors.ErrInvalidTransition.Newf("order %s is no longer an editable draft", existing.ID)
	}
	after := existing.Clone()
	after.Customer = customer
	after.Items = items
	if err := s.commit(ctx, s.Orders, existing, after); err != nil {
		return nil, err
	}
	s.Logger.LogOrder("DRAFT", after.ID, "draft revised on re-entry")
	return after, nil
}

// ---------------- PAYMENT ----------------

type PaymentRequest struct {
	Upgrades        pricing.Cart     `json:"upgrades"`
	TermsAccepted   bool             `json:"termsAccepted"`
	PaymentMethodID string           `json:"paymentMethodId" validate:"required"`
	ClientTotal     *decimal.Decimal `json:"clientTotal,omitempty"`
}

// ConfirmPayment moves a draft to payment_confirmed. Inventory reservation,
// the card charge and the order write share one transaction: if any of them
// fails the order stays a draft and can be retried with the same id.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string, req PaymentRequest) (*models.Order, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Stage != models.StageDraftCreated || order.IsPaid() {
		return nil, apperrors.ErrInvalidTransition.Newf("order %s is already past payment", orderID)
	}
	if !req.TermsAccepted {
		return nil, apperrors.ErrTermsNotAccepted
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	event, err := s.Events.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	tickets := pricing.CartFromItems(order.Items, models.KindTicket)
	financials, err := pricing.ComputeFinancials(event, tickets, req.Upgrades)
	if err != nil {
		return nil, err
	}
	if err := catalog.Check(event, tickets, req.Upgrades); err != nil {
		return nil, err
	}
	if req.ClientTotal != nil && !pricing.VerifyClientTotal(financials, *req.ClientTotal) {
		s.Logger.LogSecurity("TOTAL_MISMATCH", fmt.Sprintf("order %s submitted %s, computed %s; charging computed", orderID, req.ClientTotal.StringFixed(2), financials.Total.StringFixed(2)))
		s.Metrics.ClientTotalMismatch()
	}

	now := s.clock()
	after := order.Clone()
	after.Items = append(pricing.LineItems(event, models.KindTicket, tickets), pricing.LineItems(event, models.KindUpgrade, req.Upgrades)...)
	after.Financials = &financials
	after.TermsAccepted = true
	after.TermsAcceptedAt = &now
	after.Stage = models.StagePaymentConfirmed
	after.EventName = event.Name

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, orders OrderStore, inventory InventoryStore) error {
		if err := inventory.Reserve(ctx, event.ID, catalog.Holds(tickets, req.Upgrades)); err != nil {
			return err
		}

		charge := payment.ChargeRequest{
			OrderID:         order.ID,
			Amount:          financials.Total,
			CustomerName:    order.Customer.Name,
			CustomerEmail:   order.Customer.Email,
			PaymentMethodID: req.PaymentMethodID,
			Description:     fmt.Sprintf("%s tickets", event.Name),
		}
		// The gateway replays a key's first outcome, declines included, so a
		// retry with another card or cart needs its own key.
		charge.IdempotencyKey = utils.AttemptKey(order.ID, "payment",
			charge.Amount.StringFixed(2), charge.PaymentMethodID, charge.CustomerName, charge.CustomerEmail, charge.Description)

		payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
		defer cancel()
		result, err := s.Payments.Authorize(payCtx, charge)
		if err != nil {
			if errors.Is(payCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrPaymentTimeout) {
				return apperrors.ErrPaymentTimeout.WithCause(err)
			}
			return err
		}
		after.PaymentIntent = result.IntentID
		after.PaymentCustomer = result.CustomerID
		after.PaymentMethod = result.PaymentMethodID

		return s.write(ctx, orders, order, after)
	})
	if err != nil {
		s.Logger.LogOrder("PAYMENT", orderID, fmt.Sprintf("payment not confirmed, order stays a draft: %v", err))
		return nil, err
	}

	s.Logger.LogOrder("PAYMENT", orderID, fmt.Sprintf("payment confirmed, total %s", financials.Total.StringFixed(2)))
	s.Metrics.OrderTransition(string(models.StagePaymentConfirmed))
	s.notify(ctx, order, after)

	return s.advance(ctx, event, after)
}

func (s *OrderService) paymentTimeout() time.Duration {
	if s.PaymentTimeout <= 0 {
		return 20 * time.Second
	}
	return s.PaymentTimeout
}

// ---------------- POST-PURCHASE OFFERS ----------------

// An accepted offer is reserved on the order before its card is charged.
// The reservation is a versioned write, so of two racing decisions only one
// can reach the gateway. The charge then settles the reservation.
type addOnStep struct {
	name     string
	offered  models.Stage
	pending  models.Stage
	decided  models.Stage
	category string
}

var (
	protectionStep = addOnStep{name: "protection", offered: models.StagePaymentConfirmed, pending: models.StageProtectionPending, decided: models.StageProtectionDecided, category: "PROTECTION"}
	upsellStep     = addOnStep{name: "upsell", offered: models.StageProtectionDecided, pending: models.StageUpsellPending, decided: models.StageUpsellDecided, category: "UPSELL"}
)

func (st addOnStep) reserve(o *models.Order, addOn models.Upsell) {
	if st == protectionStep {
		o.Upsells = append(o.Upsells, addOn)
		return
	}
	o.CustomUpsell = &addOn
}

// reserved returns the unpaid add-on a pending order is holding.
func (st addOnStep) reserved(o *models.Order) *models.Upsell {
	if st == protectionStep {
		if n := len(o.Upsells); n > 0 && !o.Upsells[n-1].Paid {
			return &o.Upsells[n-1]
		}
		return nil
	}
	if o.CustomUpsell != nil && !o.CustomUpsell.Paid {
		return o.CustomUpsell
	}
	return nil
}

func (st addOnStep) withdraw(o *models.Order) {
	if st == protectionStep {
		o.Upsells = o.Upsells[:len(o.Upsells)-1]
		return
	}
	o.CustomUpsell = nil
}

func pendingStep(stage models.Stage) (addOnStep, bool) {
	switch stage {
	case models.StageProtectionPending:
		return protectionStep, true
	case models.StageUpsellPending:
		return upsellStep, true
	}
	return addOnStep{}, false
}

// DecideProtection records the buyer's answer to the protection offer. The
// price is recomputed from the frozen financials, never taken from the client.
func (s *OrderService) DecideProtection(ctx context.Context, orderID string, accepted bool) (*models.Order, error) {
	order, event, err := s.load(ctx, orderID, protectionStep.offered)
	if err != nil {
		return nil, err
	}
	if !accepted || !event.ProtectionEnabled() {
		return s.decline(ctx, event, order, protectionStep)
	}
	cost := pricing.ProtectionCost(event.Protection, *order.Financials)
	return s.accept(ctx, event, order, protectionStep, models.Upsell{Name: protectionItemName, Price: cost})
}

// DecideUpsell records the answer to the single post-purchase offer.
func (s *OrderService) DecideUpsell(ctx context.Context, orderID string, accepted bool) (*models.Order, error) {
	order, event, err := s.load(ctx, orderID, upsellStep.offered)
	if err != nil {
		return nil, err
	}
	if !accepted || !event.UpsellEnabled() {
		return s.decline(ctx, event, order, upsellStep)
	}
	return s.accept(ctx, event, order, upsellStep, models.Upsell{Name: event.Upsell.ItemName, Price: event.Upsell.Price})
}

func (s *OrderService) decline(ctx context.Context, event *models.Event, order *models.Order, st addOnStep) (*models.Order, error) {
	after := order.Clone()
	after.Stage = st.decided
	if err := s.commit(ctx, s.Orders, order, after); err != nil {
		return nil, err
	}
	s.Logger.LogOrder(st.category, order.ID, "accepted=false")
	s.Metrics.OrderTransition(string(st.decided))
	return s.advance(ctx, event, after)
}

func (s *OrderService) accept(ctx context.Context, event *models.Event, order *models.Order, st addOnStep, addOn models.Upsell) (*models.Order, error) {
	pending := order.Clone()
	pending.Stage = st.pending
	st.reserve(pending, addOn)
	if err := s.commit(ctx, s.Orders, order, pending); err != nil {
		return nil, err
	}
	return s.settle(ctx, event, pending, st)
}

// settle charges the add-on a pending order reserved. A decline withdraws
// the reservation and reopens the offer. Any other failure leaves the order
// pending: the charge may have gone through, and Resume retries it under
// the same idempotency key.
func (s *OrderService) settle(ctx context.Context, event *models.Event, pending *models.Order, st addOnStep) (*models.Order, error) {
	addOn := st.reserved(pending)
	if addOn == nil {
		return nil, apperrors.ErrInvalidTransition.Newf("order %s is %s without a reserved add-on", pending.ID, pending.Stage)
	}
	key := utils.IdempotencyKey(pending.ID, fmt.Sprintf("%s:%d", st.name, pending.Version))
	ref, chargeErr := s.chargeAddOn(ctx, pending, key, addOn.Price, addOn.Name)
	if chargeErr != nil && !errors.Is(chargeErr, apperrors.ErrPaymentDeclined) {
		s.Logger.LogOrder(st.category, pending.ID, fmt.Sprintf("charge unsettled, order stays %s: %v", pending.Stage, chargeErr))
		return nil, chargeErr
	}

	after := pending.Clone()
	if chargeErr != nil {
		after.Stage = st.offered
		st.withdraw(after)
	} else {
		after.Stage = st.decided
		settled := st.reserved(after)
		settled.Paid = true
		settled.PaymentRef = ref
	}
	if err := s.commit(ctx, s.Orders, pending, after); err != nil {
		return nil, err
	}
	if chargeErr != nil {
		s.Logger.LogOrder(st.category, pending.ID, fmt.Sprintf("charge declined, offer reopened: %v", chargeErr))
		return nil, chargeErr
	}

	s.Logger.LogOrder(st.category, pending.ID, fmt.Sprintf("accepted=true, charged %s", addOn.Price.StringFixed(2)))
	s.Metrics.OrderTransition(string(st.decided))
	return s.advance(ctx, event, after)
}

func (s *OrderService) chargeAddOn(ctx context.Context, order *models.Order, key string, amount decimal.Decimal, description string) (string, error) {
	if !amount.IsPositive() {
		return "", nil
	}
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	defer cancel()
	result, err := s.Payments.ChargeSaved(payCtx, payment.SavedChargeRequest{
		OrderID:         order.ID,
		IdempotencyKey:  key,
		Amount:          amount,
		CustomerID:      order.PaymentCustomer,
		PaymentMethodID: order.PaymentMethod,
		Description:     description,
	})
	if err != nil {
		if errors.Is(payCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrPaymentTimeout) {
			return "", apperrors.ErrPaymentTimeout.WithCause(err)
		}
		return "", err
	}
	return result.IntentID, nil
}

// ---------------- FINALIZE / RESUME ----------------

// Finalize marks an order paid. It is the only write that changes status,
// and it is what the fulfillment trigger reacts to.
func (s *OrderService) Finalize(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return order, nil
	}
	if order.Stage != models.StageUpsellDecided {
		return nil, apperrors.ErrInvalidTransition.Newf("order %s is at %s, not ready to finalize", orderID, order.Stage)
	}
	return s.finalize(ctx, order)
}

func (s *OrderService) finalize(ctx context.Context, order *models.Order) (*models.Order, error) {
	if !order.TermsAccepted {
		return nil, apperrors.ErrTermsNotAccepted
	}
	if order.Financials == nil {
		return nil, apperrors.ErrInvalidTransition.Newf("order %s has no confirmed financials", order.ID)
	}
	now := s.clock()
	after := order.Clone()
	after.Status = models.StatusPaid
	after.Stage = models.StageFinalized
	after.PaidAt = &now
	after.CheckIns = map[int]bool{}
	after.CheckInMetadata = map[int]string{}

	if err := s.commit(ctx, s.Orders, order, after); err != nil {
		return nil, err
	}
	s.Logger.LogOrder("FINALIZE", order.ID, fmt.Sprintf("order paid, grand total %s", after.GrandTotal().StringFixed(2)))
	s.Metrics.OrderTransition(string(models.StageFinalized))
	return after, nil
}

// Resume carries a stalled order forward through any step that needs no
// buyer input, including an add-on charge that never settled. Drafts and
// paid orders come back unchanged.
func (s *OrderService) Resume(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() || order.Stage == models.StageDraftCreated {
		return order, nil
	}
	event, err := s.Events.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	if st, ok := pendingStep(order.Stage); ok {
		return s.settle(ctx, event, order, st)
	}
	return s.advance(ctx, event, order)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Orders.GetOrder(ctx, orderID)
}

// advance skips offers the event has disabled and finalizes once every
// decision is made. The skip is one write; finalizing is its own write.
func (s *OrderService) advance(ctx context.Context, event *models.Event, order *models.Order) (*models.Order, error) {
	target := order.Stage
	if target == models.StagePaymentConfirmed && !event.ProtectionEnabled() {
		target = models.StageProtectionDecided
	}
	if target == models.StageProtectionDecided && !event.UpsellEnabled() {
		target = models.StageUpsellDecided
	}

	current := order
	if target != order.Stage {
		after := order.Clone()
		after.Stage = target
		if err := s.commit(ctx, s.Orders, order, after); err != nil {
			return nil, err
		}
		s.Logger.LogOrder("SKIP", order.ID, fmt.Sprintf("%s -> %s, offer disabled", order.Stage, target))
		current = after
	}

	if current.Stage == models.StageUpsellDecided {
		return s.finalize(ctx, current)
	}
	return current, nil
}

// load fetches an order that must sit at stage, with its event.
func (s *OrderService) load(ctx context.Context, orderID string, stage models.Stage) (*models.Order, *models.Event, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.IsPaid() || order.Stage != stage {
		return nil, nil, apperrors.ErrInvalidTransition.Newf("order %s is at %s, expected %s", orderID, order.Stage, stage)
	}
	event, err := s.Events.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, nil, err
	}
	return order, event, nil
}

// ---------------- WRITES ----------------

func (s *OrderService) write(ctx context.Context, orders OrderStore, before, after *models.Order) error {
	after.UpdatedAt = s.clock()
	return orders.UpdateOrder(ctx, after, before.Version)
}

func (s *OrderService) commit(ctx context.Context, orders OrderStore, before, after *models.Order) error {
	if err := s.write(ctx, orders, before, after); err != nil {
		return err
	}
	s.notify(ctx, before, after)
	return nil
}

// notify publishes a committed write. The write stands even if delivery
// fails; fulfillment can be retried from the admin console.
func (s *OrderService) notify(ctx context.Context, before, after *models.Order) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, models.NewOrderChange(before.Clone(), after.Clone())); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("Failed to publish change for order %s: %v", after.ID, err))
	}
}

func (s *OrderService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}
