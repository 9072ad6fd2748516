// Package fulfillment reacts to committed order writes: the receipt bundle
// on the transition to paid, and the CRM webhook on lead capture and on
// payment.
package fulfillment

import (
	"context"
	"fmt"
	"os"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/fulfillment/crm"
	"ms-boxoffice/internal/fulfillment/mailer"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/receipt"

	"github.com/google/uuid"
)

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	MarkReceiptSent(ctx context.Context, id string) (bool, error)
}

// Locker hands out owner-tagged keys with an optional expiry.
type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
	Holder(ctx context.Context, name string) (string, error)
}

type Renderer interface {
	Email(order *models.Order) (string, []receipt.Image, error)
	AdminNotification(order *models.Order) (subject, body string, err error)
}

type CRM interface {
	Push(ctx context.Context, contact crm.Contact) error
}

const (
	channelReceipt = "receipt"
	channelAdmin   = "admin_email"
	channelCRM     = "crm"
)

type Trigger struct {
	Orders   OrderStore
	Locks    Locker
	Mailer   mailer.Mailer
	Receipts Renderer
	CRM      CRM
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	AdminAddress string
	LockTTL      time.Duration
	// Instance prefixes lock owners so a held lock names the process
	// holding it.
	Instance string
}

func NewTrigger(orders OrderStore, locks Locker, m mailer.Mailer, receipts Renderer, c CRM, log *logger.Logger, met *metrics.Metrics, adminAddress string, lockTTL time.Duration) *Trigger {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Trigger{
		Orders:       orders,
		Locks:        locks,
		Mailer:       m,
		Receipts:     receipts,
		CRM:          c,
		Logger:       log,
		Metrics:      met,
		AdminAddress: adminAddress,
		LockTTL:      lockTTL,
		Instance:     instanceName(),
	}
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "boxoffice"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func (t *Trigger) owner() string {
	return t.Instance + "/" + uuid.NewString()
}

// Handle adapts HandleChange to the dispatcher and consumer callbacks.
func (t *Trigger) Handle(ctx context.Context, change models.OrderChange) {
	if err := t.HandleChange(ctx, change); err != nil {
		t.Logger.Error("FULFILLMENT", fmt.Sprintf("order %s v%d: %v", change.OrderID, change.Version, err))
	}
}

// HandleChange inspects one committed write. It may see the same change more
// than once; every side effect it fires is deduplicated.
func (t *Trigger) HandleChange(ctx context.Context, change models.OrderChange) error {
	after := change.After
	if after == nil {
		return nil
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if change.Before == nil && !after.IsPaid() {
		keep(t.pushCRM(ctx, after, crm.StatusLead, after.Tags.Interest))
	}

	if after.IsPaid() && !change.Before.IsPaid() {
		keep(t.pushCRM(ctx, after, crm.StatusCustomer, after.Tags.Customer))
		if !after.ReceiptSent {
			_, err := t.sendReceipt(ctx, after.ID)
			keep(err)
		}
	}
	return firstErr
}

// Retry resends the receipt bundle for a paid order whose latch is still
// unset. It reports whether a receipt went out.
func (t *Trigger) Retry(ctx context.Context, orderID string) (bool, error) {
	order, err := t.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.IsPaid() {
		return false, apperrors.ErrOrderNotPaid.Newf("order %s is not paid", orderID)
	}
	if err := t.pushCRM(ctx, order, crm.StatusCustomer, order.Tags.Customer); err != nil {
		t.Logger.Warn("FULFILLMENT", fmt.Sprintf("retry %s: crm push failed: %v", orderID, err))
	}
	return t.sendReceipt(ctx, orderID)
}

func (t *Trigger) sendReceipt(ctx context.Context, orderID string) (bool, error) {
	name := "receipt:" + orderID
	owner := t.owner()
	ok, err := t.Locks.Acquire(ctx, name, owner, t.LockTTL)
	if err != nil {
		t.Metrics.Fulfillment(channelReceipt, "failed")
		return false, apperrors.ErrFulfillmentDeliveryFailed.WithCause(err)
	}
	if !ok {
		holder, err := t.Locks.Holder(ctx, name)
		if err != nil || holder == "" {
			holder = "another worker"
		}
		t.Logger.LogFulfillment("RECEIPT", orderID, fmt.Sprintf("receipt lock held by %s, skipping", holder))
		t.Metrics.Fulfillment(channelReceipt, "skipped")
		return false, nil
	}
	defer func() {
		if err := t.Locks.Release(context.WithoutCancel(ctx), name, owner); err != nil {
			t.Logger.Warn("FULFILLMENT", fmt.Sprintf("release %s: %v", name, err))
		}
	}()

	// the change may be stale; only the stored latch counts
	order, err := t.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.IsPaid() || order.ReceiptSent {
		t.Metrics.Fulfillment(channelReceipt, "skipped")
		return false, nil
	}

	html, images, err := t.Receipts.Email(order)
	if err != nil {
		t.Metrics.Fulfillment(channelReceipt, "failed")
		return false, apperrors.ErrFulfillmentDeliveryFailed.WithCause(err)
	}
	inline := make([]mailer.Attachment, 0, len(images))
	for _, img := range images {
		inline = append(inline, mailer.Attachment{ContentID: img.ContentID, Filename: img.Filename, Data: img.PNG})
	}
	err = t.Mailer.Send(ctx, mailer.Message{
		To:      []string{order.Customer.Email},
		Subject: receipt.Subject(order),
		HTML:    html,
		Inline:  inline,
	})
	if err != nil {
		t.Metrics.Fulfillment(channelReceipt, "failed")
		t.Logger.Error("FULFILLMENT", fmt.Sprintf("receipt for %s not delivered, latch left unset: %v", orderID, err))
		return false, apperrors.ErrFulfillmentDeliveryFailed.WithCause(err)
	}

	marked, err := t.Orders.MarkReceiptSent(ctx, orderID)
	if err != nil {
		return true, err
	}
	if !marked {
		t.Logger.Warn("FULFILLMENT", fmt.Sprintf("receipt latch for %s was already set", orderID))
	}
	t.Metrics.Fulfillment(channelReceipt, "delivered")
	t.Logger.LogFulfillment("RECEIPT", orderID, fmt.Sprintf("receipt sent to %s", order.Customer.Email))

	t.notifyAdmin(ctx, order)
	return true, nil
}

// notifyAdmin sends the organizer copy. The buyer receipt is already out, so
// a failure here is logged and not retried.
func (t *Trigger) notifyAdmin(ctx context.Context, order *models.Order) {
	if t.AdminAddress == "" {
		return
	}
	subject, body, err := t.Receipts.AdminNotification(order)
	if err == nil {
		err = t.Mailer.Send(ctx, mailer.Message{To: []string{t.AdminAddress}, Subject: subject, HTML: body})
	}
	if err != nil {
		t.Metrics.Fulfillment(channelAdmin, "failed")
		t.Logger.Error("FULFILLMENT", fmt.Sprintf("admin notification for %s failed: %v", order.ID, err))
		return
	}
	t.Metrics.Fulfillment(channelAdmin, "delivered")
}

// pushCRM fires one webhook per order and status. The idempotency key is
// claimed first and given back when the push fails, so a later retry can
// try again.
func (t *Trigger) pushCRM(ctx context.Context, order *models.Order, status, tag string) error {
	if t.CRM == nil {
		return nil
	}
	name := fmt.Sprintf("crm:%s:%s", order.ID, status)
	owner := t.owner()
	ok, err := t.Locks.Acquire(ctx, name, owner, 0)
	if err != nil {
		t.Metrics.Fulfillment(channelCRM, "failed")
		return apperrors.ErrFulfillmentDeliveryFailed.WithCause(err)
	}
	if !ok {
		t.Metrics.Fulfillment(channelCRM, "skipped")
		return nil
	}

	err = t.CRM.Push(ctx, crm.Contact{
		Email:     order.Customer.Email,
		Name:      order.Customer.Name,
		Tag:       tag,
		Status:    status,
		EventName: order.EventName,
	})
	if err != nil {
		if relErr := t.Locks.Release(context.WithoutCancel(ctx), name, owner); relErr != nil {
			t.Logger.Warn("FULFILLMENT", fmt.Sprintf("release %s: %v", name, relErr))
		}
		t.Metrics.Fulfillment(channelCRM, "failed")
		return apperrors.ErrFulfillmentDeliveryFailed.WithCause(err)
	}
	t.Metrics.Fulfillment(channelCRM, "delivered")
	t.Logger.LogFulfillment("CRM", order.ID, fmt.Sprintf("%s webhook sent", status))
	return nil
}
