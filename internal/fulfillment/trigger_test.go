package fulfillment

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/database/dbtest"
	"ms-boxoffice/internal/fulfillment/crm"
	"ms-boxoffice/internal/fulfillment/lock"
	"ms-boxoffice/internal/fulfillment/mailer"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/receipt"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/tickets/qr"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fakeCRM struct {
	mu       sync.Mutex
	contacts []crm.Contact
	failures int
}

func (f *fakeCRM) Push(_ context.Context, c crm.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("crm unavailable")
	}
	f.contacts = append(f.contacts, c)
	return nil
}

func (f *fakeCRM) pushed() []crm.Contact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crm.Contact(nil), f.contacts...)
}

type fixture struct {
	trigger *Trigger
	orders  *orderdb.DB
	mailer  *MockMailer
	crm     *fakeCRM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	renderer, err := receipt.NewRenderer(qr.NewQRGenerator(tickets.NewSigner("", false)))
	require.NoError(t, err)

	f := &fixture{
		orders: orderdb.New(dbtest.New(t)),
		mailer: &MockMailer{},
		crm:    &fakeCRM{},
	}
	f.trigger = NewTrigger(f.orders, lock.NewRedis(client, "test:"), f.mailer, renderer, f.crm, logger.Discard(), nil, "boxoffice@example.com", time.Minute)
	return f
}

func (f *fixture) insert(t *testing.T, status models.OrderStatus) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	o := &models.Order{
		ID:        "ord-1",
		EventID:   "evt-1",
		EventName: "Summer Night",
		Customer:  models.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Status:    status,
		Stage:     models.StageDraftCreated,
		Items: []models.LineItem{
			{ProductID: "ga", Name: "General Admission", UnitPrice: decimal.NewFromInt(20), Qty: 2, Kind: models.KindTicket},
		},
		Upsells:   []models.Upsell{},
		Tags:      models.CRMTags{Interest: "sn-interest", Customer: "sn-customer"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == models.StatusPaid {
		o.Stage = models.StageFinalized
		o.TermsAccepted = true
		o.Financials = &models.Financials{TicketTotal: decimal.NewFromInt(40), Total: decimal.NewFromInt(40)}
		o.PaidAt = &now
	}
	require.NoError(t, f.orders.InsertOrder(context.Background(), o))
	return o
}

func paidChange(order *models.Order) models.OrderChange {
	before := order.Clone()
	before.Status = models.StatusDraft
	before.Stage = models.StageUpsellDecided
	before.Version = order.Version - 1
	return models.NewOrderChange(before, order.Clone())
}

func isBuyerReceipt(msg mailer.Message) bool {
	return len(msg.To) == 1 && msg.To[0] == "ada@example.com"
}

func isAdminCopy(msg mailer.Message) bool {
	return len(msg.To) == 1 && msg.To[0] == "boxoffice@example.com"
}

func TestDuplicateDeliveryFiresOnce(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isBuyerReceipt)).Return(nil)
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isAdminCopy)).Return(nil)

	change := paidChange(order)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.trigger.HandleChange(context.Background(), change))
		}()
	}
	wg.Wait()
	require.NoError(t, f.trigger.HandleChange(context.Background(), change))

	f.mailer.AssertNumberOfCalls(t, "Send", 2)
	require.Len(t, f.crm.pushed(), 1)
	assert.Equal(t, crm.StatusCustomer, f.crm.pushed()[0].Status)
	assert.Equal(t, "sn-customer", f.crm.pushed()[0].Tag)

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)
}

func TestReceiptCarriesOneImagePerUnit(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)

	var sent mailer.Message
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isBuyerReceipt)).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mailer.Message) }).
		Return(nil)
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isAdminCopy)).Return(nil)

	require.NoError(t, f.trigger.HandleChange(context.Background(), paidChange(order)))

	assert.Equal(t, "Your tickets for Summer Night", sent.Subject)
	require.Len(t, sent.Inline, 2)
	assert.Equal(t, "unit-0", sent.Inline[0].ContentID)
	assert.Equal(t, "unit-1", sent.Inline[1].ContentID)
}

func TestDeliveryFailureLeavesLatchForRetry(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isBuyerReceipt)).Return(errors.New("smtp: 421 try later")).Once()
	err := f.trigger.HandleChange(context.Background(), paidChange(order))
	assert.True(t, errors.Is(err, apperrors.ErrFulfillmentDeliveryFailed))

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReceiptSent)
	assert.Equal(t, models.StatusPaid, stored.Status, "delivery failure never reverts payment")

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isBuyerReceipt)).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isAdminCopy)).Return(nil).Once()

	sent, err := f.trigger.Retry(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = f.trigger.Retry(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, sent, "latch is set, nothing is resent")

	stored, err = f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)
	f.mailer.AssertExpectations(t)
}

func TestAdminFailureDoesNotBlockLatch(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isBuyerReceipt)).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(isAdminCopy)).Return(errors.New("mailbox full")).Once()

	require.NoError(t, f.trigger.HandleChange(context.Background(), paidChange(order)))

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)
}

func TestLeadCaptureFiresCRMOnce(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusDraft)

	change := models.NewOrderChange(nil, order.Clone())
	require.NoError(t, f.trigger.HandleChange(context.Background(), change))
	require.NoError(t, f.trigger.HandleChange(context.Background(), change))

	pushed := f.crm.pushed()
	require.Len(t, pushed, 1)
	assert.Equal(t, crm.Contact{
		Email:     "ada@example.com",
		Name:      "Ada Lovelace",
		Tag:       "sn-interest",
		Status:    crm.StatusLead,
		EventName: "Summer Night",
	}, pushed[0])
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFailedCRMPushIsRetriedOnRedelivery(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusDraft)
	f.crm.failures = 1

	change := models.NewOrderChange(nil, order.Clone())
	err := f.trigger.HandleChange(context.Background(), change)
	assert.True(t, errors.Is(err, apperrors.ErrFulfillmentDeliveryFailed))
	assert.Empty(t, f.crm.pushed())

	require.NoError(t, f.trigger.HandleChange(context.Background(), change))
	assert.Len(t, f.crm.pushed(), 1)
}

func TestWritesAfterPaidFireNothing(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)

	// e.g. a check-in write on a paid order
	after := order.Clone()
	after.Version++
	require.NoError(t, f.trigger.HandleChange(context.Background(), models.NewOrderChange(order.Clone(), after)))

	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Empty(t, f.crm.pushed())
}

func TestRetryRejectsUnpaidOrders(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusDraft)

	_, err := f.trigger.Retry(context.Background(), order.ID)
	assert.True(t, errors.Is(err, apperrors.ErrOrderNotPaid))

	_, err = f.trigger.Retry(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrOrderNotFound))
}

func TestHeldReceiptLockNamesItsHolder(t *testing.T) {
	f := newFixture(t)
	order := f.insert(t, models.StatusPaid)
	ctx := context.Background()

	var logs bytes.Buffer
	f.trigger.Logger = logger.NewWithWriter(&logs)
	f.trigger.Instance = "worker-a"

	ok, err := f.trigger.Locks.Acquire(ctx, "receipt:"+order.ID, "worker-b/1234", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sent, err := f.trigger.Retry(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Contains(t, logs.String(), "receipt lock held by worker-b/1234")
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	holder, err := f.trigger.Locks.Holder(ctx, "crm:"+order.ID+":"+crm.StatusCustomer)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holder, "worker-a/"), holder)
}
