package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/database/dbtest"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(status models.OrderStatus, name string) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:        uuid.NewString(),
		EventID:   "evt-1",
		EventName: "Summer Night",
		Customer:  models.Customer{Name: name, Email: "buyer@example.com"},
		Status:    status,
		Stage:     models.StageDraftCreated,
		Items: []models.LineItem{
			{ProductID: "ga", Name: "General", UnitPrice: decimal.NewFromInt(20), Qty: 2, Kind: models.KindTicket},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInsertAndGetOrder(t *testing.T) {
	orders := db.New(dbtest.New(t))
	ctx := context.Background()

	o := newOrder(models.StatusDraft, "Ada Lovelace")
	require.NoError(t, orders.InsertOrder(ctx, o))
	assert.Equal(t, int64(1), o.Version)

	got, err := orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Customer.Name)
	assert.Nil(t, got.Financials)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromInt(20)))
	assert.Empty(t, got.CheckIns)

	_, err = orders.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrOrderNotFound))
}

func TestUpdateOrderIsCompareAndSwap(t *testing.T) {
	orders := db.New(dbtest.New(t))
	ctx := context.Background()

	o := newOrder(models.StatusDraft, "Ada")
	require.NoError(t, orders.InsertOrder(ctx, o))

	first := *o
	first.Stage = models.StagePaymentConfirmed
	first.Financials = &models.Financials{TicketTotal: decimal.NewFromInt(40), Total: decimal.NewFromInt(40)}
	require.NoError(t, orders.UpdateOrder(ctx, &first, 1))
	assert.Equal(t, int64(2), first.Version)

	stale := *o
	stale.Stage = models.StageFinalized
	err := orders.UpdateOrder(ctx, &stale, 1)
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentUpdate))
	assert.Equal(t, int64(1), stale.Version)

	got, err := orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePaymentConfirmed, got.Stage)
	require.NotNil(t, got.Financials)
	assert.True(t, got.Financials.Total.Equal(decimal.NewFromInt(40)))

	ghost := newOrder(models.StatusDraft, "Nobody")
	err = orders.UpdateOrder(ctx, ghost, 1)
	assert.True(t, errors.Is(err, apperrors.ErrOrderNotFound))
}

func TestMarkReceiptSentOnlyOnce(t *testing.T) {
	orders := db.New(dbtest.New(t))
	ctx := context.Background()

	draft := newOrder(models.StatusDraft, "Draft")
	require.NoError(t, orders.InsertOrder(ctx, draft))
	ok, err := orders.MarkReceiptSent(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, ok, "drafts never get a receipt")

	paid := newOrder(models.StatusPaid, "Paid")
	require.NoError(t, orders.InsertOrder(ctx, paid))

	ok, err = orders.MarkReceiptSent(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = orders.MarkReceiptSent(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orders.GetOrder(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, got.ReceiptSent)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpsertCheckInsLastWriterWins(t *testing.T) {
	orders := db.New(dbtest.New(t))
	ctx := context.Background()

	o := newOrder(models.StatusPaid, "Ada")
	require.NoError(t, orders.InsertOrder(ctx, o))

	require.NoError(t, orders.UpsertCheckIns(ctx, o.ID, []models.CheckIn{{UnitIndex: 0, CheckedIn: true, StaffID: "alice"}}))
	require.NoError(t, orders.UpsertCheckIns(ctx, o.ID, []models.CheckIn{{UnitIndex: 0, CheckedIn: true, StaffID: "bob"}}))
	require.NoError(t, orders.UpsertCheckIns(ctx, o.ID, []models.CheckIn{{UnitIndex: 1, CheckedIn: true, StaffID: "alice"}}))
	require.NoError(t, orders.UpsertCheckIns(ctx, o.ID, []models.CheckIn{{UnitIndex: 1, CheckedIn: false}}))

	got, err := orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 1: false}, got.CheckIns)
	assert.Equal(t, "bob", got.CheckInMetadata[0])
	assert.Equal(t, "alice", got.CheckInMetadata[1], "unchecking keeps the last attribution")
	assert.Equal(t, int64(5), got.Version)
}

func TestListOrdersFiltersAndSearches(t *testing.T) {
	orders := db.New(dbtest.New(t))
	ctx := context.Background()

	ada := newOrder(models.StatusPaid, "Ada Lovelace")
	grace := newOrder(models.StatusPaid, "Grace Hopper")
	draft := newOrder(models.StatusDraft, "Ada Draft")
	other := newOrder(models.StatusPaid, "Ada Elsewhere")
	other.EventID = "evt-2"
	for _, o := range []*models.Order{ada, grace, draft, other} {
		require.NoError(t, orders.InsertOrder(ctx, o))
	}

	paid, err := orders.ListOrders(ctx, db.OrderFilter{EventID: "evt-1", Status: models.StatusPaid})
	require.NoError(t, err)
	assert.Len(t, paid, 2)

	found, err := orders.ListOrders(ctx, db.OrderFilter{EventID: "evt-1", Status: models.StatusPaid, Search: "ada"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ada.ID, found[0].ID)

	byID, err := orders.ListOrders(ctx, db.OrderFilter{Search: grace.ID[:8]})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, grace.ID, byID[0].ID)
}
