package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-boxoffice/internal/models"
	orderdb "ms-boxoffice/internal/order/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderLister struct {
	mock.Mock
}

func (m *MockOrderLister) ListOrders(ctx context.Context, f orderdb.OrderFilter) ([]*models.Order, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func paid(id string, day time.Time, protection string) *models.Order {
	o := &models.Order{
		ID:      id,
		EventID: "evt-1",
		Status:  models.StatusPaid,
		Items: []models.LineItem{
			{ProductID: "ga", Name: "General Admission", UnitPrice: d("20"), Qty: 2, Kind: models.KindTicket},
			{ProductID: "parking", Name: "Parking", UnitPrice: d("15"), Qty: 1, Kind: models.KindUpgrade},
		},
		Financials: &models.Financials{
			TicketTotal:  d("40"),
			UpgradeTotal: d("15"),
			FeeTotal:     d("4"),
			Tax:          d("5.9"),
			Total:        d("64.9"),
		},
		CreatedAt:       day,
		PaidAt:          &day,
		CheckIns:        map[int]bool{0: true},
		CheckInMetadata: map[int]string{0: "staff-a"},
	}
	if protection != "" {
		o.Upsells = []models.Upsell{{Name: "Ticket Protection", Price: d(protection), Paid: true}}
	}
	return o
}

func TestEventStats(t *testing.T) {
	day1 := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	orders := []*models.Order{
		paid("o1", day1, "6"),
		paid("o2", day2, ""),
		{ID: "o3", EventID: "evt-1", Status: models.StatusDraft, CreatedAt: day2},
	}
	lister := &MockOrderLister{}
	lister.On("ListOrders", mock.Anything, orderdb.OrderFilter{EventID: "evt-1"}).Return(orders, nil)

	stats, err := NewService(lister).EventStats(context.Background(), "evt-1")
	require.NoError(t, err)

	assert.True(t, stats.Revenue.Equal(d("129.8")))
	assert.True(t, stats.TicketRevenue.Equal(d("80")))
	assert.True(t, stats.UpgradeRevenue.Equal(d("30")))
	assert.True(t, stats.FeeRevenue.Equal(d("8")))
	assert.True(t, stats.TaxRevenue.Equal(d("11.8")))
	assert.True(t, stats.AddOnRevenue.Equal(d("6")), "add-ons are reported outside of financials totals")
	assert.True(t, stats.GrossRevenue.Equal(d("135.8")))
	assert.Equal(t, 4, stats.TicketsSold)
	assert.Equal(t, 2, stats.UpgradesSold)
	assert.Equal(t, 2, stats.CheckedIn)
	assert.Equal(t, 2, stats.PaidOrders)
	assert.Equal(t, 1, stats.DraftOrders)

	require.Len(t, stats.DailySales, 2)
	assert.Equal(t, "2026-06-01", stats.DailySales[0].Date)
	assert.Equal(t, 2, stats.DailySales[0].TicketsSold)

	require.Len(t, stats.SalesByLine, 2)
	assert.Equal(t, "ga", stats.SalesByLine[0].ProductID)
	assert.Equal(t, 4, stats.SalesByLine[0].Qty)
	assert.True(t, stats.SalesByLine[1].Revenue.Equal(d("30")))
	lister.AssertExpectations(t)
}

func TestOverview(t *testing.T) {
	day := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	lister := &MockOrderLister{}
	lister.On("ListOrders", mock.Anything, orderdb.OrderFilter{Status: models.StatusPaid}).
		Return([]*models.Order{paid("o1", day, "6"), paid("o2", day, "")}, nil)

	ov, err := NewService(lister).Overview(context.Background())
	require.NoError(t, err)

	assert.True(t, ov.TotalRevenue.Equal(d("129.8")))
	assert.True(t, ov.AddOnRevenue.Equal(d("6")))
	assert.Equal(t, 6, ov.TotalUnitsSold)
	assert.Equal(t, 2, ov.PaidOrders)
}

func TestRecentOrdersClampsLimit(t *testing.T) {
	lister := &MockOrderLister{}
	lister.On("ListOrders", mock.Anything, orderdb.OrderFilter{EventID: "evt-1", Limit: 20}).Return([]*models.Order{}, nil)
	lister.On("ListOrders", mock.Anything, orderdb.OrderFilter{EventID: "evt-1", Limit: 5}).Return(nil, errors.New("db down"))

	svc := NewService(lister)
	_, err := svc.RecentOrders(context.Background(), "evt-1", 0)
	require.NoError(t, err)
	_, err = svc.RecentOrders(context.Background(), "evt-1", 5)
	assert.ErrorContains(t, err, "db down")
	lister.AssertExpectations(t)
}
