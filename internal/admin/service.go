// Package admin computes the organizer's revenue reporting from stored
// orders.
package admin

import (
	"context"
	"sort"

	"ms-boxoffice/internal/models"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/tickets"

	"github.com/shopspring/decimal"
)

type OrderLister interface {
	ListOrders(ctx context.Context, f orderdb.OrderFilter) ([]*models.Order, error)
}

type Service struct {
	Orders OrderLister
}

func NewService(orders OrderLister) *Service {
	return &Service{Orders: orders}
}

// EventStats are the revenue figures of one event. Revenue sums the frozen
// financials totals of paid orders; add-ons are reported on their own since
// those totals exclude them.
type EventStats struct {
	EventID        string          `json:"eventId"`
	Revenue        decimal.Decimal `json:"revenue"`
	TicketRevenue  decimal.Decimal `json:"ticketRevenue"`
	UpgradeRevenue decimal.Decimal `json:"upgradeRevenue"`
	FeeRevenue     decimal.Decimal `json:"feeRevenue"`
	TaxRevenue     decimal.Decimal `json:"taxRevenue"`
	AddOnRevenue   decimal.Decimal `json:"addOnRevenue"`
	GrossRevenue   decimal.Decimal `json:"grossRevenue"`
	TicketsSold    int             `json:"ticketsSold"`
	UpgradesSold   int             `json:"upgradesSold"`
	CheckedIn      int             `json:"checkedIn"`
	PaidOrders     int             `json:"paidOrders"`
	DraftOrders    int             `json:"draftOrders"`
	DailySales     []DailySales    `json:"dailySales"`
	SalesByLine    []LineSales     `json:"salesByLine"`
}

// DailySales contains metrics for a single day
type DailySales struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	TicketsSold int             `json:"ticketsSold"`
}

// LineSales contains sales of one catalog line
type LineSales struct {
	ProductID string             `json:"productId"`
	Name      string             `json:"name"`
	Kind      models.ProductKind `json:"kind"`
	Qty       int                `json:"qty"`
	Revenue   decimal.Decimal    `json:"revenue"`
}

type Overview struct {
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	AddOnRevenue   decimal.Decimal `json:"addOnRevenue"`
	TotalUnitsSold int             `json:"totalUnitsSold"`
	PaidOrders     int             `json:"paidOrders"`
}

// EventStats aggregates every order of eventID.
func (s *Service) EventStats(ctx context.Context, eventID string) (*EventStats, error) {
	orders, err := s.Orders.ListOrders(ctx, orderdb.OrderFilter{EventID: eventID})
	if err != nil {
		return nil, err
	}

	stats := &EventStats{
		EventID:     eventID,
		DailySales:  []DailySales{},
		SalesByLine: []LineSales{},
	}
	daily := map[string]*DailySales{}
	lines := map[string]*LineSales{}

	for _, o := range orders {
		if !o.IsPaid() {
			stats.DraftOrders++
			continue
		}
		stats.PaidOrders++
		if f := o.Financials; f != nil {
			stats.Revenue = stats.Revenue.Add(f.Total)
			stats.TicketRevenue = stats.TicketRevenue.Add(f.TicketTotal)
			stats.UpgradeRevenue = stats.UpgradeRevenue.Add(f.UpgradeTotal)
			stats.FeeRevenue = stats.FeeRevenue.Add(f.FeeTotal)
			stats.TaxRevenue = stats.TaxRevenue.Add(f.Tax)
		}
		stats.AddOnRevenue = stats.AddOnRevenue.Add(o.AddOnTotal())

		for _, it := range o.Items {
			if it.Kind == models.KindUpgrade {
				stats.UpgradesSold += it.Qty
			} else {
				stats.TicketsSold += it.Qty
			}
			l, ok := lines[it.ProductID]
			if !ok {
				l = &LineSales{ProductID: it.ProductID, Name: it.Name, Kind: it.Kind}
				lines[it.ProductID] = l
			}
			l.Qty += it.Qty
			l.Revenue = l.Revenue.Add(it.Amount())
		}
		for _, u := range tickets.EnumerateUnits(o.Items) {
			if o.CheckIns[u.Index] {
				stats.CheckedIn++
			}
		}

		day := salesDate(o)
		d, ok := daily[day]
		if !ok {
			d = &DailySales{Date: day}
			daily[day] = d
		}
		if o.Financials != nil {
			d.Revenue = d.Revenue.Add(o.Financials.Total)
		}
		d.TicketsSold += o.TicketQty()
	}
	stats.GrossRevenue = stats.Revenue.Add(stats.AddOnRevenue)

	for _, d := range daily {
		stats.DailySales = append(stats.DailySales, *d)
	}
	sort.Slice(stats.DailySales, func(i, j int) bool { return stats.DailySales[i].Date < stats.DailySales[j].Date })
	for _, l := range lines {
		stats.SalesByLine = append(stats.SalesByLine, *l)
	}
	sort.Slice(stats.SalesByLine, func(i, j int) bool {
		a, b := stats.SalesByLine[i], stats.SalesByLine[j]
		if a.Kind != b.Kind {
			return a.Kind == models.KindTicket
		}
		return a.ProductID < b.ProductID
	})
	return stats, nil
}

func salesDate(o *models.Order) string {
	if o.PaidAt != nil {
		return o.PaidAt.UTC().Format("2006-01-02")
	}
	return o.CreatedAt.UTC().Format("2006-01-02")
}

// Overview totals paid orders across all events.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	orders, err := s.Orders.ListOrders(ctx, orderdb.OrderFilter{Status: models.StatusPaid})
	if err != nil {
		return nil, err
	}
	ov := &Overview{}
	for _, o := range orders {
		ov.PaidOrders++
		if o.Financials != nil {
			ov.TotalRevenue = ov.TotalRevenue.Add(o.Financials.Total)
		}
		ov.AddOnRevenue = ov.AddOnRevenue.Add(o.AddOnTotal())
		ov.TotalUnitsSold += tickets.UnitCount(o.Items)
	}
	return ov, nil
}

// RecentOrders lists the newest orders of an event in any status.
func (s *Service) RecentOrders(ctx context.Context, eventID string, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.Orders.ListOrders(ctx, orderdb.OrderFilter{EventID: eventID, Limit: limit})
}
