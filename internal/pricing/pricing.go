// Package pricing derives order financials from an event snapshot and a cart.
// Everything here is pure: the same event and cart always produce the same
// numbers, which is what lets the server re-check client-submitted totals.
package pricing

import (
	"fmt"
	"sort"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/models"

	"github.com/shopspring/decimal"
)

// Cart maps product id to quantity.
type Cart map[string]int

var (
	hundred                  = decimal.NewFromInt(100)
	defaultProtectionPercent = decimal.NewFromInt(10)
)

// ComputeFinancials prices the ticket cart and the upgrade cart against the
// event catalog. Fee and tax are rounded to cents so that Total is exactly
// the sum of its parts.
func ComputeFinancials(event *models.Event, cart, upgradeCart Cart) (models.Financials, error) {
	if event == nil {
		return models.Financials{}, apperrors.ErrEventNotFound
	}

	ticketTotal, ticketQty, err := sumLines(event, models.KindTicket, cart)
	if err != nil {
		return models.Financials{}, err
	}
	upgradeTotal, _, err := sumLines(event, models.KindUpgrade, upgradeCart)
	if err != nil {
		return models.Financials{}, err
	}

	subtotal := ticketTotal.Add(upgradeTotal)

	fee := decimal.Zero
	if event.FeeRate.IsPositive() {
		switch event.FeeMode {
		case models.FeeModePercent:
			fee = subtotal.Mul(event.FeeRate).Div(hundred)
		default:
			// flat fee is per ticket unit; upgrades never carry it
			fee = event.FeeRate.Mul(decimal.NewFromInt(int64(ticketQty)))
		}
	}
	fee = fee.Round(2)

	tax := decimal.Zero
	if event.TaxRatePercent.IsPositive() {
		tax = subtotal.Add(fee).Mul(event.TaxRatePercent).Div(hundred).Round(2)
	}

	return models.Financials{
		TicketTotal:  ticketTotal,
		UpgradeTotal: upgradeTotal,
		FeeTotal:     fee,
		Tax:          tax,
		Total:        subtotal.Add(fee).Add(tax),
	}, nil
}

func sumLines(event *models.Event, kind models.ProductKind, cart Cart) (decimal.Decimal, int, error) {
	total := decimal.Zero
	qty := 0
	invalid := map[string]string{}
	for productID, n := range cart {
		if n < 0 {
			invalid[productID] = "quantity must not be negative"
			continue
		}
		if n == 0 {
			continue
		}
		line, ok := event.Line(kind, productID)
		if !ok {
			invalid[productID] = fmt.Sprintf("unknown %s product", kind)
			continue
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
		qty += n
	}
	if len(invalid) > 0 {
		return decimal.Zero, 0, apperrors.ErrValidation.WithDetails(invalid)
	}
	return total, qty, nil
}

// ProtectionCost is max(minimumFee, ceil(subtotalBeforeFees * percentage / 100)).
// The ceiling is to a whole currency unit so the offer never under-charges.
func ProtectionCost(offer *models.ProtectionOffer, f models.Financials) decimal.Decimal {
	if offer == nil {
		return decimal.Zero
	}
	pct := offer.Percentage
	if !pct.IsPositive() {
		pct = defaultProtectionPercent
	}
	cost := f.SubtotalBeforeFees().Mul(pct).Div(hundred).Ceil()
	return decimal.Max(offer.MinimumFee, cost)
}

// Quote is the server-side price of a cart, including the protection offer
// the buyer would see after paying.
type Quote struct {
	Financials     models.Financials `json:"financials"`
	ProtectionCost *decimal.Decimal  `json:"protectionCost,omitempty"`
	UpsellPrice    *decimal.Decimal  `json:"upsellPrice,omitempty"`
}

func QuoteCart(event *models.Event, cart, upgradeCart Cart) (Quote, error) {
	f, err := ComputeFinancials(event, cart, upgradeCart)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Financials: f}
	if event.ProtectionEnabled() {
		cost := ProtectionCost(event.Protection, f)
		q.ProtectionCost = &cost
	}
	if event.UpsellEnabled() {
		price := event.Upsell.Price
		q.UpsellPrice = &price
	}
	return q, nil
}

// VerifyClientTotal reports whether a client-submitted total matches the
// computed one to the cent.
func VerifyClientTotal(computed models.Financials, claimed decimal.Decimal) bool {
	return computed.Total.Round(2).Equal(claimed.Round(2))
}

// LineItems expands a cart into order line items in catalog order, so the
// ticket-unit enumeration of an order never depends on map iteration.
func LineItems(event *models.Event, kind models.ProductKind, cart Cart) []models.LineItem {
	lines := event.TicketZones
	if kind == models.KindUpgrade {
		lines = event.Upgrades
	}
	ordered := append([]models.CatalogLine(nil), lines...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	var items []models.LineItem
	for _, line := range ordered {
		qty := cart[line.ProductID]
		if qty <= 0 {
			continue
		}
		items = append(items, models.LineItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Qty:       qty,
			Kind:      kind,
		})
	}
	return items
}

// CartFromItems rebuilds a cart from line items of the given kind.
func CartFromItems(items []models.LineItem, kind models.ProductKind) Cart {
	cart := Cart{}
	for _, it := range items {
		if it.Kind == kind {
			cart[it.ProductID] += it.Qty
		}
	}
	return cart
}

// Qty is the total number of units in the cart.
func (c Cart) Qty() int {
	n := 0
	for _, q := range c {
		if q > 0 {
			n += q
		}
	}
	return n
}
