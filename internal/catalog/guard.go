package catalog

import (
	"sort"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/pricing"
)

// Shortfall is one cart line asking for more than the catalog holds.
type Shortfall struct {
	ProductID string             `json:"productId"`
	Kind      models.ProductKind `json:"kind"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

// Check rejects a cart whose quantities exceed the sellable ceiling of any
// line. It reads the snapshot only; the authoritative check is Reserve at
// payment confirmation.
func Check(event *models.Event, cart, upgradeCart pricing.Cart) error {
	var short []Shortfall
	short = appendShortfalls(short, event, models.KindTicket, cart)
	short = appendShortfalls(short, event, models.KindUpgrade, upgradeCart)
	if len(short) == 0 {
		return nil
	}
	sort.Slice(short, func(i, j int) bool { return short[i].ProductID < short[j].ProductID })
	return apperrors.ErrInventoryExceeded.WithDetails(short)
}

func appendShortfalls(short []Shortfall, event *models.Event, kind models.ProductKind, cart pricing.Cart) []Shortfall {
	for productID, qty := range cart {
		if qty <= 0 {
			continue
		}
		line, ok := event.Line(kind, productID)
		if !ok {
			// unknown products are a pricing validation error
			continue
		}
		if qty > line.AvailableQty {
			short = append(short, Shortfall{
				ProductID: productID,
				Kind:      kind,
				Requested: qty,
				Available: line.AvailableQty,
			})
		}
	}
	return short
}

// Holds turns both carts into the inventory holds taken at confirmation.
func Holds(cart, upgradeCart pricing.Cart) []models.InventoryHold {
	holds := make([]models.InventoryHold, 0, len(cart)+len(upgradeCart))
	for _, c := range []pricing.Cart{cart, upgradeCart} {
		for productID, qty := range c {
			if qty > 0 {
				holds = append(holds, models.InventoryHold{ProductID: productID, Qty: qty})
			}
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].ProductID < holds[j].ProductID })
	return holds
}
