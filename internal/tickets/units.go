package tickets

import "ms-boxoffice/internal/models"

// Unit is one admission instance: a quantity-1 slice of a line item.
type Unit struct {
	Index int             `json:"unitIndex"`
	Item  models.LineItem `json:"item"`
}

// EnumerateUnits expands items by quantity into sequential zero-based unit
// indices, in item order. Receipts, QR issuance and check-in all derive
// indices from here; they are never stored with the item.
func EnumerateUnits(items []models.LineItem) []Unit {
	n := 0
	for _, it := range items {
		if it.Qty > 0 {
			n += it.Qty
		}
	}
	units := make([]Unit, 0, n)
	for _, it := range items {
		for q := 0; q < it.Qty; q++ {
			units = append(units, Unit{Index: len(units), Item: it})
		}
	}
	return units
}

// UnitCount is len(EnumerateUnits(items)) without building the slice.
func UnitCount(items []models.LineItem) int {
	n := 0
	for _, it := range items {
		if it.Qty > 0 {
			n += it.Qty
		}
	}
	return n
}

// UnitAt returns the unit with the given index.
func UnitAt(items []models.LineItem, index int) (Unit, bool) {
	if index < 0 {
		return Unit{}, false
	}
	offset := 0
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		if index < offset+it.Qty {
			return Unit{Index: index, Item: it}, true
		}
		offset += it.Qty
	}
	return Unit{}, false
}
