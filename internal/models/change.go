package models

import "time"

type ChangeType string

const (
	ChangeCreated ChangeType = "order.created"
	ChangeUpdated ChangeType = "order.updated"
)

// OrderChange describes one committed write to an order. Before is nil when
// the order was just created.
type OrderChange struct {
	Type       ChangeType `json:"type"`
	OrderID    string     `json:"orderId"`
	EventID    string     `json:"eventId"`
	Version    int64      `json:"version"`
	Before     *Order     `json:"before,omitempty"`
	After      *Order     `json:"after"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func NewOrderChange(before, after *Order) OrderChange {
	t := ChangeUpdated
	if before == nil {
		t = ChangeCreated
	}
	return OrderChange{
		Type:       t,
		OrderID:    after.ID,
		EventID:    after.EventID,
		Version:    after.Version,
		Before:     before,
		After:      after,
		OccurredAt: time.Now().UTC(),
	}
}
