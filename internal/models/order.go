package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	StatusDraft OrderStatus = "draft"
	StatusPaid  OrderStatus = "paid"
)

// Stage is the checkout funnel position. Only StageFinalized carries
// StatusPaid. The pending stages hold an accepted add-on whose charge has
// not settled yet.
type Stage string

const (
	StageDraftCreated      Stage = "draft_created"
	StagePaymentConfirmed  Stage = "payment_confirmed"
	StageProtectionPending Stage = "protection_pending"
	StageProtectionDecided Stage = "protection_decided"
	StageUpsellPending     Stage = "upsell_pending"
	StageUpsellDecided     Stage = "upsell_decided"
	StageFinalized         Stage = "finalized"
)

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Qty       int             `json:"qty"`
	Kind      ProductKind     `json:"kind"`
}

func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Qty)))
}

// Financials are computed once when payment is confirmed and never
// recomputed. Total excludes protection and post-purchase add-ons.
type Financials struct {
	TicketTotal  decimal.Decimal `json:"ticketTotal"`
	UpgradeTotal decimal.Decimal `json:"upgradeTotal"`
	FeeTotal     decimal.Decimal `json:"feeTotal"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
}

func (f Financials) SubtotalBeforeFees() decimal.Decimal {
	return f.TicketTotal.Add(f.UpgradeTotal)
}

// Upsell is the outcome of an accepted add-on offer.
type Upsell struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Paid       bool            `json:"paid"`
	PaymentRef string          `json:"paymentRef,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string       `bun:"id,pk" json:"id"`
	EventID         string       `bun:"event_id,notnull" json:"eventId"`
	EventName       string       `bun:"event_name" json:"eventName"`
	Customer        Customer     `bun:"customer,type:jsonb" json:"customer"`
	Status          OrderStatus  `bun:"status,notnull" json:"status"`
	Stage           Stage        `bun:"stage,notnull" json:"stage"`
	Items           []LineItem   `bun:"items,type:jsonb" json:"items"`
	Financials      *Financials  `bun:"financials,type:jsonb" json:"financials,omitempty"`
	TermsAccepted   bool         `bun:"terms_accepted,notnull" json:"termsAccepted"`
	TermsAcceptedAt *time.Time   `bun:"terms_accepted_at" json:"termsAcceptedAt,omitempty"`
	Upsells         []Upsell     `bun:"upsells,type:jsonb" json:"upsells"`
	CustomUpsell    *Upsell      `bun:"custom_upsell,type:jsonb" json:"customUpsell,omitempty"`
	ReceiptSent     bool         `bun:"receipt_sent,notnull" json:"receiptSent"`
	Tags            CRMTags      `bun:"tags,type:jsonb" json:"-"`
	PaymentCustomer string       `bun:"payment_customer_id" json:"-"`
	PaymentMethod   string       `bun:"payment_method_id" json:"-"`
	PaymentIntent   string       `bun:"payment_intent_id" json:"paymentIntentId,omitempty"`
	Version         int64        `bun:"version,notnull" json:"version"`
	CreatedAt       time.Time    `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time    `bun:"updated_at,notnull" json:"updatedAt"`
	PaidAt          *time.Time   `bun:"paid_at" json:"paidAt,omitempty"`

	CheckIns        map[int]bool   `bun:"-" json:"checkIns"`
	CheckInMetadata map[int]string `bun:"-" json:"checkInMetadata"`
}

func (o *Order) IsPaid() bool {
	return o != nil && o.Status == StatusPaid
}

// AddOnTotal sums the paid protection entries and the paid custom upsell.
func (o *Order) AddOnTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, u := range o.Upsells {
		if u.Paid {
			sum = sum.Add(u.Price)
		}
	}
	if o.CustomUpsell != nil && o.CustomUpsell.Paid {
		sum = sum.Add(o.CustomUpsell.Price)
	}
	return sum
}

// GrandTotal is what the buyer was charged in total: the frozen financials
// plus every paid add-on.
func (o *Order) GrandTotal() decimal.Decimal {
	if o.Financials == nil {
		return o.AddOnTotal()
	}
	return o.Financials.Total.Add(o.AddOnTotal())
}

func (o *Order) TicketQty() int {
	n := 0
	for _, it := range o.Items {
		if it.Kind == KindTicket {
			n += it.Qty
		}
	}
	return n
}

// Clone returns a deep copy, used for before/after change snapshots.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.Upsells = append([]Upsell(nil), o.Upsells...)
	if o.Financials != nil {
		f := *o.Financials
		c.Financials = &f
	}
	if o.CustomUpsell != nil {
		u := *o.CustomUpsell
		c.CustomUpsell = &u
	}
	if o.TermsAcceptedAt != nil {
		t := *o.TermsAcceptedAt
		c.TermsAcceptedAt = &t
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.CheckIns != nil {
		c.CheckIns = make(map[int]bool, len(o.CheckIns))
		for k, v := range o.CheckIns {
			c.CheckIns[k] = v
		}
	}
	if o.CheckInMetadata != nil {
		c.CheckInMetadata = make(map[int]string, len(o.CheckInMetadata))
		for k, v := range o.CheckInMetadata {
			c.CheckInMetadata[k] = v
		}
	}
	return &c
}
