package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type FeeMode string

const (
	FeeModeFlat    FeeMode = "flat"
	FeeModePercent FeeMode = "percent"
)

type ProductKind string

const (
	KindTicket  ProductKind = "ticket"
	KindUpgrade ProductKind = "upgrade"
)

// CatalogLine is one sellable product of an event: a ticket zone or an
// upgrade. AvailableQty never goes below zero.
type CatalogLine struct {
	bun.BaseModel `bun:"table:catalog_lines"`

	EventID      string          `bun:"event_id,pk" json:"eventId"`
	ProductID    string          `bun:"product_id,pk" json:"id"`
	Kind         ProductKind     `bun:"kind,notnull" json:"kind"`
	Name         string          `bun:"name,notnull" json:"name" validate:"required"`
	UnitPrice    decimal.Decimal `bun:"unit_price,type:numeric(12,2),notnull" json:"unitPrice"`
	AvailableQty int             `bun:"available_qty,notnull" json:"availableQty" validate:"min=0"`
	Description  string          `bun:"description" json:"description,omitempty"`
	ImageRef     string          `bun:"image_ref" json:"imageRef,omitempty"`
	Position     int             `bun:"position,notnull" json:"position"`
}

type ProtectionOffer struct {
	Enabled    bool            `json:"enabled"`
	Percentage decimal.Decimal `json:"percentage"`
	MinimumFee decimal.Decimal `json:"minimumFee"`
	Copy       string          `json:"copy,omitempty"`
	LegalText  string          `json:"legalText,omitempty"`
}

type UpsellOffer struct {
	Enabled     bool            `json:"enabled"`
	Price       decimal.Decimal `json:"price"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	ItemName    string          `json:"itemName"`
	Copy        string          `json:"copy,omitempty"`
}

// CRMTags are the audience tags sent with the CRM webhook: Interest when a
// lead is captured, Customer once the order is paid.
type CRMTags struct {
	Interest string `json:"interest,omitempty"`
	Customer string `json:"customer,omitempty"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string           `bun:"id,pk" json:"id"`
	Name           string           `bun:"name,notnull" json:"name" validate:"required"`
	Location       string           `bun:"location" json:"location,omitempty"`
	StartsAt       time.Time        `bun:"starts_at,nullzero" json:"startsAt"`
	TermsText      string           `bun:"terms_text" json:"termsText,omitempty"`
	TaxRatePercent decimal.Decimal  `bun:"tax_rate_percent,type:numeric(6,3),notnull" json:"taxRatePercent"`
	FeeRate        decimal.Decimal  `bun:"fee_rate,type:numeric(12,3),notnull" json:"feeRate"`
	FeeMode        FeeMode          `bun:"fee_mode,notnull" json:"feeMode" validate:"oneof=flat percent"`
	Protection     *ProtectionOffer `bun:"protection,type:jsonb" json:"protection,omitempty"`
	Upsell         *UpsellOffer     `bun:"upsell,type:jsonb" json:"upsell,omitempty"`
	Tags           CRMTags          `bun:"tags,type:jsonb" json:"tags"`
	CreatedAt      time.Time        `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time        `bun:"updated_at,notnull" json:"updatedAt"`

	TicketZones []CatalogLine `bun:"-" json:"ticketZones" validate:"dive"`
	Upgrades    []CatalogLine `bun:"-" json:"upgrades" validate:"dive"`
}

// Line looks up a catalog line by kind and product id.
func (e *Event) Line(kind ProductKind, productID string) (CatalogLine, bool) {
	lines := e.TicketZones
	if kind == KindUpgrade {
		lines = e.Upgrades
	}
	for _, l := range lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CatalogLine{}, false
}

func (e *Event) ProtectionEnabled() bool {
	return e.Protection != nil && e.Protection.Enabled
}

func (e *Event) UpsellEnabled() bool {
	return e.Upsell != nil && e.Upsell.Enabled
}

// Lines returns ticket zones then upgrades, each in catalog position order.
func (e *Event) Lines() []CatalogLine {
	out := make([]CatalogLine, 0, len(e.TicketZones)+len(e.Upgrades))
	out = append(out, e.TicketZones...)
	return append(out, e.Upgrades...)
}

// InventoryHold is a quantity to take off one catalog line.
type InventoryHold struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}
