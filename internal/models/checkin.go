package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CheckIn is the attendance record of one ticket unit. The last write for a
// (order, unit) pair wins.
type CheckIn struct {
	bun.BaseModel `bun:"table:order_check_ins"`

	OrderID   string    `bun:"order_id,pk" json:"orderId"`
	UnitIndex int       `bun:"unit_index,pk" json:"unitIndex"`
	CheckedIn bool      `bun:"checked_in,notnull" json:"checkedIn"`
	StaffID   string    `bun:"staff_id" json:"staffId,omitempty"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}
