package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a ProductionOrder.
type OrderStatus string

const (
	StatusDraft      OrderStatus = "draft"
	StatusPlanned    OrderStatus = "planned"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusOnHold     OrderStatus = "on_hold"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusDraft,
	StatusPlanned,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusOnHold,
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Pending reports whether the order still awaits completion.
func (s OrderStatus) Pending() bool {
	return s == StatusDraft || s == StatusPlanned || s == StatusInProgress
}

func (s OrderStatus) String() string { return string(s) }

// ProductionOrder instructs the production of Quantity units of the output
// product according to a BillOfMaterials.
type ProductionOrder struct {
	gorm.Model
	Code            string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"code"`
	BomID           *uint           `gorm:"index" json:"bom_id,omitempty"`
	OutputProductID uint            `gorm:"index;not null" json:"output_product_id"`
	OutputUnitID    uint            `gorm:"index" json:"output_unit_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Status          OrderStatus     `gorm:"type:varchar(20);index;not null" json:"status"`
	StartedAt       *time.Time      `gorm:"index" json:"started_at,omitempty"`
	CompletedAt     *time.Time      `gorm:"index" json:"completed_at,omitempty"`
	AuthorID        uint            `gorm:"index;not null" json:"author_id"`
}

// TableName keeps the manufacturing tables grouped under one prefix.
func (ProductionOrder) TableName() string { return "manufacturing_orders" }
