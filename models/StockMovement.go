package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType tags a StockMovement as material going into or coming out of
// production.
type MovementType string

const (
	MovementConsumption MovementType = "consumption"
	MovementProduction  MovementType = "production"
)

// StockMovement is the local audit record of one stock ledger adjustment made
// on behalf of a production order. Quantity is negative for consumption and
// positive for production. Rows are append-only.
type StockMovement struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OrderID    uint            `gorm:"index;not null" json:"order_id"`
	ProductID  uint            `gorm:"index;not null" json:"product_id"`
	UnitID     uint            `gorm:"index" json:"unit_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Type       MovementType    `gorm:"type:varchar(20);not null" json:"type"`
	CostAtTime decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cost_at_time"`
	CreatedAt  time.Time       `gorm:"index" json:"created_at"`
}

// TableName keeps the manufacturing tables grouped under one prefix.
func (StockMovement) TableName() string { return "manufacturing_stock_movements" }
