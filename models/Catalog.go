package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog entry that can be stocked, consumed or produced.
type Product struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`
	SKU  string `gorm:"uniqueIndex" json:"sku"`
}

// Unit is a unit of measure products are stocked in.
type Unit struct {
	gorm.Model
	Name       string `gorm:"not null" json:"name"`
	Identifier string `gorm:"uniqueIndex;not null" json:"identifier"`
}

// ProductUnitQuantity is the on-hand balance and cost basis of a product in a
// given unit. It is the row the stock ledger locks when adjusting stock.
type ProductUnitQuantity struct {
	gorm.Model
	ProductID      uint            `gorm:"uniqueIndex:idx_product_unit;not null" json:"product_id"`
	UnitID         uint            `gorm:"uniqueIndex:idx_product_unit;not null" json:"unit_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Cogs           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cogs"`
	IsManufactured bool            `gorm:"index;not null" json:"is_manufactured"`
	IsRawMaterial  bool            `gorm:"index;not null" json:"is_raw_material"`
}

// ProductHistory is the stock ledger's own audit trail.
type ProductHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ProductID      uint            `gorm:"index;not null" json:"product_id"`
	UnitID         uint            `gorm:"index" json:"unit_id"`
	Action         string          `gorm:"type:varchar(64);index;not null" json:"action"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	BeforeQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"before_quantity"`
	AfterQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"after_quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_price"`
	AuthorID       uint            `gorm:"index" json:"author_id"`
	Description    string          `json:"description"`
	OrderID        *uint           `gorm:"index" json:"order_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
