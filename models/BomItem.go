package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BomItem is one component line of a BillOfMaterials. Quantity is expressed
// per production run of the parent BOM.
type BomItem struct {
	gorm.Model
	BomID                 uint            `gorm:"index;not null" json:"bom_id"`
	ComponentProductID    uint            `gorm:"index;not null" json:"component_product_id"`
	ComponentUnitID       *uint           `gorm:"index" json:"component_unit_id,omitempty"`
	Quantity              decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	WastePercent          decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"waste_percent"`
	CostAllocationPercent decimal.Decimal `gorm:"type:decimal(7,2);not null" json:"cost_allocation_percent"`
	AuthorID              uint            `gorm:"index" json:"author_id"`
}

// TableName keeps the manufacturing tables grouped under one prefix.
func (BomItem) TableName() string { return "manufacturing_bom_items" }

// UnitID returns the component unit, or zero when the item has none.
func (i BomItem) UnitID() uint {
	if i.ComponentUnitID == nil {
		return 0
	}
	return *i.ComponentUnitID
}
