package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BillOfMaterials is a recipe: consuming its Items yields OutputQuantity
// units of the output product.
type BillOfMaterials struct {
	gorm.Model
	UUID            string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name            string          `gorm:"not null" json:"name"`
	OutputProductID uint            `gorm:"index;not null" json:"output_product_id"`
	OutputUnitID    uint            `gorm:"index" json:"output_unit_id"`
	OutputQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"output_quantity"`
	IsActive        bool            `gorm:"index;not null" json:"is_active"`
	Description     string          `gorm:"type:text" json:"description"`
	AuthorID        uint            `gorm:"index;not null" json:"author_id"`
	Items           []BomItem       `gorm:"foreignKey:BomID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName keeps the manufacturing tables grouped under one prefix.
func (BillOfMaterials) TableName() string { return "manufacturing_boms" }

// BeforeCreate assigns the public identifier.
func (b *BillOfMaterials) BeforeCreate(tx *gorm.DB) error {
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	return nil
}
