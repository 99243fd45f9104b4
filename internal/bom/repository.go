// Package bom owns bills of materials: storage, the production-cycle
// validator, cost estimation and the item attach/update rules.
package bom

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fabrica/internal/db"
	"fabrica/models"
)

// ErrBomNotFound is returned when a bill of materials does not exist or was deleted.
var ErrBomNotFound = errors.New("bill of materials not found")

// Repository reads and writes BillOfMaterials and BomItem rows. Calls join
// the ambient transaction carried in the context.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository over database.
func NewRepository(database *gorm.DB) *Repository {
	return &Repository{db: database}
}

// Find loads a BOM with its items in insertion order.
func (r *Repository) Find(ctx context.Context, id uint) (*models.BillOfMaterials, error) {
	var bom models.BillOfMaterials
	err := db.Conn(ctx, r.db).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		First(&bom, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrBomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load bom %d: %w", id, err)
	}
	return &bom, nil
}

// FindByName loads the first BOM with the given name.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.BillOfMaterials, error) {
	var bom models.BillOfMaterials
	err := db.Conn(ctx, r.db).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Where("name = ?", name).
		Order("id asc").
		First(&bom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: name %q", ErrBomNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load bom %q: %w", name, err)
	}
	return &bom, nil
}

// OutputProduct returns the product a BOM produces. ok is false when the
// BOM does not exist.
func (r *Repository) OutputProduct(ctx context.Context, bomID uint) (productID uint, ok bool, err error) {
	var bom models.BillOfMaterials
	err = db.Conn(ctx, r.db).Select("id", "output_product_id").First(&bom, bomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load bom %d: %w", bomID, err)
	}
	return bom.OutputProductID, true, nil
}

// ComponentsOf returns the distinct component products of every BOM that
// produces productID, active or not.
func (r *Repository) ComponentsOf(ctx context.Context, productID uint) ([]uint, error) {
	var ids []uint
	err := db.Conn(ctx, r.db).
		Model(&models.BomItem{}).
		Joins("JOIN manufacturing_boms ON manufacturing_boms.id = manufacturing_bom_items.bom_id AND manufacturing_boms.deleted_at IS NULL").
		Where("manufacturing_boms.output_product_id = ?", productID).
		Distinct().
		Pluck("manufacturing_bom_items.component_product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load components of product %d: %w", productID, err)
	}
	return ids, nil
}

// Item loads a single BOM item.
func (r *Repository) Item(ctx context.Context, id uint) (*models.BomItem, error) {
	var item models.BomItem
	err := db.Conn(ctx, r.db).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load bom item %d: %w", id, err)
	}
	return &item, nil
}

// UsedInActiveBom reports whether the product/unit pair is a component of
// any active BOM.
func (r *Repository) UsedInActiveBom(ctx context.Context, productID, unitID uint) (bool, error) {
	var count int64
	err := db.Conn(ctx, r.db).
		Model(&models.BomItem{}).
		Joins("JOIN manufacturing_boms ON manufacturing_boms.id = manufacturing_bom_items.bom_id AND manufacturing_boms.deleted_at IS NULL").
		Where("manufacturing_boms.is_active = ?", true).
		Where("manufacturing_bom_items.component_product_id = ? AND manufacturing_bom_items.component_unit_id = ?", productID, unitID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check bom usage of product %d unit %d: %w", productID, unitID, err)
	}
	return count > 0, nil
}
