package bom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fabrica/internal/db"
	applog "fabrica/internal/log"
	"fabrica/models"
)

var (
	// ErrItemNotFound is returned when a BOM item does not exist.
	ErrItemNotFound = errors.New("bom item not found")
	// ErrProductUnitNotFound is returned for unknown product unit balances.
	ErrProductUnitNotFound = errors.New("product unit not found")
	// ErrProductUnitInUse is returned when flags change on a component of an active BOM.
	ErrProductUnitInUse = errors.New("product unit is used in active boms")
	// ErrBomInUse is returned when deleting a BOM that unfinished orders reference.
	ErrBomInUse = errors.New("bom is referenced by unfinished production orders")
)

var (
	minItemQuantity = decimal.New(1, -4)
	maxWastePercent = decimal.NewFromInt(100)
	defaultAlloc    = decimal.NewFromInt(100)
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BomInput carries the editable fields of a BOM.
type BomInput struct {
	Name            string
	OutputProductID uint
	OutputUnitID    uint
	OutputQuantity  decimal.Decimal
	IsActive        bool
	Description     string
}

// ItemInput carries the editable fields of a BOM item. A nil
// CostAllocationPercent defaults to 100.
type ItemInput struct {
	ComponentProductID    uint
	ComponentUnitID       *uint
	Quantity              decimal.Decimal
	WastePercent          decimal.Decimal
	CostAllocationPercent *decimal.Decimal
}

// Service applies the BOM editing rules on top of the Repository and Validator.
type Service struct {
	db        *gorm.DB
	repo      *Repository
	validator *Validator
}

// NewService wires a Service over database.
func NewService(database *gorm.DB) *Service {
	repo := NewRepository(database)
	return &Service{db: database, repo: repo, validator: NewValidator(repo)}
}

// Repository exposes the underlying BOM repository.
func (s *Service) Repository() *Repository { return s.repo }

// Validator exposes the production-cycle validator.
func (s *Service) Validator() *Validator { return s.validator }

// CreateBom stores a new BOM authored by actorID.
func (s *Service) CreateBom(ctx context.Context, actorID uint, in BomInput) (*models.BillOfMaterials, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if !in.OutputQuantity.IsPositive() {
		return nil, &ValidationError{Field: "output_quantity", Message: "must be greater than 0"}
	}
	if err := s.requireProduct(ctx, "output_product_id", in.OutputProductID); err != nil {
		return nil, err
	}
	if err := s.requireUnit(ctx, "output_unit_id", in.OutputUnitID); err != nil {
		return nil, err
	}

	bom := &models.BillOfMaterials{
		Name:            name,
		OutputProductID: in.OutputProductID,
		OutputUnitID:    in.OutputUnitID,
		OutputQuantity:  in.OutputQuantity,
		IsActive:        in.IsActive,
		Description:     in.Description,
		AuthorID:        actorID,
	}
	if err := db.Conn(ctx, s.db).Create(bom).Error; err != nil {
		return nil, fmt.Errorf("create bom %q: %w", name, err)
	}
	applog.Info(ctx, "bom created", "bom_id", bom.ID, "name", bom.Name)
	return bom, nil
}

// AddItem attaches a component to bomID after field and cycle validation.
func (s *Service) AddItem(ctx context.Context, actorID, bomID uint, in ItemInput) (*models.BomItem, error) {
	var item *models.BomItem
	err := db.Transaction(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.repo.Find(ctx, bomID); err != nil {
			return err
		}
		if err := s.validateItem(ctx, bomID, in); err != nil {
			return err
		}
		item = &models.BomItem{BomID: bomID, AuthorID: actorID}
		applyItemInput(item, in)
		if err := db.Conn(ctx, s.db).Create(item).Error; err != nil {
			return fmt.Errorf("create bom item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	applog.Info(ctx, "bom item added", "bom_id", bomID, "item_id", item.ID, "product_id", item.ComponentProductID)
	return item, nil
}

// UpdateItem replaces the fields of an existing item after field and cycle validation.
func (s *Service) UpdateItem(ctx context.Context, actorID, itemID uint, in ItemInput) (*models.BomItem, error) {
	var item *models.BomItem
	err := db.Transaction(ctx, s.db, func(ctx context.Context) error {
		var err error
		item, err = s.repo.Item(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.validateItem(ctx, item.BomID, in); err != nil {
			return err
		}
		applyItemInput(item, in)
		item.AuthorID = actorID
		if err := db.Conn(ctx, s.db).Save(item).Error; err != nil {
			return fmt.Errorf("update bom item %d: %w", itemID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteBom removes a BOM together with its items. BOMs still referenced by
// orders that are neither completed nor cancelled are kept.
func (s *Service) DeleteBom(ctx context.Context, bomID uint) error {
	return db.Transaction(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.repo.Find(ctx, bomID); err != nil {
			return err
		}
		conn := db.Conn(ctx, s.db)
		var open int64
		if err := conn.Model(&models.ProductionOrder{}).
			Where("bom_id = ? AND status NOT IN ?", bomID, []models.OrderStatus{models.StatusCompleted, models.StatusCancelled}).
			Count(&open).Error; err != nil {
			return fmt.Errorf("count orders of bom %d: %w", bomID, err)
		}
		if open > 0 {
			return fmt.Errorf("%w: bom %d has %d open orders", ErrBomInUse, bomID, open)
		}
		if err := conn.Where("bom_id = ?", bomID).Delete(&models.BomItem{}).Error; err != nil {
			return fmt.Errorf("delete items of bom %d: %w", bomID, err)
		}
		if err := conn.Delete(&models.BillOfMaterials{}, bomID).Error; err != nil {
			return fmt.Errorf("delete bom %d: %w", bomID, err)
		}
		applog.Info(ctx, "bom deleted", "bom_id", bomID)
		return nil
	})
}

// SetManufacturingFlags marks a product unit as manufactured and/or raw
// material. At least one flag must be set, and product units that are
// components of an active BOM cannot be changed.
func (s *Service) SetManufacturingFlags(ctx context.Context, productUnitID uint, isManufactured, isRawMaterial bool) (*models.ProductUnitQuantity, error) {
	if !isManufactured && !isRawMaterial {
		return nil, &ValidationError{Field: "flags", Message: "at least one of is_manufactured or is_raw_material must be true"}
	}
	var row models.ProductUnitQuantity
	err := db.Transaction(ctx, s.db, func(ctx context.Context) error {
		conn := db.Conn(ctx, s.db)
		if err := conn.First(&row, productUnitID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id %d", ErrProductUnitNotFound, productUnitID)
			}
			return fmt.Errorf("load product unit %d: %w", productUnitID, err)
		}
		inUse, err := s.repo.UsedInActiveBom(ctx, row.ProductID, row.UnitID)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: product %d unit %d", ErrProductUnitInUse, row.ProductID, row.UnitID)
		}
		row.IsManufactured = isManufactured
		row.IsRawMaterial = isRawMaterial
		return conn.Save(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CanBeUsedForProduction reports whether the product unit is flagged as manufactured.
func (s *Service) CanBeUsedForProduction(ctx context.Context, productUnitID uint) (bool, error) {
	return s.flagExists(ctx, productUnitID, "is_manufactured = ?", true)
}

// CanBeUsedAsComponent reports whether the product unit is a raw material or manufactured.
func (s *Service) CanBeUsedAsComponent(ctx context.Context, productUnitID uint) (bool, error) {
	return s.flagExists(ctx, productUnitID, "is_raw_material = ? OR is_manufactured = ?", true, true)
}

func (s *Service) flagExists(ctx context.Context, productUnitID uint, cond string, args ...any) (bool, error) {
	var count int64
	err := db.Conn(ctx, s.db).
		Model(&models.ProductUnitQuantity{}).
		Where("id = ?", productUnitID).
		Where(cond, args...).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check flags of product unit %d: %w", productUnitID, err)
	}
	return count > 0, nil
}

func (s *Service) validateItem(ctx context.Context, bomID uint, in ItemInput) error {
	if in.Quantity.LessThan(minItemQuantity) {
		return &ValidationError{Field: "quantity", Message: "must be at least 0.0001"}
	}
	if in.WastePercent.IsNegative() || in.WastePercent.GreaterThan(maxWastePercent) {
		return &ValidationError{Field: "waste_percent", Message: "must be between 0 and 100"}
	}
	if in.CostAllocationPercent != nil && in.CostAllocationPercent.IsNegative() {
		return &ValidationError{Field: "cost_allocation_percent", Message: "cannot be negative"}
	}
	if err := s.requireProduct(ctx, "component_product_id", in.ComponentProductID); err != nil {
		return err
	}
	if in.ComponentUnitID != nil {
		if err := s.requireUnit(ctx, "component_unit_id", *in.ComponentUnitID); err != nil {
			return err
		}
	}
	return s.validator.CheckCircularDependency(ctx, bomID, in.ComponentProductID)
}

func (s *Service) requireProduct(ctx context.Context, field string, id uint) error {
	return s.requireRow(ctx, &models.Product{}, field, "product", id)
}

func (s *Service) requireUnit(ctx context.Context, field string, id uint) error {
	return s.requireRow(ctx, &models.Unit{}, field, "unit", id)
}

func (s *Service) requireRow(ctx context.Context, model any, field, label string, id uint) error {
	if id == 0 {
		return &ValidationError{Field: field, Message: "is required"}
	}
	var count int64
	if err := db.Conn(ctx, s.db).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check %s %d: %w", label, id, err)
	}
	if count == 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s %d does not exist", label, id)}
	}
	return nil
}

func applyItemInput(item *models.BomItem, in ItemInput) {
	item.ComponentProductID = in.ComponentProductID
	item.ComponentUnitID = in.ComponentUnitID
	item.Quantity = in.Quantity
	item.WastePercent = in.WastePercent
	item.CostAllocationPercent = defaultAlloc
	if in.CostAllocationPercent != nil {
		item.CostAllocationPercent = *in.CostAllocationPercent
	}
}
