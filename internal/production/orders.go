package production

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fabrica/internal/bom"
	"fabrica/internal/db"
	applog "fabrica/internal/log"
	"fabrica/models"
)

const maxCodeLength = 255

var minOrderQuantity = decimal.New(1, -4)

// OrderInput describes a new production order. Code is generated when
// empty; output product and unit default to the BOM's; Status defaults to
// planned.
type OrderInput struct {
	Code            string
	BomID           uint
	OutputProductID uint
	OutputUnitID    uint
	Quantity        decimal.Decimal
	Status          models.OrderStatus
}

// CreateOrder validates and stores a new order authored by actorID.
func (s *Service) CreateOrder(ctx context.Context, actorID uint, in OrderInput) (*models.ProductionOrder, error) {
	status := in.Status
	if status == "" {
		status = models.StatusPlanned
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = s.GenerateCode()
	}
	fail := func(err error) (*models.ProductionOrder, error) {
		return nil, &OrderError{Op: ActionCreate, Code: code, Err: err}
	}

	if status != models.StatusDraft && status != models.StatusPlanned {
		return fail(fmt.Errorf("new orders must be draft or planned, got %q", status))
	}
	if len(code) > maxCodeLength {
		return fail(fmt.Errorf("order code cannot exceed %d characters", maxCodeLength))
	}
	if in.Quantity.LessThan(minOrderQuantity) {
		return fail(fmt.Errorf("quantity must be at least 0.0001"))
	}

	order := &models.ProductionOrder{
		Code:     code,
		Quantity: in.Quantity,
		Status:   status,
		AuthorID: actorID,
	}
	err := db.Transaction(ctx, s.db, func(ctx context.Context) error {
		recipe, err := s.boms.Find(ctx, in.BomID)
		if errors.Is(err, bom.ErrBomNotFound) {
			return &MissingOrInactiveBomError{Code: code, BomID: in.BomID, Missing: true}
		}
		if err != nil {
			return err
		}
		order.BomID = &recipe.ID
		conn := db.Conn(ctx, s.db)
		order.OutputProductID = in.OutputProductID
		if order.OutputProductID == 0 {
			order.OutputProductID = recipe.OutputProductID
		} else if err := requireOutput(conn, &models.Product{}, "product", order.OutputProductID); err != nil {
			return err
		}
		order.OutputUnitID = in.OutputUnitID
		if order.OutputUnitID == 0 {
			order.OutputUnitID = recipe.OutputUnitID
		} else if err := requireOutput(conn, &models.Unit{}, "unit", order.OutputUnitID); err != nil {
			return err
		}

		var taken int64
		if err := conn.Model(&models.ProductionOrder{}).Unscoped().Where("code = ?", code).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		return insertOrder(conn, order)
	})
	if err != nil {
		return fail(classify(string(ActionCreate), err))
	}
	applog.Info(ctx, "production order created", "order_code", order.Code, "status", string(order.Status))
	return order, nil
}

func requireOutput(conn *gorm.DB, model any, label string, id uint) error {
	var count int64
	if err := conn.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %d", ErrUnknownOutput, label, id)
	}
	return nil
}

// insertOrder stores order. A code taken by a concurrent insert surfaces
// through the unique index and is reported as ErrDuplicateCode.
func insertOrder(conn *gorm.DB, order *models.ProductionOrder) error {
	err := conn.Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, order.Code)
	}
	return err
}

// GenerateCode returns a fresh order code such as MO-20260115-3FA2C1.
func (s *Service) GenerateCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s-%s-%s", s.prefix, s.now().Format("20060102"), suffix)
}

// Find loads an order by id.
func (s *Service) Find(ctx context.Context, orderID uint) (*models.ProductionOrder, error) {
	var order models.ProductionOrder
	err := db.Conn(ctx, s.db).First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return &order, nil
}

// Movements lists the stock movements recorded for an order.
func (s *Service) Movements(ctx context.Context, orderID uint) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := db.Conn(ctx, s.db).Where("order_id = ?", orderID).Order("id asc").Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("load movements of order %d: %w", orderID, err)
	}
	return movements, nil
}

// Requirement is the material one component needs for an order.
type Requirement struct {
	ProductID      uint            `json:"product_id"`
	ProductName    string          `json:"product_name"`
	UnitID         uint            `json:"unit_id"`
	UnitName       string          `json:"unit_name"`
	Required       decimal.Decimal `json:"required"`
	Available      decimal.Decimal `json:"available"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	WasteAllowance decimal.Decimal `json:"waste_allowance"`
}

// Requirements reports, per component, what the order would consume and how
// much is on hand. Waste allowances are informational and never consumed.
func (s *Service) Requirements(ctx context.Context, orderID uint) ([]Requirement, error) {
	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	recipe, err := s.activeBom(ctx, order, false)
	if err != nil {
		return nil, err
	}

	needs := requirementsFor(recipe, order.Quantity)
	out := make([]Requirement, 0, len(needs))
	for _, n := range needs {
		have, err := s.inventory.Available(ctx, n.productID, n.unitID)
		if err != nil {
			return nil, err
		}
		productName, unitName, err := s.catalog.Describe(ctx, n.productID, n.unitID)
		if err != nil {
			return nil, err
		}
		shortfall := n.required.Sub(have)
		if shortfall.IsNegative() {
			shortfall = decimal.Zero
		}
		out = append(out, Requirement{
			ProductID:      n.productID,
			ProductName:    productName,
			UnitID:         n.unitID,
			UnitName:       unitName,
			Required:       n.required,
			Available:      have,
			Shortfall:      shortfall,
			WasteAllowance: n.waste,
		})
	}
	return out, nil
}
