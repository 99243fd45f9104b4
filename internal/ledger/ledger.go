// Package ledger is the system of record for on-hand stock. It tracks one
// balance per product/unit pair, keeps its own audit trail and answers cost
// (COGS) queries. Every call joins the ambient transaction carried in the
// context, if any.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fabrica/internal/db"
	applog "fabrica/internal/log"
	"fabrica/models"
)

var (
	// ErrNegativeStock is returned when a decrease would take a balance below zero.
	ErrNegativeStock = errors.New("stock balance would become negative")
	// ErrUnknownAction is returned for an Action the ledger does not handle.
	ErrUnknownAction = errors.New("unknown stock action")
	// ErrInvalidQuantity is returned for non-positive adjustment quantities.
	ErrInvalidQuantity = errors.New("adjustment quantity must be greater than zero")
)

// Action names a kind of stock adjustment.
type Action string

const (
	ActionConsume Action = "manufacturing_consume"
	ActionProduce Action = "manufacturing_produce"
	ActionAdd     Action = "add"
	ActionDeduct  Action = "deduct"
)

// increases reports whether the action adds stock. ok is false for unknown actions.
func (a Action) increases() (increase bool, ok bool) {
	switch a {
	case ActionProduce, ActionAdd:
		return true, true
	case ActionConsume, ActionDeduct:
		return false, true
	default:
		return false, false
	}
}

// Adjustment describes a single stock change.
type Adjustment struct {
	ProductID   uint
	UnitID      uint
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	AuthorID    uint
	Description string
	OrderID     *uint
}

// Store is the gorm-backed stock ledger.
type Store struct {
	db *gorm.DB
}

// New returns a Store over database.
func New(database *gorm.DB) *Store {
	return &Store{db: database}
}

// balance loads the balance row for a product/unit pair. Inside a
// transaction the row is locked until the transaction ends, so a read
// followed by an adjustment cannot interleave with another writer.
func (s *Store) balance(ctx context.Context, productID, unitID uint) (*models.ProductUnitQuantity, error) {
	query := db.Conn(ctx, s.db)
	if _, ok := db.TxFromContext(ctx); ok {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.ProductUnitQuantity
	err := query.Where("product_id = ? AND unit_id = ?", productID, unitID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetQuantity returns the on-hand quantity of a product in a unit. Unknown
// pairs have zero stock.
func (s *Store) GetQuantity(ctx context.Context, productID, unitID uint) (decimal.Decimal, error) {
	row, err := s.balance(ctx, productID, unitID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load stock for product %d unit %d: %w", productID, unitID, err)
	}
	return row.Quantity, nil
}

// GetCogs returns the cost basis of one unit of a product. Unknown pairs cost zero.
func (s *Store) GetCogs(ctx context.Context, productID, unitID uint) (decimal.Decimal, error) {
	var row models.ProductUnitQuantity
	err := db.Conn(ctx, s.db).Where("product_id = ? AND unit_id = ?", productID, unitID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load cogs for product %d unit %d: %w", productID, unitID, err)
	}
	return row.Cogs, nil
}

// SetCogs overrides the cost basis of a product/unit pair, creating the
// balance row when missing.
func (s *Store) SetCogs(ctx context.Context, productID, unitID uint, cogs decimal.Decimal) error {
	if cogs.IsNegative() {
		return fmt.Errorf("cogs must not be negative")
	}
	return db.Transaction(ctx, s.db, func(ctx context.Context) error {
		row, err := s.balance(ctx, productID, unitID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = &models.ProductUnitQuantity{ProductID: productID, UnitID: unitID, Quantity: decimal.Zero}
		} else if err != nil {
			return err
		}
		row.Cogs = cogs
		return db.Conn(ctx, s.db).Save(row).Error
	})
}

// AdjustStock applies action to the balance described by adj and records a
// ProductHistory entry. Increases carrying a unit price fold it into the
// weighted average cost of the balance.
func (s *Store) AdjustStock(ctx context.Context, action Action, adj Adjustment) error {
	increase, ok := action.increases()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !adj.Quantity.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, adj.Quantity)
	}

	return db.Transaction(ctx, s.db, func(ctx context.Context) error {
		conn := db.Conn(ctx, s.db)

		row, err := s.balance(ctx, adj.ProductID, adj.UnitID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !increase {
				return fmt.Errorf("%w: product %d unit %d has no stock", ErrNegativeStock, adj.ProductID, adj.UnitID)
			}
			row = &models.ProductUnitQuantity{ProductID: adj.ProductID, UnitID: adj.UnitID}
		case err != nil:
			return fmt.Errorf("lock stock for product %d unit %d: %w", adj.ProductID, adj.UnitID, err)
		}

		before := row.Quantity
		var after decimal.Decimal
		if increase {
			after = before.Add(adj.Quantity)
			if adj.UnitPrice.IsPositive() && after.IsPositive() {
				row.Cogs = before.Mul(row.Cogs).Add(adj.Quantity.Mul(adj.UnitPrice)).DivRound(after, 4)
			}
		} else {
			after = before.Sub(adj.Quantity)
			if after.IsNegative() {
				return fmt.Errorf("%w: product %d unit %d has %s, need %s",
					ErrNegativeStock, adj.ProductID, adj.UnitID, before, adj.Quantity)
			}
		}
		row.Quantity = after

		if err := conn.Save(row).Error; err != nil {
			return fmt.Errorf("save stock for product %d unit %d: %w", adj.ProductID, adj.UnitID, err)
		}

		history := models.ProductHistory{
			ProductID:      adj.ProductID,
			UnitID:         adj.UnitID,
			Action:         string(action),
			Quantity:       adj.Quantity,
			BeforeQuantity: before,
			AfterQuantity:  after,
			UnitPrice:      adj.UnitPrice,
			TotalPrice:     adj.UnitPrice.Mul(adj.Quantity),
			AuthorID:       adj.AuthorID,
			Description:    adj.Description,
			OrderID:        adj.OrderID,
		}
		if err := conn.Create(&history).Error; err != nil {
			return fmt.Errorf("record stock history: %w", err)
		}

		applog.Debug(ctx, "stock adjusted",
			"action", string(action),
			"product_id", adj.ProductID,
			"unit_id", adj.UnitID,
			"before", before.String(),
			"after", after.String(),
		)
		return nil
	})
}

// Describe returns display names for a product and unit. Missing records
// yield empty names.
func (s *Store) Describe(ctx context.Context, productID, unitID uint) (string, string, error) {
	conn := db.Conn(ctx, s.db)

	var product models.Product
	if err := conn.Select("id", "name").First(&product, productID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("load product %d: %w", productID, err)
	}
	if unitID == 0 {
		return product.Name, "", nil
	}
	var unit models.Unit
	if err := conn.Select("id", "name").First(&unit, unitID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("load unit %d: %w", unitID, err)
	}
	return product.Name, unit.Name, nil
}

// History lists the ledger entries recorded for a production order.
func (s *Store) History(ctx context.Context, orderID uint) ([]models.ProductHistory, error) {
	var entries []models.ProductHistory
	err := db.Conn(ctx, s.db).Where("order_id = ?", orderID).Order("id asc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load stock history for order %d: %w", orderID, err)
	}
	return entries, nil
}
