// Package inventory translates production consume/produce requests into
// stock ledger adjustments and records a StockMovement for each of them.
package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fabrica/internal/db"
	"fabrica/internal/ledger"
	"fabrica/models"
)

// StockLedger is the system of record for on-hand quantities.
type StockLedger interface {
	GetQuantity(ctx context.Context, productID, unitID uint) (decimal.Decimal, error)
	AdjustStock(ctx context.Context, action ledger.Action, adj ledger.Adjustment) error
}

// Bridge adapts production requests to a StockLedger. Consume and Produce
// join the transaction carried in ctx and never commit on their own.
type Bridge struct {
	db     *gorm.DB
	ledger StockLedger
}

// NewBridge returns a Bridge writing movements to database.
func NewBridge(database *gorm.DB, stock StockLedger) *Bridge {
	return &Bridge{db: database, ledger: stock}
}

// Available returns the on-hand quantity of a product in a unit.
func (b *Bridge) Available(ctx context.Context, productID, unitID uint) (decimal.Decimal, error) {
	return b.ledger.GetQuantity(ctx, productID, unitID)
}

// IsAvailable reports whether at least quantity is on hand.
func (b *Bridge) IsAvailable(ctx context.Context, productID, unitID uint, quantity decimal.Decimal) (bool, error) {
	current, err := b.Available(ctx, productID, unitID)
	if err != nil {
		return false, err
	}
	return current.GreaterThanOrEqual(quantity), nil
}

// Consume takes quantity out of stock for orderID.
func (b *Bridge) Consume(ctx context.Context, orderID, productID, unitID uint, quantity, costAtTime decimal.Decimal, actorID uint) (*models.StockMovement, error) {
	return b.move(ctx, movement{
		action:      ledger.ActionConsume,
		kind:        models.MovementConsumption,
		description: fmt.Sprintf("Manufacturing consumption (order #%d)", orderID),
		signed:      quantity.Neg(),
	}, orderID, productID, unitID, quantity, costAtTime, actorID)
}

// Produce adds quantity of finished goods to stock for orderID.
func (b *Bridge) Produce(ctx context.Context, orderID, productID, unitID uint, quantity, costAtTime decimal.Decimal, actorID uint) (*models.StockMovement, error) {
	return b.move(ctx, movement{
		action:      ledger.ActionProduce,
		kind:        models.MovementProduction,
		description: fmt.Sprintf("Manufacturing output (order #%d)", orderID),
		signed:      quantity,
	}, orderID, productID, unitID, quantity, costAtTime, actorID)
}

type movement struct {
	action      ledger.Action
	kind        models.MovementType
	description string
	signed      decimal.Decimal
}

func (b *Bridge) move(ctx context.Context, m movement, orderID, productID, unitID uint, quantity, costAtTime decimal.Decimal, actorID uint) (*models.StockMovement, error) {
	record := &models.StockMovement{
		OrderID:    orderID,
		ProductID:  productID,
		UnitID:     unitID,
		Quantity:   m.signed,
		Type:       m.kind,
		CostAtTime: costAtTime,
	}
	err := db.Transaction(ctx, b.db, func(ctx context.Context) error {
		err := b.ledger.AdjustStock(ctx, m.action, ledger.Adjustment{
			ProductID:   productID,
			UnitID:      unitID,
			Quantity:    quantity,
			UnitPrice:   costAtTime,
			AuthorID:    actorID,
			Description: m.description,
			OrderID:     &orderID,
		})
		if err != nil {
			return err
		}
		if err := db.Conn(ctx, b.db).Create(record).Error; err != nil {
			return fmt.Errorf("record %s movement for order %d: %w", m.kind, orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
