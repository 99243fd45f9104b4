// Package production drives production orders through their lifecycle,
// consuming component stock on start and producing finished goods on
// completion. Every operation runs in a single database transaction.
package production

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fabrica/internal/bom"
	"fabrica/internal/db"
	"fabrica/internal/inventory"
	"fabrica/internal/ledger"
	applog "fabrica/internal/log"
	"fabrica/models"
)

// BomSource loads a BOM with its items.
type BomSource interface {
	Find(ctx context.Context, id uint) (*models.BillOfMaterials, error)
}

// Inventory moves stock on behalf of orders.
type Inventory interface {
	Available(ctx context.Context, productID, unitID uint) (decimal.Decimal, error)
	Consume(ctx context.Context, orderID, productID, unitID uint, quantity, costAtTime decimal.Decimal, actorID uint) (*models.StockMovement, error)
	Produce(ctx context.Context, orderID, productID, unitID uint, quantity, costAtTime decimal.Decimal, actorID uint) (*models.StockMovement, error)
}

// CostEstimator prices a BOM from current component costs.
type CostEstimator interface {
	CalculateEstimatedCost(ctx context.Context, bom *models.BillOfMaterials) (decimal.Decimal, error)
	UnitCost(ctx context.Context, bom *models.BillOfMaterials) (decimal.Decimal, error)
}

// Catalog answers product cost and naming queries.
type Catalog interface {
	GetCogs(ctx context.Context, productID, unitID uint) (decimal.Decimal, error)
	Describe(ctx context.Context, productID, unitID uint) (product, unit string, err error)
}

// Config tunes a Service.
type Config struct {
	// OrderCodePrefix starts generated order codes. Defaults to "MO".
	OrderCodePrefix string
	// Now stamps started_at and completed_at. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Service is the production order state machine.
type Service struct {
	db        *gorm.DB
	boms      BomSource
	inventory Inventory
	estimator CostEstimator
	catalog   Catalog
	prefix    string
	now       func() time.Time
}

// New assembles a Service from its collaborators.
func New(database *gorm.DB, boms BomSource, stock Inventory, estimator CostEstimator, catalog Catalog, cfg Config) *Service {
	prefix := strings.ToUpper(strings.TrimSpace(cfg.OrderCodePrefix))
	if prefix == "" {
		prefix = "MO"
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        database,
		boms:      boms,
		inventory: stock,
		estimator: estimator,
		catalog:   catalog,
		prefix:    prefix,
		now:       now,
	}
}

// NewDefault wires a Service over the gorm stock ledger.
func NewDefault(database *gorm.DB, cfg Config) *Service {
	store := ledger.New(database)
	return New(
		database,
		bom.NewRepository(database),
		inventory.NewBridge(database, store),
		bom.NewEstimator(store),
		store,
		cfg,
	)
}

// Start consumes the BOM components for the order and moves it to in_progress.
func (s *Service) Start(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error) {
	return s.run(ctx, ActionStart, actorID, orderID, func(ctx context.Context, order *models.ProductionOrder) error {
		return s.start(ctx, actorID, order)
	})
}

// Complete produces the order's output and moves it to completed. Draft and
// planned orders are started first within the same transaction.
func (s *Service) Complete(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error) {
	return s.run(ctx, ActionComplete, actorID, orderID, func(ctx context.Context, order *models.ProductionOrder) error {
		if _, ok := Next(order.Status, ActionComplete); !ok {
			if _, startable := Next(order.Status, ActionStart); startable {
				if err := s.start(ctx, actorID, order); err != nil {
					return err
				}
			}
		}
		return s.complete(ctx, actorID, order)
	})
}

// Cancel abandons an order that has not consumed any stock.
func (s *Service) Cancel(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error) {
	return s.run(ctx, ActionCancel, actorID, orderID, func(ctx context.Context, order *models.ProductionOrder) error {
		return s.move(ctx, order, ActionCancel, nil)
	})
}

// Hold pauses an order that has not consumed any stock.
func (s *Service) Hold(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error) {
	return s.run(ctx, ActionHold, actorID, orderID, func(ctx context.Context, order *models.ProductionOrder) error {
		return s.move(ctx, order, ActionHold, nil)
	})
}

// Resume returns a held order to planned.
func (s *Service) Resume(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error) {
	return s.run(ctx, ActionResume, actorID, orderID, func(ctx context.Context, order *models.ProductionOrder) error {
		return s.move(ctx, order, ActionResume, nil)
	})
}

// run locks the order and applies fn in one transaction. Failures are
// returned as *OrderError.
func (s *Service) run(ctx context.Context, action Action, actorID, orderID uint, fn func(context.Context, *models.ProductionOrder) error) (*models.ProductionOrder, error) {
	ctx = applog.With(ctx, "order_id", orderID, "action", string(action), "actor_id", actorID)

	var order *models.ProductionOrder
	err := db.Transaction(ctx, s.db, func(ctx context.Context) error {
		locked, err := s.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = locked
		return fn(applog.With(ctx, "order_code", locked.Code), locked)
	})
	if err != nil {
		code := ""
		if order != nil {
			code = order.Code
		}
		wrapped := &OrderError{Op: action, OrderID: orderID, Code: code, Err: classify(string(action), err)}
		applog.Error(ctx, "production order transition failed", "order_code", code, "error", err)
		return nil, wrapped
	}
	return order, nil
}

func (s *Service) lockOrder(ctx context.Context, orderID uint) (*models.ProductionOrder, error) {
	var order models.ProductionOrder
	err := db.Conn(ctx, s.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "lock order", Err: err}
	}
	return &order, nil
}

func (s *Service) start(ctx context.Context, actorID uint, order *models.ProductionOrder) error {
	if _, ok := Next(order.Status, ActionStart); !ok {
		return &InvalidTransitionError{Code: order.Code, Action: ActionStart, Status: order.Status}
	}
	recipe, err := s.activeBom(ctx, order, true)
	if err != nil {
		return err
	}

	needs := requirementsFor(recipe, order.Quantity)
	if err := s.checkAvailability(ctx, order, needs); err != nil {
		return err
	}

	// One movement per BOM item, even when items share a balance.
	for _, item := range recipe.Items {
		productID, unitID := item.ComponentProductID, item.UnitID()
		required := item.Quantity.Mul(order.Quantity)
		cost, err := s.catalog.GetCogs(ctx, productID, unitID)
		if err != nil {
			return &PersistenceError{Op: "load component cost", Err: err}
		}
		if _, err := s.inventory.Consume(ctx, order.ID, productID, unitID, required, cost, actorID); err != nil {
			return &PersistenceError{Op: "consume material", Err: err}
		}
		applog.Info(ctx, "consumed material",
			"bom_item_id", item.ID,
			"product_id", productID,
			"unit_id", unitID,
			"quantity", required.String(),
			"cost", cost.String(),
		)
	}

	now := s.now()
	if err := s.move(ctx, order, ActionStart, map[string]any{"started_at": now}); err != nil {
		return err
	}
	order.StartedAt = &now
	applog.Info(ctx, "production order started")
	return nil
}

func (s *Service) complete(ctx context.Context, actorID uint, order *models.ProductionOrder) error {
	if _, ok := Next(order.Status, ActionComplete); !ok {
		return &InvalidTransitionError{Code: order.Code, Action: ActionComplete, Status: order.Status}
	}
	recipe, err := s.activeBom(ctx, order, false)
	if err != nil {
		return err
	}

	unitCost, err := s.estimator.UnitCost(ctx, recipe)
	if err != nil {
		return &PersistenceError{Op: "estimate unit cost", Err: err}
	}
	produced := OutputQuantity(recipe, order.Quantity)
	if _, err := s.inventory.Produce(ctx, order.ID, order.OutputProductID, order.OutputUnitID, produced, unitCost, actorID); err != nil {
		return &PersistenceError{Op: "produce output", Err: err}
	}

	now := s.now()
	if err := s.move(ctx, order, ActionComplete, map[string]any{"completed_at": now}); err != nil {
		return err
	}
	order.CompletedAt = &now
	applog.Info(ctx, "production order completed",
		"quantity_produced", produced.String(),
		"unit_cost", unitCost.String(),
	)
	return nil
}

// move applies action to the order's status. The update only matches while
// the row still carries the status that was read.
func (s *Service) move(ctx context.Context, order *models.ProductionOrder, action Action, extra map[string]any) error {
	next, ok := Next(order.Status, action)
	if !ok {
		return &InvalidTransitionError{Code: order.Code, Action: action, Status: order.Status}
	}
	updates := map[string]any{"status": next}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.Conn(ctx, s.db).
		Model(&models.ProductionOrder{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return &PersistenceError{Op: "update order status", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentTransition
	}
	if action != ActionStart && action != ActionComplete {
		applog.Info(ctx, "production order status changed", "from", string(order.Status), "to", string(next))
	}
	order.Status = next
	return nil
}

// activeBom loads the order's BOM. requireActive additionally rejects
// inactive BOMs.
func (s *Service) activeBom(ctx context.Context, order *models.ProductionOrder, requireActive bool) (*models.BillOfMaterials, error) {
	if order.BomID == nil {
		return nil, &MissingOrInactiveBomError{Code: order.Code, Missing: true}
	}
	recipe, err := s.boms.Find(ctx, *order.BomID)
	if errors.Is(err, bom.ErrBomNotFound) {
		return nil, &MissingOrInactiveBomError{Code: order.Code, BomID: *order.BomID, Missing: true}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load bom", Err: err}
	}
	if requireActive && !recipe.IsActive {
		return nil, &MissingOrInactiveBomError{Code: order.Code, BomID: recipe.ID, BomName: recipe.Name}
	}
	return recipe, nil
}

type need struct {
	productID uint
	unitID    uint
	required  decimal.Decimal
	waste     decimal.Decimal
}

// requirementsFor multiplies every item by the order quantity. Items sharing
// a product and unit are merged, keeping the order of first appearance, so
// availability is judged against the combined draw on each balance.
func requirementsFor(recipe *models.BillOfMaterials, quantity decimal.Decimal) []need {
	var needs []need
	index := map[[2]uint]int{}
	for _, item := range recipe.Items {
		required := item.Quantity.Mul(quantity)
		waste := required.Mul(item.WastePercent).Div(decimal.NewFromInt(100))
		key := [2]uint{item.ComponentProductID, item.UnitID()}
		if i, ok := index[key]; ok {
			needs[i].required = needs[i].required.Add(required)
			needs[i].waste = needs[i].waste.Add(waste)
			continue
		}
		index[key] = len(needs)
		needs = append(needs, need{productID: key[0], unitID: key[1], required: required, waste: waste})
	}
	return needs
}

// checkAvailability reads every balance in ascending (product, unit) order,
// which locks them for the rest of the transaction, and reports all
// shortfalls at once.
func (s *Service) checkAvailability(ctx context.Context, order *models.ProductionOrder, needs []need) error {
	sorted := make([]need, len(needs))
	copy(sorted, needs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].productID != sorted[j].productID {
			return sorted[i].productID < sorted[j].productID
		}
		return sorted[i].unitID < sorted[j].unitID
	})

	available := make(map[[2]uint]decimal.Decimal, len(sorted))
	for _, n := range sorted {
		qty, err := s.inventory.Available(ctx, n.productID, n.unitID)
		if err != nil {
			return &PersistenceError{Op: "check stock", Err: err}
		}
		available[[2]uint{n.productID, n.unitID}] = qty
	}

	var shortfalls []Shortfall
	for _, n := range needs {
		have := available[[2]uint{n.productID, n.unitID}]
		if have.GreaterThanOrEqual(n.required) {
			continue
		}
		productName, unitName, err := s.catalog.Describe(ctx, n.productID, n.unitID)
		if err != nil {
			return &PersistenceError{Op: "describe component", Err: err}
		}
		shortfalls = append(shortfalls, Shortfall{
			ProductID:   n.productID,
			ProductName: productName,
			UnitID:      n.unitID,
			UnitName:    unitName,
			Required:    n.required,
			Available:   have,
		})
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Code: order.Code, Shortfalls: shortfalls}
	}
	return nil
}

// OutputQuantity is the amount of finished goods an order of quantity runs
// of recipe yields.
func OutputQuantity(recipe *models.BillOfMaterials, quantity decimal.Decimal) decimal.Decimal {
	if recipe == nil || !recipe.OutputQuantity.IsPositive() {
		return quantity
	}
	return quantity.Mul(recipe.OutputQuantity)
}
