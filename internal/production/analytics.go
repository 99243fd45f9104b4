package production

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fabrica/internal/bom"
	"fabrica/internal/db"
	"fabrica/models"
)

const analyticsListLimit = 5

// Summary is the production overview.
type Summary struct {
	TotalOrders          int64           `json:"total_orders"`
	Completed            int64           `json:"completed"`
	Pending              int64           `json:"pending"`
	TotalProductionValue decimal.Decimal `json:"total_production_value"`
	TopProducts          []ProductTotal  `json:"top_products"`
	RecentOrders         []RecentOrder   `json:"recent_orders"`
}

// ProductTotal is the quantity of a product across completed orders.
type ProductTotal struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// RecentOrder is one row of the recent orders list, valued at current cost.
type RecentOrder struct {
	ID          uint               `json:"id"`
	Code        string             `json:"code"`
	ProductName string             `json:"product_name"`
	UnitName    string             `json:"unit_name"`
	Quantity    decimal.Decimal    `json:"quantity"`
	Status      models.OrderStatus `json:"status"`
	Value       decimal.Decimal    `json:"value"`
	CreatedAt   time.Time          `json:"created_at"`
}

// BomUsage counts how often a BOM was used.
type BomUsage struct {
	BomID                 uint            `json:"bom_id"`
	TotalOrders           int64           `json:"total_orders"`
	CompletedOrders       int64           `json:"completed_orders"`
	TotalQuantityProduced decimal.Decimal `json:"total_quantity_produced"`
}

// Analytics aggregates production orders. Values use the current BOM cost,
// not the cost recorded at completion.
type Analytics struct {
	db        *gorm.DB
	boms      BomSource
	estimator CostEstimator
	catalog   Catalog
}

// NewAnalytics returns Analytics reading from database.
func NewAnalytics(database *gorm.DB, boms BomSource, estimator CostEstimator, catalog Catalog) *Analytics {
	return &Analytics{db: database, boms: boms, estimator: estimator, catalog: catalog}
}

// Analytics returns the analytics view over the Service's collaborators.
func (s *Service) Analytics() *Analytics {
	return NewAnalytics(s.db, s.boms, s.estimator, s.catalog)
}

// Summary computes order counts, production value, top products and the most recent orders.
func (a *Analytics) Summary(ctx context.Context) (*Summary, error) {
	conn := db.Conn(ctx, a.db)
	summary := &Summary{TotalProductionValue: decimal.Zero}

	if err := conn.Model(&models.ProductionOrder{}).Count(&summary.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	if err := conn.Model(&models.ProductionOrder{}).
		Where("status IN ?", []models.OrderStatus{models.StatusDraft, models.StatusPlanned, models.StatusInProgress}).
		Count(&summary.Pending).Error; err != nil {
		return nil, fmt.Errorf("count pending orders: %w", err)
	}

	var completed []models.ProductionOrder
	if err := conn.Where("status = ?", models.StatusCompleted).Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("load completed orders: %w", err)
	}
	summary.Completed = int64(len(completed))

	costs := map[uint]decimal.Decimal{}
	totals := map[uint]decimal.Decimal{}
	var productOrder []uint
	for i := range completed {
		order := &completed[i]
		value, err := a.orderValue(ctx, order, costs)
		if err != nil {
			return nil, err
		}
		summary.TotalProductionValue = summary.TotalProductionValue.Add(value)
		if _, seen := totals[order.OutputProductID]; !seen {
			productOrder = append(productOrder, order.OutputProductID)
		}
		totals[order.OutputProductID] = totals[order.OutputProductID].Add(order.Quantity)
	}

	top, err := a.topProducts(ctx, productOrder, totals)
	if err != nil {
		return nil, err
	}
	summary.TopProducts = top

	var recent []models.ProductionOrder
	if err := conn.Order("created_at desc").Order("id desc").Limit(analyticsListLimit).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("load recent orders: %w", err)
	}
	summary.RecentOrders = make([]RecentOrder, 0, len(recent))
	for i := range recent {
		order := &recent[i]
		value, err := a.orderValue(ctx, order, costs)
		if err != nil {
			return nil, err
		}
		productName, unitName, err := a.catalog.Describe(ctx, order.OutputProductID, order.OutputUnitID)
		if err != nil {
			return nil, err
		}
		summary.RecentOrders = append(summary.RecentOrders, RecentOrder{
			ID:          order.ID,
			Code:        order.Code,
			ProductName: productName,
			UnitName:    unitName,
			Quantity:    order.Quantity,
			Status:      order.Status,
			Value:       value,
			CreatedAt:   order.CreatedAt,
		})
	}
	return summary, nil
}

// BomUsage counts the orders that reference bomID.
func (a *Analytics) BomUsage(ctx context.Context, bomID uint) (*BomUsage, error) {
	var orders []models.ProductionOrder
	if err := db.Conn(ctx, a.db).Where("bom_id = ?", bomID).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("load orders of bom %d: %w", bomID, err)
	}
	usage := &BomUsage{BomID: bomID, TotalOrders: int64(len(orders)), TotalQuantityProduced: decimal.Zero}
	for _, order := range orders {
		if order.Status != models.StatusCompleted {
			continue
		}
		usage.CompletedOrders++
		usage.TotalQuantityProduced = usage.TotalQuantityProduced.Add(order.Quantity)
	}
	return usage, nil
}

// orderValue is the current estimated cost of one run times the order
// quantity. Orders whose BOM is gone are worth zero. costs caches per BOM within
// one call.
func (a *Analytics) orderValue(ctx context.Context, order *models.ProductionOrder, costs map[uint]decimal.Decimal) (decimal.Decimal, error) {
	if order.BomID == nil {
		return decimal.Zero, nil
	}
	cost, ok := costs[*order.BomID]
	if !ok {
		recipe, err := a.boms.Find(ctx, *order.BomID)
		if errors.Is(err, bom.ErrBomNotFound) {
			costs[*order.BomID] = decimal.Zero
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, err
		}
		cost, err = a.estimator.CalculateEstimatedCost(ctx, recipe)
		if err != nil {
			return decimal.Zero, fmt.Errorf("estimate cost of bom %d: %w", recipe.ID, err)
		}
		costs[*order.BomID] = cost
	}
	return cost.Mul(order.Quantity), nil
}

func (a *Analytics) topProducts(ctx context.Context, products []uint, totals map[uint]decimal.Decimal) ([]ProductTotal, error) {
	ranked := make([]ProductTotal, 0, len(products))
	for _, id := range products {
		ranked = append(ranked, ProductTotal{ProductID: id, Quantity: totals[id]})
	}
	// Ties keep the order of first completion.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quantity.GreaterThan(ranked[j].Quantity)
	})
	if len(ranked) > analyticsListLimit {
		ranked = ranked[:analyticsListLimit]
	}
	for i := range ranked {
		name, _, err := a.catalog.Describe(ctx, ranked[i].ProductID, 0)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = "Unknown"
		}
		ranked[i].Name = name
	}
	return ranked, nil
}
