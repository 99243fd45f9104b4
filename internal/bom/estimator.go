package bom

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fabrica/models"
)

// CostSource answers cost-of-goods queries for a product in a unit.
type CostSource interface {
	GetCogs(ctx context.Context, productID, unitID uint) (decimal.Decimal, error)
}

// Estimator prices a BOM from the current cost of its components. Results
// are never cached so price drift between runs is visible.
type Estimator struct {
	costs CostSource
}

// NewEstimator returns an Estimator reading component costs from costs.
func NewEstimator(costs CostSource) *Estimator {
	return &Estimator{costs: costs}
}

// CalculateEstimatedCost returns the cost of one run of bom: the sum of each
// item's quantity times its component's current COGS.
func (e *Estimator) CalculateEstimatedCost(ctx context.Context, bom *models.BillOfMaterials) (decimal.Decimal, error) {
	total := decimal.Zero
	if bom == nil {
		return total, nil
	}
	for _, item := range bom.Items {
		cogs, err := e.costs.GetCogs(ctx, item.ComponentProductID, item.UnitID())
		if err != nil {
			return decimal.Zero, fmt.Errorf("cost of bom %d item %d: %w", bom.ID, item.ID, err)
		}
		total = total.Add(item.Quantity.Mul(cogs))
	}
	return total, nil
}

// UnitCost spreads the estimated run cost over the BOM's output quantity.
func (e *Estimator) UnitCost(ctx context.Context, bom *models.BillOfMaterials) (decimal.Decimal, error) {
	total, err := e.CalculateEstimatedCost(ctx, bom)
	if err != nil {
		return decimal.Zero, err
	}
	if bom == nil || !bom.OutputQuantity.IsPositive() {
		return total, nil
	}
	return total.DivRound(bom.OutputQuantity, 4), nil
}
