package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fabrica/internal/bom"
	"fabrica/models"
)

type bomRequest struct {
	Name            string          `json:"name"`
	OutputProductID uint            `json:"output_product_id"`
	OutputUnitID    uint            `json:"output_unit_id"`
	OutputQuantity  decimal.Decimal `json:"output_quantity"`
	IsActive        bool            `json:"is_active"`
	Description     string          `json:"description"`
}

type itemRequest struct {
	ComponentProductID    uint             `json:"component_product_id"`
	ComponentUnitID       *uint            `json:"component_unit_id"`
	Quantity              decimal.Decimal  `json:"quantity"`
	WastePercent          decimal.Decimal  `json:"waste_percent"`
	CostAllocationPercent *decimal.Decimal `json:"cost_allocation_percent"`
}

func (req itemRequest) input() bom.ItemInput {
	return bom.ItemInput{
		ComponentProductID:    req.ComponentProductID,
		ComponentUnitID:       req.ComponentUnitID,
		Quantity:              req.Quantity,
		WastePercent:          req.WastePercent,
		CostAllocationPercent: req.CostAllocationPercent,
	}
}

type itemResponse struct {
	ID                    uint            `json:"id"`
	BomID                 uint            `json:"bom_id"`
	ComponentProductID    uint            `json:"component_product_id"`
	ComponentUnitID       *uint           `json:"component_unit_id,omitempty"`
	Quantity              decimal.Decimal `json:"quantity"`
	WastePercent          decimal.Decimal `json:"waste_percent"`
	CostAllocationPercent decimal.Decimal `json:"cost_allocation_percent"`
}

func newItemResponse(item *models.BomItem) itemResponse {
	return itemResponse{
		ID:                    item.ID,
		BomID:                 item.BomID,
		ComponentProductID:    item.ComponentProductID,
		ComponentUnitID:       item.ComponentUnitID,
		Quantity:              item.Quantity,
		WastePercent:          item.WastePercent,
		CostAllocationPercent: item.CostAllocationPercent,
	}
}

type bomResponse struct {
	ID              uint            `json:"id"`
	UUID            string          `json:"uuid"`
	Name            string          `json:"name"`
	OutputProductID uint            `json:"output_product_id"`
	OutputUnitID    uint            `json:"output_unit_id"`
	OutputQuantity  decimal.Decimal `json:"output_quantity"`
	IsActive        bool            `json:"is_active"`
	Description     string          `json:"description"`
	Items           []itemResponse  `json:"items"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

func newBomResponse(r *http.Request, recipe *models.BillOfMaterials) (bomResponse, error) {
	resp := bomResponse{
		ID:              recipe.ID,
		UUID:            recipe.UUID,
		Name:            recipe.Name,
		OutputProductID: recipe.OutputProductID,
		OutputUnitID:    recipe.OutputUnitID,
		OutputQuantity:  recipe.OutputQuantity,
		IsActive:        recipe.IsActive,
		Description:     recipe.Description,
		Items:           make([]itemResponse, 0, len(recipe.Items)),
	}
	for i := range recipe.Items {
		resp.Items = append(resp.Items, newItemResponse(&recipe.Items[i]))
	}
	if estimator == nil {
		return resp, nil
	}
	total, err := estimator.CalculateEstimatedCost(r.Context(), recipe)
	if err != nil {
		return resp, err
	}
	unit, err := estimator.UnitCost(r.Context(), recipe)
	if err != nil {
		return resp, err
	}
	resp.EstimatedCost, resp.UnitCost = total, unit
	return resp, nil
}

// Boms serves /api/boms: creation, lookup with current cost, deletion, item
// attachment and usage statistics.
func Boms(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if boms == nil || orders == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "production not available")
		return
	}

	bomID, rest, ok := pathSegments(r, "/api/boms")
	if !ok || len(rest) > 1 {
		http.NotFound(w, r)
		return
	}

	if bomID == 0 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		createBom(w, r, userID)
		return
	}

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			showBom(w, r, bomID)
		case http.MethodDelete:
			if err := boms.DeleteBom(r.Context(), bomID); err != nil {
				writeServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch rest[0] {
	case "items":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req itemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		item, err := boms.AddItem(r.Context(), userID, bomID, req.input())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newItemResponse(item))
	case "usage":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		usage, err := orders.Analytics().BomUsage(r.Context(), bomID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, usage)
	default:
		http.NotFound(w, r)
	}
}

func createBom(w http.ResponseWriter, r *http.Request, userID uint) {
	var req bomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recipe, err := boms.CreateBom(r.Context(), userID, bom.BomInput{
		Name:            req.Name,
		OutputProductID: req.OutputProductID,
		OutputUnitID:    req.OutputUnitID,
		OutputQuantity:  req.OutputQuantity,
		IsActive:        req.IsActive,
		Description:     req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp, err := newBomResponse(r, recipe)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func showBom(w http.ResponseWriter, r *http.Request, bomID uint) {
	recipe, err := boms.Repository().Find(r.Context(), bomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp, err := newBomResponse(r, recipe)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// BomItems serves PUT /api/bom-items/{id}.
func BomItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if boms == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "production not available")
		return
	}
	itemID, rest, ok := pathSegments(r, "/api/bom-items")
	if !ok || itemID == 0 || len(rest) > 0 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req itemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := boms.UpdateItem(r.Context(), userID, itemID, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

type flagsRequest struct {
	IsManufactured bool `json:"is_manufactured"`
	IsRawMaterial  bool `json:"is_raw_material"`
}

type flagsResponse struct {
	ID                     uint `json:"id"`
	CanBeUsedForProduction bool `json:"can_be_used_for_production"`
	CanBeUsedAsComponent   bool `json:"can_be_used_as_component"`
}

// ProductUnitFlags serves /api/product-units/{id}/flags: GET reports what the
// product unit may be used for, PUT changes its manufacturing flags.
func ProductUnitFlags(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(r); !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if boms == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "production not available")
		return
	}
	unitID, rest, ok := pathSegments(r, "/api/product-units")
	if !ok || unitID == 0 || len(rest) != 1 || rest[0] != "flags" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req flagsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, err := boms.SetManufacturingFlags(r.Context(), unitID, req.IsManufactured, req.IsRawMaterial); err != nil {
			writeServiceError(w, r, err)
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	producible, err := boms.CanBeUsedForProduction(r.Context(), unitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	component, err := boms.CanBeUsedAsComponent(r.Context(), unitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flagsResponse{ID: unitID, CanBeUsedForProduction: producible, CanBeUsedAsComponent: component})
}
