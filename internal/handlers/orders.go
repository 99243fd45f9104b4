package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	applog "fabrica/internal/log"
	"fabrica/internal/production"
	"fabrica/models"
)

type orderRequest struct {
	Code            string             `json:"code"`
	BomID           uint               `json:"bom_id"`
	OutputProductID uint               `json:"output_product_id"`
	OutputUnitID    uint               `json:"output_unit_id"`
	Quantity        decimal.Decimal    `json:"quantity"`
	Status          models.OrderStatus `json:"status"`
}

type orderResponse struct {
	ID              uint                `json:"id"`
	Code            string              `json:"code"`
	BomID           *uint               `json:"bom_id,omitempty"`
	OutputProductID uint                `json:"output_product_id"`
	OutputUnitID    uint                `json:"output_unit_id"`
	Quantity        decimal.Decimal     `json:"quantity"`
	Status          models.OrderStatus  `json:"status"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Actions         []production.Action `json:"actions"`
}

func newOrderResponse(order *models.ProductionOrder) orderResponse {
	actions := production.Allowed(order.Status)
	if actions == nil {
		actions = []production.Action{}
	}
	return orderResponse{
		ID:              order.ID,
		Code:            order.Code,
		BomID:           order.BomID,
		OutputProductID: order.OutputProductID,
		OutputUnitID:    order.OutputUnitID,
		Quantity:        order.Quantity,
		Status:          order.Status,
		StartedAt:       order.StartedAt,
		CompletedAt:     order.CompletedAt,
		CreatedAt:       order.CreatedAt,
		Actions:         actions,
	}
}

type transitionFunc func(ctx context.Context, actorID, orderID uint) (*models.ProductionOrder, error)

func transitionFor(action production.Action) (transitionFunc, bool) {
	switch action {
	case production.ActionStart:
		return orders.Start, true
	case production.ActionComplete:
		return orders.Complete, true
	case production.ActionCancel:
		return orders.Cancel, true
	case production.ActionHold:
		return orders.Hold, true
	case production.ActionResume:
		return orders.Resume, true
	}
	return nil, false
}

// Orders serves /api/orders: creation, lookup, requirements, movements and
// the lifecycle actions.
func Orders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if orders == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "production not available")
		return
	}

	orderID, rest, ok := pathSegments(r, "/api/orders")
	if !ok {
		http.NotFound(w, r)
		return
	}

	if orderID == 0 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		createOrder(w, r, userID)
		return
	}

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		showOrder(w, r, orderID)
		return
	}
	if len(rest) > 1 {
		http.NotFound(w, r)
		return
	}

	switch rest[0] {
	case "requirements":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orderRequirements(w, r, orderID)
	case "movements":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orderMovements(w, r, orderID)
	default:
		transition, known := transitionFor(production.Action(rest[0]))
		if !known {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		applog.Debug(r.Context(), "order transition requested", "order_id", orderID, "action", rest[0])
		order, err := transition(r.Context(), userID, orderID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

func createOrder(w http.ResponseWriter, r *http.Request, userID uint) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := orders.CreateOrder(r.Context(), userID, production.OrderInput{
		Code:            req.Code,
		BomID:           req.BomID,
		OutputProductID: req.OutputProductID,
		OutputUnitID:    req.OutputUnitID,
		Quantity:        req.Quantity,
		Status:          req.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

func showOrder(w http.ResponseWriter, r *http.Request, orderID uint) {
	order, err := orders.Find(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func orderRequirements(w http.ResponseWriter, r *http.Request, orderID uint) {
	reqs, err := orders.Requirements(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "requirements": reqs})
}

func orderMovements(w http.ResponseWriter, r *http.Request, orderID uint) {
	if _, err := orders.Find(r.Context(), orderID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	movements, err := orders.Movements(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "movements": movements})
}

// Analytics serves the production summary.
func Analytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if orders == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "production not available")
		return
	}
	summary, err := orders.Analytics().Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
