package production

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fabrica/models"
)

var (
	// ErrOrderNotFound is returned when a production order does not exist.
	ErrOrderNotFound = errors.New("production order not found")
	// ErrDuplicateCode is returned when an order code is already taken.
	ErrDuplicateCode = errors.New("production order code already exists")
	// ErrConcurrentTransition is returned when the order changed status
	// between being read and being updated.
	ErrConcurrentTransition = errors.New("production order was modified concurrently")
	// ErrUnknownOutput is returned when an order names an output product or
	// unit that does not exist.
	ErrUnknownOutput = errors.New("output product or unit does not exist")
)

// InvalidTransitionError reports an action the order's current status does not allow.
type InvalidTransitionError struct {
	Code   string
	Action Action
	Status models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %s in %s status", e.Action, e.Code, e.Status)
}

// MissingOrInactiveBomError reports an order without a usable BOM.
type MissingOrInactiveBomError struct {
	Code    string
	BomID   uint
	BomName string
	Missing bool
}

func (e *MissingOrInactiveBomError) Error() string {
	if e.Missing {
		return fmt.Sprintf("no bom assigned to order %s", e.Code)
	}
	return fmt.Sprintf("bom %q is not active", e.BomName)
}

// Shortfall is one component that is not sufficiently stocked.
type Shortfall struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitID      uint            `json:"unit_id"`
	UnitName    string          `json:"unit_name"`
	Required    decimal.Decimal `json:"required"`
	Available   decimal.Decimal `json:"available"`
}

func (s Shortfall) String() string {
	product := s.ProductName
	if product == "" {
		product = fmt.Sprintf("product #%d", s.ProductID)
	}
	unit := s.UnitName
	if unit == "" {
		unit = "unknown unit"
	}
	return fmt.Sprintf("%s (%s): required %s, available %s", product, unit, s.Required, s.Available)
}

// InsufficientStockError lists every component short for an order.
type InsufficientStockError struct {
	Code       string
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	lines := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		lines = append(lines, s.String())
	}
	return fmt.Sprintf("insufficient stock for order %s: %s", e.Code, strings.Join(lines, "; "))
}

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// OrderError is returned by every order operation. It names the order and
// wraps the failure kind.
type OrderError struct {
	Op      Action
	OrderID uint
	Code    string
	Err     error
}

func (e *OrderError) Error() string {
	ref := e.Code
	if ref == "" {
		ref = fmt.Sprintf("#%d", e.OrderID)
	}
	return fmt.Sprintf("failed to %s production order %s: %v", e.Op, ref, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// classify keeps domain failures as they are and wraps anything else as a
// PersistenceError.
func classify(op string, err error) error {
	var (
		transition *InvalidTransitionError
		missing    *MissingOrInactiveBomError
		shortage   *InsufficientStockError
		persist    *PersistenceError
	)
	switch {
	case errors.As(err, &transition), errors.As(err, &missing), errors.As(err, &shortage), errors.As(err, &persist):
		return err
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrConcurrentTransition), errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrUnknownOutput):
		return err
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}
