package bom

import (
	"context"
	"fmt"
)

// CircularDependencyError reports that attaching ProductID to BomID would
// make the BOM's output product one of its own (possibly indirect) components.
type CircularDependencyError struct {
	BomID     uint
	ProductID uint
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: product %d cannot be a component of bom %d", e.ProductID, e.BomID)
}

// Graph is the read-only view of the BOM graph the Validator walks.
type Graph interface {
	// OutputProduct returns the product a BOM produces; ok is false for unknown BOMs.
	OutputProduct(ctx context.Context, bomID uint) (productID uint, ok bool, err error)
	// ComponentsOf returns the component products of every BOM producing productID.
	ComponentsOf(ctx context.Context, productID uint) ([]uint, error)
}

// Validator detects production cycles before a component is attached to a BOM.
type Validator struct {
	graph Graph
}

// NewValidator returns a Validator reading from graph.
func NewValidator(graph Graph) *Validator {
	return &Validator{graph: graph}
}

// ValidateCircularDependency reports whether candidate can be added as a
// component of bomID without closing a cycle. Unknown BOMs are always safe.
//
// The walk starts at candidate and follows product -> BOMs producing it ->
// their components, looking for the BOM's output product. Each product is
// expanded at most once, which terminates on graphs that already contain
// cycles and is complete because every expansion searches for the same target.
func (v *Validator) ValidateCircularDependency(ctx context.Context, bomID, candidate uint) (bool, error) {
	target, ok, err := v.graph.OutputProduct(ctx, bomID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if candidate == target {
		return false, nil
	}

	visited := map[uint]struct{}{}
	stack := []uint{candidate}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		components, err := v.graph.ComponentsOf(ctx, current)
		if err != nil {
			return false, err
		}
		for _, component := range components {
			if component == target {
				return false, nil
			}
			if _, seen := visited[component]; !seen {
				stack = append(stack, component)
			}
		}
	}
	return true, nil
}

// CheckCircularDependency is ValidateCircularDependency returning a
// *CircularDependencyError when the component is unsafe.
func (v *Validator) CheckCircularDependency(ctx context.Context, bomID, candidate uint) error {
	safe, err := v.ValidateCircularDependency(ctx, bomID, candidate)
	if err != nil {
		return err
	}
	if !safe {
		return &CircularDependencyError{BomID: bomID, ProductID: candidate}
	}
	return nil
}
