package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates the write would exceed free balance.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrConsistencyViolation indicates a broken invariant detected on read.
	ErrConsistencyViolation = errors.New("inventory: consistency violation")
	// ErrNotFound is the parent of every not-found error in this package.
	ErrNotFound = errors.New("inventory: not found")

	ErrWarehouseNotFound       = fmt.Errorf("warehouse %w", ErrNotFound)
	ErrTransactionNotFound     = fmt.Errorf("transaction %w", ErrNotFound)
	ErrConsignmentNoteNotFound = fmt.Errorf("consignment note %w", ErrNotFound)

	// ErrValidation indicates malformed input other than quantity.
	ErrValidation = errors.New("inventory: validation failed")
	// ErrInvalidTransactionType indicates an unknown transaction type.
	ErrInvalidTransactionType = fmt.Errorf("%w: unknown transaction type", ErrValidation)
	// ErrInvalidStatus indicates an unknown order status.
	ErrInvalidStatus = fmt.Errorf("%w: unknown order status", ErrValidation)
	// ErrDuplicateOrderLine indicates two lines for one product in an order.
	ErrDuplicateOrderLine = fmt.Errorf("%w: duplicate product line in order", ErrValidation)
	// ErrDuplicateConsignmentNote indicates a note with the same number and date exists.
	ErrDuplicateConsignmentNote = errors.New("inventory: consignment note already exists")
)

// InsufficientStockError carries the numbers behind a rejected write.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int64
	Free      int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s: requested %d, free %d", e.ProductID, e.Requested, e.Free)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ConsistencyError wraps the violations found for a product.
type ConsistencyError struct {
	ProductID  uuid.UUID
	Violations []Violation
}

func (e *ConsistencyError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("inventory: consistency violation for product %s: %s (expected %d, actual %d)", e.ProductID, v.Kind, v.Expected, v.Actual)
	}
	return fmt.Sprintf("inventory: %d consistency violations for product %s", len(e.Violations), e.ProductID)
}

// Unwrap lets errors.Is match ErrConsistencyViolation.
func (e *ConsistencyError) Unwrap() error {
	return ErrConsistencyViolation
}
