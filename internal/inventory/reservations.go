package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReservationManager holds stock for pending orders. There is at most one
// active reserve per (order, product).
type ReservationManager struct {
	core *core
}

// Reserve places or replaces the hold of an order on a product. Only the
// increase over the current hold is checked against free balance.
func (m *ReservationManager) Reserve(ctx context.Context, orderID, productID uuid.UUID, quantity int64) (Reserve, error) {
	if quantity <= 0 {
		return Reserve{}, ErrInvalidQuantity
	}
	if orderID == uuid.Nil || productID == uuid.Nil {
		return Reserve{}, fmt.Errorf("%w: order and product required", ErrValidation)
	}
	var out Reserve
	err := m.core.run(ctx, func(ctx context.Context, u *unit) error {
		before, err := m.core.lock(ctx, u, productID)
		if err != nil {
			return err
		}
		out, err = m.core.placeReserve(ctx, u, orderID, productID, quantity)
		if err != nil {
			return err
		}
		return m.core.guard(ctx, u, before, quantity, "reserve")
	})
	if err != nil {
		return Reserve{}, err
	}
	return out, nil
}

// Release deactivates the active hold of an order on a product, if any.
func (m *ReservationManager) Release(ctx context.Context, orderID, productID uuid.UUID) error {
	return m.core.run(ctx, func(ctx context.Context, u *unit) error {
		if _, err := m.core.lock(ctx, u, productID); err != nil {
			return err
		}
		return m.core.releaseReserve(ctx, u, orderID, productID)
	})
}

// GetActiveReserve returns the active hold or nil.
func (m *ReservationManager) GetActiveReserve(ctx context.Context, orderID, productID uuid.UUID) (*Reserve, error) {
	return m.core.repo.GetActiveReserve(ctx, orderID, productID)
}

// ListOrderReserves returns every reserve of an order, active or not.
func (m *ReservationManager) ListOrderReserves(ctx context.Context, orderID uuid.UUID) ([]Reserve, error) {
	return m.core.repo.ListOrderReserves(ctx, orderID)
}

func (c *core) placeReserve(ctx context.Context, u *unit, orderID, productID uuid.UUID, quantity int64) (Reserve, error) {
	current, err := u.tx.GetActiveReserve(ctx, orderID, productID)
	if err != nil {
		return Reserve{}, err
	}
	if current != nil {
		if current.Quantity == quantity {
			return *current, nil
		}
		current.Quantity = quantity
		current.UpdatedAt = u.at
		if err := u.tx.UpdateReserve(ctx, *current); err != nil {
			return Reserve{}, err
		}
		u.emit(StockEvent{Type: EventReservePlaced, ProductID: productID, OrderID: ptr(orderID), ReserveID: ptr(current.ID), Quantity: quantity})
		return *current, nil
	}
	r := Reserve{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		IsActive:  true,
		CreatedAt: u.at,
		UpdatedAt: u.at,
	}
	if err := u.tx.InsertReserve(ctx, r); err != nil {
		return Reserve{}, err
	}
	u.emit(StockEvent{Type: EventReservePlaced, ProductID: productID, OrderID: ptr(orderID), ReserveID: ptr(r.ID), Quantity: quantity})
	return r, nil
}

func (c *core) releaseReserve(ctx context.Context, u *unit, orderID, productID uuid.UUID) error {
	current, err := u.tx.GetActiveReserve(ctx, orderID, productID)
	if err != nil || current == nil {
		return err
	}
	current.IsActive = false
	current.UpdatedAt = u.at
	if err := u.tx.UpdateReserve(ctx, *current); err != nil {
		return err
	}
	u.emit(StockEvent{Type: EventReserveReleased, ProductID: productID, OrderID: ptr(orderID), ReserveID: ptr(current.ID), Quantity: current.Quantity})
	return nil
}
