package inventory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type entryState int

const (
	entryAbsent entryState = iota
	entryActive
	entryInactive
)

// pairPlan is the ledger state an (order, product) pair converges to for a
// given order status.
type pairPlan struct {
	reserve bool
	order   entryState
	ret     entryState
}

var statusPlans = map[OrderStatus]pairPlan{
	OrderStatusNew:        {reserve: true, order: entryActive},
	OrderStatusProcessing: {reserve: true, order: entryActive},
	OrderStatusSent:       {reserve: true, order: entryActive},
	OrderStatusDelivered:  {reserve: true, order: entryActive},
	OrderStatusExecuted:   {order: entryActive},
	OrderStatusCanceled:   {order: entryInactive},
	OrderStatusIssue:      {order: entryInactive},
	OrderStatusReturned:   {order: entryActive, ret: entryActive},
}

var removedPlan = pairPlan{order: entryInactive, ret: entryInactive}

// OrderLifecycleCoordinator translates order events into reserve and ledger
// writes. Applying the same event twice leaves the same state.
type OrderLifecycleCoordinator struct {
	core *core
}

// OnOrderItemCreated applies the order's current status to a new line.
func (o *OrderLifecycleCoordinator) OnOrderItemCreated(ctx context.Context, order OrderRef, item OrderItem) error {
	plan, err := planFor(order.Status)
	if err != nil {
		return err
	}
	if err := validateLine(order.ID, item); err != nil {
		return err
	}
	return o.core.run(ctx, func(ctx context.Context, u *unit) error {
		return o.core.syncPair(ctx, u, order.ID, item.ProductID, item.Quantity, plan, order.Status)
	})
}

// OnOrderItemUpdated moves the reserve and ledger entry of a line to its new
// quantity. An unchanged quantity is a no-op.
func (o *OrderLifecycleCoordinator) OnOrderItemUpdated(ctx context.Context, order OrderRef, item OrderItem, oldQuantity int64) error {
	if item.Quantity == oldQuantity {
		return nil
	}
	plan, err := planFor(order.Status)
	if err != nil {
		return err
	}
	if err := validateLine(order.ID, item); err != nil {
		return err
	}
	return o.core.run(ctx, func(ctx context.Context, u *unit) error {
		return o.core.syncPair(ctx, u, order.ID, item.ProductID, item.Quantity, plan, order.Status)
	})
}

// OnOrderItemRemoved releases the reserve of a deleted line and withdraws
// its ledger entries.
func (o *OrderLifecycleCoordinator) OnOrderItemRemoved(ctx context.Context, order OrderRef, productID uuid.UUID) error {
	if order.ID == uuid.Nil || productID == uuid.Nil {
		return fmt.Errorf("%w: order and product required", ErrValidation)
	}
	return o.core.run(ctx, func(ctx context.Context, u *unit) error {
		return o.core.syncPair(ctx, u, order.ID, productID, 0, removedPlan, order.Status)
	})
}

// OnOrderStatusChanged applies newStatus to every line of the order in one
// transaction. Lines are processed in product order so concurrent orders
// lock warehouses in the same sequence.
func (o *OrderLifecycleCoordinator) OnOrderStatusChanged(ctx context.Context, order OrderRef, oldStatus, newStatus OrderStatus) error {
	if !oldStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, oldStatus)
	}
	plan, err := planFor(newStatus)
	if err != nil {
		return err
	}
	items, err := sortedItems(order)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: order %s has no lines", ErrValidation, order.ID)
	}
	err = o.core.run(ctx, func(ctx context.Context, u *unit) error {
		lines := items
		if plan.releases() {
			strays, err := o.core.strayLines(ctx, u, order.ID, items)
			if err != nil {
				return err
			}
			lines = mergeLines(items, strays)
		}
		for _, item := range lines {
			if err := o.core.syncPair(ctx, u, order.ID, item.ProductID, item.Quantity, plan, newStatus); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.core.logger.Info("inventory order status applied",
		slog.String("order_id", order.ID.String()),
		slog.String("from", string(oldStatus)),
		slog.String("to", string(newStatus)),
		slog.Int("items", len(items)))
	if o.core.metrics != nil {
		o.core.metrics.LifecycleTransition(string(newStatus))
	}
	return nil
}

// releases reports whether the plan withdraws every hold and debit, so any
// pair of the order can be converged without knowing its line quantity.
func (p pairPlan) releases() bool {
	return !p.reserve && p.order == entryInactive && p.ret != entryActive
}

// strayLines finds pairs of the order that still hold a reserve or an active
// ledger entry but are missing from the lines passed in.
func (c *core) strayLines(ctx context.Context, u *unit, orderID uuid.UUID, items []OrderItem) ([]OrderItem, error) {
	known := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		known[item.ProductID] = true
	}
	found := make(map[uuid.UUID]int64)
	reserves, err := u.tx.ListOrderReserves(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, r := range reserves {
		if r.IsActive && !known[r.ProductID] {
			found[r.ProductID] = max(found[r.ProductID], r.Quantity)
		}
	}
	entries, err := u.tx.ListTransactions(ctx, TransactionFilter{OrderID: &orderID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	for _, t := range entries {
		if !known[t.ProductID] {
			found[t.ProductID] = max(found[t.ProductID], t.Quantity)
		}
	}
	strays := make([]OrderItem, 0, len(found))
	for productID, qty := range found {
		c.logger.Warn("inventory order line missing from status change",
			slog.String("order_id", orderID.String()),
			slog.String("product_id", productID.String()))
		strays = append(strays, OrderItem{ProductID: productID, Quantity: qty})
	}
	return strays, nil
}

// mergeLines returns items and strays in product order.
func mergeLines(items, strays []OrderItem) []OrderItem {
	if len(strays) == 0 {
		return items
	}
	lines := append(append(make([]OrderItem, 0, len(items)+len(strays)), items...), strays...)
	sortByProduct(lines)
	return lines
}

func sortByProduct(items []OrderItem) {
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].ProductID[:], items[j].ProductID[:]) < 0
	})
}

func planFor(status OrderStatus) (pairPlan, error) {
	plan, ok := statusPlans[status]
	if !ok {
		return pairPlan{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return plan, nil
}

func validateLine(orderID uuid.UUID, item OrderItem) error {
	if orderID == uuid.Nil || item.ProductID == uuid.Nil {
		return fmt.Errorf("%w: order and product required", ErrValidation)
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func sortedItems(order OrderRef) ([]OrderItem, error) {
	if order.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: order required", ErrValidation)
	}
	items := make([]OrderItem, len(order.Items))
	copy(items, order.Items)
	sortByProduct(items)
	for i, item := range items {
		if err := validateLine(order.ID, item); err != nil {
			return nil, err
		}
		if i > 0 && items[i-1].ProductID == item.ProductID {
			return nil, fmt.Errorf("%w: product %s", ErrDuplicateOrderLine, item.ProductID)
		}
	}
	return items, nil
}

// syncPair converges the reserve, ORDER entry and RETURN entry of one pair
// to plan, then checks free balance under the warehouse lock.
func (c *core) syncPair(ctx context.Context, u *unit, orderID, productID uuid.UUID, quantity int64, plan pairPlan, status OrderStatus) error {
	before, err := c.lock(ctx, u, productID)
	if err != nil {
		return err
	}
	if err := c.syncEntry(ctx, u, orderID, productID, TransactionTypeOrder, quantity, plan.order); err != nil {
		return err
	}
	if err := c.syncEntry(ctx, u, orderID, productID, TransactionTypeReturn, quantity, plan.ret); err != nil {
		return err
	}
	if plan.reserve {
		if _, err := c.placeReserve(ctx, u, orderID, productID, quantity); err != nil {
			return err
		}
	} else if err := c.releaseReserve(ctx, u, orderID, productID); err != nil {
		return err
	}
	op := "order_" + strings.ToLower(string(status))
	if err := c.guard(ctx, u, before, quantity, op); err != nil {
		return err
	}
	u.emit(StockEvent{Type: EventOrderSynced, ProductID: productID, OrderID: ptr(orderID), Status: status, Quantity: quantity})
	return nil
}

func (c *core) syncEntry(ctx context.Context, u *unit, orderID, productID uuid.UUID, typ TransactionType, quantity int64, want entryState) error {
	existing, err := u.tx.FindOrderTransaction(ctx, orderID, productID, typ)
	if err != nil {
		return err
	}
	switch want {
	case entryActive:
		if existing == nil {
			_, err := c.insertTransaction(ctx, u, RecordInput{
				ProductID: productID,
				Type:      typ,
				Quantity:  quantity,
				OrderID:   ptr(orderID),
				Comment:   fmt.Sprintf("order %s", orderID),
			})
			return err
		}
		t, err := c.setQuantity(ctx, u, *existing, quantity)
		if err != nil {
			return err
		}
		_, err = c.setActive(ctx, u, t, true)
		return err
	default:
		if existing == nil || !existing.IsActive {
			return nil
		}
		_, err := c.setActive(ctx, u, *existing, false)
		return err
	}
}
