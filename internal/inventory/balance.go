package inventory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WarehouseBalance derives balances on read. Reads never take locks.
type WarehouseBalance struct {
	core *core
}

// GetTotalBalance returns the cached physical balance.
func (b *WarehouseBalance) GetTotalBalance(ctx context.Context, productID uuid.UUID) (int64, error) {
	wh, err := b.core.repo.GetWarehouse(ctx, productID)
	if err != nil {
		return 0, err
	}
	return wh.TotalBalance, nil
}

// GetReservedQuantity sums the active reserves of a product.
func (b *WarehouseBalance) GetReservedQuantity(ctx context.Context, productID uuid.UUID) (int64, error) {
	if _, err := b.core.repo.GetWarehouse(ctx, productID); err != nil {
		return 0, err
	}
	reserves, err := b.core.repo.ListActiveReserves(ctx, productID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range reserves {
		total += r.Quantity
	}
	return total, nil
}

// GetFreeBalance returns what can still be promised. A negative value is
// reported as a consistency violation rather than clamped.
func (b *WarehouseBalance) GetFreeBalance(ctx context.Context, productID uuid.UUID) (int64, error) {
	bal, err := b.GetBalance(ctx, productID)
	if err != nil {
		return 0, err
	}
	return bal.Free, nil
}

// GetBalance returns one snapshot of total, reserved and free balance. The
// snapshot is still returned alongside a consistency error.
func (b *WarehouseBalance) GetBalance(ctx context.Context, productID uuid.UUID) (Balance, error) {
	var (
		generation int64
		cacheable  bool
	)
	if b.core.cache != nil {
		bal, gen, ok, err := b.core.cache.Get(ctx, productID)
		if err != nil {
			b.core.logger.Warn("inventory balance cache read failed", slog.String("product_id", productID.String()), slog.Any("error", err))
		} else if ok {
			return bal, nil
		} else {
			generation, cacheable = gen, true
		}
	}
	wh, err := b.core.repo.GetWarehouse(ctx, productID)
	if err != nil {
		return Balance{}, err
	}
	bal, err := b.core.balanceOf(ctx, b.core.repo, wh)
	if err != nil {
		return Balance{}, err
	}
	if bal.Free < 0 {
		v := Violation{Kind: ViolationNegativeFree, ProductID: productID, Expected: 0, Actual: bal.Free}
		b.report(v)
		return bal, &ConsistencyError{ProductID: productID, Violations: []Violation{v}}
	}
	if cacheable {
		stored, err := b.core.cache.Set(ctx, bal, generation)
		if err != nil {
			b.core.logger.Warn("inventory balance cache write failed", slog.String("product_id", productID.String()), slog.Any("error", err))
		} else if !stored {
			b.core.logger.Debug("inventory balance changed during read, snapshot not cached", slog.String("product_id", productID.String()))
		}
	}
	return bal, nil
}

// CheckConsistency inspects one product: the cached total against the
// ledger, free balance against zero, and reserves whose order entry was
// deactivated.
func (b *WarehouseBalance) CheckConsistency(ctx context.Context, productID uuid.UUID) ([]Violation, error) {
	wh, err := b.core.repo.GetWarehouse(ctx, productID)
	if err != nil {
		return nil, err
	}
	violations, err := b.inspect(ctx, wh)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		b.report(v)
	}
	return violations, nil
}

// CheckAll runs CheckConsistency for every warehouse with at most
// concurrency checks in flight. It returns the number of warehouses checked.
func (b *WarehouseBalance) CheckAll(ctx context.Context, concurrency int) ([]Violation, int, error) {
	warehouses, err := b.core.repo.ListWarehouses(ctx)
	if err != nil {
		return nil, 0, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu  sync.Mutex
		all []Violation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, wh := range warehouses {
		g.Go(func() error {
			found, err := b.inspect(gctx, wh)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ProductID != all[j].ProductID {
			return all[i].ProductID.String() < all[j].ProductID.String()
		}
		return all[i].Kind < all[j].Kind
	})
	for _, v := range all {
		b.report(v)
	}
	return all, len(warehouses), nil
}

func (b *WarehouseBalance) inspect(ctx context.Context, wh Warehouse) ([]Violation, error) {
	entries, err := b.core.repo.ListTransactions(ctx, TransactionFilter{ProductID: ptr(wh.ProductID)})
	if err != nil {
		return nil, err
	}
	reserves, err := b.core.repo.ListActiveReserves(ctx, wh.ProductID)
	if err != nil {
		return nil, err
	}

	var sum int64
	posted := make(map[uuid.UUID]int64)
	withdrawn := make(map[uuid.UUID]bool)
	for _, t := range entries {
		sum += t.Effect()
		if t.Type != TransactionTypeOrder || t.OrderID == nil {
			continue
		}
		if t.IsActive {
			posted[*t.OrderID] += t.Quantity
		} else {
			withdrawn[*t.OrderID] = true
		}
	}

	var out []Violation
	if sum != wh.TotalBalance {
		out = append(out, Violation{Kind: ViolationLedgerDrift, ProductID: wh.ProductID, Expected: sum, Actual: wh.TotalBalance})
	}
	bal := newBalance(wh.ProductID, wh.TotalBalance, reserveTotals(reserves, posted))
	if bal.Free < 0 {
		out = append(out, Violation{Kind: ViolationNegativeFree, ProductID: wh.ProductID, Expected: 0, Actual: bal.Free})
	}
	for _, r := range reserves {
		if withdrawn[r.OrderID] && posted[r.OrderID] == 0 {
			out = append(out, Violation{Kind: ViolationOrphanReserve, ProductID: wh.ProductID, OrderID: ptr(r.OrderID), Expected: 0, Actual: r.Quantity})
		}
	}
	return out, nil
}

func (b *WarehouseBalance) report(v Violation) {
	attrs := []any{
		slog.String("kind", string(v.Kind)),
		slog.String("product_id", v.ProductID.String()),
		slog.Int64("expected", v.Expected),
		slog.Int64("actual", v.Actual),
	}
	if v.OrderID != nil {
		attrs = append(attrs, slog.String("order_id", v.OrderID.String()))
	}
	b.core.logger.Error("inventory consistency violation", attrs...)
	if b.core.metrics != nil {
		b.core.metrics.ConsistencyViolation(string(v.Kind))
	}
}
