package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-inventory/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives stock engine outcomes.
type MetricsPort interface {
	InsufficientStock(operation string)
	ConsistencyViolation(kind string)
	LifecycleTransition(status string)
}

// Dependencies groups collaborators for NewService. Only Repo is required.
type Dependencies struct {
	Repo      RepositoryPort
	Cache     BalanceCache
	Events    EventPublisher
	Audit     AuditPort
	Metrics   MetricsPort
	Logger    *slog.Logger
	Validator *validator.Validate
	Now       func() time.Time
}

// Service bundles the inventory components over one repository.
type Service struct {
	Ledger       *StockLedger
	Reservations *ReservationManager
	Balances     *WarehouseBalance
	Orders       *OrderLifecycleCoordinator

	core *core
}

// NewService builds Service.
func NewService(deps Dependencies) *Service {
	c := newCore(deps)
	return &Service{
		Ledger:       &StockLedger{core: c},
		Reservations: &ReservationManager{core: c},
		Balances:     &WarehouseBalance{core: c},
		Orders:       &OrderLifecycleCoordinator{core: c},
		core:         c,
	}
}

// EnsureWarehouse creates the warehouse row of a product when missing.
func (s *Service) EnsureWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error) {
	var wh Warehouse
	err := s.core.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wh, err = s.EnsureWarehouseTx(ctx, tx, productID)
		return err
	})
	return wh, err
}

// EnsureWarehouseTx joins a transaction owned by the caller, typically the
// product-creation transaction bound with Repository.Bind.
func (s *Service) EnsureWarehouseTx(ctx context.Context, tx TxRepository, productID uuid.UUID) (Warehouse, error) {
	if productID == uuid.Nil {
		return Warehouse{}, fmt.Errorf("%w: product required", ErrValidation)
	}
	now := s.core.now()
	return tx.InsertWarehouse(ctx, Warehouse{
		ID:        uuid.New(),
		ProductID: productID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

type core struct {
	repo     RepositoryPort
	cache    BalanceCache
	events   EventPublisher
	audit    AuditPort
	metrics  MetricsPort
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func newCore(deps Dependencies) *core {
	c := &core{
		repo:     deps.Repo,
		cache:    deps.Cache,
		events:   deps.Events,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		validate: deps.Validator,
		now:      deps.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.validate == nil {
		c.validate = validator.New()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// unit collects the effects of one database transaction so they can be
// released only after commit.
type unit struct {
	tx      TxRepository
	at      time.Time
	events  []StockEvent
	audits  []shared.AuditLog
	touched map[uuid.UUID]struct{}
	order   []uuid.UUID
}

func (u *unit) touch(productID uuid.UUID) {
	if _, ok := u.touched[productID]; ok {
		return
	}
	u.touched[productID] = struct{}{}
	u.order = append(u.order, productID)
}

func (u *unit) emit(evt StockEvent) {
	evt.ID = uuid.New()
	evt.OccurredAt = u.at
	u.events = append(u.events, evt)
	u.touch(evt.ProductID)
}

// run executes fn in a transaction and, on commit, invalidates cached
// balances, publishes events and writes audit rows.
func (c *core) run(ctx context.Context, fn func(context.Context, *unit) error) error {
	if c.repo == nil {
		return errors.New("inventory: repository not configured")
	}
	var u *unit
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u = &unit{tx: tx, at: c.now(), touched: make(map[uuid.UUID]struct{})}
		return fn(ctx, u)
	})
	if err != nil {
		return err
	}
	c.afterCommit(ctx, u)
	return nil
}

func (c *core) afterCommit(ctx context.Context, u *unit) {
	if c.cache != nil && len(u.order) > 0 {
		if err := c.cache.Invalidate(ctx, u.order...); err != nil {
			c.logger.Warn("inventory balance cache invalidation failed", slog.Any("error", err))
		}
	}
	if c.events != nil {
		for _, evt := range u.events {
			if err := c.events.Publish(ctx, evt); err != nil {
				c.logger.Error("inventory event publish failed",
					slog.String("event", string(evt.Type)),
					slog.String("product_id", evt.ProductID.String()),
					slog.Any("error", err))
			}
		}
	}
	if c.audit != nil {
		for _, entry := range u.audits {
			if err := c.audit.Record(ctx, entry); err != nil {
				c.logger.Error("inventory audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
			}
		}
	}
}

// lock takes the warehouse row lock of a product and returns its balance
// as seen under the lock.
func (c *core) lock(ctx context.Context, u *unit, productID uuid.UUID) (Balance, error) {
	wh, err := u.tx.LockWarehouse(ctx, productID)
	if err != nil {
		return Balance{}, fmt.Errorf("lock product %s: %w", productID, err)
	}
	return c.balanceOf(ctx, u.tx, wh)
}

func (c *core) balanceOf(ctx context.Context, r Reader, wh Warehouse) (Balance, error) {
	reserves, err := r.ListActiveReserves(ctx, wh.ProductID)
	if err != nil {
		return Balance{}, err
	}
	posted, err := r.ActiveOrderQuantities(ctx, wh.ProductID)
	if err != nil {
		return Balance{}, err
	}
	return newBalance(wh.ProductID, wh.TotalBalance, reserveTotals(reserves, posted)), nil
}

func reserveTotals(reserves []Reserve, posted map[uuid.UUID]int64) ReserveTotals {
	var totals ReserveTotals
	for _, r := range reserves {
		if !r.IsActive {
			continue
		}
		totals.Reserved += r.Quantity
		if open := r.Quantity - posted[r.OrderID]; open > 0 {
			totals.Unposted += open
		}
	}
	return totals
}

// guard rejects a write that pushed free balance below zero. A write that
// leaves an already negative balance no worse is allowed so stock can be
// repaired.
func (c *core) guard(ctx context.Context, u *unit, before Balance, requested int64, operation string) error {
	wh, err := u.tx.GetWarehouse(ctx, before.ProductID)
	if err != nil {
		return err
	}
	after, err := c.balanceOf(ctx, u.tx, wh)
	if err != nil {
		return err
	}
	if after.Free < 0 && after.Free < before.Free {
		if c.metrics != nil {
			c.metrics.InsufficientStock(operation)
		}
		c.logger.Warn("inventory write rejected",
			slog.String("operation", operation),
			slog.String("product_id", before.ProductID.String()),
			slog.Int64("requested", requested),
			slog.Int64("free", before.Free))
		return &InsufficientStockError{ProductID: before.ProductID, Requested: requested, Free: before.Free}
	}
	return nil
}

func (c *core) auditTransaction(u *unit, t Transaction, action string) {
	meta := map[string]any{
		"product_id": t.ProductID.String(),
		"type":       string(t.Type),
		"quantity":   t.Quantity,
		"is_active":  t.IsActive,
	}
	if t.OrderID != nil {
		meta["order_id"] = t.OrderID.String()
	}
	u.audits = append(u.audits, shared.AuditLog{
		Action:   action,
		Entity:   "stock_transaction",
		EntityID: t.ID.String(),
		Meta:     meta,
		At:       u.at,
	})
}

func ptr[T any](v T) *T {
	return &v
}
