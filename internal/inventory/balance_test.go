package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReservePairedWithOrderEntryCountsOnce(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 10)
	orderID := uuid.New()
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, orderID, productID, 4)
	require.NoError(t, err)
	require.EqualValues(t, 6, f.balance(t, productID).Free)

	_, err = f.svc.Ledger.RecordTransaction(ctx, RecordInput{ProductID: productID, Type: TransactionTypeOrder, Quantity: 4, OrderID: &orderID})
	require.NoError(t, err)

	bal := f.balance(t, productID)
	require.EqualValues(t, 6, bal.Total)
	require.EqualValues(t, 4, bal.Reserved)
	require.EqualValues(t, 0, bal.Unposted)
	require.EqualValues(t, 6, bal.Free)
}

func TestGetReservedQuantity(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 10)
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 2)
	require.NoError(t, err)
	_, err = f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 3)
	require.NoError(t, err)

	reserved, err := f.svc.Balances.GetReservedQuantity(ctx, productID)
	require.NoError(t, err)
	require.EqualValues(t, 5, reserved)

	free, err := f.svc.Balances.GetFreeBalance(ctx, productID)
	require.NoError(t, err)
	require.EqualValues(t, 5, free)

	_, err = f.svc.Balances.GetReservedQuantity(ctx, uuid.New())
	require.ErrorIs(t, err, ErrWarehouseNotFound)
}

func corrupt(f *fixture, fn func(*memState)) {
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	fn(f.repo.state)
}

func TestNegativeFreeBalanceIsConsistencyViolation(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 5)
	ctx := context.Background()
	_, err := f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 5)
	require.NoError(t, err)

	corrupt(f, func(s *memState) {
		wh := s.warehouses[productID]
		wh.TotalBalance = 3
		s.warehouses[productID] = wh
	})

	bal, err := f.svc.Balances.GetBalance(ctx, productID)
	require.ErrorIs(t, err, ErrConsistencyViolation)
	require.EqualValues(t, -2, bal.Free)

	_, err = f.svc.Balances.GetFreeBalance(ctx, productID)
	require.ErrorIs(t, err, ErrConsistencyViolation)
	require.Equal(t, 2, f.metrics.violations[string(ViolationNegativeFree)])
}

func TestCheckConsistencyDetectsDriftAndOrphans(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 10)
	orderID := uuid.New()
	ctx := context.Background()

	require.NoError(t, f.svc.Orders.OnOrderItemCreated(ctx, OrderRef{ID: orderID, Status: OrderStatusNew}, OrderItem{ProductID: productID, Quantity: 2}))
	f.requireConserved(t, productID)

	corrupt(f, func(s *memState) {
		for i := range s.txs {
			if s.txs[i].Type == TransactionTypeOrder {
				s.txs[i].IsActive = false
			}
		}
	})

	violations, err := f.svc.Balances.CheckConsistency(ctx, productID)
	require.NoError(t, err)
	kinds := map[ViolationKind]Violation{}
	for _, v := range violations {
		kinds[v.Kind] = v
	}
	require.Len(t, kinds, 2)
	require.EqualValues(t, 10, kinds[ViolationLedgerDrift].Expected)
	require.EqualValues(t, 8, kinds[ViolationLedgerDrift].Actual)
	require.Equal(t, orderID, *kinds[ViolationOrphanReserve].OrderID)
}

func TestCheckAllCollectsAcrossWarehouses(t *testing.T) {
	f := newFixture(t)
	f.stocked(t, 4)
	broken := f.stocked(t, 4)

	corrupt(f, func(s *memState) {
		wh := s.warehouses[broken]
		wh.TotalBalance = 100
		s.warehouses[broken] = wh
	})

	violations, checked, err := f.svc.Balances.CheckAll(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, checked)
	require.Len(t, violations, 1)
	require.Equal(t, broken, violations[0].ProductID)
	require.Equal(t, ViolationLedgerDrift, violations[0].Kind)
	require.Equal(t, 1, f.metrics.violations[string(ViolationLedgerDrift)])
}
