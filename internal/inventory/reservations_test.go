package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReserveReplacesExistingHold(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 10)
	orderID := uuid.New()
	ctx := context.Background()

	first, err := f.svc.Reservations.Reserve(ctx, orderID, productID, 3)
	require.NoError(t, err)
	second, err := f.svc.Reservations.Reserve(ctx, orderID, productID, 5)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	reserves, err := f.svc.Reservations.ListOrderReserves(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, reserves, 1)
	require.EqualValues(t, 5, reserves[0].Quantity)

	bal := f.balance(t, productID)
	require.EqualValues(t, 10, bal.Total)
	require.EqualValues(t, 5, bal.Reserved)
	require.EqualValues(t, 5, bal.Free)
}

func TestReserveChecksOnlyTheIncrease(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 6)
	orderID := uuid.New()
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, orderID, productID, 4)
	require.NoError(t, err)

	_, err = f.svc.Reservations.Reserve(ctx, orderID, productID, 6)
	require.NoError(t, err)

	_, err = f.svc.Reservations.Reserve(ctx, orderID, productID, 7)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 0, stockErr.Free)

	active, err := f.svc.Reservations.GetActiveReserve(ctx, orderID, productID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.EqualValues(t, 6, active.Quantity)
}

func TestReserveRejectsBeyondFreeBalance(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 5)
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 3)
	require.NoError(t, err)

	_, err = f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, f.metrics.insufficient["reserve"])
	require.EqualValues(t, 2, f.balance(t, productID).Free)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 5)
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, uuid.New(), productID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Reservations.Reserve(ctx, uuid.Nil, productID, 1)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Reservations.Reserve(ctx, uuid.New(), uuid.New(), 1)
	require.ErrorIs(t, err, ErrWarehouseNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 5)
	orderID := uuid.New()
	ctx := context.Background()

	_, err := f.svc.Reservations.Reserve(ctx, orderID, productID, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reservations.Release(ctx, orderID, productID))
	require.NoError(t, f.svc.Reservations.Release(ctx, orderID, productID))

	active, err := f.svc.Reservations.GetActiveReserve(ctx, orderID, productID)
	require.NoError(t, err)
	require.Nil(t, active)
	require.EqualValues(t, 5, f.balance(t, productID).Free)

	released := 0
	for _, typ := range f.events.types() {
		if typ == EventReserveReleased {
			released++
		}
	}
	require.Equal(t, 1, released)

	reserves, err := f.svc.Reservations.ListOrderReserves(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, reserves, 1)
	require.False(t, reserves[0].IsActive)
}

func TestReleaseWithoutReserve(t *testing.T) {
	f := newFixture(t)
	productID := f.stocked(t, 5)
	require.NoError(t, f.svc.Reservations.Release(context.Background(), uuid.New(), productID))
}
