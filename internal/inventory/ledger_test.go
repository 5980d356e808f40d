package inventory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(stock int) *memory.Store {
	s := memory.New()
	s.PutProduct(catalog.Product{ID: "p1", SKU: "SKU-1", PriceCents: 1000, StockQuantity: stock, Status: catalog.ProductActive})
	return s
}

func TestTryDecrement(t *testing.T) {
	s := seed(3)
	l := inventory.NewLedger()
	ctx := context.Background()

	require.NoError(t, l.TryDecrement(ctx, s, "p1", 2))
	err := l.TryDecrement(ctx, s, "p1", 2)

	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, "p1", se.ProductID)

	p, _ := s.Product("p1")
	assert.Equal(t, 1, p.StockQuantity)
}

func TestTryDecrementUnknownProductIsInsufficient(t *testing.T) {
	err := inventory.NewLedger().TryDecrement(context.Background(), seed(1), "nope", 1)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
}

func TestRejectsNonPositiveQuantity(t *testing.T) {
	l := inventory.NewLedger()
	assert.ErrorIs(t, l.TryDecrement(context.Background(), seed(1), "p1", 0), inventory.ErrInvalidQuantity)
	assert.ErrorIs(t, l.Increment(context.Background(), seed(1), "p1", -1), inventory.ErrInvalidQuantity)
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	s := seed(10)
	l := inventory.NewLedger()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryDecrement(context.Background(), s, "p1", 1) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	p, _ := s.Product("p1")
	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, 0, p.StockQuantity)
}

func TestReleaseRestocksOnce(t *testing.T) {
	s := seed(5)
	l := inventory.NewLedger()
	ctx := context.Background()

	require.NoError(t, l.TryDecrement(ctx, s, "p1", 2))
	require.NoError(t, s.InsertReservations(ctx, []orders.Reservation{{
		OrderID: "o1", ProductID: "p1", Quantity: 2, Status: orders.ReservationReserved, ExpiresAt: time.Now().Add(time.Hour),
	}}))

	units, err := l.Release(ctx, s, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, units)

	units, err = l.Release(ctx, s, "o1")
	require.NoError(t, err)
	assert.Equal(t, 0, units)

	p, _ := s.Product("p1")
	assert.Equal(t, 5, p.StockQuantity)
}

func TestFinalizeKeepsStockAndAllowsRefundRelease(t *testing.T) {
	s := seed(5)
	l := inventory.NewLedger()
	ctx := context.Background()

	require.NoError(t, l.TryDecrement(ctx, s, "p1", 1))
	require.NoError(t, s.InsertReservations(ctx, []orders.Reservation{{
		OrderID: "o1", ProductID: "p1", Quantity: 1, Status: orders.ReservationReserved,
	}}))

	n, err := l.Finalize(ctx, s, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p, _ := s.Product("p1")
	assert.Equal(t, 4, p.StockQuantity)

	// finalizing again is a no-op
	n, err = l.Finalize(ctx, s, "o1")
	require.NoError(t, err)
	assert.Zero(t, n)

	units, err := l.Release(ctx, s, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, units)
	p, _ = s.Product("p1")
	assert.Equal(t, 5, p.StockQuantity)
}
