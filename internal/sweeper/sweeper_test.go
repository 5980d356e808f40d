package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments/intent"
	"github.com/ariefcatur/go-marketplace-orders/internal/store/memory"
	"github.com/ariefcatur/go-marketplace-orders/internal/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, s *memory.Store, userID string, qty int) *orders.Order {
	t.Helper()
	carts := cart.NewMemoryRepository()
	require.NoError(t, carts.Save(context.Background(), &cart.Cart{UserID: userID, Items: []cart.Item{{ProductID: "A", Quantity: qty}}}))
	orch := &checkout.Orchestrator{
		Store:   s,
		Carts:   carts,
		Ledger:  inventory.NewLedger(),
		Machine: orders.NewMachine(nil),
		Intents: &intent.Manager{Store: s, Gateways: payments.Gateways{
			payments.ProviderStripe: &payments.SandboxGateway{Provider: payments.ProviderStripe},
		}},
	}
	res, err := orch.Checkout(context.Background(), checkout.Request{UserID: userID, Provider: payments.ProviderStripe})
	require.NoError(t, err)
	return res.Order
}

func stockOf(t *testing.T, s *memory.Store) int {
	p, ok := s.Product("A")
	require.True(t, ok)
	return p.StockQuantity
}

func TestRunOnceReleasesExpiredOrders(t *testing.T) {
	s := memory.New()
	s.PutProduct(catalog.Product{ID: "A", SKU: "A", PriceCents: 1000, StockQuantity: 10, Status: catalog.ProductActive})
	expired := placeOrder(t, s, "u1", 3)
	fresh := placeOrder(t, s, "u2", 2)
	require.Equal(t, 5, stockOf(t, s))
	s.ExpireReservations(expired.ID, time.Now().Add(-time.Minute))

	notes := &notify.Recorder{}
	sw := &sweeper.Sweeper{Store: s, Ledger: inventory.NewLedger(), Machine: orders.NewMachine(nil), Notifier: notes}

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 8, stockOf(t, s))

	o, err := s.GetOrder(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, orders.ReasonReservationExpired, o.CancelReason)
	p, err := s.GetPaymentByOrder(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCancelled, p.Status)

	still, err := s.GetOrder(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, still.Status)
	assert.Equal(t, []notify.EventType{notify.OrderCancelled}, notes.Types())

	n, err = sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 8, stockOf(t, s))
}

func TestRunOnceSkipsPaidOrders(t *testing.T) {
	s := memory.New()
	s.PutProduct(catalog.Product{ID: "A", SKU: "A", PriceCents: 1000, StockQuantity: 10, Status: catalog.ProductActive})
	o := placeOrder(t, s, "u1", 1)
	ok, err := s.SetOrderStatus(context.Background(), o.ID, orders.StatusPending, orders.StatusConfirmed, "")
	require.NoError(t, err)
	require.True(t, ok)
	s.ExpireReservations(o.ID, time.Now().Add(-time.Hour))

	sw := &sweeper.Sweeper{Store: s, Ledger: inventory.NewLedger(), Machine: orders.NewMachine(nil)}
	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 9, stockOf(t, s))
}
