package checkout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"github.com/ariefcatur/go-marketplace-orders/internal/store/memory"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addr = orders.Address{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"}

type harness struct {
	store   *memory.Store
	carts   *cart.MemoryRepository
	gateway *payments.SandboxGateway
	notes   *notify.Recorder
	orch    *checkout.Orchestrator
}

func newHarness(t *testing.T, s store.Store, mem *memory.Store) harness {
	t.Helper()
	gw := &payments.SandboxGateway{Provider: payments.ProviderStripe}
	carts := cart.NewMemoryRepository()
	notes := &notify.Recorder{}
	return harness{
		store:   mem,
		carts:   carts,
		gateway: gw,
		notes:   notes,
		orch: &checkout.Orchestrator{
			Store:      s,
			Carts:      carts,
			Ledger:     inventory.NewLedger(),
			Machine:    orders.NewMachine(nil),
			Intents:    &intent.Manager{Store: s, Gateways: payments.Gateways{payments.ProviderStripe: gw}},
			Notifier:   notes,
			Currency:   "USD",
			NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		},
	}
}

func seeded() *memory.Store {
	s := memory.New()
	s.PutProduct(catalog.Product{ID: "A", SKU: "A", PriceCents: 1000, StockQuantity: 10, Status: catalog.ProductActive, VendorID: "v1"})
	s.PutProduct(catalog.Product{ID: "B", SKU: "B", PriceCents: 500, StockQuantity: 5, Status: catalog.ProductActive, VendorID: "v2"})
	s.PutProduct(catalog.Product{ID: "Z", SKU: "Z", PriceCents: 100, StockQuantity: 0, Status: catalog.ProductActive, VendorID: "v1"})
	return s
}

func (h harness) fill(t *testing.T, userID string, items ...cart.Item) {
	t.Helper()
	require.NoError(t, h.carts.Save(context.Background(), &cart.Cart{UserID: userID, Items: items}))
}

func (h harness) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok := h.store.Product(id)
	require.True(t, ok)
	return p.StockQuantity
}

func request(userID string) checkout.Request {
	return checkout.Request{UserID: userID, ShippingAddress: addr, BillingAddress: addr, Provider: payments.ProviderStripe}
}

func TestCheckoutTwoLines(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 2}, cart.Item{ProductID: "B", Quantity: 1})

	res, err := h.orch.Checkout(context.Background(), request("u1"))
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, int64(2500), o.TotalCents)
	assert.Equal(t, o.ItemsTotal(), o.TotalCents)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, o.TotalCents, res.PaymentIntent.AmountCents)
	assert.NotEmpty(t, res.PaymentIntent.ClientSecret)
	assert.Equal(t, 8, h.stock(t, "A"))
	assert.Equal(t, 4, h.stock(t, "B"))

	p, err := mem.GetPaymentByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, p.Status)

	stored, err := mem.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.PaymentID)
	assert.Len(t, mem.Reservations(o.ID), 2)

	c, err := h.carts.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, []notify.EventType{notify.OrderPlaced}, h.notes.Types())
}

func TestCheckoutOutOfStockChangesNothing(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 1}, cart.Item{ProductID: "Z", Quantity: 1})

	_, err := h.orch.Checkout(context.Background(), request("u1"))
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Z", se.ProductID)

	assert.Zero(t, mem.OrderCount())
	assert.Zero(t, mem.PaymentCount())
	assert.Equal(t, 10, h.stock(t, "A"))
	assert.Equal(t, 0, h.stock(t, "Z"))
	assert.Zero(t, h.gateway.Calls())

	c, err := h.carts.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestCheckoutLastUnitRace(t *testing.T) {
	mem := seeded()
	mem.PutProduct(catalog.Product{ID: "L", SKU: "L", PriceCents: 999, StockQuantity: 1, Status: catalog.ProductActive})
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "L", Quantity: 1})
	h.fill(t, "u2", cart.Item{ProductID: "L", Quantity: 1})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		short     atomic.Int32
	)
	for _, u := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := h.orch.Checkout(context.Background(), request(u))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, orders.ErrInsufficientStock):
				short.Add(1)
			}
		}(u)
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 1, short.Load())
	assert.Equal(t, 0, h.stock(t, "L"))
}

func TestCheckoutGatewayFailureReleasesStock(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.gateway.Fail = errors.New("stripe: 503")
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 3})

	_, err := h.orch.Checkout(context.Background(), request("u1"))
	require.ErrorIs(t, err, payments.ErrProviderUnavailable)
	assert.Equal(t, 10, h.stock(t, "A"))

	page, total, err := mem.ListOrders(context.Background(), orders.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, orders.StatusCancelled, page[0].Status)
	assert.Equal(t, orders.ReasonPaymentIntentFailed, page[0].CancelReason)
	for _, r := range mem.Reservations(page[0].ID) {
		assert.Equal(t, orders.ReservationReleased, r.Status)
	}

	c, err := h.carts.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, c.Empty(), "cart kept for a retry")
}

func TestCheckoutPriceSnapshotIsFrozen(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 1, PriceCents: 1})

	res, err := h.orch.Checkout(context.Background(), request("u1"))
	require.NoError(t, err)
	mem.SetPrice("A", 5000)

	o, err := mem.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), o.Items[0].PriceCents)
	assert.Equal(t, int64(1000), o.TotalCents)
}

func TestCheckoutIdempotencyKeyReplays(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "B", Quantity: 2})
	req := request("u1")
	req.IdempotencyKey = "k-1"

	first, err := h.orch.Checkout(context.Background(), req)
	require.NoError(t, err)
	h.fill(t, "u1", cart.Item{ProductID: "B", Quantity: 2})

	second, err := h.orch.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.PaymentIntent.PaymentID, second.PaymentIntent.PaymentID)
	assert.Equal(t, 3, h.stock(t, "B"))
	assert.Equal(t, 1, mem.OrderCount())
}

// gated holds the first two key lookups until both have read the store, so
// two same-key checkouts both miss and race to place the order.
type gated struct {
	store.Store
	gate  sync.WaitGroup
	calls atomic.Int32
}

func (g *gated) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	o, err := g.Store.FindOrderByIdempotencyKey(ctx, userID, key)
	if g.calls.Add(1) <= 2 {
		g.gate.Done()
		g.gate.Wait()
	}
	return o, err
}

func TestCheckoutConcurrentSameKeyReplays(t *testing.T) {
	mem := seeded()
	s := &gated{Store: mem}
	s.gate.Add(2)
	h := newHarness(t, s, mem)
	h.orch.MaxAttempts = 50
	h.orch.NewBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 2})
	req := request("u1")
	req.IdempotencyKey = "k1"

	var (
		wg      sync.WaitGroup
		results [2]*checkout.Result
		errs    [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.orch.Checkout(context.Background(), req)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Order.ID, results[1].Order.ID)
	assert.Equal(t, results[0].PaymentIntent.PaymentID, results[1].PaymentIntent.PaymentID)
	assert.NotEmpty(t, results[0].PaymentIntent.PaymentID)
	assert.True(t, results[0].Replayed != results[1].Replayed)
	assert.Equal(t, 1, mem.OrderCount())
	assert.Equal(t, 1, mem.PaymentCount())
	assert.Equal(t, 8, h.stock(t, "A"))
	assert.EqualValues(t, 1, h.gateway.Calls())
}

func TestCheckoutDuplicateKeyInsertReplays(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	h.fill(t, "u1", cart.Item{ProductID: "B", Quantity: 1})
	req := request("u1")
	req.IdempotencyKey = "k-dup"
	first, err := h.orch.Checkout(context.Background(), req)
	require.NoError(t, err)

	// the store rejects a second order under the same key
	err = mem.InTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		return q.InsertOrder(ctx, &orders.Order{ID: "other", UserID: "u1", IdempotencyKey: "k-dup"})
	})
	require.ErrorIs(t, err, orders.ErrDuplicateIdempotencyKey)

	again, err := h.orch.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)
}

func TestCheckoutEmptyCart(t *testing.T) {
	mem := seeded()
	h := newHarness(t, mem, mem)
	_, err := h.orch.Checkout(context.Background(), request("nobody"))
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

// conflicting fails the first n transactions the way a serialization
// failure would.
type conflicting struct {
	*memory.Store
	left atomic.Int32
}

func (c *conflicting) InTx(ctx context.Context, fn func(ctx context.Context, q store.Queries) error) error {
	if c.left.Add(-1) >= 0 {
		return orders.ErrStorageConflict
	}
	return c.Store.InTx(ctx, fn)
}

func TestCheckoutRetriesStorageConflict(t *testing.T) {
	mem := seeded()
	s := &conflicting{Store: mem}
	s.left.Store(2)
	h := newHarness(t, s, mem)
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 1})

	_, err := h.orch.Checkout(context.Background(), request("u1"))
	require.NoError(t, err)
	assert.Equal(t, 9, h.stock(t, "A"))
}

func TestCheckoutSurfacesPersistentConflict(t *testing.T) {
	mem := seeded()
	s := &conflicting{Store: mem}
	s.left.Store(100)
	h := newHarness(t, s, mem)
	h.orch.MaxAttempts = 3
	h.fill(t, "u1", cart.Item{ProductID: "A", Quantity: 1})

	_, err := h.orch.Checkout(context.Background(), request("u1"))
	require.ErrorIs(t, err, orders.ErrStorageConflict)
	assert.Equal(t, 10, h.stock(t, "A"))
	assert.EqualValues(t, 97, s.left.Load())
}
