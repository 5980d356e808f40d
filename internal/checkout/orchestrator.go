// Package checkout turns a buyer's cart into a PENDING order with reserved
// stock and a payment intent.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments/intent"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultReservationTTL = 30 * time.Minute
	DefaultMaxAttempts    = 3
)

type Request struct {
	UserID          string
	ShippingAddress orders.Address
	BillingAddress  orders.Address
	Provider        payments.Provider
	Method          payments.Method
	IdempotencyKey  string
}

type Result struct {
	Order         *orders.Order   `json:"order"`
	PaymentIntent payments.Intent `json:"paymentIntent"`
	Replayed      bool            `json:"-"`
}

// IdempotencyCache remembers which order a buyer's Idempotency-Key produced.
type IdempotencyCache interface {
	Lookup(ctx context.Context, userID, key string) (string, bool)
	Remember(ctx context.Context, userID, key, orderID string)
}

type Orchestrator struct {
	Store       store.Store
	Carts       cart.Repository
	Ledger      *inventory.Ledger
	Machine     *orders.Machine
	Intents     *intent.Manager
	Notifier    notify.Dispatcher
	Metrics     *metrics.Metrics
	Idempotency IdempotencyCache

	Currency       string
	ReservationTTL time.Duration
	MaxAttempts    int
	// NewBackOff builds the retry schedule for storage conflicts.
	NewBackOff func() backoff.BackOff
}

// Checkout runs snapshot, reservation, intent creation and cart clearing.
// Either every line is reserved and an intent exists, or nothing the buyer
// can observe has changed.
func (c *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	ctx, span := otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/checkout").
		Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", req.UserID), attribute.String("provider", string(req.Provider)))

	log := logging.FromContext(ctx).With(zap.String("user_id", req.UserID))
	ctx = logging.WithContext(ctx, log)

	res, err := c.checkout(ctx, req)
	outcome := outcomeOf(err)
	c.Metrics.Checkout(outcome, time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Info("checkout_failed", zap.String("outcome", outcome), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", res.Order.ID))
	log.Info("checkout_done",
		zap.String("order_id", res.Order.ID),
		zap.Int64("total_cents", res.Order.TotalCents),
		zap.Bool("replayed", res.Replayed),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}

func (c *Orchestrator) checkout(ctx context.Context, req Request) (*Result, error) {
	if req.IdempotencyKey != "" {
		if res, ok, err := c.replay(ctx, req); err != nil || ok {
			return res, err
		}
	}

	crt, err := c.Carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}
	lines, err := cart.Snapshot(ctx, c.Store, crt)
	if errors.Is(err, cart.ErrEmptyCart) {
		// a same-key checkout may have just placed the order and cleared the cart
		return c.replayLost(ctx, req, err)
	}
	if err != nil {
		return nil, err
	}

	o, err := backoff.Retry(ctx, func() (*orders.Order, error) {
		o, err := c.reserve(ctx, req, lines)
		if err != nil && !errors.Is(err, orders.ErrStorageConflict) {
			return nil, backoff.Permanent(err)
		}
		return o, err
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(uint(c.maxAttempts())))
	if errors.Is(err, orders.ErrDuplicateIdempotencyKey) {
		return c.replayLost(ctx, req, err)
	}
	if err != nil {
		return nil, err
	}

	p, err := c.Intents.CreateIntent(ctx, intent.Request{
		OrderID:     o.ID,
		UserID:      o.UserID,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		Provider:    req.Provider,
		Method:      req.Method,
	})
	if err != nil {
		if cerr := c.compensate(ctx, o); cerr != nil {
			logging.FromContext(ctx).Error("checkout_compensation_failed", zap.String("order_id", o.ID), zap.Error(cerr))
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	o.PaymentID = p.ID
	o.PaymentStatus = string(p.Status)

	if err := c.Carts.Clear(ctx, req.UserID); err != nil {
		// the order stands; a stale cart is only cosmetic
		logging.FromContext(ctx).Warn("cart_clear_failed", zap.Error(err))
	}
	if req.IdempotencyKey != "" && c.Idempotency != nil {
		c.Idempotency.Remember(ctx, req.UserID, req.IdempotencyKey, o.ID)
	}
	if c.Notifier != nil {
		c.Notifier.Dispatch(ctx, notify.NewEvent(notify.OrderPlaced, o.ID, o.UserID, map[string]any{
			"total_cents": o.TotalCents,
			"currency":    o.Currency,
			"items":       len(o.Items),
		}))
	}
	return &Result{Order: o, PaymentIntent: p.Intent()}, nil
}

// reserve is the atomic part: every line's stock, the order, its items and
// its reservations commit together.
func (c *Orchestrator) reserve(ctx context.Context, req Request, lines []cart.Line) (*orders.Order, error) {
	now := time.Now().UTC()
	o := &orders.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Status:          orders.StatusPending,
		TotalCents:      cart.Total(lines),
		Currency:        c.currency(),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentStatus:   string(payments.StatusPending),
		IdempotencyKey:  req.IdempotencyKey,
		Items:           make([]orders.OrderItem, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rs := make([]orders.Reservation, 0, len(lines))
	expires := now.Add(c.reservationTTL())
	for _, l := range lines {
		o.Items = append(o.Items, orders.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			PriceCents: l.PriceCents,
			VendorID:   l.VendorID,
		})
		rs = append(rs, orders.Reservation{
			OrderID:   o.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Status:    orders.ReservationReserved,
			ExpiresAt: expires,
			CreatedAt: now,
		})
	}

	err := c.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		for _, l := range lines {
			if err := c.Ledger.TryDecrement(ctx, q, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := q.InsertOrder(ctx, o); err != nil {
			return err
		}
		return q.InsertReservations(ctx, rs)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// compensate undoes a reservation whose intent could not be created.
func (c *Orchestrator) compensate(ctx context.Context, o *orders.Order) error {
	released := 0
	err := c.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		cur := *o
		if err := c.Machine.Cancel(ctx, q, &cur, orders.ReasonPaymentIntentFailed); err != nil {
			return err
		}
		n, err := c.Ledger.Release(ctx, q, o.ID)
		released = n
		return err
	})
	if err != nil {
		return fmt.Errorf("checkout: release order %s: %w", o.ID, err)
	}
	if released > 0 {
		c.Metrics.Released(orders.ReasonPaymentIntentFailed)
	}
	return nil
}

// errInProgress: the order for the key exists but its intent does not yet.
var errInProgress = fmt.Errorf("%w: checkout for this idempotency key is in progress", orders.ErrStorageConflict)

// replayLost answers a checkout that lost a race with a same-key checkout by
// waiting for the winner's intent and returning its result. Without a key, or
// without a winner, cause is returned unchanged.
func (c *Orchestrator) replayLost(ctx context.Context, req Request, cause error) (*Result, error) {
	if req.IdempotencyKey == "" {
		return nil, cause
	}
	return backoff.Retry(ctx, func() (*Result, error) {
		res, ok, err := c.replay(ctx, req)
		switch {
		case errors.Is(err, errInProgress):
			return nil, err
		case err != nil:
			return nil, backoff.Permanent(err)
		case !ok:
			return nil, backoff.Permanent(cause)
		}
		return res, nil
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(uint(c.maxAttempts())))
}

func (c *Orchestrator) replay(ctx context.Context, req Request) (*Result, bool, error) {
	var (
		o   *orders.Order
		err error
	)
	if c.Idempotency != nil {
		if id, ok := c.Idempotency.Lookup(ctx, req.UserID, req.IdempotencyKey); ok {
			o, err = c.Store.GetOrder(ctx, id)
		}
	}
	if o == nil {
		o, err = c.Store.FindOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	}
	if errors.Is(err, orders.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if o.UserID != req.UserID {
		return nil, false, nil
	}
	res := &Result{Order: o, Replayed: true}
	p, err := c.Store.GetPaymentByOrder(ctx, o.ID)
	switch {
	case err == nil:
		res.PaymentIntent = p.Intent()
	case errors.Is(err, orders.ErrNotFound) && o.Status == orders.StatusPending:
		return nil, false, errInProgress
	case !errors.Is(err, orders.ErrNotFound):
		return nil, false, err
	}
	return res, true, nil
}

func (c *Orchestrator) backOff() backoff.BackOff {
	if c.NewBackOff != nil {
		return c.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

func (c *Orchestrator) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Orchestrator) reservationTTL() time.Duration {
	if c.ReservationTTL > 0 {
		return c.ReservationTTL
	}
	return DefaultReservationTTL
}

func (c *Orchestrator) currency() string {
	if c.Currency != "" {
		return c.Currency
	}
	return "USD"
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, orders.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, orders.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, cart.ErrEmptyCart), errors.Is(err, cart.ErrInvalidQuantity):
		return "invalid_cart"
	case errors.Is(err, payments.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, orders.ErrStorageConflict):
		return "storage_conflict"
	}
	return "error"
}
