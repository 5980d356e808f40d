package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"go.uber.org/zap"
)

var ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")

// Stock is the conditional-write surface the ledger needs from storage.
type Stock interface {
	DecrementStockIfAvailable(ctx context.Context, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
}

// ReservationStore tracks which stock an order is holding.
type ReservationStore interface {
	TransitionReservations(ctx context.Context, orderID string, from []orders.ReservationStatus, to orders.ReservationStatus) ([]orders.Reservation, error)
}

type Store interface {
	Stock
	ReservationStore
}

// Ledger owns per-product stock counts. It holds no state; every call takes
// the storage handle so it can run inside the caller's transaction.
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// TryDecrement takes qty units iff that many are available. It is never
// retried on ErrInsufficientStock; the buyer has to change the quantity.
func (l *Ledger) TryDecrement(ctx context.Context, s Stock, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := s.DecrementStockIfAvailable(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("inventory: decrement %s: %w", productID, err)
	}
	if !ok {
		return &orders.StockError{ProductID: productID, Requested: qty}
	}
	return nil
}

func (l *Ledger) Increment(ctx context.Context, s Stock, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := s.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("inventory: increment %s: %w", productID, err)
	}
	return nil
}

// Finalize settles an order's reservations after a successful payment. No
// stock moves; the units were taken at checkout.
func (l *Ledger) Finalize(ctx context.Context, s Store, orderID string) (int, error) {
	rs, err := s.TransitionReservations(ctx, orderID,
		[]orders.ReservationStatus{orders.ReservationReserved}, orders.ReservationFinalized)
	if err != nil {
		return 0, fmt.Errorf("inventory: finalize %s: %w", orderID, err)
	}
	return len(rs), nil
}

// Release restocks everything the order still holds. Rows already RELEASED
// are skipped, so calling it twice restocks once.
func (l *Ledger) Release(ctx context.Context, s Store, orderID string) (int, error) {
	rs, err := s.TransitionReservations(ctx, orderID,
		[]orders.ReservationStatus{orders.ReservationReserved, orders.ReservationFinalized}, orders.ReservationReleased)
	if err != nil {
		return 0, fmt.Errorf("inventory: release %s: %w", orderID, err)
	}
	units := 0
	for _, r := range rs {
		if err := l.Increment(ctx, s, r.ProductID, r.Quantity); err != nil {
			return 0, err
		}
		units += r.Quantity
	}
	if len(rs) > 0 {
		logging.FromContext(ctx).Info("reservations_released",
			zap.String("order_id", orderID),
			zap.Int("lines", len(rs)),
			zap.Int("units", units),
		)
	}
	return units, nil
}
