// Package store is the persistence contract of the checkout pipeline.
//
// Every multi-step mutation runs inside InTx so it is applied completely or
// not at all. Hot rows (product stock, payment status, order status) are only
// ever changed through conditional writes, which keeps the contract safe for
// many processes sharing one database.
package store

import (
	"context"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
)

type Store interface {
	Queries
	// InTx runs fn in a transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

type Queries interface {
	Products
	Orders
	Payments
	Reservations
	Events
}

type Products interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	// DecrementStockIfAvailable is the single conditional write behind a
	// reservation: stock -= qty iff stock >= qty.
	DecrementStockIfAvailable(ctx context.Context, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type Orders interface {
	InsertOrder(ctx context.Context, o *orders.Order) error
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error)
	ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, int, error)
	SetOrderStatus(ctx context.Context, orderID string, from, to orders.Status, reason string) (bool, error)
	SetOrderPayment(ctx context.Context, orderID, paymentID string, status payments.Status) error
}

type Payments interface {
	// InsertPayment fails with orders.ErrDuplicateIntent when the order already has one.
	InsertPayment(ctx context.Context, p *payments.Payment) error
	GetPayment(ctx context.Context, id string) (*payments.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*payments.Payment, error)
	GetPaymentByProviderID(ctx context.Context, provider payments.Provider, providerPaymentID string) (*payments.Payment, error)
	SetProviderReference(ctx context.Context, paymentID, providerPaymentID, clientSecret string) error
	// SetPaymentStatus is a compare-and-set on status.
	SetPaymentStatus(ctx context.Context, paymentID string, from, to payments.Status, providerResponse []byte) (bool, error)
}

type Reservations interface {
	InsertReservations(ctx context.Context, rs []orders.Reservation) error
	// TransitionReservations moves every reservation of orderID whose status is
	// in from to the to status and returns the rows it changed.
	TransitionReservations(ctx context.Context, orderID string, from []orders.ReservationStatus, to orders.ReservationStatus) ([]orders.Reservation, error)
	// ExpiredReservationOrders lists PENDING orders holding RESERVED stock that
	// expired before the given time.
	ExpiredReservationOrders(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type Events interface {
	// RecordEvent inserts into the dedupe ledger. false means the
	// (provider, eventID) pair was already recorded.
	RecordEvent(ctx context.Context, provider payments.Provider, eventID string) (bool, error)
	EventRecorded(ctx context.Context, provider payments.Provider, eventID string) (bool, error)
}
