// Package memory is an in-process store.Store. A single mutex serialises
// every operation and InTx works on a copy that is swapped in on success,
// which gives the same all-or-nothing behaviour as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
)

type state struct {
	products     map[string]catalog.Product
	orders       map[string]orders.Order
	payments     map[string]payments.Payment
	reservations map[string][]orders.Reservation
	events       map[string]time.Time
}

func newState() *state {
	return &state{
		products:     make(map[string]catalog.Product),
		orders:       make(map[string]orders.Order),
		payments:     make(map[string]payments.Payment),
		reservations: make(map[string][]orders.Reservation),
		events:       make(map[string]time.Time),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = append([]orders.Reservation(nil), v...)
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, q store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &view{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func with[T any](s *Store, fn func(v *view) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.st})
}

// PutProduct seeds or replaces a catalog row.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.st.products[p.ID] = p
}

// Product returns the current row, for tests and diagnostics.
func (s *Store) Product(id string) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

// SetPrice changes a catalog price, standing in for catalog management.
func (s *Store) SetPrice(id string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.st.products[id]; ok {
		p.PriceCents = cents
		s.st.products[id] = p
	}
}

// Reservations returns a copy of an order's reservation rows.
func (s *Store) Reservations(orderID string) []orders.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Reservation(nil), s.st.reservations[orderID]...)
}

// ExpireReservations backdates RESERVED rows of orderID, simulating time passing.
func (s *Store) ExpireReservations(orderID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.st.reservations[orderID]
	for i := range rs {
		rs[i].ExpiresAt = at
	}
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.payments)
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	return with(s, func(v *view) (map[string]catalog.Product, error) { return v.GetProducts(ctx, ids) })
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	return with(s, func(v *view) ([]catalog.Product, error) { return v.ListProducts(ctx) })
}

func (s *Store) DecrementStockIfAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	return with(s, func(v *view) (bool, error) { return v.DecrementStockIfAvailable(ctx, productID, qty) })
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) error {
	_, err := with(s, func(v *view) (struct{}, error) { return struct{}{}, v.IncrementStock(ctx, productID, qty) })
	return err
}

func (s *Store) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := with(s, func(v *view) (struct{}, error) { return struct{}{}, v.InsertOrder(ctx, o) })
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return with(s, func(v *view) (*orders.Order, error) { return v.GetOrder(ctx, id) })
}

func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	return with(s, func(v *view) (*orders.Order, error) { return v.FindOrderByIdempotencyKey(ctx, userID, key) })
}

func (s *Store) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.st}).ListOrders(ctx, f)
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID string, from, to orders.Status, reason string) (bool, error) {
	return with(s, func(v *view) (bool, error) { return v.SetOrderStatus(ctx, orderID, from, to, reason) })
}

func (s *Store) SetOrderPayment(ctx context.Context, orderID, paymentID string, status payments.Status) error {
	_, err := with(s, func(v *view) (struct{}, error) { return struct{}{}, v.SetOrderPayment(ctx, orderID, paymentID, status) })
	return err
}

func (s *Store) InsertPayment(ctx context.Context, p *payments.Payment) error {
	_, err := with(s, func(v *view) (struct{}, error) { return struct{}{}, v.InsertPayment(ctx, p) })
	return err
}

func (s *Store) GetPayment(ctx context.Context, id string) (*payments.Payment, error) {
	return with(s, func(v *view) (*payments.Payment, error) { return v.GetPayment(ctx, id) })
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (*payments.Payment, error) {
	return with(s, func(v *view) (*payments.Payment, error) { return v.GetPaymentByOrder(ctx, orderID) })
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, provider payments.Provider, providerPaymentID string) (*payments.Payment, error) {
	return with(s, func(v *view) (*payments.Payment, error) {
		return v.GetPaymentByProviderID(ctx, provider, providerPaymentID)
	})
}

func (s *Store) SetProviderReference(ctx context.Context, paymentID, providerPaymentID, clientSecret string) error {
	_, err := with(s, func(v *view) (struct{}, error) {
		return struct{}{}, v.SetProviderReference(ctx, paymentID, providerPaymentID, clientSecret)
	})
	return err
}

func (s *Store) SetPaymentStatus(ctx context.Context, paymentID string, from, to payments.Status, providerResponse []byte) (bool, error) {
	return with(s, func(v *view) (bool, error) { return v.SetPaymentStatus(ctx, paymentID, from, to, providerResponse) })
}

func (s *Store) InsertReservations(ctx context.Context, rs []orders.Reservation) error {
	_, err := with(s, func(v *view) (struct{}, error) { return struct{}{}, v.InsertReservations(ctx, rs) })
	return err
}

func (s *Store) TransitionReservations(ctx context.Context, orderID string, from []orders.ReservationStatus, to orders.ReservationStatus) ([]orders.Reservation, error) {
	return with(s, func(v *view) ([]orders.Reservation, error) { return v.TransitionReservations(ctx, orderID, from, to) })
}

func (s *Store) ExpiredReservationOrders(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return with(s, func(v *view) ([]string, error) { return v.ExpiredReservationOrders(ctx, before, limit) })
}

func (s *Store) RecordEvent(ctx context.Context, provider payments.Provider, eventID string) (bool, error) {
	return with(s, func(v *view) (bool, error) { return v.RecordEvent(ctx, provider, eventID) })
}

func (s *Store) EventRecorded(ctx context.Context, provider payments.Provider, eventID string) (bool, error) {
	return with(s, func(v *view) (bool, error) { return v.EventRecorded(ctx, provider, eventID) })
}

// view implements store.Queries over one state snapshot. The caller holds the lock.
type view struct {
	st *state
}

func (v *view) GetProducts(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := v.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (v *view) ListProducts(_ context.Context) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(v.st.products))
	for _, p := range v.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (v *view) DecrementStockIfAvailable(_ context.Context, productID string, qty int) (bool, error) {
	p, ok := v.st.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now().UTC()
	v.st.products[productID] = p
	return true, nil
}

func (v *view) IncrementStock(_ context.Context, productID string, qty int) error {
	p, ok := v.st.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, orders.ErrNotFound)
	}
	p.StockQuantity += qty
	p.UpdatedAt = time.Now().UTC()
	v.st.products[productID] = p
	return nil
}

func (v *view) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, dup := v.st.orders[o.ID]; dup {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if o.IdempotencyKey != "" {
		for _, existing := range v.st.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return fmt.Errorf("order key %q: %w", o.IdempotencyKey, orders.ErrDuplicateIdempotencyKey)
			}
		}
	}
	cp := *o
	cp.Items = append([]orders.OrderItem(nil), o.Items...)
	v.st.orders[o.ID] = cp
	return nil
}

func (v *view) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return &o, nil
}

func (v *view) FindOrderByIdempotencyKey(_ context.Context, userID, key string) (*orders.Order, error) {
	for _, o := range v.st.orders {
		if o.UserID == userID && o.IdempotencyKey == key && key != "" {
			o.Items = append([]orders.OrderItem(nil), o.Items...)
			return &o, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (v *view) ListOrders(_ context.Context, f orders.Filter) ([]orders.Order, int, error) {
	f = f.Normalize()
	var all []orders.Order
	for _, o := range v.st.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	start := f.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (v *view) SetOrderStatus(_ context.Context, orderID string, from, to orders.Status, reason string) (bool, error) {
	o, ok := v.st.orders[orderID]
	if !ok {
		return false, orders.ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	o.UpdatedAt = time.Now().UTC()
	v.st.orders[orderID] = o
	return true, nil
}

func (v *view) SetOrderPayment(_ context.Context, orderID, paymentID string, status payments.Status) error {
	o, ok := v.st.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.PaymentID = paymentID
	o.PaymentStatus = string(status)
	o.UpdatedAt = time.Now().UTC()
	v.st.orders[orderID] = o
	return nil
}

func (v *view) InsertPayment(_ context.Context, p *payments.Payment) error {
	for _, existing := range v.st.payments {
		if existing.OrderID == p.OrderID {
			return orders.ErrDuplicateIntent
		}
	}
	v.st.payments[p.ID] = *p
	return nil
}

func (v *view) GetPayment(_ context.Context, id string) (*payments.Payment, error) {
	p, ok := v.st.payments[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetPaymentByOrder(_ context.Context, orderID string) (*payments.Payment, error) {
	for _, p := range v.st.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (v *view) GetPaymentByProviderID(_ context.Context, provider payments.Provider, providerPaymentID string) (*payments.Payment, error) {
	for _, p := range v.st.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID && providerPaymentID != "" {
			return &p, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (v *view) SetProviderReference(_ context.Context, paymentID, providerPaymentID, clientSecret string) error {
	for id, p := range v.st.payments {
		if id != paymentID && p.ProviderPaymentID == providerPaymentID {
			return fmt.Errorf("provider payment id %s already bound to payment %s", providerPaymentID, id)
		}
	}
	p, ok := v.st.payments[paymentID]
	if !ok {
		return orders.ErrNotFound
	}
	p.ProviderPaymentID = providerPaymentID
	p.ClientSecret = clientSecret
	p.UpdatedAt = time.Now().UTC()
	v.st.payments[paymentID] = p
	return nil
}

func (v *view) SetPaymentStatus(_ context.Context, paymentID string, from, to payments.Status, providerResponse []byte) (bool, error) {
	p, ok := v.st.payments[paymentID]
	if !ok {
		return false, orders.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	if len(providerResponse) > 0 {
		p.ProviderResponse = append([]byte(nil), providerResponse...)
	}
	p.UpdatedAt = time.Now().UTC()
	v.st.payments[paymentID] = p
	return true, nil
}

func (v *view) InsertReservations(_ context.Context, rs []orders.Reservation) error {
	for _, r := range rs {
		existing := v.st.reservations[r.OrderID]
		dup := false
		for _, e := range existing {
			if e.ProductID == r.ProductID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		v.st.reservations[r.OrderID] = append(existing, r)
	}
	return nil
}

func (v *view) TransitionReservations(_ context.Context, orderID string, from []orders.ReservationStatus, to orders.ReservationStatus) ([]orders.Reservation, error) {
	rs := v.st.reservations[orderID]
	var changed []orders.Reservation
	for i := range rs {
		for _, f := range from {
			if rs[i].Status == f {
				rs[i].Status = to
				changed = append(changed, rs[i])
				break
			}
		}
	}
	return changed, nil
}

func (v *view) ExpiredReservationOrders(_ context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	for orderID, rs := range v.st.reservations {
		if o, ok := v.st.orders[orderID]; !ok || o.Status != orders.StatusPending {
			continue
		}
		for _, r := range rs {
			if r.Status == orders.ReservationReserved && r.ExpiresAt.Before(before) {
				ids = append(ids, orderID)
				break
			}
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func eventKey(provider payments.Provider, eventID string) string {
	return string(provider) + "|" + eventID
}

func (v *view) RecordEvent(_ context.Context, provider payments.Provider, eventID string) (bool, error) {
	k := eventKey(provider, eventID)
	if _, seen := v.st.events[k]; seen {
		return false, nil
	}
	v.st.events[k] = time.Now().UTC()
	return true, nil
}

func (v *view) EventRecorded(_ context.Context, provider payments.Provider, eventID string) (bool, error) {
	_, seen := v.st.events[eventKey(provider, eventID)]
	return seen, nil
}
