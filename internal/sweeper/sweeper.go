// Package sweeper releases stock held by checkouts that were never paid.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"go.uber.org/zap"
)

const DefaultBatch = 100

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string)
}

type Sweeper struct {
	Store    store.Store
	Ledger   *inventory.Ledger
	Machine  *orders.Machine
	Notifier notify.Dispatcher
	Metrics  *metrics.Metrics
	Cache    StatusCache
	Interval time.Duration
	Batch    int
	Now      func() time.Time
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	log := logging.FromContext(ctx)
	log.Info("sweeper_started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper_stopped")
			return nil
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Warn("sweep_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce cancels every PENDING order whose reservation expired and
// restocks it, one transaction per order. It returns how many orders it
// released.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	batch := s.Batch
	if batch <= 0 {
		batch = DefaultBatch
	}
	ids, err := s.Store.ExpiredReservationOrders(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	log := logging.FromContext(ctx)
	released := 0
	var errs []error
	for _, id := range ids {
		o, ok, err := s.expire(ctx, id)
		if err != nil {
			log.Warn("reservation_expiry_failed", zap.String("order_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		released++
		s.Metrics.Released(orders.ReasonReservationExpired)
		if s.Cache != nil {
			s.Cache.Invalidate(ctx, o.ID)
		}
		if s.Notifier != nil {
			s.Notifier.Dispatch(ctx, notify.NewEvent(notify.OrderCancelled, o.ID, o.UserID,
				map[string]any{"reason": orders.ReasonReservationExpired}))
		}
	}
	if released > 0 {
		log.Info("sweep_done", zap.Int("expired", len(ids)), zap.Int("released", released))
	}
	return released, errors.Join(errs...)
}

func (s *Sweeper) expire(ctx context.Context, orderID string) (*orders.Order, bool, error) {
	var (
		o       *orders.Order
		changed bool
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		changed = false
		var err error
		o, err = q.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != orders.StatusPending {
			// paid or cancelled meanwhile; the webhook path owns its stock
			return nil
		}
		p, err := q.GetPaymentByOrder(ctx, orderID)
		switch {
		case errors.Is(err, orders.ErrNotFound):
		case err != nil:
			return err
		case p.Status == payments.StatusPending || p.Status == payments.StatusProcessing:
			ok, err := q.SetPaymentStatus(ctx, p.ID, p.Status, payments.StatusCancelled, nil)
			if err != nil {
				return err
			}
			if !ok {
				return orders.ErrStorageConflict
			}
			if err := q.SetOrderPayment(ctx, orderID, p.ID, payments.StatusCancelled); err != nil {
				return err
			}
			o.PaymentStatus = string(payments.StatusCancelled)
		}
		if err := s.Machine.Cancel(ctx, q, o, orders.ReasonReservationExpired); err != nil {
			return err
		}
		if _, err := s.Ledger.Release(ctx, q, orderID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return o, changed, err
}
