// Package intent creates the single payment record an order is paid
// against and keeps it in step with the provider-side object.
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Request struct {
	OrderID     string
	UserID      string
	AmountCents int64
	Currency    string
	Provider    payments.Provider
	Method      payments.Method
}

type Manager struct {
	Store    store.Store
	Gateways payments.Gateways
}

// CreateIntent persists a PENDING payment for the order, asks the provider
// for an intent and records the provider reference. The amount and currency
// must equal the order's frozen totals. A provider failure leaves the
// payment CANCELLED and returns payments.ErrProviderUnavailable.
func (m *Manager) CreateIntent(ctx context.Context, req Request) (*payments.Payment, error) {
	log := logging.FromContext(ctx).With(zap.String("order_id", req.OrderID))
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", payments.ErrProviderUnavailable, req.Provider)
	}
	if req.Method == "" {
		req.Method = payments.MethodCard
	}
	gw, err := m.Gateways.For(req.Provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &payments.Payment{
		ID:          uuid.NewString(),
		OrderID:     req.OrderID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Provider:    req.Provider,
		Method:      req.Method,
		Status:      payments.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = m.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		o, err := q.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.TotalCents != req.AmountCents || o.Currency != req.Currency {
			return fmt.Errorf("%w: order %d %s, intent %d %s", orders.ErrAmountMismatch,
				o.TotalCents, o.Currency, req.AmountCents, req.Currency)
		}
		if o.Status != orders.StatusPending {
			return &orders.TransitionError{OrderID: o.ID, From: o.Status, To: orders.StatusConfirmed}
		}
		if err := q.InsertPayment(ctx, p); err != nil {
			return err
		}
		return q.SetOrderPayment(ctx, o.ID, p.ID, p.Status)
	})
	if err != nil {
		return nil, err
	}

	gi, err := gw.CreateIntent(ctx, payments.GatewayRequest{
		OrderID:     req.OrderID,
		PaymentID:   p.ID,
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method,
	})
	if err != nil {
		log.Warn("payment_intent_failed", zap.String("payment_id", p.ID), zap.String("provider", string(req.Provider)), zap.Error(err))
		if cerr := m.cancel(ctx, p); cerr != nil {
			log.Error("payment_cancel_failed", zap.String("payment_id", p.ID), zap.Error(cerr))
		}
		if !errors.Is(err, payments.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", payments.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	if err := m.Store.SetProviderReference(ctx, p.ID, gi.ProviderPaymentID, gi.ClientSecret); err != nil {
		if cerr := m.cancel(ctx, p); cerr != nil {
			log.Error("payment_cancel_failed", zap.String("payment_id", p.ID), zap.Error(cerr))
		}
		return nil, fmt.Errorf("payment %s: store provider reference: %w", p.ID, err)
	}
	p.ProviderPaymentID = gi.ProviderPaymentID
	p.ClientSecret = gi.ClientSecret

	log.Info("payment_intent_created",
		zap.String("payment_id", p.ID),
		zap.String("provider", string(p.Provider)),
		zap.String("provider_payment_id", p.ProviderPaymentID),
		zap.Int64("amount_cents", p.AmountCents),
	)
	return p, nil
}

func (m *Manager) cancel(ctx context.Context, p *payments.Payment) error {
	return m.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		ok, err := q.SetPaymentStatus(ctx, p.ID, payments.StatusPending, payments.StatusCancelled, nil)
		if err != nil || !ok {
			return err
		}
		p.Status = payments.StatusCancelled
		return q.SetOrderPayment(ctx, p.OrderID, p.ID, p.Status)
	})
}
