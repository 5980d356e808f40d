package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DedupeHint is a fast-path cache of processed event ids. Only a hit is
// trusted; the store ledger decides everything else.
type DedupeHint interface {
	Seen(ctx context.Context, id string) bool
	Mark(ctx context.Context, id string)
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string)
}

type Reconciler struct {
	Store    store.Store
	Adapters map[payments.Provider]Adapter
	Machine  *orders.Machine
	Ledger   *inventory.Ledger
	Notifier notify.Dispatcher
	Metrics  *metrics.Metrics
	Dedupe   DedupeHint
	Cache    StatusCache

	tracer trace.Tracer
}

func NewReconciler(s store.Store, machine *orders.Machine, ledger *inventory.Ledger, n notify.Dispatcher, m *metrics.Metrics, adapters ...Adapter) *Reconciler {
	r := &Reconciler{
		Store:    s,
		Adapters: make(map[payments.Provider]Adapter, len(adapters)),
		Machine:  machine,
		Ledger:   ledger,
		Notifier: n,
		Metrics:  m,
		tracer:   otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/webhook"),
	}
	for _, a := range adapters {
		r.Adapters[a.Provider()] = a
	}
	return r
}

// result is what one committed reconciliation did, for the post-commit side effects.
type result struct {
	outcome  Outcome
	order    *orders.Order
	payFrom  payments.Status
	payTo    payments.Status
	released int
	refund   bool
}

var errStaleOrder = errors.New("webhook: order transition stale")

// Apply reconciles one delivery. Rejected comes back with ErrSignature or
// ErrMalformed; storage failures come back as errors and leave no trace in
// the ledger so the provider's redelivery is processed from scratch.
func (r *Reconciler) Apply(ctx context.Context, d Delivery) (Outcome, error) {
	if r.tracer == nil {
		r.tracer = otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/webhook")
	}
	ctx, span := r.tracer.Start(ctx, "webhook.apply", trace.WithAttributes(
		attribute.String("provider", string(d.Provider)),
	))
	defer span.End()

	log := logging.FromContext(ctx).With(zap.String("provider", string(d.Provider)))
	outcome, err := r.apply(ctx, log, d)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil && outcome != Rejected {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if outcome != "" {
		r.Metrics.Webhook(string(d.Provider), string(outcome))
	} else {
		r.Metrics.Webhook(string(d.Provider), "error")
	}
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, d Delivery) (Outcome, error) {
	a, ok := r.Adapters[d.Provider]
	if !ok {
		return Rejected, fmt.Errorf("%w: %s", ErrUnknownProvider, d.Provider)
	}
	ev, err := a.Parse(d)
	if err != nil {
		// audit trail for forged or broken deliveries
		log.Warn("webhook_rejected", zap.String("event_id", d.EventID), zap.Error(err))
		return Rejected, err
	}
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	hintKey := string(d.Provider) + ":" + ev.ID
	if r.Dedupe != nil && r.Dedupe.Seen(ctx, hintKey) {
		log.Info("webhook_duplicate", zap.Bool("hint", true))
		return Duplicate, nil
	}

	res, err := r.reconcile(ctx, d.Provider, ev)
	if errors.Is(err, errStaleOrder) {
		// keep the ledger row, drop the payment change
		res.outcome, err = r.recordOnly(ctx, d.Provider, ev.ID)
		if res.outcome == Ignored {
			res.refund = ev.Status == payments.StatusSucceeded
		}
	}
	if err != nil {
		log.Error("webhook_failed", zap.Error(err))
		return "", err
	}

	if r.Dedupe != nil && res.outcome != "" {
		r.Dedupe.Mark(ctx, hintKey)
	}
	r.afterCommit(ctx, log, ev, res)
	return res.outcome, nil
}

func (r *Reconciler) reconcile(ctx context.Context, provider payments.Provider, ev Event) (result, error) {
	var res result
	err := r.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		res = result{}
		fresh, err := q.RecordEvent(ctx, provider, ev.ID)
		if err != nil {
			return err
		}
		if !fresh {
			res.outcome = Duplicate
			return nil
		}
		if ev.Status == "" {
			res.outcome = Ignored
			return nil
		}

		p, err := q.GetPaymentByProviderID(ctx, provider, ev.ProviderPaymentID)
		if errors.Is(err, orders.ErrNotFound) {
			return fmt.Errorf("%w: %s %s", ErrUnknownPayment, provider, ev.ProviderPaymentID)
		}
		if err != nil {
			return err
		}
		o, err := q.GetOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		res.order = o
		res.payFrom, res.payTo = p.Status, ev.Status

		if !payments.CanTransition(p.Status, ev.Status) {
			res.outcome = Ignored
			// captured money on a payment we already gave up on
			res.refund = ev.Status == payments.StatusSucceeded
			return nil
		}
		ok, err := q.SetPaymentStatus(ctx, p.ID, p.Status, ev.Status, ev.Raw)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payment %s moved concurrently: %w", p.ID, orders.ErrStorageConflict)
		}
		if err := q.SetOrderPayment(ctx, o.ID, p.ID, ev.Status); err != nil {
			return err
		}
		o.PaymentStatus = string(ev.Status)

		if to, reason, move := orderTarget(ev.Status); move {
			if err := r.Machine.Transition(ctx, q, o, to, reason); err != nil {
				if errors.Is(err, orders.ErrInvalidTransition) {
					return errStaleOrder
				}
				return err
			}
		}

		switch ev.Status {
		case payments.StatusSucceeded:
			if _, err := r.Ledger.Finalize(ctx, q, o.ID); err != nil {
				return err
			}
		case payments.StatusFailed, payments.StatusCancelled, payments.StatusRefunded:
			n, err := r.Ledger.Release(ctx, q, o.ID)
			if err != nil {
				return err
			}
			res.released = n
		}
		res.outcome = Applied
		return nil
	})
	return res, err
}

func (r *Reconciler) recordOnly(ctx context.Context, provider payments.Provider, eventID string) (Outcome, error) {
	var out Outcome
	err := r.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		fresh, err := q.RecordEvent(ctx, provider, eventID)
		if err != nil {
			return err
		}
		out = Ignored
		if !fresh {
			out = Duplicate
		}
		return nil
	})
	return out, err
}

// orderTarget maps a payment status to the order transition it triggers.
func orderTarget(s payments.Status) (orders.Status, string, bool) {
	switch s {
	case payments.StatusSucceeded:
		return orders.StatusConfirmed, "", true
	case payments.StatusFailed:
		return orders.StatusCancelled, orders.ReasonPaymentFailed, true
	case payments.StatusCancelled:
		return orders.StatusCancelled, orders.ReasonPaymentCancelled, true
	case payments.StatusRefunded:
		return orders.StatusRefunded, "", true
	}
	return "", "", false
}

func (r *Reconciler) afterCommit(ctx context.Context, log *zap.Logger, ev Event, res result) {
	fields := []zap.Field{zap.String("outcome", string(res.outcome))}
	if res.order != nil {
		fields = append(fields, zap.String("order_id", res.order.ID))
	}
	switch res.outcome {
	case Duplicate:
		log.Info("webhook_duplicate", fields...)
		return
	case Ignored:
		log.Info("webhook_ignored", append(fields,
			zap.String("payment_from", string(res.payFrom)),
			zap.String("payment_to", string(res.payTo)))...)
	case Applied:
		log.Info("webhook_applied", append(fields,
			zap.String("payment_from", string(res.payFrom)),
			zap.String("payment_to", string(res.payTo)))...)
	}
	if res.order == nil {
		return
	}
	o := res.order
	if res.refund {
		log.Warn("payment_requires_refund", zap.String("order_id", o.ID), zap.String("order_status", string(o.Status)))
		r.dispatch(ctx, notify.NewEvent(notify.PaymentRequiresRefund, o.ID, o.UserID, map[string]any{
			"provider_payment_id": ev.ProviderPaymentID,
			"order_status":        o.Status,
		}))
	}
	if res.outcome != Applied {
		return
	}
	if r.Cache != nil {
		r.Cache.Invalidate(ctx, o.ID)
	}
	if res.released > 0 {
		r.Metrics.Released(string(res.payTo))
	}

	payload := map[string]any{"total_cents": o.TotalCents, "currency": o.Currency}
	switch res.payTo {
	case payments.StatusSucceeded:
		r.dispatch(ctx, notify.NewEvent(notify.OrderConfirmed, o.ID, o.UserID, payload))
	case payments.StatusFailed:
		r.dispatch(ctx, notify.NewEvent(notify.PaymentFailed, o.ID, o.UserID, payload))
		r.dispatch(ctx, notify.NewEvent(notify.OrderCancelled, o.ID, o.UserID, map[string]any{"reason": o.CancelReason}))
	case payments.StatusCancelled:
		r.dispatch(ctx, notify.NewEvent(notify.OrderCancelled, o.ID, o.UserID, map[string]any{"reason": o.CancelReason}))
	case payments.StatusRefunded:
		r.dispatch(ctx, notify.NewEvent(notify.OrderRefunded, o.ID, o.UserID, payload))
	}
}

func (r *Reconciler) dispatch(ctx context.Context, e notify.Event) {
	if r.Notifier != nil {
		r.Notifier.Dispatch(ctx, e)
	}
}
