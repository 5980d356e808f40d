package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"go.uber.org/zap"
)

// StatusWriter is the storage primitive behind every transition: a
// compare-and-set on the order row. It reports false when the stored status
// no longer equals from.
type StatusWriter interface {
	SetOrderStatus(ctx context.Context, orderID string, from, to Status, reason string) (bool, error)
}

// Machine owns order lifecycle changes after creation. It is invoked by the
// webhook reconciler, the reservation sweeper and fulfillment/cancel actions.
type Machine struct {
	Metrics *metrics.Metrics
}

func NewMachine(m *metrics.Metrics) *Machine {
	return &Machine{Metrics: m}
}

// Transition validates from->to against the lifecycle graph and applies it
// atomically at the storage layer. o is updated in place on success.
func (m *Machine) Transition(ctx context.Context, w StatusWriter, o *Order, to Status, reason string) error {
	log := logging.FromContext(ctx)
	from := o.Status
	if !CanTransition(from, to) {
		log.Info("order_transition_rejected",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return &TransitionError{OrderID: o.ID, From: from, To: to}
	}

	ok, err := w.SetOrderStatus(ctx, o.ID, from, to, reason)
	if err != nil {
		return fmt.Errorf("order %s: set status: %w", o.ID, err)
	}
	if !ok {
		// someone else moved it first; our view of "from" is stale
		log.Info("order_transition_stale",
			zap.String("order_id", o.ID),
			zap.String("expected_from", string(from)),
			zap.String("to", string(to)),
		)
		return &TransitionError{OrderID: o.ID, From: from, To: to}
	}

	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	m.Metrics.Transition(string(from), string(to))
	log.Info("order_transition_applied",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return nil
}

func (m *Machine) Confirm(ctx context.Context, w StatusWriter, o *Order) error {
	return m.Transition(ctx, w, o, StatusConfirmed, "")
}

func (m *Machine) Cancel(ctx context.Context, w StatusWriter, o *Order, reason string) error {
	return m.Transition(ctx, w, o, StatusCancelled, reason)
}

func (m *Machine) Ship(ctx context.Context, w StatusWriter, o *Order) error {
	return m.Transition(ctx, w, o, StatusShipped, "")
}

func (m *Machine) Deliver(ctx context.Context, w StatusWriter, o *Order) error {
	return m.Transition(ctx, w, o, StatusDelivered, "")
}

func (m *Machine) Refund(ctx context.Context, w StatusWriter, o *Order) error {
	return m.Transition(ctx, w, o, StatusRefunded, "")
}
