package notify

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"go.uber.org/zap"
)

// LogDispatcher only logs; used when no broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, e Event) {
	logging.FromContext(ctx).Info("notification_dispatched",
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
	)
}

// Recorder keeps dispatched events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Dispatch(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
