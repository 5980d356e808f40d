package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sender is a delivery channel (email, SMS, push, in-app). Transports live
// outside this service; Sender is where one plugs in.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

type LogSender struct{}

func (LogSender) Send(ctx context.Context, e Event) error {
	logging.FromContext(ctx).Info("notification_sent",
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
		zap.Any("payload", e.Payload),
	)
	return nil
}

// Handler decodes envelopes from the notifications topic and hands them to
// the sender. It is installed as a kafka consumer handler.
type Handler struct {
	Sender Sender
}

func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		logging.FromContext(ctx).Warn("notification_decode_failed", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	e, err := kafkax.UnwrapPayload[Event](env.Payload)
	if err != nil {
		logging.FromContext(ctx).Warn("notification_payload_invalid", zap.Error(err), zap.String("event_id", env.EventID))
		return nil
	}
	if err := h.Sender.Send(ctx, e); err != nil {
		return fmt.Errorf("notify: send %s: %w", env.EventID, err)
	}
	return nil
}
