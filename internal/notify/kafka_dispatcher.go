package notify

import (
	"context"
	"strconv"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is the async producer surface used here.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaDispatcher writes events to the notifications topic keyed by order id,
// so one order's notifications stay in order on a partition.
type KafkaDispatcher struct {
	Producer Publisher
	Service  string
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, e Event) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(e.Type),
		EventVersion:  1,
		OccurredAt:    e.OccurredAt,
		Producer:      d.Service,
		CorrelationID: e.OrderID,
		Payload:       kafkax.MustMarshal(e),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ev.TraceID = sc.TraceID().String()
	}
	d.Producer.Publish(kafkax.PartitionKey(e.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(e.Type)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}
