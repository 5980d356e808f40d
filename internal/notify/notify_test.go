package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	key     []byte
	value   []byte
	headers []kafkago.Header
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	c.key, c.value, c.headers = key, value, headers
}

type captureSender struct {
	got []Event
	err error
}

func (c *captureSender) Send(_ context.Context, e Event) error {
	c.got = append(c.got, e)
	return c.err
}

func TestKafkaDispatcherRoundTripsThroughHandler(t *testing.T) {
	pub := &capturePublisher{}
	d := &KafkaDispatcher{Producer: pub, Service: "orders-api"}
	d.Dispatch(context.Background(), NewEvent(OrderConfirmed, "o1", "u1", map[string]any{"total_cents": 2500}))

	assert.Equal(t, []byte("o1"), pub.key)
	require.Len(t, pub.headers, 2)
	assert.Equal(t, "OrderConfirmed", string(pub.headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.value, &env))
	assert.Equal(t, "orders-api", env.Producer)
	assert.Equal(t, "o1", env.CorrelationID)

	sender := &captureSender{}
	h := &Handler{Sender: sender}
	require.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: pub.value}))
	require.Len(t, sender.got, 1)
	assert.Equal(t, OrderConfirmed, sender.got[0].Type)
	assert.Equal(t, "u1", sender.got[0].UserID)
}

func TestHandlerSkipsPoisonAndSurfacesSendErrors(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	h := &Handler{Sender: sender}

	assert.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	assert.Empty(t, sender.got)

	pub := &capturePublisher{}
	(&KafkaDispatcher{Producer: pub}).Dispatch(context.Background(), NewEvent(PaymentFailed, "o2", "u2", nil))
	assert.Error(t, h.Handle(context.Background(), kafkago.Message{Value: pub.value}))
}

func TestMultiAndRecorder(t *testing.T) {
	r1, r2 := &Recorder{}, &Recorder{}
	Multi{r1, nil, r2, Nop{}}.Dispatch(context.Background(), NewEvent(OrderPlaced, "o", "u", nil))
	assert.Equal(t, []EventType{OrderPlaced}, r1.Types())
	assert.Len(t, r2.Events(), 1)
}
