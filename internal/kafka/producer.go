package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *zap.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log.With(zap.String("topic", topic)),
	}
}

// Start drains the inbox until ctx is done, then flushes what is left.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Warn("kafka_write_failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish never blocks the caller: when the inbox is full the message is dropped.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
	default:
		p.log.Warn("kafka_inbox_full", zap.ByteString("key", key))
	}
}

func (p *Producer) WaitClosed() { <-p.closeCh }
