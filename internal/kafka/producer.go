package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/segmentio/kafka-go"
)

// Publisher is what request handlers need from a producer.
type Publisher interface {
	PublishEvent(ev orders.Envelope)
}

// writeTimeout bounds a single hand-off to the writer, including the
// metadata lookup it may do before batching.
const writeTimeout = 10 * time.Second

type Producer struct {
	w       *kafka.Writer
	topic   string
	inbox   chan kafka.Message
	closeCh chan struct{}
	dropped atomic.Int64
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	p := &Producer{
		topic:   topic,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// completed reports delivery failures of async batches.
func (p *Producer) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		obs.Logger.Error("kafka delivery failed", "topic", p.topic, "key", string(m.Key), "err", err)
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				_ = p.w.Close()
				return
			}
			p.write(m)
		default:
			_ = p.w.Close()
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		obs.Logger.Error("kafka write failed", "topic", p.topic, "key", string(m.Key), "err", err)
	}
}

// Publish queues the message without blocking. When the inbox is full the
// message is dropped and logged; the caller's request has already succeeded.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
	default:
		p.dropped.Add(1)
		obs.Logger.Error("kafka inbox full, event dropped", "topic", p.topic, "key", string(key))
	}
}

// PublishEvent keys the envelope by its order id.
func (p *Producer) PublishEvent(ev orders.Envelope) {
	p.Publish(orders.PartitionKey(ev.CorrelationID), MustMarshal(ev), Headers(ev)...)
}

// Dropped counts messages discarded because the inbox was full.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Close stops intake; the loop flushes what is queued and exits.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
