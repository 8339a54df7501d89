package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orderflow-be/internal/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
}

// confirmBuffer covers confirmations left behind by publishes whose context
// ended before the broker answered.
const confirmBuffer = 64

// RabbitClient holds one connection with a confirm-mode channel bound to a
// fanout exchange.
type RabbitClient struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func DialRabbit(url, exchange string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &RabbitClient{conn: conn, ch: ch, exchange: exchange}, nil
}

func (c *RabbitClient) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Publisher switches the channel into confirm mode and returns a publisher
// that waits for the broker ack of every message.
func (c *RabbitClient) Publisher() (*RabbitPublisher, error) {
	if err := c.ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := c.ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	return newRabbitPublisher(c.ch, acks, c.exchange), nil
}

// Source consumes the exchange through a private queue on its own channel.
func (c *RabbitClient) Source() *RabbitSource {
	return &RabbitSource{conn: c.conn, exchange: c.exchange}
}

type RabbitPublisher struct {
	ch       amqpPublisher
	acks     <-chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

func newRabbitPublisher(ch amqpPublisher, acks <-chan amqp.Confirmation, exchange string) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, acks: acks, exchange: exchange}
}

func (p *RabbitPublisher) Publish(ctx context.Context, c Change) error {
	if c.MessageID == "" {
		c.MessageID = uuid.NewString()
	}
	body, err := Encode(c)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.ch.GetNextPublishSeqNo()
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    c.MessageID,
		Timestamp:    time.Now(),
		Type:         c.Table,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}

	return p.awaitConfirm(ctx, tag)
}

// awaitConfirm waits for the confirmation of tag, discarding late ones that
// belong to earlier publishes.
func (p *RabbitPublisher) awaitConfirm(ctx context.Context, tag uint64) error {
	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if !conf.Ack {
				return errors.New("publish NACK from broker")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type RabbitSource struct {
	conn     *amqp.Connection
	exchange string
}

func (s *RabbitSource) Listen(ctx context.Context, handle Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log := logger.Named("changefeed").With(zap.String("source", "rabbitmq"), zap.String("exchange", s.exchange))
	log.Info("consuming row changes", zap.String("queue", q.Name))

	return consumeDeliveries(ctx, log, deliveries, handle)
}

func consumeDeliveries(ctx context.Context, log *zap.Logger, deliveries <-chan amqp.Delivery, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			deliver(log, d.Body, handle)
		}
	}
}
