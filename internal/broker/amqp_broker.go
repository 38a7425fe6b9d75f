package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/domain"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// AMQPBroker is a Broker backed by RabbitMQ. The connection is established
// lazily on first use and re-established whenever a dropped connection is
// detected before a publish. Safe for concurrent use.
type AMQPBroker struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPBroker(url, exchange string, logger *zap.Logger) *AMQPBroker {
	return &AMQPBroker{url: url, exchange: exchange, logger: logger}
}

// connectLocked dials the broker with bounded retries and redeclares the
// topology. Caller must hold b.mu.
func (b *AMQPBroker) connectLocked() error {
	if b.conn != nil && !b.conn.IsClosed() && b.ch != nil && !b.ch.IsClosed() {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			lastErr = err
			b.logger.Warn("broker connect failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", connectAttempts),
				zap.Error(err),
			)
			if attempt < connectAttempts {
				time.Sleep(connectDelay)
			}
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		if err := declareTopology(ch, b.exchange); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare topology: %w", err)
		}

		b.conn = conn
		b.ch = ch
		b.logger.Info("connected to broker", zap.String("exchange", b.exchange))
		return nil
	}
	return fmt.Errorf("connect to broker after %d attempts: %w", connectAttempts, lastErr)
}

// declareTopology declares the shared direct exchange, one durable queue per
// channel dead-lettering into the failed routing key, and the failed queue.
// Declarations are idempotent so every process repeats them on connect.
func declareTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	dlxArgs := amqp.Table{
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": RoutingKeyFailed,
	}
	for _, c := range []domain.Channel{domain.ChannelEmail, domain.ChannelPush} {
		queue := c.QueueName()
		if _, err := ch.QueueDeclare(queue, true, false, false, false, dlxArgs); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, string(c), exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", queue, err)
		}
	}

	if _, err := ch.QueueDeclare(QueueFailed, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", QueueFailed, err)
	}
	if err := ch.QueueBind(QueueFailed, RoutingKeyFailed, exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueFailed, err)
	}
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error {
	return b.publish(ctx, b.exchange, routingKey, body, correlationID)
}

func (b *AMQPBroker) PublishToQueue(ctx context.Context, queue string, body []byte, correlationID string) error {
	// The default exchange routes directly to the queue named by the key.
	return b.publish(ctx, "", queue, body, correlationID)
}

func (b *AMQPBroker) publish(ctx context.Context, exchange, routingKey string, body []byte, correlationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connectLocked(); err != nil {
		return err
	}

	err := b.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish to %q: %w", routingKey, err)
	}
	return nil
}

// Consume opens a dedicated connection and channel for the subscription so a
// slow handler cannot block publishes, sets prefetch to one unacknowledged
// message, and bridges deliveries until ctx is cancelled.
func (b *AMQPBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, b.exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer conn.Close()
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Warn("broker delivery stream closed", zap.String("queue", queue))
					return
				}
				out <- NewDelivery(d.Body, d.CorrelationId, func() error {
					return d.Ack(false)
				})
			}
		}
	}()
	return out, nil
}

// Close tears down the publish connection.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil && !b.ch.IsClosed() {
		b.ch.Close()
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}

var _ Broker = (*AMQPBroker)(nil)
