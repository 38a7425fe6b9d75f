package broker

import "context"

// RoutingKeyFailed routes messages to the dead-letter queue via the shared
// exchange. Channel routing keys are the channel names themselves.
const RoutingKeyFailed = "failed"

// QueueFailed is the dead-letter queue, bound to RoutingKeyFailed.
const QueueFailed = "failed.queue"

// Delivery is one consumed message. Ack must be called exactly once after the
// worker has finished with it (including after republishing a retry); until
// then the broker owns the message and will redeliver it on connection loss.
type Delivery struct {
	Body          []byte
	CorrelationID string
	ack           func() error
}

// NewDelivery constructs a Delivery; ack may be nil (no-op), which test
// doubles and the mock broker rely on.
func NewDelivery(body []byte, correlationID string, ack func() error) Delivery {
	return Delivery{Body: body, CorrelationID: correlationID, ack: ack}
}

// Ack permanently removes the message from its queue.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Broker is the durable queue client used by the gateway (publish side) and
// the delivery workers (consume + republish side). Implementations provide
// at-least-once delivery and per-consumer prefetch of one.
type Broker interface {
	// Publish routes a message through the shared exchange. Routing keys are
	// "email", "push", or RoutingKeyFailed.
	Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error

	// PublishToQueue bypasses the exchange and targets a queue directly.
	// Used for retry republishing so a retry is a fresh message on the same
	// queue rather than a broker-level redelivery.
	PublishToQueue(ctx context.Context, queue string, body []byte, correlationID string) error

	// Consume subscribes to a queue with prefetch 1 and manual acks.
	// The returned channel closes when ctx is cancelled or the connection drops.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}
