package broker

import (
	"context"
	"errors"
	"sync"
)

// Published records one message captured by the mock.
type Published struct {
	Exchange      bool // true if routed via the shared exchange
	RoutingKey    string
	Body          []byte
	CorrelationID string
}

// MockBroker is a hand-written, in-memory implementation of Broker used in
// unit tests. Published messages are captured for assertions and deliveries
// are fed in by the test.
type MockBroker struct {
	mu          sync.Mutex
	published   []Published
	failPublish bool
	feeds       map[string]chan Delivery
}

func NewMockBroker() *MockBroker {
	return &MockBroker{feeds: make(map[string]chan Delivery)}
}

// FailPublish makes every subsequent publish return an error.
func (m *MockBroker) FailPublish(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPublish = fail
}

var errMockPublish = errors.New("mock broker publish failure")

func (m *MockBroker) Publish(_ context.Context, routingKey string, body []byte, correlationID string) error {
	return m.record(Published{Exchange: true, RoutingKey: routingKey, Body: body, CorrelationID: correlationID})
}

func (m *MockBroker) PublishToQueue(_ context.Context, queue string, body []byte, correlationID string) error {
	return m.record(Published{Exchange: false, RoutingKey: queue, Body: body, CorrelationID: correlationID})
}

func (m *MockBroker) record(p Published) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish {
		return errMockPublish
	}
	m.published = append(m.published, p)
	return nil
}

// Published returns a copy of every captured message.
func (m *MockBroker) PublishedMessages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	m.mu.Lock()
	feed, ok := m.feeds[queue]
	if !ok {
		feed = make(chan Delivery, 16)
		m.feeds[queue] = feed
	}
	m.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-feed:
				if !ok {
					return
				}
				out <- d
			}
		}
	}()
	return out, nil
}

// Feed hands a delivery to any consumer of the queue.
func (m *MockBroker) Feed(queue string, d Delivery) {
	m.mu.Lock()
	feed, ok := m.feeds[queue]
	if !ok {
		feed = make(chan Delivery, 16)
		m.feeds[queue] = feed
	}
	m.mu.Unlock()
	feed <- d
}

// CloseFeed ends the delivery stream for a queue.
func (m *MockBroker) CloseFeed(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if feed, ok := m.feeds[queue]; ok {
		close(feed)
		delete(m.feeds, queue)
	}
}

var _ Broker = (*MockBroker)(nil)
