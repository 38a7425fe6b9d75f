package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/ratelimiter"
	"github.com/notifyhub/dispatch/internal/render"
	"github.com/notifyhub/dispatch/internal/sender"
	"github.com/notifyhub/dispatch/internal/status"
)

// MetricHooks carries the metric callback functions injected by main.
type MetricHooks struct {
	OnDelivered    func(channel domain.Channel, latency time.Duration)
	OnRetried      func(channel domain.Channel)
	OnDeadLettered func(channel domain.Channel)
}

// Pool runs count workers against one channel's queue. Every worker holds its
// own prefetch-1 subscription; the broker load-balances tasks across them, so
// the pool shares no mutable state beyond the broker and status sink.
type Pool struct {
	workers []*Worker
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewPool(
	count int,
	channel domain.Channel,
	brk broker.Broker,
	renderer render.Renderer,
	snd sender.Sender,
	reporter status.Reporter,
	limiter *ratelimiter.ChannelLimiters,
	retry RetryConfig,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(
			i, channel, brk, renderer, snd, reporter, limiter, retry,
			logger.With(zap.Int("worker_id", i)),
			hooks,
		)
	}
	return &Pool{workers: workers, logger: logger}
}

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.logger.Error("worker exited with error", zap.Error(err))
			}
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context so in-flight tasks finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
