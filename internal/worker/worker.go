package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/ratelimiter"
	"github.com/notifyhub/dispatch/internal/render"
	"github.com/notifyhub/dispatch/internal/resilience"
	"github.com/notifyhub/dispatch/internal/sender"
	"github.com/notifyhub/dispatch/internal/status"
)

// RetryConfig bounds the per-message retry loop.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Worker consumes delivery tasks for one channel: render, send, report,
// ack/retry/dead-letter. Each worker holds its own queue subscription with
// prefetch 1, so a slow render or send never starves other tasks on the same
// subscription; throughput scales by running more workers.
type Worker struct {
	id       int
	channel  domain.Channel
	broker   broker.Broker
	renderer render.Renderer
	sender   sender.Sender
	reporter status.Reporter
	limiter  *ratelimiter.ChannelLimiters
	retry    RetryConfig
	logger   *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onDelivered    func(channel domain.Channel, latency time.Duration)
	onRetried      func(channel domain.Channel)
	onDeadLettered func(channel domain.Channel)
}

func NewWorker(
	id int,
	channel domain.Channel,
	brk broker.Broker,
	renderer render.Renderer,
	snd sender.Sender,
	reporter status.Reporter,
	limiter *ratelimiter.ChannelLimiters,
	retry RetryConfig,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	if hooks.OnDelivered == nil {
		hooks.OnDelivered = func(domain.Channel, time.Duration) {}
	}
	if hooks.OnRetried == nil {
		hooks.OnRetried = func(domain.Channel) {}
	}
	if hooks.OnDeadLettered == nil {
		hooks.OnDeadLettered = func(domain.Channel) {}
	}
	return &Worker{
		id: id, channel: channel, broker: brk,
		renderer: renderer, sender: snd, reporter: reporter,
		limiter: limiter, retry: retry, logger: logger,
		onDelivered:    hooks.OnDelivered,
		onRetried:      hooks.OnRetried,
		onDeadLettered: hooks.OnDeadLettered,
	}
}

// Run subscribes to the channel queue and blocks until ctx is cancelled,
// processing one task at a time.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.broker.Consume(ctx, w.channel.QueueName())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.channel.QueueName(), err)
	}

	w.logger.Info("worker started",
		zap.Int("id", w.id),
		zap.String("queue", w.channel.QueueName()),
	)
	for d := range deliveries {
		w.process(ctx, d)
	}
	if ctx.Err() == nil {
		// The stream ended while we were still supposed to be consuming:
		// a dropped connection, not a shutdown. Surface it so the process
		// exits and the supervisor restarts it instead of idling with no
		// subscription.
		return fmt.Errorf("delivery stream for %s closed unexpectedly", w.channel.QueueName())
	}
	w.logger.Info("worker stopping", zap.Int("id", w.id))
	return nil
}

func (w *Worker) process(ctx context.Context, d broker.Delivery) {
	start := time.Now()

	var task domain.DeliveryTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		// Malformed payloads can never succeed; dead-letter them unretried.
		w.logger.Error("undecodable task, dead-lettering",
			zap.String("correlation_id", d.CorrelationID),
			zap.Error(err),
		)
		w.deadLetter(ctx, d, nil)
		return
	}

	log := w.logger.With(
		zap.Int64("notification_id", task.NotificationID),
		zap.String("request_id", task.RequestID),
		zap.String("correlation_id", d.CorrelationID),
		zap.String("channel", string(task.Channel)),
		zap.Int("retry_count", task.RetryCount),
	)

	msg, err := w.prepare(ctx, &task)
	if err == nil {
		// Throttle provider calls; returns early only on ctx cancellation.
		if waitErr := w.limiter.Wait(ctx, w.channel); waitErr != nil {
			return
		}
		err = w.sender.Send(ctx, msg)
	}

	if err != nil {
		log.Warn("delivery attempt failed", zap.Error(err))
		w.handleFailure(ctx, d, &task, err, log)
		return
	}

	w.report(ctx, &task, domain.StatusDelivered, nil, log)
	if ackErr := d.Ack(); ackErr != nil {
		log.Error("ack failed after delivery", zap.Error(ackErr))
		return
	}
	w.onDelivered(task.Channel, time.Since(start))
	log.Info("notification delivered", zap.Duration("latency", time.Since(start)))
}

// prepare renders the template and assembles the channel-specific message.
// Render failures enter the same retry path as send failures.
func (w *Worker) prepare(ctx context.Context, task *domain.DeliveryTask) (*sender.Message, error) {
	rendered, err := w.renderer.Render(ctx, task.TemplateCode, task.Variables, "en")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", task.TemplateCode, err)
	}

	subject := rendered.Subject
	if subject == "" {
		subject = "Notification"
	}
	msg := &sender.Message{
		Recipient: task.Recipient,
		Subject:   subject,
		Body:      rendered.Body,
	}

	if task.Channel == domain.ChannelPush {
		msg.Data, msg.ImageURL = pushExtras(task)
	}
	return msg, nil
}

// pushExtras builds the auxiliary push payload. The push transport requires
// every data value to be a string, so metadata is JSON-stringified.
func pushExtras(task *domain.DeliveryTask) (map[string]string, string) {
	data := map[string]string{
		"notification_id": fmt.Sprint(task.NotificationID),
		"template_code":   task.TemplateCode,
		"priority":        fmt.Sprint(int(task.Priority)),
	}
	if link, ok := task.Variables["link"].(string); ok && link != "" {
		data["link"] = link
	}
	if len(task.Metadata) > 0 {
		if raw, err := json.Marshal(task.Metadata); err == nil {
			data["metadata"] = string(raw)
		}
	}

	var imageURL string
	if meta, ok := task.Variables["meta"].(map[string]any); ok {
		if u, ok := meta["image_url"].(string); ok {
			imageURL = u
		}
	}
	return data, imageURL
}

// handleFailure routes a failed attempt: republish with backoff while budget
// remains, dead-letter otherwise. Fatal sender errors (bad credentials,
// unregistered token) skip the retry budget entirely.
func (w *Worker) handleFailure(ctx context.Context, d broker.Delivery, task *domain.DeliveryTask, sendErr error, log *zap.Logger) {
	if sender.IsFatal(sendErr) {
		log.Error("permanent sender failure, dead-lettering immediately", zap.Error(sendErr))
		w.report(ctx, task, domain.StatusFailed, sendErr, log)
		w.deadLetter(ctx, d, log)
		w.onDeadLettered(task.Channel)
		return
	}

	if task.RetryCount < w.retry.MaxRetries {
		// The backoff wait deliberately occupies this worker's processing
		// slot: per-task ordering of attempts stays trivial and the delay is
		// bounded by MaxDelay. Horizontal worker count restores throughput.
		delay := resilience.Backoff(w.retry.BaseDelay, w.retry.MaxDelay, task.RetryCount)
		task.RetryCount++
		log.Info("scheduling retry",
			zap.Int("next_retry", task.RetryCount),
			zap.Int("max_retries", w.retry.MaxRetries),
			zap.Duration("delay", delay),
		)

		if err := resilience.Sleep(ctx, delay); err != nil {
			// Shutting down mid-backoff: leave the message unacked so the
			// broker redelivers it to another worker.
			return
		}

		body, err := json.Marshal(task)
		if err != nil {
			log.Error("marshal retry task", zap.Error(err))
			return
		}
		// The retry is a new message on the same queue, not a broker
		// redelivery; broker-level redelivery counters reset with it.
		if err := w.broker.PublishToQueue(ctx, task.Channel.QueueName(), body, task.CorrelationID); err != nil {
			log.Error("retry republish failed, leaving original unacked", zap.Error(err))
			return
		}
		if err := d.Ack(); err != nil {
			log.Error("ack failed after retry republish", zap.Error(err))
		}
		w.onRetried(task.Channel)
		return
	}

	log.Error("retry budget exhausted, dead-lettering", zap.Error(sendErr))
	w.report(ctx, task, domain.StatusFailed, sendErr, log)
	w.deadLetter(ctx, d, log)
	w.onDeadLettered(task.Channel)
}

// report posts a terminal status to the gateway. Best-effort: failures are
// logged and the task continues to its ack.
func (w *Worker) report(ctx context.Context, task *domain.DeliveryTask, st domain.Status, sendErr error, log *zap.Logger) {
	update := &domain.StatusUpdate{
		NotificationID: task.NotificationID,
		Status:         st,
		RetryCount:     &task.RetryCount,
	}
	if st == domain.StatusDelivered {
		now := time.Now().UTC()
		update.Timestamp = &now
	}
	if sendErr != nil {
		msg := sendErr.Error()
		update.Error = &msg
	}
	if err := w.reporter.Report(ctx, w.channel, update); err != nil {
		log.Warn("status report failed", zap.Error(err))
	}
}

// deadLetter routes the original message body to the failed queue via the
// shared exchange, then acks. If the dead-letter publish fails the original
// stays unacked for redelivery rather than being lost.
func (w *Worker) deadLetter(ctx context.Context, d broker.Delivery, log *zap.Logger) {
	if err := w.broker.Publish(ctx, broker.RoutingKeyFailed, d.Body, d.CorrelationID); err != nil {
		if log == nil {
			log = w.logger
		}
		log.Error("dead-letter publish failed, leaving original unacked", zap.Error(err))
		return
	}
	if err := d.Ack(); err != nil {
		if log == nil {
			log = w.logger
		}
		log.Error("ack failed after dead-letter", zap.Error(err))
	}
}
