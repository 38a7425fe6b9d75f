package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/cache"
	"github.com/notifyhub/dispatch/internal/directory"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/repository"
)

// Options parameterise the admission controller's dedupe and rate policies.
type Options struct {
	RateLimit       int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
}

// Hooks carries the metric callbacks injected by main.
// Using a struct keeps the constructor signature clean; nil fields are no-ops.
type Hooks struct {
	OnAdmitted    func(channel domain.Channel)
	OnDuplicate   func(channel domain.Channel)
	OnRateLimited func()
}

// AdmissionService validates, deduplicates, rate-limits, persists, and
// enqueues inbound notification requests. All admission business rules live
// here; HTTP handlers and the broker depend on this service, not on each other.
type AdmissionService struct {
	repo     repository.NotificationRepository
	store    cache.Store
	broker   broker.Broker
	resolver directory.Resolver
	opts     Options
	hooks    Hooks
	logger   *zap.Logger
}

func NewAdmissionService(
	repo repository.NotificationRepository,
	store cache.Store,
	brk broker.Broker,
	resolver directory.Resolver,
	opts Options,
	hooks Hooks,
	logger *zap.Logger,
) *AdmissionService {
	if hooks.OnAdmitted == nil {
		hooks.OnAdmitted = func(domain.Channel) {}
	}
	if hooks.OnDuplicate == nil {
		hooks.OnDuplicate = func(domain.Channel) {}
	}
	if hooks.OnRateLimited == nil {
		hooks.OnRateLimited = func() {}
	}
	return &AdmissionService{
		repo: repo, store: store, broker: brk, resolver: resolver,
		opts: opts, hooks: hooks, logger: logger,
	}
}

// Submit admits one notification request end to end: idempotency check,
// durable dedupe, rate limit, recipient resolution, persist, publish.
// The returned bool is true when an existing record was returned for a
// repeated request_id.
//
// Side effects are strictly ordered: the record is persisted before the task
// is published, so a crash between the two leaves an orphaned pending record
// rather than a task with no backing record.
func (s *AdmissionService) Submit(ctx context.Context, req *domain.SubmitRequest, correlationID string) (*domain.Notification, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	log := s.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("correlation_id", correlationID),
	)

	// --- idempotency cache check ---
	// The marker is a cache: false negatives (expired/evicted) are fine
	// because the durable check below still catches the duplicate. Store
	// errors fail closed to that durable check, never skipping dedupe.
	marked, err := s.store.Exists(ctx, cache.IdempotencyKey(req.RequestID))
	if err != nil {
		log.Warn("idempotency cache lookup failed, falling back to durable check", zap.Error(err))
	}
	if marked {
		existing, err := s.repo.GetByRequestID(ctx, req.RequestID)
		if err == nil {
			s.hooks.OnDuplicate(existing.Channel)
			return existing, true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("dedupe lookup: %w", err)
		}
	}

	// --- durable dedupe fallback ---
	existing, err := s.repo.GetByRequestID(ctx, req.RequestID)
	if err == nil {
		s.rewriteMarker(ctx, req.RequestID, log)
		s.hooks.OnDuplicate(existing.Channel)
		return existing, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("dedupe lookup: %w", err)
	}

	// --- rate limit ---
	count, err := s.store.Incr(ctx, cache.RateLimitKey(req.UserID), s.opts.RateLimitWindow)
	if err != nil {
		// Fail open: delivery availability beats strict enforcement.
		log.Warn("rate limit store error, allowing request", zap.Error(err))
	} else if count > int64(s.opts.RateLimit) {
		s.hooks.OnRateLimited()
		return nil, false, domain.ErrRateLimited
	}

	// --- recipient resolution ---
	recipient, err := s.resolver.Resolve(ctx, req.UserID, req.Channel)
	if err != nil {
		return nil, false, err
	}

	// --- persist (pending) ---
	n := &domain.Notification{
		RequestID:     req.RequestID,
		CorrelationID: correlationID,
		UserID:        req.UserID,
		Channel:       req.Channel,
		TemplateCode:  req.TemplateCode,
		Recipient:     recipient,
		Variables:     req.Variables,
		Status:        domain.StatusPending,
		RetryCount:    0,
		Priority:      req.Priority,
		Metadata:      req.Metadata,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			// Lost a concurrent race on the unique constraint; the winner's
			// record is the canonical one.
			if winner, getErr := s.repo.GetByRequestID(ctx, req.RequestID); getErr == nil {
				s.rewriteMarker(ctx, req.RequestID, log)
				s.hooks.OnDuplicate(winner.Channel)
				return winner, true, nil
			}
		}
		return nil, false, fmt.Errorf("persist notification: %w", err)
	}

	// --- publish ---
	body, err := json.Marshal(domain.NewDeliveryTask(n))
	if err != nil {
		return nil, false, fmt.Errorf("marshal delivery task: %w", err)
	}
	if err := s.broker.Publish(ctx, string(req.Channel), body, correlationID); err != nil {
		// Never leave a pending record with no task in flight.
		log.Error("publish failed, poisoning record", zap.Error(err))
		msg := err.Error()
		if applyErr := s.repo.ApplyTerminal(ctx, n.ID, domain.StatusFailed, &msg, nil); applyErr != nil {
			log.Error("failed to mark notification failed after publish error", zap.Error(applyErr))
		}
		return nil, false, fmt.Errorf("%w: queue publish: %v", domain.ErrServiceUnavailable, err)
	}

	s.rewriteMarker(ctx, req.RequestID, log)
	s.hooks.OnAdmitted(n.Channel)
	log.Info("notification admitted",
		zap.Int64("id", n.ID),
		zap.String("channel", string(n.Channel)),
	)
	return n, false, nil
}

// SubmitBulk fans one template out to many users as independent submissions.
// One recipient's failure never aborts the others.
func (s *AdmissionService) SubmitBulk(ctx context.Context, req *domain.BulkSubmitRequest, correlationID string) ([]*domain.Notification, []domain.BulkFailure, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var (
		notifications []*domain.Notification
		failures      []domain.BulkFailure
	)
	for _, userID := range req.UserIDs {
		single := &domain.SubmitRequest{
			RequestID:    uuid.New().String(),
			UserID:       userID,
			Channel:      req.Channel,
			TemplateCode: req.TemplateCode,
			Variables:    req.Variables,
			Priority:     req.Priority,
		}
		n, _, err := s.Submit(ctx, single, correlationID)
		if err != nil {
			failures = append(failures, domain.BulkFailure{UserID: userID, Error: err.Error()})
			continue
		}
		notifications = append(notifications, n)
	}

	s.logger.Info("bulk submission completed",
		zap.String("correlation_id", correlationID),
		zap.Int("succeeded", len(notifications)),
		zap.Int("failed", len(failures)),
	)
	return notifications, failures, nil
}

// ApplyStatus records a worker-reported terminal outcome on the persisted
// record. Delivered outcomes stamp sent_at.
func (s *AdmissionService) ApplyStatus(ctx context.Context, update *domain.StatusUpdate) (*domain.Notification, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var sentAt *time.Time
	if update.Status == domain.StatusDelivered {
		ts := time.Now().UTC()
		if update.Timestamp != nil {
			ts = *update.Timestamp
		}
		sentAt = &ts
	}

	if update.RetryCount != nil {
		if err := s.repo.SetRetryCount(ctx, update.NotificationID, *update.RetryCount); err != nil {
			return nil, err
		}
	}
	if err := s.repo.ApplyTerminal(ctx, update.NotificationID, update.Status, update.Error, sentAt); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, update.NotificationID)
}

func (s *AdmissionService) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AdmissionService) GetByRequestID(ctx context.Context, requestID string) (*domain.Notification, error) {
	return s.repo.GetByRequestID(ctx, requestID)
}

func (s *AdmissionService) ListByUser(ctx context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	return s.repo.ListByUser(ctx, f)
}

// rewriteMarker refreshes the idempotency marker, healing a cold or expired
// cache. Marker write failures are logged only: the durable unique constraint
// still guarantees correctness.
func (s *AdmissionService) rewriteMarker(ctx context.Context, requestID string, log *zap.Logger) {
	if err := s.store.SetFlag(ctx, cache.IdempotencyKey(requestID), s.opts.IdempotencyTTL); err != nil {
		log.Warn("failed to write idempotency marker", zap.Error(err))
	}
}
