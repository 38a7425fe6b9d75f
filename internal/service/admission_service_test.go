package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/cache"
	"github.com/notifyhub/dispatch/internal/directory"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/repository"
	"github.com/notifyhub/dispatch/internal/service"
)

type fixture struct {
	svc      *service.AdmissionService
	repo     *repository.MockNotificationRepository
	store    *cache.MockStore
	broker   *broker.MockBroker
	resolver *directory.MockResolver
}

func newFixture(opts service.Options) *fixture {
	f := &fixture{
		repo:     repository.NewMockNotificationRepository(),
		store:    cache.NewMockStore(),
		broker:   broker.NewMockBroker(),
		resolver: directory.NewMockResolver(),
	}
	f.resolver.AddUser("user-1", directory.RecipientInfo{
		Email:     "user1@example.com",
		PushToken: "token-1",
	})
	f.svc = service.NewAdmissionService(
		f.repo, f.store, f.broker, f.resolver,
		opts, service.Hooks{}, zap.NewNop(),
	)
	return f
}

func defaultOpts() service.Options {
	return service.Options{
		RateLimit:       100,
		RateLimitWindow: time.Minute,
		IdempotencyTTL:  time.Hour,
	}
}

func validReq() *domain.SubmitRequest {
	return &domain.SubmitRequest{
		RequestID:    "req-1",
		UserID:       "user-1",
		Channel:      domain.ChannelEmail,
		TemplateCode: "welcome",
		Variables:    map[string]any{"name": "Ada"},
		Priority:     domain.PriorityNormal,
	}
}

func TestSubmit_PersistsAndPublishes(t *testing.T) {
	f := newFixture(defaultOpts())
	ctx := context.Background()

	n, isDup, err := f.svc.Submit(ctx, validReq(), "corr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDup {
		t.Fatal("expected isDuplicate=false for a new request")
	}
	if n.ID == 0 {
		t.Fatal("expected a persisted ID")
	}
	if n.Status != domain.StatusPending {
		t.Fatalf("expected status=pending, got %s", n.Status)
	}
	if n.Recipient != "user1@example.com" {
		t.Fatalf("expected resolved recipient, got %q", n.Recipient)
	}
	if n.Priority != domain.PriorityNormal {
		t.Fatalf("expected default priority normal (0), got %d", n.Priority)
	}

	published := f.broker.PublishedMessages()
	if len(published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(published))
	}
	if published[0].RoutingKey != "email" {
		t.Fatalf("expected routing key email, got %s", published[0].RoutingKey)
	}
	if published[0].CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id propagated, got %s", published[0].CorrelationID)
	}

	var task domain.DeliveryTask
	if err := json.Unmarshal(published[0].Body, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.NotificationID != n.ID {
		t.Fatalf("task references notification %d, want %d", task.NotificationID, n.ID)
	}
	if task.RetryCount != 0 {
		t.Fatalf("fresh task must carry retry_count=0, got %d", task.RetryCount)
	}
}

func TestSubmit_GeneratesCorrelationID(t *testing.T) {
	f := newFixture(defaultOpts())

	n, _, err := f.svc.Submit(context.Background(), validReq(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.CorrelationID == "" {
		t.Fatal("expected a generated correlation id")
	}
}

func TestSubmit_RepeatedRequestIDReturnsSameRecord(t *testing.T) {
	f := newFixture(defaultOpts())
	ctx := context.Background()

	first, isDup, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil || isDup {
		t.Fatalf("first call: err=%v isDup=%v", err, isDup)
	}

	second, isDup, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil {
		t.Fatalf("second call: unexpected error: %v", err)
	}
	if !isDup {
		t.Fatal("expected isDuplicate=true for repeated request_id")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same record, got %d and %d", first.ID, second.ID)
	}
	if len(f.broker.PublishedMessages()) != 1 {
		t.Fatal("a duplicate submission must not publish a second task")
	}
}

func TestSubmit_DedupeSurvivesCacheEviction(t *testing.T) {
	f := newFixture(defaultOpts())
	ctx := context.Background()

	first, _, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate marker expiry; the durable record still catches the replay.
	f.store.Forget(cache.IdempotencyKey("req-1"))

	second, isDup, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isDup || second.ID != first.ID {
		t.Fatalf("expected durable dedupe to win: isDup=%v ids=%d,%d", isDup, first.ID, second.ID)
	}
}

func TestSubmit_RateLimitRejectsOverBudget(t *testing.T) {
	opts := defaultOpts()
	opts.RateLimit = 3
	f := newFixture(opts)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := validReq()
		req.RequestID = fmt.Sprintf("req-%d", i)
		if _, _, err := f.svc.Submit(ctx, req, ""); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	over := validReq()
	over.RequestID = "req-over"
	_, _, err := f.svc.Submit(ctx, over, "")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A different user has an independent budget.
	f.resolver.AddUser("user-2", directory.RecipientInfo{Email: "u2@example.com"})
	other := validReq()
	other.RequestID = "req-other"
	other.UserID = "user-2"
	if _, _, err := f.svc.Submit(ctx, other, ""); err != nil {
		t.Fatalf("other user must not be throttled: %v", err)
	}
}

func TestSubmit_RateLimitFailsOpenOnStoreError(t *testing.T) {
	f := newFixture(defaultOpts())
	f.store.FailAll(true)

	n, _, err := f.svc.Submit(context.Background(), validReq(), "")
	if err != nil {
		t.Fatalf("expected fail-open admission, got %v", err)
	}
	if n == nil || n.ID == 0 {
		t.Fatal("expected a persisted notification despite store outage")
	}
}

func TestSubmit_UnknownUser(t *testing.T) {
	f := newFixture(defaultOpts())

	req := validReq()
	req.UserID = "nobody"
	_, _, err := f.svc.Submit(context.Background(), req, "")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(f.broker.PublishedMessages()) != 0 {
		t.Fatal("nothing must be published for an unresolvable user")
	}
	if _, err := f.repo.GetByRequestID(context.Background(), req.RequestID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("nothing must be persisted for an unresolvable user")
	}
}

func TestSubmit_DirectoryUnavailable(t *testing.T) {
	f := newFixture(defaultOpts())
	f.resolver.SetUnavailable(true)
	ctx := context.Background()

	_, _, err := f.svc.Submit(ctx, validReq(), "")
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if len(f.broker.PublishedMessages()) != 0 {
		t.Fatal("nothing must be published while the directory is down")
	}
	if _, err := f.repo.GetByRequestID(ctx, "req-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("nothing must be persisted while the directory is down")
	}

	// Once the directory recovers, the same request goes through.
	f.resolver.SetUnavailable(false)
	if _, _, err := f.svc.Submit(ctx, validReq(), ""); err != nil {
		t.Fatalf("expected admission after recovery, got %v", err)
	}
}

func TestSubmit_MissingChannelRecipient(t *testing.T) {
	f := newFixture(defaultOpts())
	f.resolver.AddUser("email-only", directory.RecipientInfo{Email: "e@example.com"})

	req := validReq()
	req.UserID = "email-only"
	req.Channel = domain.ChannelPush
	_, _, err := f.svc.Submit(context.Background(), req, "")
	if !errors.Is(err, domain.ErrNoPushRecipient) {
		t.Fatalf("expected ErrNoPushRecipient, got %v", err)
	}
}

func TestSubmit_PublishFailureMarksRecordFailed(t *testing.T) {
	f := newFixture(defaultOpts())
	f.broker.FailPublish(true)
	ctx := context.Background()

	_, _, err := f.svc.Submit(ctx, validReq(), "")
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	n, err := f.repo.GetByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("record must still exist: %v", err)
	}
	if n.Status != domain.StatusFailed {
		t.Fatalf("expected record poisoned to failed, got %s", n.Status)
	}
	if n.ErrorMessage == nil {
		t.Fatal("expected an error message on the poisoned record")
	}
}

func TestSubmitBulk_IndependentFailures(t *testing.T) {
	f := newFixture(defaultOpts())
	f.resolver.AddUser("user-2", directory.RecipientInfo{Email: "u2@example.com"})

	req := &domain.BulkSubmitRequest{
		UserIDs:      []string{"user-1", "ghost", "user-2"},
		Channel:      domain.ChannelEmail,
		TemplateCode: "promo",
		Priority:     domain.PriorityNormal,
	}
	accepted, failures, err := f.svc.SubmitBulk(context.Background(), req, "corr-bulk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(accepted))
	}
	if len(failures) != 1 || failures[0].UserID != "ghost" {
		t.Fatalf("expected a single failure for ghost, got %+v", failures)
	}
	for _, n := range accepted {
		if n.CorrelationID != "corr-bulk" {
			t.Fatalf("expected shared correlation id, got %s", n.CorrelationID)
		}
	}
	if len(f.broker.PublishedMessages()) != 2 {
		t.Fatalf("expected 2 published tasks, got %d", len(f.broker.PublishedMessages()))
	}
}

func TestApplyStatus_Delivered(t *testing.T) {
	f := newFixture(defaultOpts())
	ctx := context.Background()

	n, _, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	retries := 1
	ts := time.Now().UTC().Add(-time.Second)
	updated, err := f.svc.ApplyStatus(ctx, &domain.StatusUpdate{
		NotificationID: n.ID,
		Status:         domain.StatusDelivered,
		Timestamp:      &ts,
		RetryCount:     &retries,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.StatusDelivered {
		t.Fatalf("expected delivered, got %s", updated.Status)
	}
	if updated.SentAt == nil || !updated.SentAt.Equal(ts) {
		t.Fatalf("expected sent_at=%v, got %v", ts, updated.SentAt)
	}
	if updated.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", updated.RetryCount)
	}
}

func TestApplyStatus_TerminalRecordRejectsSecondTransition(t *testing.T) {
	f := newFixture(defaultOpts())
	ctx := context.Background()

	n, _, err := f.svc.Submit(ctx, validReq(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.ApplyStatus(ctx, &domain.StatusUpdate{
		NotificationID: n.ID,
		Status:         domain.StatusDelivered,
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	msg := "late failure"
	_, err = f.svc.ApplyStatus(ctx, &domain.StatusUpdate{
		NotificationID: n.ID,
		Status:         domain.StatusFailed,
		Error:          &msg,
	})
	if !errors.Is(err, domain.ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus, got %v", err)
	}
}

func TestApplyStatus_UnknownNotification(t *testing.T) {
	f := newFixture(defaultOpts())

	_, err := f.svc.ApplyStatus(context.Background(), &domain.StatusUpdate{
		NotificationID: 999,
		Status:         domain.StatusFailed,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
