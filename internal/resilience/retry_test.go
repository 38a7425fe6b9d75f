package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/dispatch/internal/resilience"
)

func TestBackoff(t *testing.T) {
	base := 2 * time.Second
	max := 60 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{5, 60 * time.Second}, // 64s capped
		{40, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := resilience.Backoff(base, max, tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestRetrier_SucceedsAfterRetries(t *testing.T) {
	r := &resilience.Retrier{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetrier_ExhaustsBudget(t *testing.T) {
	r := &resilience.Retrier{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	wantErr := errors.New("always fails")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected final error, got %v", err)
	}
	if calls != 3 { // initial attempt plus two retries
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetrier_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	r := &resilience.Retrier{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Retryable:  func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	r := &resilience.Retrier{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := resilience.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
