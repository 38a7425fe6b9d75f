package repository

import (
	"context"
	"time"

	"github.com/notifyhub/dispatch/internal/domain"
)

// NotificationRepository is the durable record store for notifications.
// The unique constraint on request_id is the source of truth for "at most one
// record per request_id"; the idempotency cache is only an optimization.
type NotificationRepository interface {
	// Create inserts a new record and fills in the assigned ID and
	// timestamps. Returns domain.ErrDuplicateRequest when a record with
	// the same request_id already exists.
	Create(ctx context.Context, n *domain.Notification) error

	GetByID(ctx context.Context, id int64) (*domain.Notification, error)
	GetByRequestID(ctx context.Context, requestID string) (*domain.Notification, error)

	// ListByUser returns a page of a user's notifications plus the total count.
	ListByUser(ctx context.Context, f domain.ListFilter) ([]*domain.Notification, int, error)

	// ApplyTerminal transitions a pending record to delivered or failed.
	// sentAt is recorded for delivered; errMsg for failed. Returns
	// domain.ErrNotFound for a missing record and domain.ErrTerminalStatus
	// when the record already left pending.
	ApplyTerminal(ctx context.Context, id int64, status domain.Status, errMsg *string, sentAt *time.Time) error

	// SetRetryCount records the worker-observed retry count for a record.
	SetRetryCount(ctx context.Context, id int64, retryCount int) error
}
