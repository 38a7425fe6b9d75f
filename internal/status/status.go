// Package status reports terminal delivery outcomes back to the gateway's
// persisted record. Workers call it with fire-and-forget semantics: a failed
// report is logged, never fatal to the task.
package status

import (
	"context"

	"github.com/notifyhub/dispatch/internal/domain"
)

// Reporter posts a terminal status for a notification.
type Reporter interface {
	Report(ctx context.Context, channel domain.Channel, update *domain.StatusUpdate) error
}
