package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound              = errors.New("not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicateRequest      = errors.New("duplicate request_id")
	ErrMissingRequestID      = errors.New("request_id must not be empty")
	ErrMissingUserID         = errors.New("user_id must not be empty")
	ErrMissingTemplate       = errors.New("template_code must not be empty")
	ErrInvalidChannel        = errors.New("invalid channel: must be email or push")
	ErrInvalidPriority       = errors.New("invalid priority: must be 0 (normal), 1 (high), or 2 (urgent)")
	ErrInvalidStatus         = errors.New("invalid status: must be delivered or failed")
	ErrInvalidNotificationID = errors.New("invalid notification_id")
	ErrNoEmailRecipient      = errors.New("user has no email address for email notifications")
	ErrNoPushRecipient       = errors.New("user has no registered device token for push notifications")
	ErrBulkEmpty             = errors.New("bulk request must contain at least one user")
	ErrBulkTooLarge          = errors.New("bulk request exceeds maximum of 1000 users")
	ErrRateLimited           = errors.New("rate limit exceeded, try again later")
	ErrTerminalStatus        = errors.New("notification already has a terminal status")
	ErrServiceUnavailable    = errors.New("downstream service unavailable")
)
