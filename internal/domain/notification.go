package domain

import "time"

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// QueueName returns the durable queue bound to this channel's routing key.
func (c Channel) QueueName() string {
	return string(c) + ".queue"
}

// Priority is advisory metadata carried through the pipeline.
// It does not reorder the queue.
type Priority int

const (
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityUrgent Priority = 2
)

func (p Priority) IsValid() bool {
	return p >= PriorityNormal && p <= PriorityUrgent
}

// Status tracks the lifecycle of a notification.
// The only legal transitions are pending→delivered and pending→failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Notification is the core domain entity, persisted by the gateway at intake
// and mutated only when a worker reports a terminal status (or immediately on
// publish failure).
type Notification struct {
	ID            int64          `json:"id"`
	RequestID     string         `json:"request_id"`
	CorrelationID string         `json:"correlation_id"`
	UserID        string         `json:"user_id"`
	Channel       Channel        `json:"channel"`
	TemplateCode  string         `json:"template_code"`
	Recipient     string         `json:"recipient"`
	Variables     map[string]any `json:"variables"`
	Status        Status         `json:"status"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	RetryCount    int            `json:"retry_count"`
	Priority      Priority       `json:"priority"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}

// SubmitRequest is the inbound payload for a single notification.
type SubmitRequest struct {
	RequestID    string         `json:"request_id"`
	UserID       string         `json:"user_id"`
	Channel      Channel        `json:"channel"`
	TemplateCode string         `json:"template_code"`
	Variables    map[string]any `json:"variables"`
	Priority     Priority       `json:"priority"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (r *SubmitRequest) Validate() error {
	if r.RequestID == "" {
		return ErrMissingRequestID
	}
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if !r.Channel.IsValid() {
		return ErrInvalidChannel
	}
	if r.TemplateCode == "" {
		return ErrMissingTemplate
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// BulkSubmitRequest fans one template out to many recipients.
type BulkSubmitRequest struct {
	UserIDs      []string       `json:"user_ids"`
	Channel      Channel        `json:"channel"`
	TemplateCode string         `json:"template_code"`
	Variables    map[string]any `json:"variables"`
	Priority     Priority       `json:"priority"`
}

func (r *BulkSubmitRequest) Validate() error {
	if len(r.UserIDs) == 0 {
		return ErrBulkEmpty
	}
	if len(r.UserIDs) > 1000 {
		return ErrBulkTooLarge
	}
	if !r.Channel.IsValid() {
		return ErrInvalidChannel
	}
	if r.TemplateCode == "" {
		return ErrMissingTemplate
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// BulkFailure records one recipient's rejection during a bulk fan-out.
type BulkFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// StatusUpdate is posted by workers to report a terminal delivery outcome.
// RetryCount, when present, records how many retries the task consumed.
type StatusUpdate struct {
	NotificationID int64      `json:"notification_id"`
	Status         Status     `json:"status"`
	Error          *string    `json:"error,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	RetryCount     *int       `json:"retry_count,omitempty"`
}

func (u *StatusUpdate) Validate() error {
	if u.NotificationID <= 0 {
		return ErrInvalidNotificationID
	}
	if !u.Status.Terminal() {
		return ErrInvalidStatus
	}
	return nil
}

// ListFilter holds query parameters for a user's notification history.
type ListFilter struct {
	UserID  string
	Channel *Channel
	Status  *Status
	Skip    int
	Limit   int
}
