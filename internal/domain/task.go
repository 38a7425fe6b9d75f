package domain

// DeliveryTask is the message placed on a channel queue: a denormalized
// snapshot of a Notification sufficient for a worker to act without
// re-querying the gateway's store.
//
// The broker owns the task between publish and ack. A retry is a new message
// with an incremented RetryCount, not a broker redelivery.
type DeliveryTask struct {
	NotificationID int64          `json:"notification_id"`
	RequestID      string         `json:"request_id"`
	CorrelationID  string         `json:"correlation_id"`
	UserID         string         `json:"user_id"`
	Channel        Channel        `json:"channel"`
	TemplateCode   string         `json:"template_code"`
	Recipient      string         `json:"recipient"`
	Variables      map[string]any `json:"variables"`
	Priority       Priority       `json:"priority"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RetryCount     int            `json:"retry_count"`
}

// NewDeliveryTask snapshots a freshly persisted notification.
func NewDeliveryTask(n *Notification) *DeliveryTask {
	return &DeliveryTask{
		NotificationID: n.ID,
		RequestID:      n.RequestID,
		CorrelationID:  n.CorrelationID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		TemplateCode:   n.TemplateCode,
		Recipient:      n.Recipient,
		Variables:      n.Variables,
		Priority:       n.Priority,
		Metadata:       n.Metadata,
		RetryCount:     0,
	}
}
