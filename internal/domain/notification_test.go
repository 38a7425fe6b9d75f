package domain_test

import (
	"testing"

	"github.com/notifyhub/dispatch/internal/domain"
)

func validSubmit() domain.SubmitRequest {
	return domain.SubmitRequest{
		RequestID:    "req-1",
		UserID:       "user-1",
		Channel:      domain.ChannelEmail,
		TemplateCode: "welcome",
		Variables:    map[string]any{"name": "Ada"},
		Priority:     domain.PriorityNormal,
	}
}

func TestSubmitRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.SubmitRequest)
		wantErr error
	}{
		{"valid", func(r *domain.SubmitRequest) {}, nil},
		{"missing request id", func(r *domain.SubmitRequest) { r.RequestID = "" }, domain.ErrMissingRequestID},
		{"missing user id", func(r *domain.SubmitRequest) { r.UserID = "" }, domain.ErrMissingUserID},
		{"invalid channel", func(r *domain.SubmitRequest) { r.Channel = "fax" }, domain.ErrInvalidChannel},
		{"missing template", func(r *domain.SubmitRequest) { r.TemplateCode = "" }, domain.ErrMissingTemplate},
		{"priority too high", func(r *domain.SubmitRequest) { r.Priority = 3 }, domain.ErrInvalidPriority},
		{"priority negative", func(r *domain.SubmitRequest) { r.Priority = -1 }, domain.ErrInvalidPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmit()
			tt.mutate(&req)
			if err := req.Validate(); err != tt.wantErr {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBulkSubmitRequest_Validate(t *testing.T) {
	valid := domain.BulkSubmitRequest{
		UserIDs:      []string{"u1", "u2"},
		Channel:      domain.ChannelPush,
		TemplateCode: "promo",
		Priority:     domain.PriorityHigh,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	empty := valid
	empty.UserIDs = nil
	if err := empty.Validate(); err != domain.ErrBulkEmpty {
		t.Fatalf("expected ErrBulkEmpty, got %v", err)
	}

	huge := valid
	huge.UserIDs = make([]string, 1001)
	if err := huge.Validate(); err != domain.ErrBulkTooLarge {
		t.Fatalf("expected ErrBulkTooLarge, got %v", err)
	}
}

func TestStatusUpdate_Validate(t *testing.T) {
	update := domain.StatusUpdate{NotificationID: 1, Status: domain.StatusDelivered}
	if err := update.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update.Status = domain.StatusPending
	if err := update.Validate(); err != domain.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus for non-terminal status, got %v", err)
	}

	update.Status = domain.StatusFailed
	update.NotificationID = 0
	if err := update.Validate(); err != domain.ErrInvalidNotificationID {
		t.Fatalf("expected ErrInvalidNotificationID, got %v", err)
	}
}

func TestChannel_QueueName(t *testing.T) {
	if got := domain.ChannelEmail.QueueName(); got != "email.queue" {
		t.Fatalf("expected email.queue, got %s", got)
	}
	if got := domain.ChannelPush.QueueName(); got != "push.queue" {
		t.Fatalf("expected push.queue, got %s", got)
	}
}

func TestStatus_Terminal(t *testing.T) {
	if domain.StatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	if !domain.StatusDelivered.Terminal() || !domain.StatusFailed.Terminal() {
		t.Fatal("delivered and failed must be terminal")
	}
}

func TestNewDeliveryTask_ResetsRetryCount(t *testing.T) {
	n := &domain.Notification{
		ID:         42,
		RequestID:  "req-42",
		Channel:    domain.ChannelEmail,
		RetryCount: 2,
	}
	task := domain.NewDeliveryTask(n)
	if task.NotificationID != 42 {
		t.Fatalf("expected NotificationID=42, got %d", task.NotificationID)
	}
	if task.RetryCount != 0 {
		t.Fatalf("expected fresh task RetryCount=0, got %d", task.RetryCount)
	}
}
