package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PushSender delivers messages through an FCM-compatible HTTP endpoint.
type PushSender struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewPushSender(endpoint, apiKey string, timeout time.Duration) *PushSender {
	return &PushSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type pushPayload struct {
	Message pushMessage `json:"message"`
}

type pushMessage struct {
	Token        string            `json:"token"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

func (s *PushSender) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(pushPayload{
		Message: pushMessage{
			Token: msg.Recipient,
			Notification: pushNotification{
				Title: msg.Subject,
				Body:  msg.Body,
				Image: msg.ImageURL,
			},
			Data: msg.Data,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyPushError(resp.StatusCode, string(detail))
}

// classifyPushError maps the provider's error responses onto the shared
// failure taxonomy so policies can distinguish permanent token problems
// from transient transport errors.
func classifyPushError(status int, detail string) error {
	switch {
	case status == http.StatusNotFound || strings.Contains(detail, "UNREGISTERED"):
		return fmt.Errorf("%w: %s", ErrUnregisteredToken, detail)
	case status == http.StatusForbidden || strings.Contains(detail, "SENDER_ID_MISMATCH"):
		return fmt.Errorf("%w: %s", ErrSenderMismatch, detail)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthentication, detail)
	default:
		return fmt.Errorf("push provider status %d: %s", status, detail)
	}
}

var _ Sender = (*PushSender)(nil)
