package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/api"
	"github.com/notifyhub/dispatch/internal/broker"
	"github.com/notifyhub/dispatch/internal/cache"
	"github.com/notifyhub/dispatch/internal/directory"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/repository"
	"github.com/notifyhub/dispatch/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Meta    *struct {
		Total      int  `json:"total"`
		Limit      int  `json:"limit"`
		Page       int  `json:"page"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
	} `json:"meta"`
}

func newTestServer(t *testing.T) (*httptest.Server, *directory.MockResolver) {
	t.Helper()
	resolver := directory.NewMockResolver()
	resolver.AddUser("user-1", directory.RecipientInfo{
		Email:     "user1@example.com",
		PushToken: "token-1",
	})

	svc := service.NewAdmissionService(
		repository.NewMockNotificationRepository(),
		cache.NewMockStore(),
		broker.NewMockBroker(),
		resolver,
		service.Options{RateLimit: 100, RateLimitWindow: time.Minute, IdempotencyTTL: time.Hour},
		service.Hooks{},
		zap.NewNop(),
	)

	srv := httptest.NewServer(api.NewRouter(svc, prometheus.NewRegistry(), zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, resolver
}

func submitBody(requestID string) []byte {
	body, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"request_id":    requestID,
		"user_id":       "user-1",
		"channel":       "email",
		"template_code": "welcome",
		"variables":     map[string]any{"name": "Ada"},
		"priority":      0,
	})
	return body
}

func postJSON(t *testing.T, url string, body []byte) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

func getJSON(t *testing.T, url string) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

func TestSubmitEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := postJSON(t, srv.URL+"/api/v1/notifications", submitBody("req-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Fatal("expected a correlation id response header")
	}

	var n domain.Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if n.ID == 0 || n.Status != domain.StatusPending {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// Idempotent replay answers 200 with the same record.
	resp, env = postJSON(t, srv.URL+"/api/v1/notifications", submitBody("req-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for replay, got %d", resp.StatusCode)
	}
	var replay domain.Notification
	if err := json.Unmarshal(env.Data, &replay); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if replay.ID != n.ID {
		t.Fatalf("expected the same record, got %d and %d", n.ID, replay.ID)
	}
}

func TestSubmitEndpoint_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	bad, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"request_id":    "req-bad",
		"user_id":       "user-1",
		"channel":       "fax",
		"template_code": "welcome",
	})
	resp, env := postJSON(t, srv.URL+"/api/v1/notifications", bad)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if env.Success || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestSubmitEndpoint_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"request_id":    "req-x",
		"user_id":       "ghost",
		"channel":       "email",
		"template_code": "welcome",
	})
	resp, _ := postJSON(t, srv.URL+"/api/v1/notifications", body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmitEndpoint_DirectoryUnavailable(t *testing.T) {
	srv, resolver := newTestServer(t)
	resolver.SetUnavailable(true)

	resp, env := postJSON(t, srv.URL+"/api/v1/notifications", submitBody("req-down"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if env.Success {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestGetEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	_, env := postJSON(t, srv.URL+"/api/v1/notifications", submitBody("req-get"))
	var n domain.Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	resp, _ := getJSON(t, fmt.Sprintf("%s/api/v1/notifications/%d", srv.URL, n.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get by id: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = getJSON(t, srv.URL+"/api/v1/notifications/request/req-get")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get by request id: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = getJSON(t, srv.URL+"/api/v1/notifications/999")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing id: expected 404, got %d", resp.StatusCode)
	}
}

func TestListEndpoint_Pagination(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		postJSON(t, srv.URL+"/api/v1/notifications", submitBody(fmt.Sprintf("req-%d", i)))
	}

	resp, env := getJSON(t, srv.URL+"/api/v1/notifications/user/user-1?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.Meta == nil {
		t.Fatal("expected pagination meta")
	}
	if env.Meta.Total != 3 || env.Meta.Limit != 2 || env.Meta.TotalPages != 2 {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
	if !env.Meta.HasNext {
		t.Fatal("expected has_next=true on the first page")
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	_, env := postJSON(t, srv.URL+"/api/v1/notifications", submitBody("req-status"))
	var n domain.Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	update, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"notification_id": n.ID,
		"status":          "delivered",
		"retry_count":     1,
	})
	resp, env := postJSON(t, srv.URL+"/api/v1/notifications/email/status", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var updated domain.Notification
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if updated.Status != domain.StatusDelivered || updated.SentAt == nil {
		t.Fatalf("unexpected record after update: %+v", updated)
	}

	// A second terminal transition conflicts.
	resp, _ = postJSON(t, srv.URL+"/api/v1/notifications/email/status", update)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// Unknown channel segment is rejected before the body is read.
	resp, _ = postJSON(t, srv.URL+"/api/v1/notifications/fax/status", update)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
