package sender_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notifyhub/dispatch/internal/sender"
)

func pushMessage() *sender.Message {
	return &sender.Message{
		Recipient: "device-token-1",
		Subject:   "Hi",
		Body:      "Hello there",
		Data:      map[string]string{"link": "https://example.com"},
		ImageURL:  "https://example.com/a.png",
	}
}

func TestPushSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := sender.NewPushSender(srv.URL, "test-key", 5*time.Second)
	if err := s.Send(context.Background(), pushMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, ok := got["message"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing message object: %v", got)
	}
	if msg["token"] != "device-token-1" {
		t.Fatalf("unexpected token: %v", msg["token"])
	}
}

func TestPushSender_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unregistered by status", http.StatusNotFound, "gone", sender.ErrUnregisteredToken},
		{"unregistered by detail", http.StatusBadRequest, `{"error":"UNREGISTERED"}`, sender.ErrUnregisteredToken},
		{"sender mismatch", http.StatusForbidden, "wrong project", sender.ErrSenderMismatch},
		{"bad credentials", http.StatusUnauthorized, "denied", sender.ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			s := sender.NewPushSender(srv.URL, "k", 5*time.Second)
			err := s.Send(context.Background(), pushMessage())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPushSender_ServerErrorIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := sender.NewPushSender(srv.URL, "k", 5*time.Second)
	err := s.Send(context.Background(), pushMessage())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if sender.IsFatal(err) {
		t.Fatalf("500 must be retryable, got fatal error: %v", err)
	}
}

func TestIsFatal(t *testing.T) {
	if !sender.IsFatal(sender.ErrAuthentication) {
		t.Fatal("authentication failures are permanent")
	}
	if !sender.IsFatal(sender.ErrUnregisteredToken) {
		t.Fatal("unregistered tokens are permanent")
	}
	if sender.IsFatal(sender.ErrRecipientRefused) {
		t.Fatal("a refused recipient may be transient on the provider side")
	}
	if sender.IsFatal(errors.New("connection reset")) {
		t.Fatal("transport errors are transient")
	}
}
