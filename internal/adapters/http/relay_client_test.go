package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

func relayReplying(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestRelayClient_Post(t *testing.T) {
	msg := entities.NewTextMessage("hello")

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"errcode":0,"errmsg":"ok"}`,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("Expected success, got %v", err)
				}
			},
		},
		{
			name:   "upstream rejected",
			status: http.StatusOK,
			body:   `{"errcode":93000,"errmsg":"invalid webhook url"}`,
			check: func(t *testing.T, err error) {
				var upErr *entities.UpstreamError
				if !errors.As(err, &upErr) || upErr.Code != 93000 || upErr.Message != "invalid webhook url" {
					t.Errorf("Expected UpstreamError 93000, got %v", err)
				}
			},
		},
		{
			name:   "missing errcode",
			status: http.StatusOK,
			body:   `{"status":"ok"}`,
			check: func(t *testing.T, err error) {
				var upErr *entities.UpstreamError
				if !errors.As(err, &upErr) {
					t.Errorf("Expected UpstreamError, got %v", err)
				}
			},
		},
		{
			name:   "non-2xx",
			status: http.StatusInternalServerError,
			body:   `{"errcode":-1,"errmsg":"relay request failed: boom"}`,
			check: func(t *testing.T, err error) {
				var statusErr *entities.HTTPStatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("Expected HTTPStatusError 500, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := relayReplying(tt.status, tt.body)
			defer relay.Close()

			client := NewRelayClient(relay.URL+"/proxy", 5*time.Second)
			tt.check(t, client.Post(context.Background(), "https://hook.example.com", msg))
		})
	}
}

func TestRelayClient_Unreachable(t *testing.T) {
	relay := relayReplying(http.StatusOK, `{"errcode":0}`)
	endpoint := relay.URL + "/proxy"
	relay.Close()

	err := NewRelayClient(endpoint, 5*time.Second).Post(context.Background(), "https://hook.example.com", entities.NewTextMessage("x"))
	if !errors.Is(err, entities.ErrRelayUnreachable) {
		t.Fatalf("Expected ErrRelayUnreachable, got %v", err)
	}
}

func TestRelayClient_RequiresWebhook(t *testing.T) {
	err := NewRelayClient("http://127.0.0.1:1/proxy", time.Second).Post(context.Background(), "", entities.NewTextMessage("x"))
	if !errors.Is(err, entities.ErrWebhookNotConfigured) {
		t.Fatalf("Expected ErrWebhookNotConfigured, got %v", err)
	}
}
