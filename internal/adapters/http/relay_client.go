package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

// maxReplyBytes bounds how much of a relay reply is read.
const maxReplyBytes = 1 << 20

// RelayClient posts notifications to the relay process over HTTP
type RelayClient struct {
	endpoint string
	client   *http.Client
}

// NewRelayClient creates a client for the relay endpoint (e.g.
// http://localhost:3001/proxy)
func NewRelayClient(endpoint string, timeout time.Duration) ports.RelayClient {
	return NewRelayClientWithHTTP(endpoint, &http.Client{Timeout: timeout})
}

// NewRelayClientWithHTTP creates a client using the given http.Client
func NewRelayClientWithHTTP(endpoint string, client *http.Client) ports.RelayClient {
	return &RelayClient{endpoint: endpoint, client: client}
}

type relayReply struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *RelayClient) Post(ctx context.Context, webhookURL string, message entities.TextMessage) error {
	if webhookURL == "" {
		return entities.ErrWebhookNotConfigured
	}

	rawMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	body, err := json.Marshal(entities.ProxyRequest{WebhookURL: webhookURL, Message: rawMessage})
	if err != nil {
		return fmt.Errorf("encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		if isUnreachable(err) {
			return fmt.Errorf("%w: %v", entities.ErrRelayUnreachable, err)
		}
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read relay reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &entities.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var reply relayReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return &entities.UpstreamError{Code: -1, Message: fmt.Sprintf("unreadable webhook reply: %v", err)}
	}
	if reply.ErrCode == nil {
		return &entities.UpstreamError{Code: -1, Message: "webhook reply has no errcode"}
	}
	if *reply.ErrCode != 0 {
		return &entities.UpstreamError{Code: *reply.ErrCode, Message: reply.ErrMsg}
	}
	return nil
}

// isUnreachable reports whether err means the relay never accepted the
// connection, as opposed to failing mid-request.
func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
