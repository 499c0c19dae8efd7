package entities

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRelayUnreachable means the local relay process refused or never
// accepted the connection.
var ErrRelayUnreachable = errors.New("relay process is unreachable, start it with `tasksync relay`")

// HTTPStatusError is returned when the relay answered with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("relay returned HTTP %d", e.StatusCode)
}

// UpstreamError is returned when the webhook itself reported a failure in
// its JSON reply.
type UpstreamError struct {
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("webhook rejected message: %s (errcode %d)", msg, e.Code)
}

// TextMessage is the webhook message envelope.
type TextMessage struct {
	MsgType string      `json:"msgtype"`
	Text    TextContent `json:"text"`
}

// TextContent carries the human-readable body of a TextMessage.
type TextContent struct {
	Content string `json:"content"`
}

// NewTextMessage wraps content in a text envelope.
func NewTextMessage(content string) TextMessage {
	return TextMessage{MsgType: "text", Text: TextContent{Content: content}}
}

// ProxyRequest is the body accepted by the relay at POST /proxy.
type ProxyRequest struct {
	WebhookURL string          `json:"webhookUrl" validate:"required"`
	Message    json.RawMessage `json:"message"`
}

// UpstreamReply is the part of the webhook reply the client inspects. The
// relay also uses it for its own error bodies.
type UpstreamReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// BatchResult counts outcomes of a batch send.
type BatchResult struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Summary renders a short human-readable outcome line.
func (r BatchResult) Summary() string {
	if r.FailureCount == 0 {
		return fmt.Sprintf("pushed %d tasks", r.SuccessCount)
	}
	return fmt.Sprintf("push finished: %d succeeded, %d failed", r.SuccessCount, r.FailureCount)
}
