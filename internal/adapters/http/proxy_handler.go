package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
)

// maxRequestBytes bounds the accepted relay request body.
const maxRequestBytes = 1 << 20

// ProxyHandler forwards notification messages to the webhook
type ProxyHandler struct {
	client   *http.Client
	logger   *logger.Logger
	upstream *prometheus.HistogramVec
}

// NewProxyHandler creates a proxy handler. Upstream latency is registered
// with reg when it is not nil.
func NewProxyHandler(client *http.Client, log *logger.Logger, reg prometheus.Registerer) *ProxyHandler {
	upstream := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_upstream_duration_seconds",
			Help:    "Latency of requests forwarded to the webhook",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	if reg != nil {
		reg.MustRegister(upstream)
	}

	return &ProxyHandler{
		client:   client,
		logger:   log.WithComponent("proxy"),
		upstream: upstream,
	}
}

// RegisterRoutes mounts the proxy endpoint
func (h *ProxyHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/proxy", h.Proxy)
}

// Proxy handles POST /proxy
func (h *ProxyHandler) Proxy(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBytes))
	if err != nil {
		return relayError(c, http.StatusBadRequest, fmt.Sprintf("request parse failed: %v", err))
	}

	var req entities.ProxyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return relayError(c, http.StatusBadRequest, fmt.Sprintf("request parse failed: %v", err))
	}
	if err := c.Validate(&req); err != nil || isEmptyMessage(req.Message) {
		return relayError(c, http.StatusBadRequest, "missing required field: webhookUrl or message")
	}

	target, err := upstreamURL(req.WebhookURL)
	if err != nil {
		return relayError(c, http.StatusBadRequest, fmt.Sprintf("request parse failed: %v", err))
	}

	upstreamReq, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, target, bytes.NewReader(req.Message))
	if err != nil {
		return relayError(c, http.StatusBadRequest, fmt.Sprintf("request parse failed: %v", err))
	}
	upstreamReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	h.logger.Infow("Forwarding message", "host", upstreamReq.URL.Host)

	start := time.Now()
	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		h.upstream.WithLabelValues("error").Observe(time.Since(start).Seconds())
		h.logger.WithError(err).Error("Upstream request failed")
		return relayError(c, http.StatusInternalServerError, fmt.Sprintf("relay request failed: %v", err))
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	h.upstream.WithLabelValues(fmt.Sprintf("%dxx", resp.StatusCode/100)).Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read upstream reply")
		return relayError(c, http.StatusInternalServerError, fmt.Sprintf("relay request failed: %v", err))
	}

	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, reply)
}

// upstreamURL rewrites the webhook URL to https, keeping host, port, path
// and query.
func upstreamURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("webhook url %q has no host", raw)
	}
	u.Scheme = "https"
	u.User = nil
	u.Fragment = ""
	return u.String(), nil
}

func isEmptyMessage(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)
	switch string(trimmed) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func relayError(c echo.Context, status int, msg string) error {
	return c.JSON(status, entities.UpstreamReply{ErrCode: -1, ErrMsg: msg})
}
