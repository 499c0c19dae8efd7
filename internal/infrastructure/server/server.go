package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	httpHandlers "github.com/taskmaster/tasksync/internal/adapters/http"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
)

// Server is the relay HTTP process, plus an optional metrics listener
type Server struct {
	echo     *echo.Echo
	metrics  *echo.Echo
	config   *config.Config
	logger   *logger.Logger
	registry *prometheus.Registry
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates the relay server. upstream is the client used to reach the
// webhook; nil selects a client with the configured upstream timeout.
func New(cfg *config.Config, upstream *http.Client, appLogger *logger.Logger) (*Server, error) {
	if upstream == nil {
		upstream = &http.Client{Timeout: cfg.Relay.UpstreamTimeout}
	}

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	registry := prometheus.NewRegistry()

	server := &Server{
		echo:     e,
		config:   cfg,
		logger:   appLogger.WithComponent("relay"),
		registry: registry,
	}

	server.setupMiddleware()

	proxyHandler := httpHandlers.NewProxyHandler(upstream, appLogger, registry)
	proxyHandler.RegisterRoutes(e)

	if cfg.Metrics.Enabled {
		server.setupMetrics()
	}

	return server, nil
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// CORS headers go on every response, including 404s and preflights, so
	// they run before routing.
	s.echo.Pre(corsHeaders())

	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: newRequestID,
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			reqLogger := s.logger.WithRequestID(values.RequestID)
			if values.Error != nil {
				reqLogger.WithError(values.Error).Warnw("HTTP request failed",
					"method", values.Method,
					"uri", values.URI,
					"status", values.Status,
				)
				return nil
			}
			reqLogger.LogHTTPRequest(values.Method, values.URI, values.RemoteIP, values.Status,
				float64(values.Latency.Nanoseconds())/1000000)
			return nil
		},
	}))

	if s.config.Relay.RateLimitRequests > 0 && s.config.Relay.RateLimitWindow > 0 {
		perSecond := float64(s.config.Relay.RateLimitRequests) / s.config.Relay.RateLimitWindow.Seconds()
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(perSecond),
					Burst:     s.config.Relay.RateLimitRequests,
					ExpiresIn: s.config.Relay.RateLimitWindow,
				},
			),
			IdentifierExtractor: func(ctx echo.Context) (string, error) {
				return ctx.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return c.JSON(http.StatusForbidden, entities.UpstreamReply{ErrCode: -1, ErrMsg: "rate limit exceeded"})
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, entities.UpstreamReply{ErrCode: -1, ErrMsg: "rate limit exceeded"})
			},
		}))
	}
}

// setupMetrics counts relay requests and serves them, with a health check,
// on the separate metrics port so the relay surface stays unchanged.
func (s *Server) setupMetrics() {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relay requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Relay request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	s.registry.MustRegister(requestsTotal, requestDuration)
	s.echo.Use(metricsMiddleware(requestsTotal, requestDuration))

	m := echo.New()
	m.HideBanner = true
	m.HidePort = true
	m.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	m.GET("/health", s.healthCheck)
	s.metrics = m
}

// Handler exposes the relay routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// MetricsHandler exposes the metrics routes; nil when metrics are disabled.
func (s *Server) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.config.App.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the relay and, when enabled, the metrics listener. It
// blocks until the relay stops.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.config.Relay.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Relay.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Relay.IdleTimeout

	if s.metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", s.config.Relay.Host, s.config.Metrics.Port)
		go func() {
			s.logger.Infow("Starting metrics server", "address", metricsAddr)
			if err := s.metrics.Start(metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	addr := s.config.Relay.GetAddr()
	s.logger.Infow("Starting relay", "address", addr, "endpoint", "http://"+addr+"/proxy")
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down relay")
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
	return s.echo.Shutdown(ctx)
}

// customErrorHandler renders every error in the webhook's {errcode, errmsg}
// shape. Unknown routes and methods are both reported as 404.
func customErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		}
		if code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
			code = http.StatusNotFound
			msg = "Not Found"
		}

		if code == http.StatusInternalServerError {
			log.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if !c.Response().Committed {
			if err := c.JSON(code, entities.UpstreamReply{ErrCode: -1, ErrMsg: msg}); err != nil {
				log.Errorw("Error sending response", "error", err)
			}
		}
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
