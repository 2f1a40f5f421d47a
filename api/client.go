// Package api is the typed REST client for the diary backend. Requests pass
// through a per-host rate limiter, a circuit breaker and any middlewares (the
// auth gateway in practice) before reaching the network.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"diarysync/internal/metrics"
)

// DefaultPageSize is used when a list call passes size <= 0.
const DefaultPageSize = 20

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-Id"

// Config holds API client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.example.com/api/v1.
	BaseURL string
	// Timeout bounds each request, replays included.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// PageSize is the default list page size.
	PageSize int
	// RateLimitRPS and RateLimitBurst configure the per-host token bucket.
	// A non-positive RPS disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// CircuitBreaker configures failure tracking per host.
	CircuitBreaker CircuitBreakerConfig
	// Transport configures the connection pool.
	Transport TransportConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		UserAgent:      "diarysync/1.0",
		PageSize:       DefaultPageSize,
		RateLimitRPS:   10,
		RateLimitBurst: 5,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

// Client issues requests against the backend.
type Client struct {
	rest    *resty.Client
	config  Config
	limiter *RateLimiter
	breaker *CircuitBreaker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*options)

type options struct {
	base        http.RoundTripper
	limiter     *RateLimiter
	breaker     *CircuitBreaker
	middlewares []Middleware
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// WithMiddleware adds m between the circuit breaker and the network.
func WithMiddleware(m Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, m) }
}

// WithBaseTransport replaces the pooled base transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithRateLimiter shares limiter between clients.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// WithCircuitBreaker shares breaker between clients.
func WithCircuitBreaker(breaker *CircuitBreaker) Option {
	return func(o *options) { o.breaker = breaker }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records request counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base == nil {
		o.base = NewHTTPTransport(cfg.Transport)
	}
	if o.limiter == nil {
		o.limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if o.breaker == nil {
		cbConfig := cfg.CircuitBreaker
		if cbConfig.IsFailure == nil {
			cbConfig.IsFailure = isBreakerFailure
		}
		if cbConfig.OnOpen == nil && o.metrics != nil {
			m := o.metrics
			cbConfig.OnOpen = m.RecordCircuitOpen
		}
		o.breaker = NewCircuitBreaker(cbConfig)
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: chain(o.base, o.limiter, o.breaker, o.middlewares),
	}

	rest := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{o.logger})

	return &Client{
		rest:    rest,
		config:  cfg,
		limiter: o.limiter,
		breaker: o.breaker,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// RateLimiter returns the limiter so another client can share it.
func (c *Client) RateLimiter() *RateLimiter { return c.limiter }

// CircuitBreaker returns the breaker so another client can share it.
func (c *Client) CircuitBreaker() *CircuitBreaker { return c.breaker }

// Online reports false while the circuit of the backend host is open, that
// is after repeated connectivity failures and until the next trial request.
func (c *Client) Online() bool {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return true
	}
	return c.breaker.State(u.Hostname()) != CircuitOpen
}

// Auth returns the authentication endpoints.
func (c *Client) Auth() *AuthAPI { return &AuthAPI{c: c} }

// Videos returns the video endpoints.
func (c *Client) Videos() *VideoAPI { return &VideoAPI{c: c} }

// Clips returns the clip endpoints.
func (c *Client) Clips() *ClipAPI { return &ClipAPI{c: c} }

// Compilations returns the compilation endpoints.
func (c *Client) Compilations() *CompilationAPI { return &CompilationAPI{c: c} }

// Storage returns the object storage endpoints.
func (c *Client) Storage() *StorageAPI { return &StorageAPI{c: c} }

// Notifications returns the push registration endpoint.
func (c *Client) Notifications() *NotificationAPI { return &NotificationAPI{c: c} }

// Close releases idle connections.
func (c *Client) Close() error {
	c.rest.GetClient().CloseIdleConnections()
	return nil
}

// call describes one request.
type call struct {
	method     string
	path       string
	pathParams map[string]string
	query      url.Values
	body       any
	result     any
}

func (c *Client) pageSize(size int) int {
	if size <= 0 {
		return c.config.PageSize
	}
	return size
}

// do executes call and maps any non-2xx response to *APIError.
func (c *Client) do(ctx context.Context, cl call) error {
	requestID := uuid.NewString()
	req := c.rest.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID)

	if cl.pathParams != nil {
		req.SetPathParams(cl.pathParams)
	}
	if cl.query != nil {
		req.SetQueryParamsFromValues(cl.query)
	}
	if cl.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
	}
	if cl.result != nil {
		req.SetResult(cl.result).ForceContentType("application/json")
	}

	log := c.logger.With().Str("request_id", requestID).Str("method", cl.method).Str("path", cl.path).Logger()

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		c.metrics.RecordRequest(cl.method, "error")
		log.Debug().Err(err).Msg("request failed")
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}

	c.metrics.RecordRequest(cl.method, statusClass(resp.StatusCode()))
	if resp.IsError() {
		log.Debug().Int("status", resp.StatusCode()).Msg("request rejected")
		return &APIError{
			StatusCode: resp.StatusCode(),
			Method:     cl.method,
			Path:       cl.path,
			RequestID:  requestID,
			Body:       resp.Body(),
		}
	}

	log.Debug().Int("status", resp.StatusCode()).Dur("elapsed", resp.Time()).Msg("request completed")
	return nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct{ logger zerolog.Logger }

func (l restyLogger) Errorf(format string, v ...any) { l.logger.Debug().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.logger.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.logger.Debug().Msgf(format, v...) }
