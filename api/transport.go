package api

import (
	"net/http"
	"time"
)

// TransportConfig configures connection pooling.
type TransportConfig struct {
	// MaxIdleConns is the maximum number of idle connections across all hosts.
	MaxIdleConns int
	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int
	// MaxConnsPerHost is the maximum concurrent connections per host.
	MaxConnsPerHost int
	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
	// ForceAttemptHTTP2 enables HTTP/2 for custom dialers.
	ForceAttemptHTTP2 bool
}

// DefaultTransportConfig returns the pool settings used by New.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// NewHTTPTransport builds the base transport shared by the API client and the
// upload engine.
func NewHTTPTransport(cfg TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.ForceAttemptHTTP2,
	}
}

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// limitTransport waits for the host's rate limiter before sending.
type limitTransport struct {
	limiter *RateLimiter
	next    http.RoundTripper
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.URL.Hostname()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// breakerTransport fails fast while the host's circuit is open and feeds every
// outcome back to the breaker.
type breakerTransport struct {
	breaker *CircuitBreaker
	next    http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	if err := t.breaker.Allow(host); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	switch {
	case err != nil:
		t.breaker.RecordFailure(host, err)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		t.breaker.RecordFailure(host, &statusError{code: resp.StatusCode})
	default:
		t.breaker.RecordSuccess(host)
	}
	return resp, err
}

// chain assembles limiter -> breaker -> middlewares -> base. The first
// middleware is outermost.
func chain(base http.RoundTripper, limiter *RateLimiter, breaker *CircuitBreaker, middlewares []Middleware) http.RoundTripper {
	rt := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	rt = &breakerTransport{breaker: breaker, next: rt}
	return &limitTransport{limiter: limiter, next: rt}
}
