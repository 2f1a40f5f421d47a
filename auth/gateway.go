package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"diarysync/internal/metrics"
)

// Header names set on every authenticated request.
const (
	HeaderAuthorization = "Authorization"
	HeaderUserID        = "X-User-Id"
)

// refreshPath marks the endpoint that must never trigger a refresh itself.
const refreshPath = "auth/refresh"

// Refresher exchanges a refresh token for a new token pair. It must not be
// routed through the Gateway that calls it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Gateway decorates requests with the stored bearer token and, on a 401,
// refreshes the credential once and replays the request once.
//
// Concurrent 401s caused by the same stale token share one refresh. A caller
// that arrives after the refresh completed finds a different token in the
// store and replays with it without refreshing again.
type Gateway struct {
	store     Store
	refresher Refresher
	group     singleflight.Group
	mu        sync.Mutex
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the gateway logger.
func WithGatewayLogger(logger zerolog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithGatewayMetrics records refresh outcomes into m.
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a gateway over store. refresher may be nil, in which case
// a 401 is returned to the caller untouched.
func NewGateway(store Store, refresher Refresher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:     store,
		refresher: refresher,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap returns a RoundTripper that sends requests through next.
func (g *Gateway) Wrap(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &gatewayTransport{gateway: g, next: next}
}

type gatewayTransport struct {
	gateway *Gateway
	next    http.RoundTripper
}

func (t *gatewayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.gateway.roundTrip(t.next, req)
}

func (g *Gateway) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	cred, ok, err := g.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	resp, err := next.RoundTrip(decorate(req, cred, ok))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if !g.canReplay(req, cred, ok) {
		return resp, nil
	}

	fresh, err := g.refresh(ctx, cred.AccessToken)
	if err != nil {
		g.logger.Warn().Err(err).Str("path", req.URL.Path).Msg("token refresh failed; returning 401")
		return resp, nil
	}

	replay := decorate(req, fresh, true)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		replay.Body = body
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	g.logger.Debug().Str("path", req.URL.Path).Msg("replaying request with refreshed token")
	return next.RoundTrip(replay)
}

// canReplay decides whether a 401 may be recovered. The refresh endpoint
// itself is never retried and a body that cannot be rewound cannot be resent.
func (g *Gateway) canReplay(req *http.Request, cred Credential, ok bool) bool {
	if g.refresher == nil || !ok || cred.RefreshToken == "" {
		return false
	}
	if strings.Contains(req.URL.Path, refreshPath) {
		return false
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	return true
}

// refresh returns a credential newer than stale, refreshing at most once per
// stale token. On failure the stored credential is cleared.
func (g *Gateway) refresh(ctx context.Context, stale string) (Credential, error) {
	// Waiters share the result, so one caller's cancellation must not fail the rest.
	ctx = context.WithoutCancel(ctx)

	v, err, _ := g.group.Do(stale, func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()

		current, ok, err := g.store.Get(ctx)
		if err != nil {
			return Credential{}, err
		}
		if !ok {
			return Credential{}, ErrNoCredentials
		}
		if current.AccessToken != stale {
			g.metrics.RecordRefresh("reused")
			return current, nil
		}

		tokens, err := g.refresher.Refresh(ctx, current.RefreshToken)
		if err != nil {
			g.metrics.RecordRefresh("failure")
			if clearErr := g.store.Clear(ctx); clearErr != nil {
				g.logger.Error().Err(clearErr).Msg("clear credentials after failed refresh")
			}
			return Credential{}, fmt.Errorf("refresh token: %w", err)
		}
		if err := g.store.Save(ctx, tokens); err != nil {
			g.metrics.RecordRefresh("failure")
			return Credential{}, fmt.Errorf("persist refreshed token: %w", err)
		}
		g.metrics.RecordRefresh("success")

		updated, _, err := g.store.Get(ctx)
		return updated, err
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// decorate clones req and sets the auth headers for cred.
func decorate(req *http.Request, cred Credential, ok bool) *http.Request {
	out := req.Clone(req.Context())
	if ok && cred.AccessToken != "" {
		out.Header.Set(HeaderAuthorization, "Bearer "+cred.AccessToken)
	}
	if ok && cred.UserID != "" {
		out.Header.Set(HeaderUserID, cred.UserID)
	}
	return out
}
