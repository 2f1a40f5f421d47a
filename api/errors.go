package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Sentinel errors matched through *APIError.Is.
var (
	// ErrUnauthorized matches a 401 that survived the refresh-and-replay path.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches a 404.
	ErrNotFound = errors.New("not found")
	// ErrCircuitOpen is returned without touching the network while the
	// breaker for a host is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// APIError is any non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	if len(e.Body) > 0 && len(e.Body) <= 256 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is lets errors.Is(err, ErrUnauthorized) and errors.Is(err, ErrNotFound) work.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsTransient reports whether err is a connectivity failure: a network or
// timeout error, an interrupted body, or an open circuit. A response from the
// server, whatever its status, is never transient, and neither is a caller's
// cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	// *url.Error is itself a net.Error; only its cause tells a dead network
	// apart from a local failure such as unreadable credentials.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.As(err, &netErr) && netErr.Timeout():
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// isBreakerFailure decides which outcomes count against a host's circuit:
// transient errors and server-side 5xx/429 responses.
func isBreakerFailure(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= 500 || statusErr.code == http.StatusTooManyRequests
	}
	return IsTransient(err)
}

// statusError feeds response codes to the breaker without surfacing them.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("status %d", e.code) }
