package api

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial requests through.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Circuit breaker defaults.
const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30 * time.Second
	DefaultHalfOpenMaxRequests = 1
)

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before allowing trial requests.
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests is the number of trial requests allowed while half-open.
	HalfOpenMaxRequests int
	// IsFailure decides whether an error counts against the circuit.
	// If nil, every error counts.
	IsFailure func(error) bool
	// OnOpen is called, outside the lock, each time a host's circuit opens.
	OnOpen func(host string)
}

// DefaultCircuitBreakerConfig returns the defaults used by the API client.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    DefaultFailureThreshold,
		RecoveryTimeout:     DefaultRecoveryTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
		IsFailure:           isBreakerFailure,
	}
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastStateChange   time.Time
	halfOpenRequests  int
}

// CircuitBreaker tracks consecutive failures per host and fails fast while a
// host looks unreachable. A nil *CircuitBreaker allows everything.
type CircuitBreaker struct {
	circuits map[string]*circuit
	mu       sync.Mutex
	config   CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}

	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow returns nil if a request to host may proceed, or ErrCircuitOpen.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitFor(host)

	switch c.state {
	case CircuitOpen:
		if cb.now().Sub(c.lastStateChange) >= cb.config.RecoveryTimeout {
			// This request is the first trial request.
			c.state = CircuitHalfOpen
			c.lastStateChange = cb.now()
			c.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		if c.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			c.halfOpenRequests++
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess closes a half-open circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitFor(host)
	if c.state == CircuitHalfOpen {
		c.state = CircuitClosed
		c.lastStateChange = cb.now()
		c.halfOpenRequests = 0
	}
	c.consecutiveErrors = 0
}

// RecordFailure counts err against host if the config classifies it as a
// failure. Any other error, such as a canceled request, hands a half-open slot
// back without changing the state.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.config.IsFailure != nil && !cb.config.IsFailure(err) {
		cb.release(host)
		return
	}

	cb.mu.Lock()
	c := cb.circuitFor(host)
	opened := false

	switch c.state {
	case CircuitClosed:
		c.consecutiveErrors++
		if c.consecutiveErrors >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			c.lastStateChange = cb.now()
			opened = true
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.lastStateChange = cb.now()
		c.consecutiveErrors++
		opened = true
	}
	cb.mu.Unlock()

	if opened && cb.config.OnOpen != nil {
		cb.config.OnOpen(host)
	}
}

func (cb *CircuitBreaker) release(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c := cb.circuitFor(host)
	if c.state == CircuitHalfOpen && c.halfOpenRequests > 0 {
		c.halfOpenRequests--
	}
}

// State returns the current state of the circuit for host.
func (cb *CircuitBreaker) State(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.lastStateChange) >= cb.config.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset forgets the state of host.
func (cb *CircuitBreaker) Reset(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, host)
}

// circuitFor must be called with mu held.
func (cb *CircuitBreaker) circuitFor(host string) *circuit {
	c, ok := cb.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, lastStateChange: cb.now()}
		cb.circuits[host] = c
	}
	return c
}
