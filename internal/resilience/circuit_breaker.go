// Package resilience adapts the teacher's CircuitBreaker/Retry primitives
// (resilience/circuit_breaker.go, resilience/retry.go) to protect the two
// external collaborator boundaries this spec names: the Skill Dispatcher's
// child-process calls (C3) and the Tiered Memory collaborator's vector-RPC
// calls (C4). The full sliding-window/half-open-token bookkeeping of the
// teacher's version is simplified to a single mutex-guarded state machine sized
// for this system's call volumes (SPEC_FULL.md §9: "a few per second").
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagi-systems/pagi-core/internal/logging"
)

// State mirrors the teacher's CircuitState (Closed/Open/HalfOpen).
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrOpen is returned by Execute when the breaker is open.
var ErrOpen = errors.New("resilience: circuit breaker open")

// Config configures a CircuitBreaker, adapted from the teacher's
// CircuitBreakerConfig.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures to trip Open
	SleepWindow      time.Duration // time spent Open before probing HalfOpen
	SuccessThreshold int           // consecutive HalfOpen successes to close
	Logger           logging.Logger
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker is a minimal Closed/Open/HalfOpen state machine.
type CircuitBreaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker permits it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.allow() {
		return ErrOpen
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.SleepWindow {
			cb.state = HalfOpen
			cb.consecutiveOK = 0
			return true
		}
		return false
	default: // HalfOpen: allow probes through
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.consecutiveFail++
		cb.consecutiveOK = 0
		if cb.state == HalfOpen || cb.consecutiveFail >= cb.cfg.FailureThreshold {
			cb.transition(Open)
		}
		return
	}
	cb.consecutiveFail = 0
	if cb.state == HalfOpen {
		cb.consecutiveOK++
		if cb.consecutiveOK >= cb.cfg.SuccessThreshold {
			cb.transition(Closed)
		}
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == Open {
		cb.openedAt = time.Now()
	}
	if cb.cfg.Logger != nil && from != to {
		cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
			"name": cb.cfg.Name,
			"from": from.String(),
			"to":   to.String(),
		})
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
