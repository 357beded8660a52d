// Package breaker implements a per-call-category circuit breaker with a
// rolling error-rate window and a call timeout.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpgw/internal/domain"
)

// State of a breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds one call category's resilience profile.
type Config struct {
	// Name identifies the category in logs and metrics.
	Name string
	// Timeout bounds every wrapped call.
	Timeout time.Duration
	// ErrorRate in [0,1] at or above which the breaker opens.
	ErrorRate float64
	// MinVolume is the minimum number of calls inside the window before the
	// error rate is considered.
	MinVolume int
	// ResetDelay is how long an open breaker waits before allowing one trial.
	ResetDelay time.Duration
	// Window bounds how far back call outcomes count toward the rate.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = domain.DefaultToolCallTimeout
	}
	if c.ErrorRate <= 0 {
		c.ErrorRate = domain.DefaultBreakerErrorRate
	}
	if c.MinVolume <= 0 {
		c.MinVolume = domain.DefaultBreakerMinVolume
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = domain.DefaultBreakerResetDelay
	}
	if c.Window <= 0 {
		c.Window = 2 * c.ResetDelay
	}
	return c
}

type outcome struct {
	at      time.Time
	failure bool
}

// TransitionFunc observes breaker state changes.
type TransitionFunc func(name string, from, to State)

// Breaker is a closed/open/half-open state machine guarding one call
// category. All counters are mutex-guarded; the breaker is shared across
// requests.
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	onMove TransitionFunc

	mu              sync.Mutex
	state           State
	window          []outcome
	lastStateChange time.Time
	trialInFlight   bool
}

func New(cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:             cfg,
		logger:          logger.Named("breaker").With(zap.String("category", cfg.Name)),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// OnTransition registers an observer for state changes. Not safe to call
// concurrently with Do.
func (b *Breaker) OnTransition(fn TransitionFunc) {
	b.onMove = fn
}

// Do runs fn under the category timeout if the breaker admits the call.
// An open breaker fails immediately with domain.ErrCircuitOpen and a
// retry-after hint; no backend call is attempted.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.canAttempt() {
		retryAfter := b.cfg.ResetDelay
		return &domain.Error{
			Code:      domain.CodeUnavailable,
			Op:        b.cfg.Name,
			Message:   fmt.Sprintf("service temporarily unavailable, retry after %s", retryAfter),
			Cause:     domain.ErrCircuitOpen,
			Retryable: true,
			Meta:      map[string]string{"retryAfter": retryAfter.String()},
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) canAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastStateChange) >= b.cfg.ResetDelay {
			b.transition(StateHalfOpen)
			b.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		// One trial call at a time.
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	b.append(outcome{at: time.Now(), failure: false})
	if b.state != StateClosed {
		b.window = nil
		b.transition(StateClosed)
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.append(outcome{at: now, failure: true})

	switch b.state {
	case StateHalfOpen:
		// Trial failed, back to open for another cooldown.
		b.trialInFlight = false
		b.transition(StateOpen)
	case StateClosed:
		total, failures := b.tally(now)
		if total >= b.cfg.MinVolume && float64(failures)/float64(total) >= b.cfg.ErrorRate {
			b.transition(StateOpen)
		}
	}
}

// append prunes outcomes older than the window, then records one. Caller
// holds the lock.
func (b *Breaker) append(o outcome) {
	cutoff := o.at.Add(-b.cfg.Window)
	kept := b.window[:0]
	for _, existing := range b.window {
		if existing.at.After(cutoff) {
			kept = append(kept, existing)
		}
	}
	b.window = append(kept, o)
}

func (b *Breaker) tally(now time.Time) (total, failures int) {
	cutoff := now.Add(-b.cfg.Window)
	for _, o := range b.window {
		if !o.at.After(cutoff) {
			continue
		}
		total++
		if o.failure {
			failures++
		}
	}
	return total, failures
}

// transition moves to a new state and logs the event. Caller holds the lock.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.lastStateChange = time.Now()

	switch to {
	case StateOpen:
		b.logger.Warn("circuit opened",
			zap.String("from", string(from)),
			zap.Duration("resetDelay", b.cfg.ResetDelay),
		)
	case StateHalfOpen:
		b.logger.Info("circuit half-open, allowing trial call")
	case StateClosed:
		b.logger.Info("circuit closed", zap.String("from", string(from)))
	}
	if b.onMove != nil {
		b.onMove(b.cfg.Name, from, to)
	}
}
