// Package circuit provides a count-based sliding-window circuit breaker with
// closed → open → half-open state transitions, shared per dependency name.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: calls flow through
	StateOpen                  // Tripped: calls are short-circuited
	StateHalfOpen              // Probing: a limited number of trial calls
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned without calling the dependency while the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrTooManyTrials is returned when all half-open trial slots are taken.
	ErrTooManyTrials = errors.New("circuit breaker half-open trial limit reached")

	// ErrTimeout is returned when a call exceeds the configured call timeout.
	ErrTimeout = errors.New("circuit breaker call timeout")
)

// Settings parameterize a breaker.
type Settings struct {
	FailureRateThreshold float64 // percent
	WindowSize           int
	MinimumCalls         int
	OpenTimeout          time.Duration
	HalfOpenMaxCalls     int
	CallTimeout          time.Duration
}

// SettingsFrom converts the service configuration.
func SettingsFrom(cfg domain.BreakerConfig) Settings {
	return Settings{
		FailureRateThreshold: cfg.FailureRateThreshold,
		WindowSize:           cfg.WindowSize,
		MinimumCalls:         cfg.MinimumCalls,
		OpenTimeout:          cfg.OpenTimeout,
		HalfOpenMaxCalls:     cfg.HalfOpenMaxCalls,
		CallTimeout:          cfg.CallTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	if s.FailureRateThreshold <= 0 || s.FailureRateThreshold > 100 {
		s.FailureRateThreshold = 50
	}
	if s.WindowSize <= 0 {
		s.WindowSize = 10
	}
	if s.MinimumCalls <= 0 || s.MinimumCalls > s.WindowSize {
		s.MinimumCalls = s.WindowSize
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = 1
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 2 * time.Second
	}
	return s
}

// TransitionFunc observes state changes. It is called without the breaker lock held.
type TransitionFunc func(name string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook registers a callback for state changes (for metrics).
func WithTransitionHook(fn TransitionFunc) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// Breaker is a named circuit breaker. Outcomes of the last WindowSize calls
// are kept in a ring; once at least MinimumCalls are recorded and the failure
// rate reaches FailureRateThreshold the breaker opens. After OpenTimeout it
// admits HalfOpenMaxCalls trials: any failure reopens it, all successes close it.
type Breaker struct {
	name         string
	settings     Settings
	now          func() time.Time
	onTransition TransitionFunc

	mu       sync.Mutex
	state    State
	outcomes []bool // true = failure
	next     int
	calls    int
	failures int
	openedAt time.Time

	trialsInFlight int
	trialSuccesses int

	// generation changes on every transition so that calls admitted in an
	// earlier state do not count against the current one.
	generation uint64
}

type transition struct {
	from, to State
}

// New creates a breaker in the closed state.
func New(name string, s Settings, opts ...Option) *Breaker {
	s = s.withDefaults()
	b := &Breaker{
		name:     name,
		settings: s,
		now:      time.Now,
		outcomes: make([]bool, s.WindowSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying the open → half-open timer.
func (b *Breaker) State() State {
	b.mu.Lock()
	t := b.advance()
	state := b.state
	b.mu.Unlock()

	b.notify(t)
	return state
}

// Execute runs fn if the breaker admits the call and records its outcome.
// fn receives a context bounded by CallTimeout; if it does not return in
// time Execute returns ErrTimeout and the call counts as a failure. When
// ctx itself is cancelled the call is abandoned without recording an
// outcome and ctx.Err() is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gen, err := b.beforeCall()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.CallTimeout)
	defer cancel()

	err = run(callCtx, fn)
	if ctx.Err() != nil {
		b.abandon(gen)
		return ctx.Err()
	}
	b.afterCall(gen, err == nil)
	return err
}

// Call runs fn under b and returns its value, or fallback(err) when the call
// fails, times out, or is short-circuited.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error), fallback func(err error) T) T {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return fallback(err)
	}
	return result
}

func run(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func (b *Breaker) beforeCall() (uint64, error) {
	b.mu.Lock()
	t := b.advance()

	var err error
	switch b.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if b.trialsInFlight+b.trialSuccesses >= b.settings.HalfOpenMaxCalls {
			err = ErrTooManyTrials
		} else {
			b.trialsInFlight++
		}
	}
	gen := b.generation
	b.mu.Unlock()

	b.notify(t)
	return gen, err
}

func (b *Breaker) afterCall(gen uint64, success bool) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}

	var t *transition
	switch b.state {
	case StateClosed:
		b.record(!success)
		if b.shouldTrip() {
			t = b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.trialsInFlight--
		if !success {
			t = b.setState(StateOpen)
			break
		}
		b.trialSuccesses++
		if b.trialSuccesses >= b.settings.HalfOpenMaxCalls {
			t = b.setState(StateClosed)
		}
	}
	b.mu.Unlock()

	b.notify(t)
}

// abandon releases a half-open trial slot without counting an outcome.
func (b *Breaker) abandon(gen uint64) {
	b.mu.Lock()
	if gen == b.generation && b.state == StateHalfOpen && b.trialsInFlight > 0 {
		b.trialsInFlight--
	}
	b.mu.Unlock()
}

// Reset forces the breaker closed and clears its window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	t := b.setState(StateClosed)
	b.clearWindow()
	b.mu.Unlock()

	b.notify(t)
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Calls       int     `json:"calls"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failureRate"`
}

// Snapshot returns the breaker's current counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	t := b.advance()
	s := Snapshot{
		Name:     b.name,
		State:    b.state.String(),
		Calls:    b.calls,
		Failures: b.failures,
	}
	if b.calls > 0 {
		s.FailureRate = float64(b.failures) * 100 / float64(b.calls)
	}
	b.mu.Unlock()

	b.notify(t)
	return s
}

// advance moves an open breaker to half-open once the cool-down elapsed.
// Caller must hold b.mu.
func (b *Breaker) advance() *transition {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		return b.setState(StateHalfOpen)
	}
	return nil
}

// record adds an outcome to the sliding window. Caller must hold b.mu.
func (b *Breaker) record(failure bool) {
	if b.calls == len(b.outcomes) {
		if b.outcomes[b.next] {
			b.failures--
		}
	} else {
		b.calls++
	}
	b.outcomes[b.next] = failure
	if failure {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.outcomes)
}

func (b *Breaker) shouldTrip() bool {
	if b.calls < b.settings.MinimumCalls {
		return false
	}
	return float64(b.failures)*100 >= b.settings.FailureRateThreshold*float64(b.calls)
}

func (b *Breaker) clearWindow() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.next, b.calls, b.failures = 0, 0, 0
}

// setState changes state and returns the transition, or nil if unchanged.
// Caller must hold b.mu.
func (b *Breaker) setState(to State) *transition {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	b.generation++
	b.trialsInFlight = 0
	b.trialSuccesses = 0

	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.clearWindow()
	}
	return &transition{from: from, to: to}
}

func (b *Breaker) notify(t *transition) {
	if t == nil || b.onTransition == nil {
		return
	}
	b.onTransition(b.name, t.from, t.to)
}
