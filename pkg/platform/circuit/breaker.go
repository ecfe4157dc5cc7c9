// Package circuit tracks whether a remote dependency is usable. The SDK
// keys demo mode off an open breaker.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed means the dependency answers.
	StateClosed State = iota
	// StateOpen means callers should take the degraded path.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Transition describes one state change.
type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Breaker opens after a run of consecutive failures and closes again after
// a run of consecutive successes.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	now              func() time.Time
	onChange         func(Transition)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	since     time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
// Default 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open
// breaker. Default 3.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithOnStateChange registers fn for every transition. It runs after the
// breaker lock is released.
func WithOnStateChange(fn func(Transition)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 3,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.since = b.now()
	return b
}

func (b *Breaker) Name() string { return b.name }

// IsOpen reports whether callers should take the degraded path.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// State returns the current state and when it was entered.
func (b *Breaker) State() (State, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.since
}

// Observe records one outcome and reports whether the breaker is open
// afterwards.
func (b *Breaker) Observe(success bool) (open bool) {
	b.mu.Lock()
	var t *Transition
	if success {
		b.failures = 0
		if b.state == StateOpen {
			b.successes++
			if b.successes >= b.successThreshold {
				t = b.moveLocked(StateClosed)
			}
		}
	} else {
		b.successes = 0
		b.failures++
		if b.state == StateClosed && b.failures >= b.failureThreshold {
			t = b.moveLocked(StateOpen)
		}
	}
	open = b.state == StateOpen
	b.mu.Unlock()

	b.notify(t)
	return open
}

// Reset closes the breaker and clears both streaks.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var t *Transition
	if b.state == StateOpen {
		t = b.moveLocked(StateClosed)
	}
	b.failures, b.successes = 0, 0
	b.mu.Unlock()

	b.notify(t)
}

func (b *Breaker) moveLocked(to State) *Transition {
	t := &Transition{Name: b.name, From: b.state, To: to, At: b.now()}
	b.state = to
	b.since = t.At
	b.failures, b.successes = 0, 0
	return t
}

func (b *Breaker) notify(t *Transition) {
	if t != nil && b.onChange != nil {
		b.onChange(*t)
	}
}
