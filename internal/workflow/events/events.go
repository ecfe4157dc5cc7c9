// Package events is the observer registry the SDK facade publishes workflow
// notifications to. Delivery is synchronous and in subscription order; a
// panicking handler is recovered and logged so one observer cannot break the
// workflow or starve the others.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kycflow/pkg/domain"
)

// Type identifies a kind of workflow notification.
type Type string

const (
	StepChanged          Type = "step_changed"
	ProgressUpdated      Type = "progress_updated"
	VerificationComplete Type = "verification_complete"
	Error                Type = "error"
)

// Event is one notification. Only the fields relevant to Type are set.
type Event struct {
	Type     Type
	Step     domain.Step
	Data     *domain.EvidenceData
	Progress *domain.Progress
	Result   *domain.VerificationResult
	Err      error
}

// Handler receives events of the type it subscribed to.
type Handler func(ctx context.Context, evt Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus routes events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Type][]subscription
	logger   *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for recovered panics and dropped errors.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Type][]subscription),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for events of type t. The returned function
// removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(t Type, handler Handler) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(t, id) })
	}
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[t]
	filtered := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		delete(b.handlers, t)
		return
	}
	b.handlers[t] = filtered
}

// HasSubscribers reports whether any handler is registered for t.
func (b *Bus) HasSubscribers(t Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) > 0
}

// Publish delivers evt to every handler subscribed to its type and returns
// how many were invoked. Handlers run without the registry lock held, so they
// may subscribe or unsubscribe.
func (b *Bus) Publish(ctx context.Context, evt Event) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.safeExecute(ctx, evt, s.handler)
	}
	return len(subs)
}

// StepChanged publishes the new step together with a snapshot of the data.
func (b *Bus) StepChanged(ctx context.Context, step domain.Step, data domain.EvidenceData) {
	b.Publish(ctx, Event{Type: StepChanged, Step: step, Data: &data})
}

// ProgressUpdated publishes a progress descriptor.
func (b *Bus) ProgressUpdated(ctx context.Context, progress domain.Progress) {
	b.Publish(ctx, Event{Type: ProgressUpdated, Progress: &progress})
}

// VerificationCompleted publishes the final result.
func (b *Bus) VerificationCompleted(ctx context.Context, result domain.VerificationResult) {
	b.Publish(ctx, Event{Type: VerificationComplete, Result: &result})
}

// ReportError routes err to error subscribers. With none registered the error
// is dropped after a debug log.
func (b *Bus) ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if b.Publish(ctx, Event{Type: Error, Err: err}) == 0 {
		b.logger.DebugContext(ctx, "dropped workflow error with no subscriber", "error", err)
	}
}

func (b *Bus) safeExecute(ctx context.Context, evt Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				"event_type", evt.Type,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	handler(ctx, evt)
}
