package store

import (
	"context"
	"errors"
	"log/slog"

	"kycflow/pkg/domain"
)

// BestEffort wraps a SnapshotStore so storage failures never reach the
// workflow: they are logged at debug level and turned into no-ops.
type BestEffort struct {
	inner  SnapshotStore
	logger *slog.Logger
}

// NewBestEffort wraps inner. A nil logger discards diagnostics.
func NewBestEffort(inner SnapshotStore, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BestEffort{inner: inner, logger: logger}
}

// Save persists state, swallowing any failure.
func (b *BestEffort) Save(ctx context.Context, state domain.WorkflowState) {
	if b == nil || b.inner == nil {
		return
	}
	if err := b.inner.Save(ctx, state); err != nil {
		b.logger.DebugContext(ctx, "failed to save workflow snapshot", "error", err)
	}
}

// Load returns the stored snapshot; ok is false when nothing usable is stored.
func (b *BestEffort) Load(ctx context.Context) (state domain.WorkflowState, ok bool) {
	if b == nil || b.inner == nil {
		return domain.WorkflowState{}, false
	}
	state, err := b.inner.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.DebugContext(ctx, "failed to load workflow snapshot", "error", err)
		}
		return domain.WorkflowState{}, false
	}
	return state, true
}

// Clear removes the snapshot, swallowing any failure.
func (b *BestEffort) Clear(ctx context.Context) {
	if b == nil || b.inner == nil {
		return
	}
	if err := b.inner.Clear(ctx); err != nil {
		b.logger.DebugContext(ctx, "failed to clear workflow snapshot", "error", err)
	}
}
