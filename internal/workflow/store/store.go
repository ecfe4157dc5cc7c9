// Package store persists a single serialized workflow snapshot. Every backend
// writes, reads and removes the whole blob under one key; there is no partial
// field persistence.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kycflow/pkg/domain"
)

// DefaultKey is the key the workflow snapshot is stored under.
const DefaultKey = "kyc_sdk_state"

// ErrNotFound is returned by Load when no snapshot is stored.
var ErrNotFound = errors.New("not found")

// SnapshotStore saves, loads and clears one workflow snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, state domain.WorkflowState) error
	Load(ctx context.Context) (domain.WorkflowState, error)
	Clear(ctx context.Context) error
}

func encode(state domain.WorkflowState) ([]byte, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode workflow snapshot: %w", err)
	}
	return payload, nil
}

// decode parses a snapshot and checks its structural invariants so a corrupt
// blob is never restored.
func decode(payload []byte) (domain.WorkflowState, error) {
	var state domain.WorkflowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.WorkflowState{}, fmt.Errorf("decode workflow snapshot: %w", err)
	}
	if err := state.Validate(); err != nil {
		return domain.WorkflowState{}, fmt.Errorf("decode workflow snapshot: %w", err)
	}
	return state, nil
}
