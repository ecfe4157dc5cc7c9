// Package orchestrator owns the workflow state machine: the current step, the
// captured evidence, the backend session and the final result.
//
// Forward transitions are gated by the validation package. Backward moves and
// explicit jumps are not. Evidence submission side effects run while
// advancing out of idScanBack and selfie; their failures are logged at debug
// level and never block the transition.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"kycflow/internal/verification/client"
	"kycflow/internal/workflow/validation"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Verifier submits evidence pairs to the verification backend.
type Verifier interface {
	SubmitDocument(ctx context.Context, sessionID, idType string, front, back *domain.Image, token string) (*client.Response, error)
	SubmitFace(ctx context.Context, sessionID string, selfie, idImage *domain.Image, token string) (*client.Response, error)
}

// Orchestrator drives one verification workflow. The mutex guards state for
// short sections only; it is never held across a Verifier call.
type Orchestrator struct {
	mu    sync.Mutex
	state domain.WorkflowState

	verifier         Verifier
	autoOCR          bool
	faceVerification bool
	logger           *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAutoOCR toggles document submission when leaving idScanBack.
func WithAutoOCR(enabled bool) Option {
	return func(o *Orchestrator) { o.autoOCR = enabled }
}

// WithFaceVerification toggles face submission when leaving selfie.
func WithFaceVerification(enabled bool) Option {
	return func(o *Orchestrator) { o.faceVerification = enabled }
}

// WithLogger sets the logger for side-effect diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator in the initial state. A nil verifier disables
// all side effects.
func New(verifier Verifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:            domain.NewWorkflowState(),
		verifier:         verifier,
		autoOCR:          true,
		faceVerification: true,
		logger:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Advance validates the current step and moves one step forward, never past
// the last. On validation failure the state is untouched and the returned
// error carries the violations.
func (o *Orchestrator) Advance(ctx context.Context) (domain.Step, error) {
	o.mu.Lock()
	current := o.state.CurrentStep
	data := o.state.Data.Clone()
	session := o.state.Session.Clone()
	o.mu.Unlock()

	if res := validation.Validate(current, data); !res.IsValid {
		return current, res.Err()
	}

	extracted := o.runSideEffects(ctx, current, data, session)

	o.mu.Lock()
	defer o.mu.Unlock()
	if extracted != nil {
		o.state.Data.ExtractedFields = *extracted
	}
	next := current.Next()
	o.moveLocked(next)
	return next, nil
}

// Retreat moves one step back, never before the first. No validation runs.
func (o *Orchestrator) Retreat() domain.Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.state.CurrentStep.Previous()
	o.moveLocked(prev)
	return prev
}

// SetStep jumps to step without validation. Only unknown steps are rejected.
func (o *Orchestrator) SetStep(step domain.Step) error {
	if !step.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown workflow step: "+string(step))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.moveLocked(step)
	return nil
}

func (o *Orchestrator) moveLocked(step domain.Step) {
	o.state.CurrentStep = step
	o.state.StepHistory = append(o.state.StepHistory, step)
}

// UpdateData merges a partial evidence update at the top level.
func (o *Orchestrator) UpdateData(update domain.EvidenceUpdate) domain.EvidenceData {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Data = update.Apply(o.state.Data)
	return o.state.Data.Clone()
}

// Reset replaces the whole state with the initial value.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = domain.NewWorkflowState()
}

// Restore replaces the state with a previously captured snapshot after
// checking its structural invariants.
func (o *Orchestrator) Restore(state domain.WorkflowState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state.Clone()
	return nil
}

// State returns a deep copy of the full workflow state.
func (o *Orchestrator) State() domain.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

func (o *Orchestrator) CurrentStep() domain.Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.CurrentStep
}

func (o *Orchestrator) Data() domain.EvidenceData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Data.Clone()
}

func (o *Orchestrator) Progress() domain.Progress {
	return domain.ProgressAt(o.CurrentStep())
}

// SetSession stores the backend session, replacing any previous one.
func (o *Orchestrator) SetSession(session *domain.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Session = session.Clone()
}

func (o *Orchestrator) Session() *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Session.Clone()
}

// SetResult stores the final verification result.
func (o *Orchestrator) SetResult(result *domain.VerificationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Result = result.Clone()
}

func (o *Orchestrator) Result() *domain.VerificationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Result.Clone()
}
