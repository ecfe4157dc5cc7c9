package domain

import (
	dErrors "kycflow/pkg/domain-errors"
)

// WorkflowState is the full, persistable state of one verification workflow.
type WorkflowState struct {
	CurrentStep Step                `json:"currentStep"`
	Data        EvidenceData        `json:"data"`
	Session     *Session            `json:"session"`
	Result      *VerificationResult `json:"verificationResult"`
	StepHistory []Step              `json:"stepHistory"`
}

// NewWorkflowState returns the deterministic initial state.
func NewWorkflowState() WorkflowState {
	return WorkflowState{
		CurrentStep: StepWelcome,
		Data:        NewEvidenceData(),
		StepHistory: []Step{StepWelcome},
	}
}

// Clone returns a deep copy.
func (s WorkflowState) Clone() WorkflowState {
	history := make([]Step, len(s.StepHistory))
	copy(history, s.StepHistory)
	return WorkflowState{
		CurrentStep: s.CurrentStep,
		Data:        s.Data.Clone(),
		Session:     s.Session.Clone(),
		Result:      s.Result.Clone(),
		StepHistory: history,
	}
}

// Validate checks the structural invariants a restored state must satisfy.
func (s WorkflowState) Validate() error {
	if !s.CurrentStep.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "current step is not part of the workflow: "+string(s.CurrentStep))
	}
	if len(s.StepHistory) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "step history must not be empty")
	}
	for _, step := range s.StepHistory {
		if !step.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "step history contains unknown step: "+string(step))
		}
	}
	return nil
}

// StepInfo describes one step for progress displays.
type StepInfo struct {
	Step        Step   `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsCompleted bool   `json:"isCompleted"`
	IsCurrent   bool   `json:"isCurrent"`
	CanGoBack   bool   `json:"canGoBack"`
}

// Progress summarizes where the workflow stands.
type Progress struct {
	CurrentStep      Step       `json:"currentStep"`
	CurrentStepIndex int        `json:"currentStepIndex"`
	TotalSteps       int        `json:"totalSteps"`
	Steps            []StepInfo `json:"progressSteps"`
	CanGoNext        bool       `json:"canGoNext"`
	CanGoBack        bool       `json:"canGoBack"`
}

// ProgressAt computes the progress descriptor for the given current step.
func ProgressAt(current Step) Progress {
	idx := current.Index()
	infos := make([]StepInfo, len(steps))
	for i, step := range steps {
		infos[i] = StepInfo{
			Step:        step,
			Title:       step.Title(),
			Description: step.Description(),
			IsCompleted: i < idx,
			IsCurrent:   i == idx,
			CanGoBack:   i < idx,
		}
	}
	return Progress{
		CurrentStep:      current,
		CurrentStepIndex: idx,
		TotalSteps:       len(steps),
		Steps:            infos,
		CanGoNext:        idx < len(steps)-1,
		CanGoBack:        idx > 0,
	}
}
