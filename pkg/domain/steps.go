// Package domain holds the KYC workflow model shared by the orchestrator, the
// verification client and the public SDK facade.
package domain

import (
	dErrors "kycflow/pkg/domain-errors"
)

// Step identifies one stage of the verification workflow.
type Step string

const (
	StepWelcome         Step = "welcome"
	StepIDTypeSelection Step = "idTypeSelection"
	StepIDScanFront     Step = "idScanFront"
	StepIDScanBack      Step = "idScanBack"
	StepOCRPreview      Step = "ocrPreview"
	StepSelfie          Step = "selfie"
	StepReview          Step = "review"
	StepProcessing      Step = "processing"
	StepResult          Step = "result"
)

// steps is the fixed workflow order. Index positions drive advance/retreat.
var steps = []Step{
	StepWelcome,
	StepIDTypeSelection,
	StepIDScanFront,
	StepIDScanBack,
	StepOCRPreview,
	StepSelfie,
	StepReview,
	StepProcessing,
	StepResult,
}

type stepCopy struct {
	title       string
	description string
}

var stepText = map[Step]stepCopy{
	StepWelcome:         {"Welcome", "Start your identity verification process"},
	StepIDTypeSelection: {"Select ID Type", "Choose the type of identification document"},
	StepIDScanFront:     {"Scan Front of ID", "Capture the front side of your document"},
	StepIDScanBack:      {"Scan Back of ID", "Capture the back side of your document"},
	StepOCRPreview:      {"Review Information", "Review and edit extracted information"},
	StepSelfie:          {"Take Selfie", "Take a photo of yourself for verification"},
	StepReview:          {"Review & Confirm", "Review all information before submission"},
	StepProcessing:      {"Processing", "Verifying your identity"},
	StepResult:          {"Verification Result", "View your verification result"},
}

// Steps returns a copy of the fixed step sequence.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// StepCount is the number of steps in the workflow.
func StepCount() int { return len(steps) }

// FirstStep and LastStep bound the sequence.
func FirstStep() Step { return steps[0] }
func LastStep() Step  { return steps[len(steps)-1] }

// StepAt returns the step at index i, clamped to the sequence bounds.
func StepAt(i int) Step {
	if i < 0 {
		i = 0
	}
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return steps[i]
}

// Index returns the position of the step in the sequence, or -1 if unknown.
func (s Step) Index() int {
	for i, candidate := range steps {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether the step belongs to the fixed sequence.
func (s Step) IsValid() bool { return s.Index() >= 0 }

func (s Step) String() string { return string(s) }

// Title is the human-readable heading used in progress descriptors.
func (s Step) Title() string { return stepText[s].title }

// Description is the one-line explanation used in progress descriptors.
func (s Step) Description() string { return stepText[s].description }

// Next returns the following step; the last step is its own successor.
func (s Step) Next() Step { return StepAt(s.Index() + 1) }

// Previous returns the preceding step; the first step is its own predecessor.
func (s Step) Previous() Step {
	i := s.Index()
	if i <= 0 {
		return FirstStep()
	}
	return steps[i-1]
}

// ParseStep converts a raw identifier into a Step.
func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown step: "+raw)
	}
	return s, nil
}
