package testutil

import (
	"bytes"

	"kycflow/pkg/domain"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n")
	jpegHeader = []byte("\xFF\xD8\xFF\xE0")
)

// PNG returns an image whose payload sniffs as image/png and is size bytes long.
func PNG(name string, size int) *domain.Image {
	return domain.NewImage(name, padded(pngHeader, size))
}

// JPEG returns an image whose payload sniffs as image/jpeg and is size bytes long.
func JPEG(name string, size int) *domain.Image {
	return domain.NewImage(name, padded(jpegHeader, size))
}

func padded(header []byte, size int) []byte {
	if size < len(header) {
		size = len(header)
	}
	return append(bytes.Clone(header), make([]byte, size-len(header))...)
}

// CompleteOCR returns OCR fields that pass every final-submission rule.
func CompleteOCR() domain.OCRFields {
	return domain.OCRFields{
		FullName:         "Abebe Bikila",
		DateOfBirth:      "1990-05-17",
		DateOfExpiry:     domain.DefaultDateOfExpiry,
		Gender:           "M",
		IDNumber:         "ET-123456",
		IssuingAuthority: domain.DefaultIssuingAuthority,
	}
}

// StateBuilder provides a fluent interface for building workflow states.
type StateBuilder struct {
	state domain.WorkflowState
}

// NewStateBuilder starts from the initial workflow state.
func NewStateBuilder() *StateBuilder {
	return &StateBuilder{state: domain.NewWorkflowState()}
}

// AtStep moves the state to step, filling history with every step before it.
func (b *StateBuilder) AtStep(step domain.Step) *StateBuilder {
	history := make([]domain.Step, 0, step.Index()+1)
	for i := 0; i <= step.Index(); i++ {
		history = append(history, domain.StepAt(i))
	}
	b.state.CurrentStep = step
	b.state.StepHistory = history
	return b
}

// WithIDType sets the selected document type.
func (b *StateBuilder) WithIDType(idType string) *StateBuilder {
	b.state.Data.IDType = idType
	return b
}

// WithImages sets front, back and selfie captures that pass admissibility.
func (b *StateBuilder) WithImages() *StateBuilder {
	b.state.Data.Front = PNG("front.png", 1024)
	b.state.Data.Back = PNG("back.png", 1024)
	b.state.Data.Selfie = JPEG("selfie.jpg", 1024)
	return b
}

// WithOCR replaces the extracted fields.
func (b *StateBuilder) WithOCR(fields domain.OCRFields) *StateBuilder {
	b.state.Data.ExtractedFields = fields
	return b
}

// WithSession attaches a backend session.
func (b *StateBuilder) WithSession(session *domain.Session) *StateBuilder {
	b.state.Session = session
	return b
}

// WithResult attaches a final verification result.
func (b *StateBuilder) WithResult(result *domain.VerificationResult) *StateBuilder {
	b.state.Result = result
	return b
}

// Complete is shorthand for evidence that passes every final rule.
func (b *StateBuilder) Complete() *StateBuilder {
	return b.WithIDType("national_id").WithImages().WithOCR(CompleteOCR())
}

// Build returns a copy of the built state.
func (b *StateBuilder) Build() domain.WorkflowState {
	return b.state.Clone()
}
