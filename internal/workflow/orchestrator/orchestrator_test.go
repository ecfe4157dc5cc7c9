package orchestrator

//go:generate mockgen -source=orchestrator.go -destination=mocks/verifier_mock.go -package=mocks Verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/verification/client"
	"kycflow/internal/workflow/orchestrator/mocks"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/testutil"
)

type OrchestratorSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	verifier *mocks.MockVerifier
	logs     *bytes.Buffer
	orch     *Orchestrator
	ctx      context.Context
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s.orch = New(s.verifier, WithLogger(logger))
	s.ctx = context.Background()
}

func (s *OrchestratorSuite) restore(state domain.WorkflowState) {
	s.Require().NoError(s.orch.Restore(state))
}

func session() *domain.Session {
	return &domain.Session{ID: "sess-42", Token: "session-token", Status: "pending"}
}

func (s *OrchestratorSuite) TestInitialState() {
	state := s.orch.State()
	s.Equal(domain.StepWelcome, state.CurrentStep)
	s.Equal([]domain.Step{domain.StepWelcome}, state.StepHistory)
	s.Empty(state.Data.IDType)
	s.Nil(state.Data.Front)
	s.Nil(state.Session)
	s.Nil(state.Result)
	s.Equal(domain.DefaultOCRFields(), state.Data.ExtractedFields)
}

func (s *OrchestratorSuite) TestAdvance() {
	s.Run("welcome always passes", func() {
		next, err := s.orch.Advance(s.ctx)
		s.Require().NoError(err)
		s.Equal(domain.StepIDTypeSelection, next)
		s.Equal([]domain.Step{domain.StepWelcome, domain.StepIDTypeSelection}, s.orch.State().StepHistory)
	})

	s.Run("invalid data keeps the step", func() {
		step, err := s.orch.Advance(s.ctx)
		s.Require().Error(err)
		s.True(dErrors.IsValidation(err))
		s.Equal([]string{"ID type must be selected"}, dErrors.ViolationsOf(err))
		s.Equal(domain.StepIDTypeSelection, step)
		s.Equal(domain.StepIDTypeSelection, s.orch.CurrentStep())
		s.Len(s.orch.State().StepHistory, 2)
	})

	s.Run("valid data moves forward", func() {
		idType := "passport"
		s.orch.UpdateData(domain.EvidenceUpdate{IDType: &idType})
		next, err := s.orch.Advance(s.ctx)
		s.Require().NoError(err)
		s.Equal(domain.StepIDScanFront, next)
	})

	s.Run("oversized image is rejected", func() {
		s.orch.UpdateData(domain.EvidenceUpdate{Front: testutil.PNG("front.png", 10*1024*1024+1)})
		_, err := s.orch.Advance(s.ctx)
		s.Equal([]string{"File size must be less than 10MB"}, dErrors.ViolationsOf(err))
		s.Equal(domain.StepIDScanFront, s.orch.CurrentStep())
	})
}

func (s *OrchestratorSuite) TestAdvanceAtLastStepStays() {
	s.restore(testutil.NewStateBuilder().AtStep(domain.StepResult).Build())

	next, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepResult, next)
	history := s.orch.State().StepHistory
	s.Equal(domain.StepResult, history[len(history)-1])
	s.Len(history, domain.StepCount()+1)
}

func (s *OrchestratorSuite) TestRetreat() {
	s.Run("at first step stays", func() {
		s.Equal(domain.StepWelcome, s.orch.Retreat())
		s.Equal([]domain.Step{domain.StepWelcome, domain.StepWelcome}, s.orch.State().StepHistory)
	})

	s.Run("moves back without validation", func() {
		s.restore(testutil.NewStateBuilder().AtStep(domain.StepOCRPreview).Build())
		s.Equal(domain.StepIDScanBack, s.orch.Retreat())
		s.Equal(domain.StepIDScanBack, s.orch.CurrentStep())
	})
}

func (s *OrchestratorSuite) TestSetStep() {
	s.Run("jumps without validation", func() {
		s.Require().NoError(s.orch.SetStep(domain.StepReview))
		s.Equal(domain.StepReview, s.orch.CurrentStep())
		s.Equal([]domain.Step{domain.StepWelcome, domain.StepReview}, s.orch.State().StepHistory)
	})

	s.Run("rejects unknown step", func() {
		err := s.orch.SetStep(domain.Step("nowhere"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal(domain.StepReview, s.orch.CurrentStep())
	})
}

func (s *OrchestratorSuite) TestUpdateDataIsShallow() {
	ocr := domain.OCRFields{FullName: "Only Name"}
	s.orch.UpdateData(domain.EvidenceUpdate{ExtractedFields: &ocr})
	data := s.orch.Data()
	s.Equal("Only Name", data.ExtractedFields.FullName)
	s.Empty(data.ExtractedFields.IssuingAuthority, "nested object is replaced, not merged")

	front := testutil.PNG("front.png", 64)
	s.orch.UpdateData(domain.EvidenceUpdate{Front: front})
	data = s.orch.Data()
	s.Equal("Only Name", data.ExtractedFields.FullName)
	s.Equal(front.Data, data.Front.Data)

	s.orch.UpdateData(domain.EvidenceUpdate{ClearFront: true})
	s.Nil(s.orch.Data().Front)
}

func (s *OrchestratorSuite) TestDocumentSideEffectMergesExtractedFields() {
	state := testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("national_id").WithImages().WithSession(session()).Build()
	s.restore(state)

	s.verifier.EXPECT().
		SubmitDocument(gomock.Any(), "sess-42", "national_id", state.Data.Front, state.Data.Back, "session-token").
		DoAndReturn(func(context.Context, string, string, *domain.Image, *domain.Image, string) (*client.Response, error) {
			// The orchestrator must not hold its lock across the call.
			s.Equal(domain.StepIDScanBack, s.orch.State().CurrentStep)
			return &client.Response{
				Success: true,
				Data:    json.RawMessage(`{"extracted_fields":{"fullName":"ABEBE BIKILA","idNumber":"ET-1","unmapped":true}}`),
			}, nil
		})

	next, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepOCRPreview, next)

	ocr := s.orch.Data().ExtractedFields
	s.Equal("ABEBE BIKILA", ocr.FullName)
	s.Equal("ET-1", ocr.IDNumber)
	s.Equal(domain.DefaultDateOfExpiry, ocr.DateOfExpiry)
	s.Equal(domain.DefaultIssuingAuthority, ocr.IssuingAuthority)
}

func (s *OrchestratorSuite) TestDocumentSideEffectFailureIsSilent() {
	s.restore(testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("passport").WithImages().WithSession(session()).Build())

	s.verifier.EXPECT().
		SubmitDocument(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("backend down"))

	next, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepOCRPreview, next)
	s.Equal(domain.DefaultOCRFields(), s.orch.Data().ExtractedFields)
	s.Contains(s.logs.String(), "document verification failed")
}

func (s *OrchestratorSuite) TestMalformedExtractedFieldSkippedOthersApplied() {
	s.restore(testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("passport").WithImages().WithSession(session()).Build())

	s.verifier.EXPECT().
		SubmitDocument(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&client.Response{Success: true, Data: json.RawMessage(
			`{"extracted_fields":{"fullName":"Abebe Bikila","dateOfBirth":"1990-01-01","idNumber":123456789}}`,
		)}, nil)

	_, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)

	ocr := s.orch.Data().ExtractedFields
	s.Equal("Abebe Bikila", ocr.FullName)
	s.Equal("1990-01-01", ocr.DateOfBirth)
	s.Empty(ocr.IDNumber)
	s.Equal(domain.DefaultIssuingAuthority, ocr.IssuingAuthority)
	s.Contains(s.logs.String(), "ignoring malformed extracted fields")
	s.Contains(s.logs.String(), "idNumber")
}

func (s *OrchestratorSuite) TestSideEffectsSkipped() {
	s.Run("no session", func() {
		s.restore(testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("passport").WithImages().Build())
		_, err := s.orch.Advance(s.ctx)
		s.NoError(err)
	})

	s.Run("auto OCR disabled", func() {
		orch := New(s.verifier, WithAutoOCR(false))
		s.Require().NoError(orch.Restore(testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("passport").WithImages().WithSession(session()).Build()))
		_, err := orch.Advance(s.ctx)
		s.NoError(err)
	})

	s.Run("face verification disabled", func() {
		orch := New(s.verifier, WithFaceVerification(false))
		s.Require().NoError(orch.Restore(testutil.NewStateBuilder().AtStep(domain.StepSelfie).WithImages().WithSession(session()).Build()))
		_, err := orch.Advance(s.ctx)
		s.NoError(err)
	})

	s.Run("validation failure runs no side effect", func() {
		state := testutil.NewStateBuilder().AtStep(domain.StepIDScanBack).WithIDType("passport").WithSession(session()).Build()
		state.Data.Front = testutil.PNG("front.png", 64)
		s.restore(state)
		_, err := s.orch.Advance(s.ctx)
		s.Equal([]string{"Back image must be captured"}, dErrors.ViolationsOf(err))
	})

	s.Run("nil verifier", func() {
		orch := New(nil)
		s.Require().NoError(orch.Restore(testutil.NewStateBuilder().AtStep(domain.StepSelfie).WithImages().WithSession(session()).Build()))
		next, err := orch.Advance(s.ctx)
		s.NoError(err)
		s.Equal(domain.StepReview, next)
	})
}

func (s *OrchestratorSuite) TestFaceSideEffect() {
	state := testutil.NewStateBuilder().AtStep(domain.StepSelfie).WithImages().WithSession(session()).Build()
	s.restore(state)

	s.verifier.EXPECT().
		SubmitFace(gomock.Any(), "sess-42", state.Data.Selfie, state.Data.Front, "session-token").
		Return(nil, errors.New("face mismatch"))

	next, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepReview, next)
	s.Contains(s.logs.String(), "face verification failed")
}

func (s *OrchestratorSuite) TestReviewRequiresEverything() {
	s.restore(testutil.NewStateBuilder().AtStep(domain.StepReview).WithIDType("passport").Build())

	_, err := s.orch.Advance(s.ctx)
	s.Require().Error(err)
	violations := dErrors.ViolationsOf(err)
	s.Contains(violations, "Front image is required")
	s.Equal(domain.StepReview, s.orch.CurrentStep())

	s.restore(testutil.NewStateBuilder().AtStep(domain.StepReview).Complete().Build())
	next, err := s.orch.Advance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepProcessing, next)
}

func (s *OrchestratorSuite) TestResetRestoresInitialState() {
	s.restore(testutil.NewStateBuilder().AtStep(domain.StepReview).Complete().WithSession(session()).
		WithResult(&domain.VerificationResult{Status: domain.StatusApproved}).Build())

	s.orch.Reset()

	s.Equal(domain.NewWorkflowState(), s.orch.State())
}

func (s *OrchestratorSuite) TestRestoreRejectsInvalidState() {
	bad := domain.NewWorkflowState()
	bad.StepHistory = nil
	err := s.orch.Restore(bad)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(domain.NewWorkflowState(), s.orch.State())
}

func (s *OrchestratorSuite) TestAccessorsReturnCopies() {
	s.orch.SetSession(session())
	got := s.orch.Session()
	got.ID = "mutated"
	s.Equal("sess-42", s.orch.Session().ID)

	s.orch.SetResult(&domain.VerificationResult{Status: domain.StatusPending, Message: "wait"})
	res := s.orch.Result()
	res.Message = "changed"
	s.Equal("wait", s.orch.Result().Message)

	state := s.orch.State()
	state.StepHistory[0] = domain.StepResult
	s.Equal(domain.StepWelcome, s.orch.State().StepHistory[0])
}

func (s *OrchestratorSuite) TestProgress() {
	s.Require().NoError(s.orch.SetStep(domain.StepOCRPreview))
	p := s.orch.Progress()
	s.Equal(4, p.CurrentStepIndex)
	s.Equal(9, p.TotalSteps)
	s.True(p.CanGoBack)
	s.True(p.CanGoNext)
}

func TestMergeOCR(t *testing.T) {
	base := domain.DefaultOCRFields()
	base.Gender = "F"
	base.DocumentStatus = &domain.DocumentStatus{IsValid: true, IsOlderThan18: true, IsDocumentAccepted: true}

	merged, skipped := mergeOCR(base, map[string]json.RawMessage{
		"fullName":       json.RawMessage(`"Tirunesh Dibaba"`),
		"documentStatus": json.RawMessage(`{"is_valid":true}`),
	})

	assert.Empty(t, skipped)
	assert.Equal(t, "Tirunesh Dibaba", merged.FullName)
	assert.Equal(t, "F", merged.Gender)
	assert.Equal(t, domain.DefaultIssuingAuthority, merged.IssuingAuthority)
	require.NotNil(t, merged.DocumentStatus)
	assert.Equal(t, domain.DocumentStatus{IsValid: true}, *merged.DocumentStatus)
	assert.True(t, base.DocumentStatus.IsDocumentAccepted, "base is not modified")
}

func TestMergeOCRLocalizedFields(t *testing.T) {
	merged, skipped := mergeOCR(domain.DefaultOCRFields(), map[string]json.RawMessage{
		"fullName":              json.RawMessage(`"Abebe Bikila"`),
		"fullNameAmharic":       json.RawMessage(`"አበበ ቢቂላ"`),
		"dateOfBirthEthiopian":  json.RawMessage(`"1924-08-07"`),
		"dateOfIssueEthiopian":  json.RawMessage(`"2015-01-01"`),
		"dateOfExpiryEthiopian": json.RawMessage(`"2025-01-01"`),
	})

	assert.Empty(t, skipped)
	assert.Equal(t, "Abebe Bikila", merged.FullName)
	assert.Equal(t, "አበበ ቢቂላ", merged.FullNameLocal)
	assert.Equal(t, "1924-08-07", merged.DateOfBirthLocal)
	assert.Equal(t, "2015-01-01", merged.DateOfIssueLocal)
	assert.Equal(t, "2025-01-01", merged.DateOfExpiryLocal)
}

func TestMergeOCRSkipsOnlyMistypedKeys(t *testing.T) {
	merged, skipped := mergeOCR(domain.DefaultOCRFields(), map[string]json.RawMessage{
		"fullName":       json.RawMessage(`"Abebe Bikila"`),
		"dateOfBirth":    json.RawMessage(`"1990-01-01"`),
		"idNumber":       json.RawMessage(`123456789`),
		"documentStatus": json.RawMessage(`"valid"`),
		"unmapped":       json.RawMessage(`true`),
	})

	assert.Equal(t, []string{"documentStatus", "idNumber"}, skipped)
	assert.Equal(t, "Abebe Bikila", merged.FullName)
	assert.Equal(t, "1990-01-01", merged.DateOfBirth)
	assert.Empty(t, merged.IDNumber)
	assert.Nil(t, merged.DocumentStatus)
	assert.Equal(t, domain.DefaultDateOfExpiry, merged.DateOfExpiry)
}
