package kyc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/mockbackend"
	"kycflow/internal/verification/client"
	"kycflow/internal/workflow/store"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/testutil"
)

const testAPIKey = "test-api-key-123"

// recorder collects published events by type.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (r *recorder) subscribeAll(sdk *SDK) {
	for _, t := range []EventType{EventStepChanged, EventProgressUpdated, EventVerificationComplete, EventError} {
		sdk.Subscribe(t, r.handle)
	}
}

type SDKSuite struct {
	suite.Suite
	ctx      context.Context
	backend  *mockbackend.Backend
	evidence *httptest.Server
	results  *httptest.Server
	store    *store.InMemoryStore
	sdk      *SDK
	events   *recorder
}

func TestSDKSuite(t *testing.T) {
	suite.Run(t, new(SDKSuite))
}

func (s *SDKSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.backend, err = mockbackend.New(mockbackend.Config{APIKey: testAPIKey, SigningKey: "test-signing-key", HashCost: 4})
	s.Require().NoError(err)
	s.evidence = httptest.NewServer(s.backend.EvidenceRouter())
	s.results = httptest.NewServer(s.backend.ResultsRouter())
	s.store = store.NewInMemoryStore()
	s.sdk = s.newSDK(s.config())
	s.events = &recorder{}
	s.events.subscribeAll(s.sdk)
}

func (s *SDKSuite) TearDownTest() {
	s.evidence.Close()
	s.results.Close()
}

func (s *SDKSuite) config() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = s.evidence.URL
	cfg.ResultsURL = s.results.URL
	cfg.Timeout = 2 * time.Second
	cfg.RetryAttempts = 0
	cfg.Auth = domain.Credentials{APIKey: testAPIKey, TenantID: "tenant-1"}
	return cfg
}

func (s *SDKSuite) newSDK(cfg Config, opts ...Option) *SDK {
	opts = append([]Option{
		WithSnapshotStore(s.store),
		WithRetryBackoff(client.Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}, opts...)
	return New(cfg, opts...)
}

func (s *SDKSuite) update(u domain.EvidenceUpdate) {
	s.Require().NoError(s.sdk.UpdateData(s.ctx, u))
}

func (s *SDKSuite) next(expected domain.Step) {
	s.Require().NoError(s.sdk.NextStep(s.ctx))
	s.Require().Equal(expected, s.sdk.CurrentStep())
}

func (s *SDKSuite) TestInitializeValidatesConfig() {
	cases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"missing api key", func(c *Config) { c.Auth.APIKey = "" }, "API key is required"},
		{"short api key", func(c *Config) { c.Auth.APIKey = "short" }, "API key appears to be invalid (too short)"},
		{"invalid base url", func(c *Config) { c.BaseURL = "not a url" }, "API base URL is invalid"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			cfg := s.config()
			tc.mutate(&cfg)
			sdk := s.newSDK(cfg)

			err := sdk.Initialize(s.ctx)
			s.Require().Error(err)
			s.True(dErrors.IsValidation(err))
			s.Contains(dErrors.ViolationsOf(err), tc.message)
			s.False(sdk.Initialized())
		})
	}
}

func (s *SDKSuite) TestInitializeTracksDemoMode() {
	s.Require().NoError(s.sdk.Initialize(s.ctx))
	s.False(s.sdk.DemoMode())

	s.backend.SetHealthy(false)
	s.True(s.sdk.RefreshDemoMode(s.ctx))
	s.True(s.sdk.DemoMode())

	s.backend.SetHealthy(true)
	s.False(s.sdk.RefreshDemoMode(s.ctx))

	s.Run("unreachable backend still initializes", func() {
		cfg := s.config()
		cfg.BaseURL = "http://127.0.0.1:1"
		sdk := s.newSDK(cfg)
		s.Require().NoError(sdk.Initialize(s.ctx))
		s.True(sdk.DemoMode())
	})
}

func (s *SDKSuite) TestInitializeConcurrentCallersShareOneRun() {
	result := testutil.RunConcurrent(10, func(int) error {
		return s.sdk.Initialize(s.ctx)
	})
	s.Equal(10, result.Successes)
	s.True(s.sdk.Initialized())
}

func (s *SDKSuite) TestFullWorkflow() {
	session, err := s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)
	s.Require().NoError(s.sdk.StartVerification(s.ctx, nil))
	s.Equal(session.ID, s.sdk.Session().ID)
	s.Equal(domain.StepWelcome, s.sdk.CurrentStep())

	s.next(domain.StepIDTypeSelection)
	idType := "national_id"
	s.update(domain.EvidenceUpdate{IDType: &idType})
	s.next(domain.StepIDScanFront)
	s.update(domain.EvidenceUpdate{Front: testutil.PNG("front.png", 1024)})
	s.next(domain.StepIDScanBack)
	s.update(domain.EvidenceUpdate{Back: testutil.PNG("back.png", 1024)})
	s.next(domain.StepOCRPreview)

	ocr := s.sdk.Data().ExtractedFields
	s.Equal("Demo User", ocr.FullName)
	s.NotEmpty(ocr.IDNumber)

	s.next(domain.StepSelfie)
	s.update(domain.EvidenceUpdate{Selfie: testutil.JPEG("selfie.jpg", 1024)})
	s.next(domain.StepReview)
	stored, ok := s.backend.Session(session.ID)
	s.Require().True(ok)
	s.Equal(mockbackend.StatusFaceSubmitted, stored.Status)

	s.next(domain.StepProcessing)
	s.next(domain.StepResult)

	result, err := s.sdk.CompleteVerification(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StatusApproved, result.Status)
	s.Equal(domain.StatusApproved, s.sdk.Result().Status)

	completed := s.events.ofType(EventVerificationComplete)
	s.Require().Len(completed, 1)
	s.Equal(domain.StatusApproved, completed[0].Result.Status)
	s.Empty(s.events.ofType(EventError))

	saved, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepResult, saved.CurrentStep)
	s.Require().NotNil(saved.Result)
}

func (s *SDKSuite) TestNavigationPublishesStepAndProgress() {
	s.Require().NoError(s.sdk.StartVerification(s.ctx, &domain.Session{ID: "manual", Status: "pending"}))
	s.next(domain.StepIDTypeSelection)
	s.Require().NoError(s.sdk.PreviousStep(s.ctx))

	steps := s.events.ofType(EventStepChanged)
	s.Require().Len(steps, 3)
	s.Equal(domain.StepWelcome, steps[0].Step)
	s.Equal(domain.StepIDTypeSelection, steps[1].Step)
	s.Equal(domain.StepWelcome, steps[2].Step)

	progress := s.events.ofType(EventProgressUpdated)
	s.Require().Len(progress, 2)
	s.Equal(1, progress[0].Progress.CurrentStepIndex)
	s.Equal(len(domain.Steps()), progress[0].Progress.TotalSteps)
}

func (s *SDKSuite) TestNextStepValidationFailure() {
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepIDTypeSelection))

	err := s.sdk.NextStep(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.IsValidation(err))
	s.Equal([]string{"ID type must be selected"}, dErrors.ViolationsOf(err))
	s.Equal(domain.StepIDTypeSelection, s.sdk.CurrentStep())

	published := s.events.ofType(EventError)
	s.Require().Len(published, 1)
	s.True(dErrors.IsValidation(published[0].Err))
}

func (s *SDKSuite) TestBackendFailureDuringNavigationGoesToSubscribersOnly() {
	cfg := s.config()
	cfg.SessionID = "does-not-exist"
	sdk := s.newSDK(cfg)
	events := &recorder{}
	events.subscribeAll(sdk)

	s.NoError(sdk.StartVerification(s.ctx, nil))
	s.Nil(sdk.Session())

	published := events.ofType(EventError)
	s.Require().Len(published, 1)
	s.Equal(client.KindTransport, client.KindOf(published[0].Err))
	s.Empty(events.ofType(EventStepChanged))

	s.Run("without subscribers the error is dropped", func() {
		quiet := s.newSDK(cfg)
		s.NoError(quiet.StartVerification(s.ctx, nil))
	})
}

func (s *SDKSuite) TestSideEffectFailureDoesNotBlockAdvance() {
	session, err := s.sdk.Client().CreateSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)
	state := testutil.NewStateBuilder().
		AtStep(domain.StepIDScanBack).
		WithIDType("national_id").
		WithImages().
		WithSession(session).
		Build()
	s.Require().NoError(s.store.Save(s.ctx, state))
	s.Require().NoError(s.sdk.Initialize(s.ctx))

	s.backend.FailNext(mockbackend.OpDocument, http.StatusInternalServerError, 5)
	s.next(domain.StepOCRPreview)
	s.Empty(s.events.ofType(EventError))
	s.Equal(domain.DefaultOCRFields(), s.sdk.Data().ExtractedFields)
}

func (s *SDKSuite) TestGoToStepRejectsUnknownStep() {
	err := s.sdk.GoToStep(s.ctx, domain.Step("bogus"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Len(s.events.ofType(EventError), 1)
	s.Equal(domain.StepWelcome, s.sdk.CurrentStep())
}

func (s *SDKSuite) TestPreviousStepClampsAtWelcome() {
	s.Require().NoError(s.sdk.PreviousStep(s.ctx))
	s.Equal(domain.StepWelcome, s.sdk.CurrentStep())
}

func (s *SDKSuite) TestPersistenceRestoresSnapshot() {
	saved := testutil.NewStateBuilder().AtStep(domain.StepSelfie).Complete().Build()
	s.Require().NoError(s.store.Save(s.ctx, saved))

	s.Require().NoError(s.sdk.Initialize(s.ctx))
	s.Equal(domain.StepSelfie, s.sdk.CurrentStep())
	s.Equal("national_id", s.sdk.Data().IDType)

	s.Run("disabled persistence ignores the snapshot", func() {
		cfg := s.config()
		cfg.EnablePersistence = false
		sdk := s.newSDK(cfg)
		s.Require().NoError(sdk.Initialize(s.ctx))
		s.Equal(domain.StepWelcome, sdk.CurrentStep())
	})
}

func (s *SDKSuite) TestMutationsPersistSnapshot() {
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepReview))
	saved, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StepReview, saved.CurrentStep)

	s.Require().NoError(s.sdk.Reset(s.ctx))
	s.Equal(domain.StepWelcome, s.sdk.CurrentStep())
	_, err = s.store.Load(s.ctx)
	s.ErrorIs(err, store.ErrNotFound)
	s.Equal(domain.StepWelcome, s.events.ofType(EventStepChanged)[1].Step)
}

func (s *SDKSuite) TestOperationGuard() {
	session, err := s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	router := s.backend.EvidenceRouter()
	gated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/status") {
			once.Do(func() { close(entered) })
			<-release
		}
		router.ServeHTTP(w, r)
	}))
	defer gated.Close()

	cfg := s.config()
	cfg.BaseURL = gated.URL
	cfg.SessionID = session.ID
	sdk := s.newSDK(cfg)
	s.Require().NoError(sdk.Initialize(s.ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- sdk.StartVerification(s.ctx, nil) }()
	<-entered

	s.ErrorIs(sdk.NextStep(s.ctx), ErrOperationInProgress)
	s.ErrorIs(sdk.UpdateData(s.ctx, domain.EvidenceUpdate{}), ErrOperationInProgress)
	s.ErrorIs(sdk.GoToStep(s.ctx, domain.StepReview), ErrOperationInProgress)

	close(release)
	s.Require().NoError(<-errCh)
	s.Equal(session.ID, sdk.Session().ID)

	result := testutil.RunConcurrent(8, func(int) error {
		return sdk.UpdateData(s.ctx, domain.EvidenceUpdate{})
	})
	s.Equal(8, result.Total())
	s.Equal(8, result.Successes+result.Count(dErrors.CodeConflict))
}

func (s *SDKSuite) TestDestroyWaitsForInFlightOperation() {
	session, err := s.sdk.Client().CreateSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)
	state := testutil.NewStateBuilder().
		AtStep(domain.StepIDScanBack).
		WithIDType("national_id").
		WithImages().
		WithSession(session).
		Build()
	s.Require().NoError(s.store.Save(s.ctx, state))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	router := s.backend.EvidenceRouter()
	gated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/document") {
			once.Do(func() { close(entered) })
			<-release
		}
		router.ServeHTTP(w, r)
	}))
	defer gated.Close()

	cfg := s.config()
	cfg.BaseURL = gated.URL
	sdk := s.newSDK(cfg)
	s.Require().NoError(sdk.Initialize(s.ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- sdk.NextStep(s.ctx) }()
	<-entered

	destroyed := make(chan struct{})
	go func() {
		sdk.Destroy(s.ctx)
		close(destroyed)
	}()

	select {
	case <-destroyed:
		s.Fail("Destroy returned while NextStep was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	s.Require().NoError(<-errCh)
	<-destroyed

	s.Equal(domain.StepWelcome, sdk.CurrentStep())
	_, err = s.store.Load(s.ctx)
	s.ErrorIs(err, store.ErrNotFound)
	s.ErrorIs(sdk.NextStep(s.ctx), ErrDestroyed)
}

func (s *SDKSuite) TestDestroy() {
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepReview))
	s.sdk.Destroy(s.ctx)

	s.Equal(domain.StepWelcome, s.sdk.CurrentStep())
	s.False(s.sdk.Initialized())
	_, err := s.store.Load(s.ctx)
	s.ErrorIs(err, store.ErrNotFound)

	s.ErrorIs(s.sdk.Initialize(s.ctx), ErrDestroyed)
	s.ErrorIs(s.sdk.NextStep(s.ctx), ErrDestroyed)
	s.ErrorIs(s.sdk.PreviousStep(s.ctx), ErrDestroyed)
	s.ErrorIs(s.sdk.Reset(s.ctx), ErrDestroyed)
	_, err = s.sdk.CompleteVerification(s.ctx)
	s.ErrorIs(err, ErrDestroyed)
}

func (s *SDKSuite) TestCompleteVerificationWithoutSession() {
	_, err := s.sdk.CompleteVerification(s.ctx)
	s.Require().ErrorIs(err, ErrNoActiveSession)
	s.Equal("No active session found", err.Error())

	published := s.events.ofType(EventError)
	s.Require().Len(published, 1)
	s.True(errors.Is(published[0].Err, ErrNoActiveSession))
}

func (s *SDKSuite) TestCompleteVerificationDecisions() {
	session, err := s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{
		CustomData: &client.SessionCustomData{Metadata: map[string]any{"mock_decision": "MANUAL_REVIEW"}},
	})
	s.Require().NoError(err)
	s.Require().NotNil(session)

	result, err := s.sdk.CompleteVerification(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StatusUnderReview, result.Status)
	s.Require().NotNil(result.ReviewRequired)
	s.True(*result.ReviewRequired)
}

func (s *SDKSuite) TestCompleteVerificationBackendError() {
	_, err := s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)

	s.backend.FailNext(mockbackend.OpFinalResults, http.StatusInternalServerError, 1)
	_, err = s.sdk.CompleteVerification(s.ctx)
	s.Require().Error(err)
	s.Equal(client.KindServer, client.KindOf(err))
	s.Len(s.events.ofType(EventError), 1)
	s.Nil(s.sdk.Result())
}

func (s *SDKSuite) TestUpdateCredentials() {
	err := s.sdk.UpdateCredentials(s.ctx, domain.Credentials{APIKey: "short"})
	s.Require().Error(err)
	s.True(dErrors.IsValidation(err))
	s.Len(s.events.ofType(EventError), 1)
	s.True(s.sdk.CredentialsInfo().HasAPIKey)
	s.Equal("tenant-1", s.sdk.CredentialsInfo().TenantID)

	s.Require().NoError(s.sdk.UpdateCredentials(s.ctx, domain.Credentials{APIKey: "wrong-api-key-000", UserID: "user-9"}))
	info := s.sdk.CredentialsInfo()
	s.Equal("user-9", info.UserID)
	s.Empty(info.TenantID)

	_, err = s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{})
	s.Require().Error(err)
	s.Equal(client.KindAuth, client.KindOf(err))
	s.ErrorIs(err, dErrors.New(dErrors.CodeUnauthorized, ""))
}

func (s *SDKSuite) TestAvailableIDTypes() {
	s.Equal(client.FallbackIDTypes(), s.sdk.AvailableIDTypes(s.ctx))

	_, err := s.sdk.CreateVerificationSession(s.ctx, client.CreateSessionRequest{})
	s.Require().NoError(err)
	types := s.sdk.AvailableIDTypes(s.ctx)
	s.Len(types, len(client.FallbackIDTypes())+1)

	s.Run("initialization failure yields an empty list", func() {
		cfg := s.config()
		cfg.Auth.APIKey = ""
		sdk := s.newSDK(cfg)
		events := &recorder{}
		events.subscribeAll(sdk)

		s.Empty(sdk.AvailableIDTypes(s.ctx))
		s.Len(events.ofType(EventError), 1)
	})
}

func (s *SDKSuite) TestHandlersMayCallBackIntoSDK() {
	var seen []domain.Step
	s.sdk.Subscribe(EventStepChanged, func(ctx context.Context, _ Event) {
		seen = append(seen, s.sdk.CurrentStep())
	})
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepSelfie))
	s.Equal([]domain.Step{domain.StepSelfie}, seen)
}

func (s *SDKSuite) TestUnsubscribe() {
	calls := 0
	unsubscribe := s.sdk.Subscribe(EventStepChanged, func(context.Context, Event) { calls++ })
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepSelfie))
	unsubscribe()
	unsubscribe()
	s.Require().NoError(s.sdk.GoToStep(s.ctx, domain.StepReview))
	s.Equal(1, calls)
}

func (s *SDKSuite) TestSetSession() {
	s.Require().NoError(s.sdk.SetSession(s.ctx, &domain.Session{ID: "demo-session", Status: "pending"}))
	s.Equal("demo-session", s.sdk.Session().ID)
	saved, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal("demo-session", saved.Session.ID)
}
