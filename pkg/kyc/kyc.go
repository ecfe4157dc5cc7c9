// Package kyc is the public entry point of the workflow SDK. An SDK binds
// credentials to a verification client, drives the step orchestrator, persists
// snapshots after every mutation and publishes workflow events to subscribers.
package kyc

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"kycflow/internal/platform/logger"
	"kycflow/internal/verification/client"
	"kycflow/internal/verification/metrics"
	"kycflow/internal/verification/tracer"
	"kycflow/internal/workflow/events"
	"kycflow/internal/workflow/orchestrator"
	"kycflow/internal/workflow/store"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/circuit"
)

var (
	// ErrOperationInProgress is returned when a mutating call overlaps another.
	ErrOperationInProgress = dErrors.New(dErrors.CodeConflict, "another KYC operation is in progress")
	// ErrDestroyed is returned by mutating calls after Destroy.
	ErrDestroyed = dErrors.New(dErrors.CodeInvalidState, "KYC SDK instance has been destroyed")
	// ErrNoActiveSession is returned when completing without a session.
	ErrNoActiveSession = dErrors.New(dErrors.CodeSessionError, "No active session found")
)

// Config holds the SDK settings. Start from DefaultConfig.
type Config struct {
	BaseURL       string
	ResultsURL    string
	Timeout       time.Duration
	RetryAttempts int
	CallbackURL   string
	UserAgent     string

	// SessionID names a backend session StartVerification loads when no
	// session is passed in.
	SessionID string

	EnableAutoOCR          bool
	EnableFaceVerification bool
	EnablePersistence      bool
	Debug                  bool

	Auth domain.Credentials
}

// DefaultConfig returns the stock settings with every feature enabled.
func DefaultConfig() Config {
	return Config{
		BaseURL:                client.DefaultBaseURL,
		ResultsURL:             client.DefaultResultsURL,
		Timeout:                client.DefaultTimeout,
		RetryAttempts:          3,
		EnableAutoOCR:          true,
		EnableFaceVerification: true,
		EnablePersistence:      true,
	}
}

type (
	Session            = domain.Session
	VerificationResult = domain.VerificationResult
	SnapshotStore      = store.SnapshotStore
	EventType          = events.Type
	Event              = events.Event
	EventHandler       = events.Handler
)

const (
	EventStepChanged          = events.StepChanged
	EventProgressUpdated      = events.ProgressUpdated
	EventVerificationComplete = events.VerificationComplete
	EventError                = events.Error
)

// SDK runs one verification workflow. Mutating calls must not overlap: an
// overlapping call fails fast with ErrOperationInProgress.
type SDK struct {
	cfg     Config
	client  *client.Client
	orch    *orchestrator.Orchestrator
	store   *store.BestEffort
	bus     *events.Bus
	breaker *circuit.Breaker
	logger  *slog.Logger

	initGroup singleflight.Group
	busy      atomic.Bool
	inflight  sync.WaitGroup

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	creds       domain.Credentials
}

type options struct {
	logger  *slog.Logger
	store   store.SnapshotStore
	doer    client.HTTPDoer
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	limiter *rate.Limiter
	backoff *client.Backoff
}

// Option configures an SDK.
type Option func(*options)

// WithLogger sets the logger. Without one, Debug selects a text logger on
// stderr and otherwise output is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSnapshotStore sets where snapshots are persisted. Defaults to memory.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(o *options) { o.store = s }
}

// WithHTTPClient sets the transport used for backend calls.
func WithHTTPClient(doer client.HTTPDoer) Option {
	return func(o *options) { o.doer = doer }
}

// WithTracer enables span tracing of backend calls.
func WithTracer(t tracer.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics enables Prometheus metrics for backend calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRateLimiter throttles outbound backend requests.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithRetryBackoff overrides the spacing between retries.
func WithRetryBackoff(b client.Backoff) Option {
	return func(o *options) { o.backoff = &b }
}

// New builds an SDK from cfg. No I/O happens until Initialize.
func New(cfg Config, opts ...Option) *SDK {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	log := o.logger
	switch {
	case log != nil:
	case cfg.Debug:
		log = logger.NewWithWriter(os.Stderr, "debug", "text")
	default:
		log = slog.New(slog.DiscardHandler)
	}

	clientOpts := []client.Option{client.WithLogger(log)}
	if o.doer != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.doer))
	}
	if o.tracer != nil {
		clientOpts = append(clientOpts, client.WithTracer(o.tracer))
	}
	if o.metrics != nil {
		clientOpts = append(clientOpts, client.WithMetrics(o.metrics))
	}
	if o.limiter != nil {
		clientOpts = append(clientOpts, client.WithRateLimiter(o.limiter))
	}
	if o.backoff != nil {
		clientOpts = append(clientOpts, client.WithBackoff(*o.backoff))
	}

	apiClient := client.New(client.Config{
		BaseURL:       cfg.BaseURL,
		ResultsURL:    cfg.ResultsURL,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		CallbackURL:   cfg.CallbackURL,
		UserAgent:     cfg.UserAgent,
	}, cfg.Auth, clientOpts...)

	snapshots := o.store
	if snapshots == nil {
		snapshots = store.NewInMemoryStore()
	}

	s := &SDK{
		cfg:    cfg,
		client: apiClient,
		orch: orchestrator.New(apiClient,
			orchestrator.WithAutoOCR(cfg.EnableAutoOCR),
			orchestrator.WithFaceVerification(cfg.EnableFaceVerification),
			orchestrator.WithLogger(log),
		),
		store:  store.NewBestEffort(snapshots, log),
		bus:    events.NewBus(events.WithLogger(log)),
		logger: log,
		creds:  cfg.Auth,
	}
	s.breaker = circuit.New("verification-backend",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1),
		circuit.WithOnStateChange(func(t circuit.Transition) {
			s.logger.Info("KYC backend availability changed",
				"demo_mode", t.To == circuit.StateOpen,
				"previous", t.From.String(),
			)
		}),
	)
	return s
}

// Subscribe registers handler for events of type t and returns a function
// that removes it.
func (s *SDK) Subscribe(t EventType, handler EventHandler) (unsubscribe func()) {
	return s.bus.Subscribe(t, handler)
}

// Client exposes the verification client for advanced operations.
func (s *SDK) Client() *client.Client { return s.client }

func (s *SDK) Data() domain.EvidenceData { return s.orch.Data() }
func (s *SDK) CurrentStep() domain.Step { return s.orch.CurrentStep() }
func (s *SDK) Progress() domain.Progress { return s.orch.Progress() }
func (s *SDK) Session() *domain.Session { return s.orch.Session() }
func (s *SDK) State() domain.WorkflowState { return s.orch.State() }
func (s *SDK) Result() *domain.VerificationResult { return s.orch.Result() }

// DemoMode reports whether the last backend probe failed.
func (s *SDK) DemoMode() bool { return s.breaker.IsOpen() }

// Initialized reports whether Initialize has completed successfully.
func (s *SDK) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}
