// Package mockbackend is an in-memory stand-in for the evidence and results
// services. It speaks the same wire protocol as the real services so the
// verification client can be exercised end to end without external systems.
//
// Test sessions are steered through their metadata:
//
//	mock_decision    APPROVED | REJECTED | MANUAL_REVIEW | PENDING
//	mock_face_match  false makes the face check fail and the decision REJECTED
package mockbackend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kycflow/internal/jwt_token"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/health"
	"kycflow/internal/platform/middleware"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	platformsync "kycflow/pkg/platform/sync"
	limits "kycflow/pkg/platform/validation"
	"kycflow/pkg/secrets"
)

// Operation names a backend endpoint for failure injection.
type Operation string

const (
	OpCreateSession Operation = "create_session"
	OpSessionStatus Operation = "session_status"
	OpDocument      Operation = "document"
	OpFace          Operation = "face"
	OpResults       Operation = "results"
	OpIDTypes       Operation = "id_types"
	OpFinalResults  Operation = "final_results"
)

// Session lifecycle states reported by the status endpoint.
const (
	StatusPending           = "pending"
	StatusDocumentSubmitted = "document_submitted"
	StatusFaceSubmitted     = "face_submitted"
	StatusCompleted         = "completed"
)

const tokenIssuer = "kycflow-mock-verification"

var errBackendDown = errors.New("backend marked unavailable")

// Config holds the mock backend settings.
type Config struct {
	APIKey          string
	SigningKey      string
	SessionTTL      time.Duration
	DefaultDecision string
	MaxUploadBytes  int64
	// HashCost is the bcrypt cost for the stored API key; zero uses the
	// bcrypt default.
	HashCost int
}

// ConfigFrom maps the service configuration onto the backend settings.
func ConfigFrom(sc config.ServerConfig) Config {
	return Config{
		APIKey:          sc.APIKey,
		SigningKey:      sc.SigningKey,
		SessionTTL:      sc.SessionTTL,
		DefaultDecision: sc.DefaultDecision,
	}
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used by the backend and its request middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(b *Backend) {
		if reg != nil {
			b.registry = reg
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Backend holds the sessions and evidence submitted to the mock services.
type Backend struct {
	cfg      Config
	apiKey   *secrets.KeyHash
	tokens   *jwttoken.JWTService
	logger   *slog.Logger
	registry *prometheus.Registry
	now      func() time.Time

	health          *health.Handler
	evidenceMetrics *middleware.Metrics
	resultsMetrics  *middleware.Metrics
	sessionsCreated *prometheus.CounterVec

	healthy atomic.Bool

	// submissions serializes evidence uploads per session so extraction
	// runs outside mu.
	submissions *platformsync.ShardedMutex

	mu       sync.RWMutex
	sessions map[string]*record
	failures map[Operation]*injectedFailure
}

type record struct {
	session      domain.Session
	tenantID     string
	metadata     map[string]any
	device       string
	clientPrefix string
	documentType string
	extracted    map[string]any
	faceMatched  *bool
	createdAt    time.Time
}

type injectedFailure struct {
	status    int
	remaining int
}

// New builds a Backend. The API key is kept only as a bcrypt hash; an empty
// signing key is replaced by a random one.
func New(cfg Config, opts ...Option) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "api key is required")
	}
	hash, err := secrets.HashKey(cfg.APIKey, cfg.HashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to hash api key")
	}
	if cfg.SigningKey == "" {
		if cfg.SigningKey, err = secrets.Generate("sig"); err != nil {
			return nil, err
		}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.DefaultDecision == "" {
		cfg.DefaultDecision = domain.DecisionApproved
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = limits.MaxMultipartSize
	}

	b := &Backend{
		cfg:         cfg,
		apiKey:      hash,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry:    prometheus.NewRegistry(),
		now:         time.Now,
		sessions:    make(map[string]*record),
		submissions: platformsync.NewShardedMutex(),
		failures:    make(map[Operation]*injectedFailure),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.tokens = jwttoken.NewJWTService(cfg.SigningKey, tokenIssuer, cfg.SessionTTL)
	b.tokens.SetClock(b.now)
	b.healthy.Store(true)
	b.health = health.New("mock-verification")
	b.health.RegisterCheck("backend", func() error {
		if !b.healthy.Load() {
			return errBackendDown
		}
		return nil
	})
	b.evidenceMetrics = middleware.NewMetrics(b.registry, "evidence")
	b.resultsMetrics = middleware.NewMetrics(b.registry, "results")
	b.sessionsCreated = promauto.With(b.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "kycflow_mock_sessions_created_total",
		Help: "Verification sessions created by the mock backend",
	}, []string{"tenant"})
	return b, nil
}

// SetHealthy toggles the health endpoints between 200 and 503.
func (b *Backend) SetHealthy(healthy bool) {
	b.healthy.Store(healthy)
}

// FailNext makes the next times calls to op answer with status.
func (b *Backend) FailNext(op Operation, status, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if times <= 0 {
		delete(b.failures, op)
		return
	}
	b.failures[op] = &injectedFailure{status: status, remaining: times}
}

// Session returns a copy of a stored session.
func (b *Backend) Session(id string) (*domain.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.sessions[id]
	if !ok {
		return nil, false
	}
	return rec.session.Clone(), true
}

// SessionCount returns the number of sessions created so far.
func (b *Backend) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Registry exposes the metrics registry.
func (b *Backend) Registry() *prometheus.Registry {
	return b.registry
}

// Sweep drops sessions whose token expired before now and returns how many
// were removed.
func (b *Backend) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, rec := range b.sessions {
		if rec.session.IsExpired(now) {
			delete(b.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (b *Backend) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Sweep(b.now()); n > 0 {
				b.logger.InfoContext(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}

// takeFailure consumes one injected failure for op, if any.
func (b *Backend) takeFailure(op Operation) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.failures[op]
	if !ok {
		return 0, false
	}
	f.remaining--
	if f.remaining <= 0 {
		delete(b.failures, op)
	}
	return f.status, true
}

func (b *Backend) update(id string, fn func(*record)) (*domain.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.sessions[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	fn(rec)
	return rec.session.Clone(), nil
}

func (b *Backend) lookup(id string) (record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.sessions[id]
	if !ok {
		return record{}, false
	}
	return *rec, true
}
