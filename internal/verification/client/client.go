// Package client talks to the remote verification backend: the evidence
// service (sessions, document and face submissions, id-type catalog) and the
// separate results service.
package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"kycflow/internal/verification/metrics"
	"kycflow/internal/verification/tracer"
	"kycflow/pkg/domain"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultBaseURL     = "http://localhost:3003"
	DefaultResultsURL  = "http://localhost:8001"
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "kycflow-go/1.0"
	DefaultCallbackURL = "https://your-domain.com/webhooks/kyc-status"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backoff configures retry spacing for retryable failures.
type Backoff struct {
	InitialDelay time.Duration // default 100ms
	MaxDelay     time.Duration // default 2s
	Multiplier   float64       // default 2.0
}

// Config holds the per-client settings.
type Config struct {
	BaseURL       string        // evidence service
	ResultsURL    string        // results service, a different deployment
	Timeout       time.Duration // per attempt
	RetryAttempts int           // extra attempts after the first; 0 means one attempt
	CallbackURL   string        // default session callback
	UserAgent     string
}

// Client performs authenticated calls against the verification backend.
// It is safe for concurrent use; credentials can be swapped at any time and
// only affect calls that start afterwards.
type Client struct {
	baseURL     string
	resultsURL  string
	timeout     time.Duration
	retries     int
	callbackURL string
	userAgent   string
	backoff     Backoff

	http    HTTPDoer
	limiter *rate.Limiter
	logger  *slog.Logger
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	creds domain.Credentials
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRateLimiter throttles outbound attempts, retries included.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithBackoff overrides retry spacing. Zero fields keep their defaults.
func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		if b.InitialDelay > 0 {
			c.backoff.InitialDelay = b.InitialDelay
		}
		if b.MaxDelay > 0 {
			c.backoff.MaxDelay = b.MaxDelay
		}
		if b.Multiplier > 0 {
			c.backoff.Multiplier = b.Multiplier
		}
	}
}

// WithClock sets the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a verification client bound to creds.
func New(cfg Config, creds domain.Credentials, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ResultsURL == "" {
		cfg.ResultsURL = DefaultResultsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		resultsURL:  strings.TrimRight(cfg.ResultsURL, "/"),
		timeout:     cfg.Timeout,
		retries:     cfg.RetryAttempts,
		callbackURL: cfg.CallbackURL,
		userAgent:   cfg.UserAgent,
		backoff: Backoff{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		http:   &http.Client{},
		logger: slog.New(slog.DiscardHandler),
		tracer: tracer.NewNoop(),
		now:    time.Now,
		creds:  creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateCredentials replaces the credentials used by subsequent calls.
func (c *Client) UpdateCredentials(creds domain.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// Credentials returns the current credentials.
func (c *Client) Credentials() domain.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// BaseURL returns the evidence service address.
func (c *Client) BaseURL() string { return c.baseURL }

// ResultsURL returns the results service address.
func (c *Client) ResultsURL() string { return c.resultsURL }

// request describes one logical backend call.
type request struct {
	op          string
	method      string
	base        string
	path        string
	token       string
	body        []byte
	contentType string
	noRetry     bool
}

// execute runs r with per-attempt timeouts and bounded retries, returning the
// 2xx response body. Credentials are captured once, before the first attempt.
// POST attempts follow shouldRetry and are never repeated after a 5xx.
func (c *Client) execute(ctx context.Context, r request, span tracer.Span) ([]byte, error) {
	creds := c.Credentials()
	requestID := uuid.NewString()

	retries := c.retries
	if r.noRetry {
		retries = 0
	}

	var lastErr error
	delay := c.backoff.InitialDelay

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetry(r.op)
			span.AddEvent(tracer.EventRetry, tracer.Int(tracer.AttrAttempt, attempt), tracer.Duration("delay_ms", delay))
			c.logger.DebugContext(ctx, "retrying verification call",
				"operation", r.op,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, newAPIError(KindNetwork, r.op, "request cancelled", ctx.Err())
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * c.backoff.Multiplier)
			if delay > c.backoff.MaxDelay {
				delay = c.backoff.MaxDelay
			}
		}

		start := time.Now()
		body, status, err := c.attempt(ctx, r, creds, requestID)
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		c.metrics.ObserveRequest(r.op, outcome, time.Since(start).Seconds())
		if status != 0 {
			span.SetAttributes(tracer.Int(tracer.AttrStatusCode, status))
		}
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !shouldRetry(r.method, err) || ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(tracer.String(tracer.AttrErrorKind, string(KindOf(lastErr))))
	return nil, lastErr
}

// attempt performs a single HTTP exchange under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, r request, creds domain.Credentials, requestID string) ([]byte, int, error) {
	target, err := c.buildURL(r.base, r.path, r.token)
	if err != nil {
		return nil, 0, newAPIError(KindTransport, r.op, "invalid URL construction", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, newAPIError(KindNetwork, r.op, "rate limiter wait", err)
		}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, 0, newAPIError(KindTransport, r.op, "invalid URL construction", err)
	}
	c.setHeaders(req, creds, requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		msg := "no response from verification service"
		if ctx.Err() == context.DeadlineExceeded {
			msg = "request timeout"
		}
		return nil, 0, newAPIError(KindNetwork, r.op, msg, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, newAPIError(KindNetwork, r.op, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, statusError(r.op, resp.StatusCode, respBody)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) buildURL(base, path, token string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &url.Error{Op: "parse", URL: base + path, Err: errMissingHost}
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) setHeaders(req *http.Request, creds domain.Credentials, requestID string) {
	req.Header.Set("x-api-key", creds.APIKey)
	if creds.TenantID != "" {
		req.Header.Set("X-Tenant-ID", creds.TenantID)
	}
	if creds.UserID != "" {
		req.Header.Set("X-User-ID", creds.UserID)
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}

// sessionPath escapes a session id for use as a path segment.
func sessionPath(format, sessionID string) string {
	return strings.Replace(format, "{id}", url.PathEscape(sessionID), 1)
}
