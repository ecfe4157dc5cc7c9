package kyc

import (
	"context"
	"errors"

	"kycflow/internal/workflow/validation"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Initialize validates configuration and credentials, probes the backend to
// set demo mode and restores a persisted snapshot when persistence is on.
// Concurrent callers share one initialization; later calls are no-ops.
func (s *SDK) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.destroyed:
		s.mu.Unlock()
		return ErrDestroyed
	case s.initialized:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *SDK) initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	creds := s.creds
	s.mu.Unlock()

	if err := validation.ValidateConfig(creds.APIKey, s.cfg.BaseURL).Err(); err != nil {
		return initError(err)
	}
	if err := validation.ValidateCredentials(creds).Err(); err != nil {
		return initError(err)
	}

	s.refreshDemoMode(ctx)

	if s.cfg.EnablePersistence {
		if saved, ok := s.store.Load(ctx); ok {
			if err := s.orch.Restore(saved); err != nil {
				s.logger.DebugContext(ctx, "discarding unusable workflow snapshot", "error", err)
			}
		}
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	if s.DemoMode() {
		s.logger.InfoContext(ctx, "KYC SDK initialized in demo mode (backend unavailable)")
	} else {
		s.logger.InfoContext(ctx, "KYC SDK initialized with backend connection")
	}
	return nil
}

func initError(err error) error {
	return dErrors.Wrap(err, dErrors.CodeOf(err), "failed to initialize KYC SDK")
}

// ensureInitialized lazily initializes before an operation that needs the
// backend.
func (s *SDK) ensureInitialized(ctx context.Context) error {
	if s.Initialized() {
		return nil
	}
	return s.Initialize(ctx)
}

// RefreshDemoMode re-probes the backend and returns the new demo flag.
func (s *SDK) RefreshDemoMode(ctx context.Context) bool {
	return s.refreshDemoMode(ctx)
}

func (s *SDK) refreshDemoMode(ctx context.Context) bool {
	return s.breaker.Observe(s.client.Probe(ctx))
}

// Reset restores the initial workflow state and clears the stored snapshot.
func (s *SDK) Reset(ctx context.Context) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	s.orch.Reset()
	if s.cfg.EnablePersistence {
		s.store.Clear(ctx)
	}
	step, data, progress := s.orch.CurrentStep(), s.orch.Data(), s.orch.Progress()
	done()

	s.bus.StepChanged(ctx, step, data)
	s.bus.ProgressUpdated(ctx, progress)
	return nil
}

// Destroy marks the SDK unusable, resets state and clears persistence.
// Getters keep working; mutating calls return ErrDestroyed. An operation
// already in flight finishes first, so its snapshot cannot outlive the reset.
func (s *SDK) Destroy(ctx context.Context) {
	s.mu.Lock()
	s.destroyed = true
	s.initialized = false
	s.mu.Unlock()

	s.inflight.Wait()
	s.orch.Reset()
	if s.cfg.EnablePersistence {
		s.store.Clear(ctx)
	}
}

// UpdateCredentials validates and swaps the credentials used for subsequent
// backend calls. Calls already in flight keep the old credentials.
func (s *SDK) UpdateCredentials(ctx context.Context, creds domain.Credentials) error {
	if err := validation.ValidateCredentials(creds).Err(); err != nil {
		s.bus.ReportError(ctx, err)
		return err
	}
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	s.client.UpdateCredentials(creds)
	return nil
}

// CredentialsInfo describes the current credentials without the API key.
func (s *SDK) CredentialsInfo() domain.CredentialsInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Info()
}

// begin claims the operation guard. The returned func releases it.
// Registration happens under mu so Destroy either rejects the call or waits
// for it.
func (s *SDK) begin() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrOperationInProgress
	}
	s.inflight.Add(1)
	return func() {
		s.busy.Store(false)
		s.inflight.Done()
	}, nil
}

func (s *SDK) persist(ctx context.Context) {
	if s.cfg.EnablePersistence {
		s.store.Save(ctx, s.orch.State())
	}
}

// routeNavigationError applies the error policy of navigation operations.
// Usage errors are returned only. Validation and input errors are returned
// and also published. Anything else, backend failures included, goes to the
// error subscribers only and the call reports success.
func (s *SDK) routeNavigationError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOperationInProgress), errors.Is(err, ErrDestroyed):
		return err
	case dErrors.IsValidation(err), dErrors.HasCode(err, dErrors.CodeInvalidInput):
		s.bus.ReportError(ctx, err)
		return err
	default:
		s.bus.ReportError(ctx, err)
		return nil
	}
}
