package kyc

import (
	"context"

	"kycflow/pkg/domain"
)

// StartVerification attaches session (or loads Config.SessionID from the
// backend when session is nil) and moves the workflow to the welcome step.
func (s *SDK) StartVerification(ctx context.Context, session *domain.Session) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return s.routeNavigationError(ctx, err)
	}
	done, err := s.begin()
	if err != nil {
		return err
	}

	switch {
	case session != nil:
		s.orch.SetSession(session)
	case s.cfg.SessionID != "":
		loaded, err := s.client.GetSession(ctx, s.cfg.SessionID)
		if err != nil {
			done()
			return s.routeNavigationError(ctx, err)
		}
		s.orch.SetSession(loaded)
	}

	_ = s.orch.SetStep(domain.StepWelcome)
	s.persist(ctx)
	data := s.orch.Data()
	done()

	s.bus.StepChanged(ctx, domain.StepWelcome, data)
	return nil
}

// NextStep validates the current step and advances. A validation failure is
// returned and also published; the step does not change.
func (s *SDK) NextStep(ctx context.Context) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return s.routeNavigationError(ctx, err)
	}
	done, err := s.begin()
	if err != nil {
		return err
	}

	next, err := s.orch.Advance(ctx)
	if err != nil {
		done()
		return s.routeNavigationError(ctx, err)
	}
	s.persist(ctx)
	data, progress := s.orch.Data(), s.orch.Progress()
	done()

	s.bus.StepChanged(ctx, next, data)
	s.bus.ProgressUpdated(ctx, progress)
	return nil
}

// PreviousStep moves one step back without validation.
func (s *SDK) PreviousStep(ctx context.Context) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	prev := s.orch.Retreat()
	s.persist(ctx)
	data, progress := s.orch.Data(), s.orch.Progress()
	done()

	s.bus.StepChanged(ctx, prev, data)
	s.bus.ProgressUpdated(ctx, progress)
	return nil
}

// GoToStep jumps to step without validation.
func (s *SDK) GoToStep(ctx context.Context, step domain.Step) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	if err := s.orch.SetStep(step); err != nil {
		done()
		return s.routeNavigationError(ctx, err)
	}
	s.persist(ctx)
	data, progress := s.orch.Data(), s.orch.Progress()
	done()

	s.bus.StepChanged(ctx, step, data)
	s.bus.ProgressUpdated(ctx, progress)
	return nil
}

// UpdateData merges a partial evidence update and persists the result.
func (s *SDK) UpdateData(ctx context.Context, update domain.EvidenceUpdate) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()
	s.orch.UpdateData(update)
	s.persist(ctx)
	return nil
}

// SetSession attaches a session directly, e.g. one created out of band in
// demo mode.
func (s *SDK) SetSession(ctx context.Context, session *domain.Session) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()
	s.orch.SetSession(session)
	s.persist(ctx)
	return nil
}
