package kyc

import (
	"context"

	"kycflow/internal/verification/client"
	"kycflow/pkg/domain"
)

// CompleteVerification fetches the final decision for the active session and
// stores it. Errors are published and returned.
func (s *SDK) CompleteVerification(ctx context.Context) (*domain.VerificationResult, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, s.publishAndReturn(ctx, err)
	}
	done, err := s.begin()
	if err != nil {
		return nil, err
	}

	session := s.orch.Session()
	if session == nil || session.ID == "" {
		done()
		return nil, s.publishAndReturn(ctx, ErrNoActiveSession)
	}

	result, err := s.client.CompleteVerification(ctx, session.ID, s.orch.Data(), session.Token)
	if err != nil {
		done()
		return nil, s.publishAndReturn(ctx, err)
	}
	s.orch.SetResult(result)
	s.persist(ctx)
	done()

	s.bus.VerificationCompleted(ctx, *result)
	return result.Clone(), nil
}

// CreateVerificationSession creates a backend session and makes it the
// active one. Errors are published and returned.
func (s *SDK) CreateVerificationSession(ctx context.Context, req client.CreateSessionRequest) (*domain.Session, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, s.publishAndReturn(ctx, err)
	}
	done, err := s.begin()
	if err != nil {
		return nil, err
	}

	session, err := s.client.CreateSession(ctx, req)
	if err != nil {
		done()
		return nil, s.publishAndReturn(ctx, err)
	}
	s.orch.SetSession(session)
	s.persist(ctx)
	done()
	return session.Clone(), nil
}

// AvailableIDTypes lists the document types for the active session, falling
// back to the built-in catalog when the backend cannot answer.
func (s *SDK) AvailableIDTypes(ctx context.Context) []domain.IDType {
	if err := s.ensureInitialized(ctx); err != nil {
		s.bus.ReportError(ctx, err)
		return []domain.IDType{}
	}
	var sessionID, token string
	if session := s.orch.Session(); session != nil {
		sessionID, token = session.ID, session.Token
	}
	return s.client.ListIDTypes(ctx, sessionID, token)
}

func (s *SDK) publishAndReturn(ctx context.Context, err error) error {
	s.bus.ReportError(ctx, err)
	return err
}
