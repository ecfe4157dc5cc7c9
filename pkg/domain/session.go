package domain

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerificationStatus is the client-facing outcome of a verification.
type VerificationStatus string

const (
	StatusApproved    VerificationStatus = "approved"
	StatusPending     VerificationStatus = "pending"
	StatusRejected    VerificationStatus = "rejected"
	StatusUnderReview VerificationStatus = "under_review"
)

// IsValid reports whether the status is one of the four known values.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusApproved, StatusPending, StatusRejected, StatusUnderReview:
		return true
	}
	return false
}

// Backend decision vocabulary returned by the results service.
const (
	DecisionApproved     = "APPROVED"
	DecisionRejected     = "REJECTED"
	DecisionManualReview = "MANUAL_REVIEW"
	DecisionPending      = "PENDING"
)

// StatusFromDecision maps a backend decision onto the four-value status enum.
func StatusFromDecision(decision string, reviewRequired bool) VerificationStatus {
	switch decision {
	case DecisionApproved:
		return StatusApproved
	case DecisionRejected:
		return StatusRejected
	case DecisionManualReview:
		return StatusUnderReview
	case DecisionPending:
		if reviewRequired {
			return StatusUnderReview
		}
		return StatusPending
	default:
		return StatusPending
	}
}

// PIIData is the personal data echoed back by the backend for a session.
type PIIData struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// Session is a backend-tracked verification attempt.
type Session struct {
	ID        string          `json:"id"`
	Token     string          `json:"token,omitempty"`
	Status    string          `json:"status"`
	Decision  string          `json:"decision,omitempty"`
	ExpiresAt string          `json:"expiresAt,omitempty"`
	PIIData   *PIIData        `json:"piiData,omitempty"`
	UIData    json.RawMessage `json:"uiData,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.PIIData != nil {
		pii := *s.PIIData
		out.PIIData = &pii
	}
	out.UIData = cloneRaw(s.UIData)
	out.Metadata = cloneRaw(s.Metadata)
	return &out
}

// TokenExpiry returns when the session expires. ExpiresAt wins when the backend
// sent one; otherwise the exp claim of a JWT session token is read without
// verifying the signature. ok is false when neither source yields a time.
func (s *Session) TokenExpiry() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	if s.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, s.ExpiresAt); err == nil {
			return t, true
		}
	}
	if s.Token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether the session is known to have expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	exp, ok := s.TokenExpiry()
	return ok && !now.Before(exp)
}

// VerificationResult is the final outcome retrieved from the results service.
type VerificationResult struct {
	Status         VerificationStatus `json:"status"`
	Decision       string             `json:"decision,omitempty"`
	ReviewRequired *bool              `json:"review_required,omitempty"`
	Message        string             `json:"message,omitempty"`
	UIData         json.RawMessage    `json:"uiData,omitempty"`
	APIResponse    json.RawMessage    `json:"apiResponse,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Clone returns an independent copy of the result.
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.ReviewRequired != nil {
		v := *r.ReviewRequired
		out.ReviewRequired = &v
	}
	out.UIData = cloneRaw(r.UIData)
	out.APIResponse = cloneRaw(r.APIResponse)
	return &out
}

// IDType describes an identity document the tenant accepts.
type IDType struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Code           string `json:"code"`
	RequiresFront  bool   `json:"requiresFront"`
	RequiresBack   bool   `json:"requiresBack"`
	RequiresSelfie bool   `json:"requiresSelfie"`
	Description    string `json:"description,omitempty"`
	Icon           string `json:"icon,omitempty"`
}

// Credentials are the caller-supplied values attached to every backend call.
type Credentials struct {
	APIKey       string `validate:"required,min=10"`
	TenantID     string
	UserID       string
	SessionToken string
}

// CredentialsInfo is a redacted view of Credentials safe to expose.
type CredentialsInfo struct {
	HasAPIKey bool   `json:"hasApiKey"`
	TenantID  string `json:"tenantId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// Info returns the redacted view.
func (c Credentials) Info() CredentialsInfo {
	return CredentialsInfo{
		HasAPIKey: c.APIKey != "",
		TenantID:  c.TenantID,
		UserID:    c.UserID,
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
