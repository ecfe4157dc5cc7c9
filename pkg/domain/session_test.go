package domain

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromDecision(t *testing.T) {
	tests := []struct {
		decision string
		review   bool
		want     VerificationStatus
	}{
		{DecisionApproved, false, StatusApproved},
		{DecisionApproved, true, StatusApproved},
		{DecisionRejected, false, StatusRejected},
		{DecisionManualReview, true, StatusUnderReview},
		{DecisionManualReview, false, StatusUnderReview},
		{DecisionPending, true, StatusUnderReview},
		{DecisionPending, false, StatusPending},
		{"", false, StatusPending},
		{"approved", false, StatusPending},
		{"SOMETHING_NEW", true, StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFromDecision(tt.decision, tt.review), "%s/%v", tt.decision, tt.review)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "sess-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("any-secret"))
	require.NoError(t, err)
	return s
}

func TestSessionTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("explicit expiresAt wins", func(t *testing.T) {
		s := &Session{ID: "s", ExpiresAt: "2026-03-01T13:00:00Z", Token: signedToken(t, now.Add(-time.Hour))}
		exp, ok := s.TokenExpiry()
		require.True(t, ok)
		assert.True(t, now.Add(time.Hour).Equal(exp))
		assert.False(t, s.IsExpired(now))
	})

	t.Run("falls back to jwt exp claim", func(t *testing.T) {
		s := &Session{ID: "s", Token: signedToken(t, now.Add(-time.Minute))}
		exp, ok := s.TokenExpiry()
		require.True(t, ok)
		assert.Equal(t, now.Add(-time.Minute).Unix(), exp.Unix())
		assert.True(t, s.IsExpired(now))
	})

	t.Run("opaque token has no expiry", func(t *testing.T) {
		s := &Session{ID: "s", Token: "opaque-token"}
		_, ok := s.TokenExpiry()
		assert.False(t, ok)
		assert.False(t, s.IsExpired(now))
	})

	t.Run("nil session", func(t *testing.T) {
		var s *Session
		_, ok := s.TokenExpiry()
		assert.False(t, ok)
	})
}

func TestCredentialsInfoRedacts(t *testing.T) {
	info := Credentials{APIKey: "secret-key-123", TenantID: "t1", UserID: "u1", SessionToken: "tok"}.Info()
	assert.Equal(t, CredentialsInfo{HasAPIKey: true, TenantID: "t1", UserID: "u1"}, info)
	assert.False(t, Credentials{}.Info().HasAPIKey)
}
