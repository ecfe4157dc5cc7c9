// Package secrets generates and checks the API keys and signing secrets
// used by the verification services.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "kycflow/pkg/domain-errors"
)

const (
	keyBytes          = 32
	fingerprintLength = 12
)

// Generate returns a random URL-safe secret. A non-empty prefix is joined
// with an underscore, e.g. "sk_live_...".
func Generate(prefix string) (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	if prefix == "" {
		return secret, nil
	}
	return prefix + "_" + secret, nil
}

// Fingerprint identifies a key in logs without revealing it.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

// KeyHash is the stored form of an API key.
type KeyHash struct {
	hash        []byte
	Fingerprint string
}

// HashKey bcrypt-hashes key. A cost of zero or less uses bcrypt.DefaultCost.
func HashKey(key string, cost int) (*KeyHash, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "api key cannot be empty")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.New(dErrors.CodeValidation, "api key is too long")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not hash api key")
	}
	return &KeyHash{hash: hashed, Fingerprint: Fingerprint(key)}, nil
}

// ParseKeyHash wraps an existing bcrypt hash, e.g. one loaded from config.
func ParseKeyHash(hash string) (*KeyHash, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed api key hash")
	}
	return &KeyHash{hash: []byte(hash)}, nil
}

// Verify reports whether key matches. A mismatch is CodeUnauthorized.
func (h *KeyHash) Verify(key string) error {
	if key == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "api key is required")
	}
	if err := bcrypt.CompareHashAndPassword(h.hash, []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify api key")
	}
	return nil
}
