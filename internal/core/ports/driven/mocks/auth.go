package mocks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// MockAuthAdapter is a mock implementation of AuthAdapter for testing.
// Hashing is a plain SHA-256 and tokens are JSON blobs, good enough to
// exercise the auth service without bcrypt cost or JWT signing.
type MockAuthAdapter struct{}

// NewMockAuthAdapter creates a new MockAuthAdapter
func NewMockAuthAdapter() *MockAuthAdapter {
	return &MockAuthAdapter{}
}

func (m *MockAuthAdapter) HashAPIKey(key string) (string, error) {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

func (m *MockAuthAdapter) VerifyAPIKey(key, hash string) bool {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) == hash
}

func (m *MockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *MockAuthAdapter) ValidateToken(token string) (*domain.TokenClaims, error) {
	var claims domain.TokenClaims
	if err := json.Unmarshal([]byte(token), &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}
	return &claims, nil
}
