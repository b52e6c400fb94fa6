package driven

import (
	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// AuthAdapter handles API key hashing and JWT operations
type AuthAdapter interface {
	// HashAPIKey generates a bcrypt hash from a plaintext API key
	HashAPIKey(key string) (string, error)

	// VerifyAPIKey checks if a key matches a bcrypt hash
	VerifyAPIKey(key, hash string) bool

	// GenerateToken creates a signed JWT for the given claims
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ValidateToken parses and validates a JWT, returning its claims
	ValidateToken(token string) (*domain.TokenClaims, error)
}
