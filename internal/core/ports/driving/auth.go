package driving

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// AuthService authenticates API callers (connectors and admins)
type AuthService interface {
	// IssueToken exchanges a client ID + API key for a short-lived JWT
	IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error)

	// ValidateToken validates a JWT and returns the caller's auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)
}
