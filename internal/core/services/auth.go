package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// defaultTokenTTL is how long issued tokens stay valid
const defaultTokenTTL = 1 * time.Hour

// authService implements AuthService against a static set of API clients.
// Clients are registered at startup (from configuration); there is no
// self-service signup.
type authService struct {
	clients  map[string]*domain.APIClient
	auth     driven.AuthAdapter
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService over the given clients
func NewAuthService(clients []*domain.APIClient, auth driven.AuthAdapter, tokenTTL time.Duration, logger *slog.Logger) driving.AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]*domain.APIClient, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return &authService{
		clients:  byID,
		auth:     auth,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// IssueToken exchanges a client ID + API key for a short-lived JWT
func (s *authService) IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error) {
	client, ok := s.clients[req.ClientID]
	if !ok {
		// Hash anyway so unknown and known client IDs take the same time
		_, _ = s.auth.HashAPIKey(req.APIKey)
		return nil, domain.ErrInvalidCredentials
	}

	if !s.auth.VerifyAPIKey(req.APIKey, client.APIKeyHash) {
		s.logger.Warn("rejected API key", "client_id", req.ClientID)
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := s.auth.GenerateToken(&domain.TokenClaims{
		ClientID:  client.ID,
		Role:      client.Role,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a JWT and returns the caller's auth context
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	// A client removed from configuration loses access even with a live token
	client, ok := s.clients[claims.ClientID]
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	return &domain.AuthContext{
		ClientID: client.ID,
		Role:     client.Role,
	}, nil
}
