package domain

import "time"

// Role determines what an authenticated caller may do
type Role string

const (
	// RoleConnector may ingest records and deletions
	RoleConnector Role = "connector"
	// RoleAdmin may additionally trigger reindexing and change settings
	RoleAdmin Role = "admin"
)

// AuthContext contains authenticated caller info for request context
type AuthContext struct {
	ClientID string `json:"client_id"`
	Role     Role   `json:"role"`
}

// IsAdmin checks if the authenticated caller is an admin
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// TokenRequest exchanges an API key for a short-lived JWT
type TokenRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

// TokenResponse is returned after successful authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	ClientID  string `json:"client_id"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// APIClient is a registered caller of the ingestion or admin API.
// The API key is stored as a bcrypt hash, never in plaintext.
type APIClient struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
