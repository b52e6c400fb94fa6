package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

func testAdapter() *Adapter {
	return NewAdapterWithCost("test-secret", 4) // Low cost for faster tests
}

func TestHashAPIKey(t *testing.T) {
	adapter := testAdapter()

	hash, err := adapter.HashAPIKey("pk-connector-key")
	if err != nil {
		t.Fatalf("failed to hash API key: %v", err)
	}
	if hash == "" || hash == "pk-connector-key" {
		t.Errorf("expected bcrypt hash, got %q", hash)
	}

	// Salting gives a different hash every time
	hash2, _ := adapter.HashAPIKey("pk-connector-key")
	if hash == hash2 {
		t.Error("expected different hashes for same key")
	}
}

func TestVerifyAPIKey(t *testing.T) {
	adapter := testAdapter()

	hash, _ := adapter.HashAPIKey("pk-connector-key")

	if !adapter.VerifyAPIKey("pk-connector-key", hash) {
		t.Error("expected verification to succeed for correct key")
	}
	if adapter.VerifyAPIKey("pk-wrong-key", hash) {
		t.Error("expected verification to fail for wrong key")
	}
	if adapter.VerifyAPIKey("pk-connector-key", "not-a-bcrypt-hash") {
		t.Error("expected verification to fail for malformed hash")
	}
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	adapter := testAdapter()

	now := time.Now()
	claims := &domain.TokenClaims{
		ClientID:  "slack-connector",
		Role:      domain.RoleConnector,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(1 * time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	got, err := adapter.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if got.ClientID != "slack-connector" {
		t.Errorf("expected client ID slack-connector, got %s", got.ClientID)
	}
	if got.Role != domain.RoleConnector {
		t.Errorf("expected connector role, got %s", got.Role)
	}
	if got.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expected expiry %d, got %d", claims.ExpiresAt, got.ExpiresAt)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	adapter := testAdapter()

	claims := &domain.TokenClaims{
		ClientID:  "slack-connector",
		Role:      domain.RoleConnector,
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-1 * time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := adapter.ValidateToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	adapter := testAdapter()
	other := NewAdapterWithCost("different-secret", 4)

	claims := &domain.TokenClaims{
		ClientID:  "slack-connector",
		Role:      domain.RoleConnector,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(1 * time.Hour).Unix(),
	}

	token, _ := adapter.GenerateToken(claims)

	if _, err := other.ValidateToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	adapter := testAdapter()

	if _, err := adapter.ValidateToken("not.a.token"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
