package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

const (
	settingsKeyAI      = "ai"
	settingsKeyPersona = "persona"
)

// SettingsStore implements driven.SettingsStore using PostgreSQL.
// AI API keys are encrypted with AES-256-GCM before they reach the table.
type SettingsStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *DB, encryptor *SecretEncryptor) *SettingsStore {
	return &SettingsStore{db: db, encryptor: encryptor}
}

// storedAISettings is the at-rest shape of AISettings: plaintext keys are
// replaced by encrypted blobs
type storedAISettings struct {
	Embedding storedServiceSettings `json:"embedding"`
	LLM       storedServiceSettings `json:"llm"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type storedServiceSettings struct {
	Provider        domain.AIProvider `json:"provider"`
	Model           string            `json:"model"`
	BaseURL         string            `json:"base_url,omitempty"`
	EncryptedAPIKey string            `json:"encrypted_api_key,omitempty"`
}

// GetAISettings retrieves the AI configuration (nil if never set)
func (s *SettingsStore) GetAISettings(ctx context.Context) (*domain.AISettings, error) {
	var stored storedAISettings
	found, err := s.getValue(ctx, settingsKeyAI, &stored)
	if err != nil || !found {
		return nil, err
	}

	settings := &domain.AISettings{UpdatedAt: stored.UpdatedAt}

	settings.Embedding.Provider = stored.Embedding.Provider
	settings.Embedding.Model = stored.Embedding.Model
	settings.Embedding.BaseURL = stored.Embedding.BaseURL
	if settings.Embedding.APIKey, err = s.decryptKey(stored.Embedding.EncryptedAPIKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt embedding API key: %w", err)
	}

	settings.LLM.Provider = stored.LLM.Provider
	settings.LLM.Model = stored.LLM.Model
	settings.LLM.BaseURL = stored.LLM.BaseURL
	if settings.LLM.APIKey, err = s.decryptKey(stored.LLM.EncryptedAPIKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt LLM API key: %w", err)
	}

	return settings, nil
}

// SaveAISettings stores the AI configuration with keys encrypted
func (s *SettingsStore) SaveAISettings(ctx context.Context, settings *domain.AISettings) error {
	stored := storedAISettings{
		Embedding: storedServiceSettings{
			Provider: settings.Embedding.Provider,
			Model:    settings.Embedding.Model,
			BaseURL:  settings.Embedding.BaseURL,
		},
		LLM: storedServiceSettings{
			Provider: settings.LLM.Provider,
			Model:    settings.LLM.Model,
			BaseURL:  settings.LLM.BaseURL,
		},
		UpdatedAt: settings.UpdatedAt,
	}

	var err error
	if stored.Embedding.EncryptedAPIKey, err = s.encryptKey(settings.Embedding.APIKey); err != nil {
		return fmt.Errorf("failed to encrypt embedding API key: %w", err)
	}
	if stored.LLM.EncryptedAPIKey, err = s.encryptKey(settings.LLM.APIKey); err != nil {
		return fmt.Errorf("failed to encrypt LLM API key: %w", err)
	}

	return s.setValue(ctx, settingsKeyAI, stored, settings.UpdatedAt)
}

// GetPersona retrieves the persona configuration (nil if never set)
func (s *SettingsStore) GetPersona(ctx context.Context) (*domain.PersonaSettings, error) {
	var persona domain.PersonaSettings
	found, err := s.getValue(ctx, settingsKeyPersona, &persona)
	if err != nil || !found {
		return nil, err
	}
	return &persona, nil
}

// SavePersona stores the persona configuration
func (s *SettingsStore) SavePersona(ctx context.Context, persona *domain.PersonaSettings) error {
	return s.setValue(ctx, settingsKeyPersona, persona, persona.UpdatedAt)
}

func (s *SettingsStore) getValue(ctx context.Context, key string, value any) (bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, value)
}

func (s *SettingsStore) setValue(ctx context.Context, key string, value any, updatedAt time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, key, raw, updatedAt)
	return err
}

// encryptKey encrypts a plaintext API key to a base64 blob; empty stays empty
func (s *SettingsStore) encryptKey(key string) (string, error) {
	if key == "" {
		return "", nil
	}
	blob, err := s.encryptor.EncryptString(key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// decryptKey reverses encryptKey
func (s *SettingsStore) decryptKey(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return s.encryptor.DecryptString(blob)
}
