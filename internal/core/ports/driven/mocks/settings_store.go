package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// MockSettingsStore is a mock implementation of SettingsStore for testing
type MockSettingsStore struct {
	mu      sync.RWMutex
	ai      *domain.AISettings
	persona *domain.PersonaSettings
	SaveErr error
}

// NewMockSettingsStore creates a new MockSettingsStore
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{}
}

func (m *MockSettingsStore) GetAISettings(ctx context.Context) (*domain.AISettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ai, nil
}

func (m *MockSettingsStore) SaveAISettings(ctx context.Context, settings *domain.AISettings) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ai = settings
	return nil
}

func (m *MockSettingsStore) GetPersona(ctx context.Context) (*domain.PersonaSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persona, nil
}

func (m *MockSettingsStore) SavePersona(ctx context.Context, persona *domain.PersonaSettings) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persona = persona
	return nil
}
