package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

// Ensure settingsService implements SettingsService
var _ driving.SettingsService = (*settingsService)(nil)

// settingsService implements the SettingsService interface
type settingsService struct {
	settingsStore driven.SettingsStore
	aiFactory     driven.AIServiceFactory
	services      *runtime.Services
	logger        *slog.Logger
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(
	settingsStore driven.SettingsStore,
	aiFactory driven.AIServiceFactory,
	services *runtime.Services,
	logger *slog.Logger,
) driving.SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsService{
		settingsStore: settingsStore,
		aiFactory:     aiFactory,
		services:      services,
		logger:        logger,
	}
}

// UpdateAISettings validates and applies new AI provider settings,
// hot-swapping the live embedding/LLM services on success
func (s *settingsService) UpdateAISettings(ctx context.Context, settings *domain.AISettings) error {
	if settings == nil {
		return fmt.Errorf("%w: nil settings", domain.ErrInvalidInput)
	}
	settings.UpdatedAt = time.Now()

	if err := s.settingsStore.SaveAISettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save AI settings: %w", err)
	}

	// Hot-reload the embedding service
	if settings.Embedding.IsConfigured() {
		embSvc, err := s.aiFactory.CreateEmbeddingService(&settings.Embedding)
		if err != nil {
			return fmt.Errorf("failed to create embedding service: %w", err)
		}
		if err := s.services.ValidateAndSetEmbedding(ctx, embSvc); err != nil {
			return fmt.Errorf("%w: embedding service unreachable: %v", domain.ErrServiceUnavailable, err)
		}
	} else {
		s.services.SetEmbeddingService(nil)
	}

	// Hot-reload the LLM service
	if settings.LLM.IsConfigured() {
		llmSvc, err := s.aiFactory.CreateLLMService(&settings.LLM)
		if err != nil {
			return fmt.Errorf("failed to create LLM service: %w", err)
		}
		if err := s.services.ValidateAndSetLLM(ctx, llmSvc); err != nil {
			return fmt.Errorf("%w: LLM service unreachable: %v", domain.ErrServiceUnavailable, err)
		}
	} else {
		s.services.SetLLMService(nil)
	}

	s.logger.Info("AI settings updated",
		"embedding_provider", settings.Embedding.Provider,
		"embedding_model", settings.Embedding.Model,
		"llm_provider", settings.LLM.Provider,
		"llm_model", settings.LLM.Model)

	return nil
}

// GetAISettings returns the stored AI settings with API keys blanked
func (s *settingsService) GetAISettings(ctx context.Context) (*domain.AISettings, error) {
	settings, err := s.settingsStore.GetAISettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &domain.AISettings{}, nil
	}

	// Never hand keys back out
	redacted := *settings
	redacted.Embedding.APIKey = ""
	redacted.LLM.APIKey = ""
	return &redacted, nil
}

// UpdatePersona stores the persona description used by the synthesizer
func (s *settingsService) UpdatePersona(ctx context.Context, persona *domain.PersonaSettings) error {
	if persona == nil || strings.TrimSpace(persona.Name) == "" {
		return fmt.Errorf("%w: persona name is required", domain.ErrInvalidInput)
	}
	persona.UpdatedAt = time.Now()

	if err := s.settingsStore.SavePersona(ctx, persona); err != nil {
		return fmt.Errorf("failed to save persona: %w", err)
	}

	s.logger.Info("persona updated", "name", persona.Name)
	return nil
}

// GetPersona returns the stored persona settings
func (s *settingsService) GetPersona(ctx context.Context) (*domain.PersonaSettings, error) {
	persona, err := s.settingsStore.GetPersona(ctx)
	if err != nil {
		return nil, err
	}
	if persona == nil {
		return &domain.PersonaSettings{}, nil
	}
	return persona, nil
}
