package driving

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// AdminService exposes operational controls.
type AdminService interface {
	// Reindex starts a bulk re-embed of the whole corpus under a new model
	// version. The build runs in the background; the previously active
	// version stays queryable until the new one is complete, and
	// cancellation leaves it intact. Returns domain.ErrReindexInProgress
	// if a run is already active.
	Reindex(ctx context.Context, newModelVersion string) error

	// CancelReindex stops an active reindex run, discarding the partial build
	CancelReindex(ctx context.Context) error

	// ReindexStatus reports the state of the current or last reindex run
	ReindexStatus(ctx context.Context) (*domain.ReindexStatus, error)
}

// SettingsService manages runtime AI and persona configuration.
type SettingsService interface {
	// UpdateAISettings validates and applies new AI provider settings,
	// swapping the live embedding/LLM services on success
	UpdateAISettings(ctx context.Context, settings *domain.AISettings) error

	// GetAISettings returns the stored AI settings (API keys blanked)
	GetAISettings(ctx context.Context) (*domain.AISettings, error)

	// UpdatePersona stores the persona description used by the synthesizer
	UpdatePersona(ctx context.Context, persona *domain.PersonaSettings) error

	// GetPersona returns the stored persona settings
	GetPersona(ctx context.Context) (*domain.PersonaSettings, error)
}
