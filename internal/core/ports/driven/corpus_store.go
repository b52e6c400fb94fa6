package driven

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetByExternalID retrieves a document by source kind and external ID.
	// This is the lookup that keeps document IDs stable across re-ingestion.
	GetByExternalID(ctx context.Context, kind domain.SourceKind, externalID string) (*domain.Document, error)

	// List retrieves documents with pagination, most recently updated first
	List(ctx context.Context, limit, offset int) ([]*domain.Document, error)

	// ListIDs returns all document IDs (for bulk reindex)
	ListIDs(ctx context.Context) ([]string, error)

	// Delete deletes a document; passages cascade
	Delete(ctx context.Context, id string) error

	// Count returns total document count
	Count(ctx context.Context) (int, error)

	// CountByKind returns document count for a source kind
	CountByKind(ctx context.Context, kind domain.SourceKind) (int, error)
}

// PassageStore handles passage persistence, embeddings included (PostgreSQL)
type PassageStore interface {
	// ReplaceForDocument atomically swaps a document's passage set.
	// Readers see either the fully-old or fully-new set, never a mix.
	ReplaceForDocument(ctx context.Context, documentID string, passages []*domain.Passage) error

	// Get retrieves a passage by ID
	Get(ctx context.Context, id string) (*domain.Passage, error)

	// GetByDocument retrieves all passages for a document, in position order
	GetByDocument(ctx context.Context, documentID string) ([]*domain.Passage, error)

	// ListIndexed streams all indexed passages of one embedding version in
	// stable ID order, for index rebuild and bulk reindex. Limit/offset
	// paginate so the whole corpus never has to sit in memory at once.
	ListIndexed(ctx context.Context, embeddingVersion string, limit, offset int) ([]*domain.Passage, error)

	// ListUnindexed returns passages whose embedding is pending retry
	ListUnindexed(ctx context.Context, limit int) ([]*domain.Passage, error)

	// UpdateEmbedding stores a freshly computed embedding for a passage
	UpdateEmbedding(ctx context.Context, id string, embeddingVersion string, embedding []float32) error

	// DeleteByDocument deletes all passages for a document
	DeleteByDocument(ctx context.Context, documentID string) error

	// Count returns total passage count
	Count(ctx context.Context) (int, error)

	// CountIndexed returns the number of indexed passages for a version
	CountIndexed(ctx context.Context, embeddingVersion string) (int, error)
}

// SettingsStore persists AI provider and persona configuration.
// API keys are encrypted at rest.
type SettingsStore interface {
	// GetAISettings retrieves the AI configuration (nil if never set)
	GetAISettings(ctx context.Context) (*domain.AISettings, error)

	// SaveAISettings stores the AI configuration
	SaveAISettings(ctx context.Context, settings *domain.AISettings) error

	// GetPersona retrieves the persona configuration (nil if never set)
	GetPersona(ctx context.Context) (*domain.PersonaSettings, error)

	// SavePersona stores the persona configuration
	SavePersona(ctx context.Context, persona *domain.PersonaSettings) error
}
