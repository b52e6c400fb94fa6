package driving

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// DocumentService provides read access to the corpus
type DocumentService interface {
	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetWithPassages retrieves a document with its passages
	GetWithPassages(ctx context.Context, id string) (*domain.DocumentWithPassages, error)

	// List retrieves documents with pagination
	List(ctx context.Context, limit, offset int) ([]*domain.Document, error)

	// Count returns the total number of documents
	Count(ctx context.Context) (int, error)

	// CountByKind returns the document count for a source kind
	CountByKind(ctx context.Context, kind domain.SourceKind) (int, error)
}
