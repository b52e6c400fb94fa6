package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
)

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// documentService implements read access to the corpus
type documentService struct {
	documentStore driven.DocumentStore
	passageStore  driven.PassageStore
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(documentStore driven.DocumentStore, passageStore driven.PassageStore) driving.DocumentService {
	return &documentService{
		documentStore: documentStore,
		passageStore:  passageStore,
	}
}

// Get retrieves a document by ID
func (s *documentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty document ID", domain.ErrInvalidInput)
	}
	return s.documentStore.Get(ctx, id)
}

// GetWithPassages retrieves a document with its passages in position order
func (s *documentService) GetWithPassages(ctx context.Context, id string) (*domain.DocumentWithPassages, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	passages, err := s.passageStore.GetByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load passages: %w", err)
	}

	return &domain.DocumentWithPassages{
		Document: doc,
		Passages: passages,
	}, nil
}

// List retrieves documents with pagination
func (s *documentService) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.documentStore.List(ctx, limit, offset)
}

// Count returns the total number of documents
func (s *documentService) Count(ctx context.Context) (int, error) {
	return s.documentStore.Count(ctx)
}

// CountByKind returns the document count for a source kind
func (s *documentService) CountByKind(ctx context.Context, kind domain.SourceKind) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown source kind %q", domain.ErrInvalidInput, kind)
	}
	return s.documentStore.CountByKind(ctx, kind)
}
