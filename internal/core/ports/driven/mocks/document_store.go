package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// MockDocumentStore is a mock implementation of DocumentStore for testing
type MockDocumentStore struct {
	mu         sync.RWMutex
	documents  map[string]*domain.Document
	byExternal map[string]*domain.Document // key: kind:externalID

	// Custom behavior hooks (optional)
	SaveFn func(doc *domain.Document) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents:  make(map[string]*domain.Document),
		byExternal: make(map[string]*domain.Document),
	}
}

func externalKey(kind domain.SourceKind, externalID string) string {
	return string(kind) + ":" + externalID
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(doc); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	m.byExternal[externalKey(doc.SourceKind, doc.ExternalID)] = doc
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *MockDocumentStore) GetByExternalID(ctx context.Context, kind domain.SourceKind, externalID string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.byExternal[externalKey(kind, externalID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *MockDocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*domain.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})

	if offset >= len(docs) {
		return nil, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MockDocumentStore) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.documents))
	for id := range m.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.documents, id)
	delete(m.byExternal, externalKey(doc.SourceKind, doc.ExternalID))
	return nil
}

func (m *MockDocumentStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents), nil
}

func (m *MockDocumentStore) CountByKind(ctx context.Context, kind domain.SourceKind) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, doc := range m.documents {
		if doc.SourceKind == kind {
			count++
		}
	}
	return count, nil
}
