package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// MockPassageStore is a mock implementation of PassageStore for testing
type MockPassageStore struct {
	mu       sync.RWMutex
	passages map[string]*domain.Passage

	// Custom behavior hooks (optional)
	ReplaceFn func(documentID string, passages []*domain.Passage) error
	UpdateFn  func(id string, version string, embedding []float32) error
}

// NewMockPassageStore creates a new MockPassageStore
func NewMockPassageStore() *MockPassageStore {
	return &MockPassageStore{
		passages: make(map[string]*domain.Passage),
	}
}

func (m *MockPassageStore) ReplaceForDocument(ctx context.Context, documentID string, passages []*domain.Passage) error {
	if m.ReplaceFn != nil {
		if err := m.ReplaceFn(documentID, passages); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.passages {
		if p.DocumentID == documentID {
			delete(m.passages, id)
		}
	}
	for _, p := range passages {
		m.passages[p.ID] = p
	}
	return nil
}

func (m *MockPassageStore) Get(ctx context.Context, id string) (*domain.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *MockPassageStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Passage
	for _, p := range m.passages {
		if p.DocumentID == documentID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *MockPassageStore) ListIndexed(ctx context.Context, embeddingVersion string, limit, offset int) ([]*domain.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Passage
	for _, p := range m.passages {
		if p.Indexed && p.EmbeddingVersion == embeddingVersion {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPassageStore) ListUnindexed(ctx context.Context, limit int) ([]*domain.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Passage
	for _, p := range m.passages {
		if !p.Indexed {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPassageStore) UpdateEmbedding(ctx context.Context, id string, embeddingVersion string, embedding []float32) error {
	if m.UpdateFn != nil {
		if err := m.UpdateFn(id, embeddingVersion, embedding); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passages[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.EmbeddingVersion = embeddingVersion
	p.Embedding = embedding
	p.Indexed = true
	return nil
}

func (m *MockPassageStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.passages {
		if p.DocumentID == documentID {
			delete(m.passages, id)
		}
	}
	return nil
}

func (m *MockPassageStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages), nil
}

func (m *MockPassageStore) CountIndexed(ctx context.Context, embeddingVersion string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.passages {
		if p.Indexed && p.EmbeddingVersion == embeddingVersion {
			count++
		}
	}
	return count, nil
}
