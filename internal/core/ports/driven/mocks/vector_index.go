package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// MockVectorIndex is an exact-scan in-memory implementation of VectorIndex
// for testing, partitioned by embedding version.
type MockVectorIndex struct {
	mu sync.RWMutex
	// version -> documentID -> entries
	partitions map[string]map[string][]driven.VectorEntry

	// Custom behavior hooks (optional)
	ReplaceErr error
	SearchErr  error
}

// NewMockVectorIndex creates a new MockVectorIndex
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		partitions: make(map[string]map[string][]driven.VectorEntry),
	}
}

func (m *MockVectorIndex) ReplaceDocument(ctx context.Context, version, documentID string, entries []driven.VectorEntry) error {
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.partitions[version]
	if !ok {
		part = make(map[string][]driven.VectorEntry)
		m.partitions[version] = part
	}
	if len(entries) == 0 {
		delete(part, documentID)
		return nil
	}
	part[documentID] = append([]driven.VectorEntry(nil), entries...)
	return nil
}

func (m *MockVectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, part := range m.partitions {
		delete(part, documentID)
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, version string, embedding []float32, k int) ([]driven.VectorHit, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.partitions[version]
	var hits []driven.VectorHit
	for docID, entries := range part {
		for _, e := range entries {
			var score float64
			for i := range embedding {
				if i < len(e.Embedding) {
					score += float64(embedding[i]) * float64(e.Embedding[i])
				}
			}
			hits = append(hits, driven.VectorHit{PassageID: e.PassageID, DocumentID: docID, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].PassageID < hits[j].PassageID
		}
		return hits[i].Score > hits[j].Score
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MockVectorIndex) PromoteVersion(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for v := range m.partitions {
		if v != version {
			delete(m.partitions, v)
		}
	}
	if _, ok := m.partitions[version]; !ok {
		m.partitions[version] = make(map[string][]driven.VectorEntry)
	}
	return nil
}

func (m *MockVectorIndex) DropVersion(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, version)
	return nil
}

func (m *MockVectorIndex) Size(ctx context.Context, version string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entries := range m.partitions[version] {
		count += len(entries)
	}
	return count, nil
}

// Versions returns the partition names currently held
func (m *MockVectorIndex) Versions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := make([]string, 0, len(m.partitions))
	for v := range m.partitions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
