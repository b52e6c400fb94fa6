package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Embeddings are deterministic per input text and L2-normalized, so identical
// texts always land at the same point and inner products behave like cosine.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	version    string
	failCount  int
	embedCalls int
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 16,
		version:    "mock-embed-v1",
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	if m.failCount > 0 {
		m.failCount--
		m.mu.Unlock()
		return nil, context.DeadlineExceeded
	}
	m.mu.Unlock()

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.mu.Lock()
	if m.failCount > 0 {
		m.failCount--
		m.mu.Unlock()
		return nil, context.DeadlineExceeded
	}
	m.mu.Unlock()
	return m.generateEmbedding(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Version() string {
	return m.version
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

// generateEmbedding generates a deterministic unit vector from the text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	var norm float64
	for i := range embedding {
		seed = seed*1103515245 + 12345
		v := float32(seed%2000)/1000.0 - 1.0
		embedding[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}
	return embedding
}

// Helper methods for testing

// SetFailCount makes the next n Embed/EmbedQuery calls fail
func (m *MockEmbeddingService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = n
}

// SetVersion overrides the reported model version
func (m *MockEmbeddingService) SetVersion(v string) {
	m.version = v
}

// EmbedCalls returns the number of Embed invocations
func (m *MockEmbeddingService) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}
