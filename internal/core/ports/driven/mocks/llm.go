package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// MockLLMService is a mock implementation of LLMService for testing
type MockLLMService struct {
	mu       sync.Mutex
	requests []driven.SynthesisRequest

	// Custom behavior hooks (optional)
	SynthesizeFn func(req driven.SynthesisRequest) (string, error)
	PingErr      error
}

// NewMockLLMService creates a new MockLLMService
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{}
}

func (m *MockLLMService) Synthesize(ctx context.Context, req driven.SynthesisRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.SynthesizeFn != nil {
		return m.SynthesizeFn(req)
	}
	return fmt.Sprintf("synthesized answer to %q from %d passages", req.Question, len(req.Evidence)), nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockLLMService) Close() error {
	return nil
}

// Requests returns all synthesis requests seen so far
func (m *MockLLMService) Requests() []driven.SynthesisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.SynthesisRequest(nil), m.requests...)
}
