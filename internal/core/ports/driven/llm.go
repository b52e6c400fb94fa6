package driven

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// SynthesisRequest carries everything the LLM needs to ground an answer.
type SynthesisRequest struct {
	// Question is the free-text question being answered
	Question string

	// Persona describes the person whose voice the answer should carry
	Persona *domain.PersonaSettings

	// Evidence is the retrieved passages, best first
	Evidence []*domain.RankedPassage
}

// LLMService provides large language model capabilities for answer synthesis
type LLMService interface {
	// Synthesize combines the question and retrieved passages into a
	// grounded answer. It must only draw on the supplied evidence.
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
