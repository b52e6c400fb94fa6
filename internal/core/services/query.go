package services

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
)

// Ensure queryService implements QueryService
var _ driving.QueryService = (*queryService)(nil)

// queryService implements QueryService by chaining the retriever and the
// answer synthesizer.
type queryService struct {
	retriever   *Retriever
	synthesizer *Synthesizer
}

// NewQueryService creates a new QueryService
func NewQueryService(retriever *Retriever, synthesizer *Synthesizer) driving.QueryService {
	return &queryService{
		retriever:   retriever,
		synthesizer: synthesizer,
	}
}

// Ask retrieves evidence for a question and synthesizes a grounded answer
func (s *queryService) Ask(ctx context.Context, question string, k int) (*domain.Answer, error) {
	result, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	return s.synthesizer.Synthesize(ctx, result)
}

// Retrieve exposes the retrieval stage on its own
func (s *queryService) Retrieve(ctx context.Context, question string, k int) (*domain.RetrievalResult, error) {
	return s.retriever.Retrieve(ctx, question, k)
}
