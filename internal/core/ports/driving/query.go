package driving

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// QueryService answers free-text questions from the corpus.
type QueryService interface {
	// Ask retrieves the top-k most relevant passages and synthesizes a
	// grounded answer. An empty corpus or weak retrieval yields a normal
	// insufficient-evidence answer, never an error.
	Ask(ctx context.Context, question string, k int) (*domain.Answer, error)

	// Retrieve exposes the retrieval stage on its own: the ranked,
	// document-deduplicated top-k passages for a question.
	Retrieve(ctx context.Context, question string, k int) (*domain.RetrievalResult, error)
}
