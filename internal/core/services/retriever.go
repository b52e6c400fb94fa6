package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

const (
	// defaultTopK is used when the caller does not specify k
	defaultTopK = 5

	// maxTopK caps the result size
	maxTopK = 50

	// oversampleFactor widens the raw vector search so document-level
	// deduplication still has enough candidates to fill k
	oversampleFactor = 4
)

// Retriever turns a question into the ranked, document-deduplicated top-k
// passages. It searches exactly one version partition of the vector index:
// the active embedding version at call time.
type Retriever struct {
	documentStore driven.DocumentStore
	passageStore  driven.PassageStore
	vectorIndex   driven.VectorIndex
	services      *runtime.Services
	logger        *slog.Logger
}

// NewRetriever creates a new retriever
func NewRetriever(
	documentStore driven.DocumentStore,
	passageStore driven.PassageStore,
	vectorIndex driven.VectorIndex,
	services *runtime.Services,
	logger *slog.Logger,
) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		documentStore: documentStore,
		passageStore:  passageStore,
		vectorIndex:   vectorIndex,
		services:      services,
		logger:        logger,
	}
}

// Retrieve returns the top-k most relevant passages for a question.
// An empty corpus or unavailable embedding service yields an empty result,
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (*domain.RetrievalResult, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if k <= 0 {
		k = defaultTopK
	}
	if k > maxTopK {
		k = maxTopK
	}

	config := r.services.Config()
	version := config.ActiveEmbeddingVersion()

	result := &domain.RetrievalResult{
		Question:         question,
		EmbeddingVersion: version,
	}

	if !config.CanRetrieve() {
		result.Took = time.Since(start)
		return result, nil
	}

	embeddingService := r.services.EmbeddingService()
	if embeddingService == nil {
		result.Took = time.Since(start)
		return result, nil
	}

	queryEmbedding, err := embeddingService.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding failed: %v", domain.ErrEmbedding, err)
	}

	hits, err := r.vectorIndex.Search(ctx, version, queryEmbedding, k*oversampleFactor)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ranked := r.resolve(ctx, hits)
	ranked = dedupeByDocument(ranked)
	sortRanked(ranked)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	result.Results = ranked
	result.Took = time.Since(start)

	r.logger.Debug("retrieval completed",
		"question_len", len(question),
		"version", version,
		"hits", len(hits),
		"results", len(ranked),
		"took", result.Took)

	return result, nil
}

// resolve loads the passage and document behind each hit.
// Hits whose backing rows are gone (raced with a delete) are skipped.
func (r *Retriever) resolve(ctx context.Context, hits []driven.VectorHit) []*domain.RankedPassage {
	docs := make(map[string]*domain.Document)
	var ranked []*domain.RankedPassage

	for _, hit := range hits {
		passage, err := r.passageStore.Get(ctx, hit.PassageID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.logger.Warn("failed to load passage", "passage_id", hit.PassageID, "error", err)
			}
			continue
		}

		doc, ok := docs[passage.DocumentID]
		if !ok {
			doc, err = r.documentStore.Get(ctx, passage.DocumentID)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					r.logger.Warn("failed to load document", "document_id", passage.DocumentID, "error", err)
				}
				continue
			}
			docs[passage.DocumentID] = doc
		}

		ranked = append(ranked, &domain.RankedPassage{
			Passage:  passage,
			Document: doc,
			Score:    hit.Score,
		})
	}
	return ranked
}

// dedupeByDocument keeps only the best-scoring passage per document
func dedupeByDocument(ranked []*domain.RankedPassage) []*domain.RankedPassage {
	best := make(map[string]*domain.RankedPassage)
	for _, rp := range ranked {
		cur, ok := best[rp.Document.ID]
		if !ok || lessRanked(rp, cur) {
			best[rp.Document.ID] = rp
		}
	}

	result := make([]*domain.RankedPassage, 0, len(best))
	for _, rp := range best {
		result = append(result, rp)
	}
	return result
}

// sortRanked orders results by score descending, then document recency,
// then passage ID. The full ordering makes retrieval deterministic for
// identical corpus states.
func sortRanked(ranked []*domain.RankedPassage) {
	sort.Slice(ranked, func(i, j int) bool {
		return lessRanked(ranked[i], ranked[j])
	})
}

// lessRanked reports whether a should rank before b
func lessRanked(a, b *domain.RankedPassage) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Document.UpdatedAt.Equal(b.Document.UpdatedAt) {
		return a.Document.UpdatedAt.After(b.Document.UpdatedAt)
	}
	return a.Passage.ID < b.Passage.ID
}
