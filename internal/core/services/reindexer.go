package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

// Ensure Reindexer implements AdminService
var _ driving.AdminService = (*Reindexer)(nil)

// reindexBatchSize is how many documents are re-embedded per progress update
const reindexBatchSize = 50

// reindexCatchupPasses bounds the sweeps that pick up documents ingested
// after the initial snapshot
const reindexCatchupPasses = 3

// Reindexer runs bulk re-embeds of the whole corpus under a new embedding
// model version. The build happens in a background goroutine against a fresh
// index partition; queries keep hitting the previously active version until
// the new partition is complete and promoted. Cancellation or failure drops
// the partial partition and leaves the active version untouched.
type Reindexer struct {
	documentStore driven.DocumentStore
	passageStore  driven.PassageStore
	vectorIndex   driven.VectorIndex
	services      *runtime.Services
	logger        *slog.Logger

	mu     sync.Mutex
	status domain.ReindexStatus
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReindexer creates a new reindexer
func NewReindexer(
	documentStore driven.DocumentStore,
	passageStore driven.PassageStore,
	vectorIndex driven.VectorIndex,
	services *runtime.Services,
	logger *slog.Logger,
) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{
		documentStore: documentStore,
		passageStore:  passageStore,
		vectorIndex:   vectorIndex,
		services:      services,
		logger:        logger,
		status:        domain.ReindexStatus{State: domain.ReindexStateIdle},
	}
}

// Reindex starts a bulk re-embed under a new model version
func (r *Reindexer) Reindex(ctx context.Context, newModelVersion string) error {
	embeddingService := r.services.EmbeddingService()
	if embeddingService == nil {
		return domain.ErrNoEmbeddingService
	}
	if newModelVersion == "" {
		newModelVersion = embeddingService.Version()
	}

	total, err := r.passageStore.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count passages: %w", err)
	}

	r.mu.Lock()
	if r.status.InProgress() {
		r.mu.Unlock()
		return domain.ErrReindexInProgress
	}

	now := time.Now()
	fromVersion := r.services.Config().ActiveEmbeddingVersion()
	r.status = domain.ReindexStatus{
		State:         domain.ReindexStateRunning,
		FromVersion:   fromVersion,
		ToVersion:     newModelVersion,
		PassagesTotal: total,
		StartedAt:     &now,
	}

	// The build outlives the admin request that started it
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("reindex started",
		"from_version", fromVersion,
		"to_version", newModelVersion,
		"passages_total", total)

	go func() {
		defer r.wg.Done()
		r.run(runCtx, embeddingService, newModelVersion)
	}()

	return nil
}

// CancelReindex stops an active reindex run, discarding the partial build
func (r *Reindexer) CancelReindex(ctx context.Context) error {
	r.mu.Lock()
	if !r.status.InProgress() {
		r.mu.Unlock()
		return fmt.Errorf("%w: no reindex in progress", domain.ErrInvalidInput)
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	return nil
}

// ReindexStatus reports the state of the current or last reindex run
func (r *Reindexer) ReindexStatus(ctx context.Context) (*domain.ReindexStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.status
	return &status, nil
}

// run re-embeds every document into the new version partition, then promotes it
func (r *Reindexer) run(ctx context.Context, embeddingService driven.EmbeddingService, version string) {
	docIDs, err := r.documentStore.ListIDs(ctx)
	if err != nil {
		r.finish(ctx, version, domain.ReindexStateFailed, fmt.Sprintf("failed to list documents: %v", err))
		return
	}

	done := 0
	for i, docID := range docIDs {
		select {
		case <-ctx.Done():
			r.finish(ctx, version, domain.ReindexStateCancelled, "")
			return
		default:
		}

		n, err := r.reindexDocument(ctx, embeddingService, version, docID)
		done += n
		if err != nil {
			r.logger.Warn("reindex of document failed", "document_id", docID, "error", err)
			r.mu.Lock()
			r.status.Errors++
			r.mu.Unlock()
		}

		if (i+1)%reindexBatchSize == 0 || i == len(docIDs)-1 {
			r.mu.Lock()
			r.status.PassagesDone = done
			r.mu.Unlock()
		}
	}

	// A cancel landing mid-document reaches this point with the loop done
	if ctx.Err() != nil {
		r.finish(ctx, version, domain.ReindexStateCancelled, "")
		return
	}

	r.mu.Lock()
	failures := r.status.Errors
	r.mu.Unlock()
	if failures > 0 {
		r.finish(ctx, version, domain.ReindexStateFailed,
			fmt.Sprintf("%d documents failed to re-embed", failures))
		return
	}

	// Documents ingested after the snapshot still carry the old version
	if err := r.catchUp(ctx, embeddingService, version); err != nil {
		if ctx.Err() != nil {
			r.finish(ctx, version, domain.ReindexStateCancelled, "")
			return
		}
		r.finish(ctx, version, domain.ReindexStateFailed, fmt.Sprintf("catch-up failed: %v", err))
		return
	}

	// Promote only after the whole corpus is built
	if err := r.vectorIndex.PromoteVersion(ctx, version); err != nil {
		r.finish(ctx, version, domain.ReindexStateFailed, fmt.Sprintf("failed to promote version: %v", err))
		return
	}
	r.services.Config().SetActiveEmbeddingVersion(version)
	r.finish(ctx, version, domain.ReindexStateCompleted, "")
}

// catchUp re-embeds documents whose passages were written under another
// version while the build ran, sweeping until the corpus is stable
func (r *Reindexer) catchUp(ctx context.Context, embeddingService driven.EmbeddingService, version string) error {
	for pass := 0; pass <= reindexCatchupPasses; pass++ {
		stale, err := r.staleDocumentIDs(ctx, version)
		if err != nil {
			return fmt.Errorf("failed to find stale documents: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}
		if pass == reindexCatchupPasses {
			return fmt.Errorf("%d documents still stale after %d passes", len(stale), reindexCatchupPasses)
		}

		r.logger.Info("reindex catch-up pass", "pass", pass+1, "stale_documents", len(stale))
		for _, docID := range stale {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := r.reindexDocument(ctx, embeddingService, version, docID)
			if err != nil {
				return fmt.Errorf("failed to re-embed document %s: %w", docID, err)
			}
			r.mu.Lock()
			r.status.PassagesDone += n
			r.status.PassagesTotal += n
			r.mu.Unlock()
		}
	}
	return nil
}

// staleDocumentIDs lists documents with indexed passages not yet on version
func (r *Reindexer) staleDocumentIDs(ctx context.Context, version string) ([]string, error) {
	docIDs, err := r.documentStore.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, docID := range docIDs {
		passages, err := r.passageStore.GetByDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		for _, p := range passages {
			if p.Indexed && p.EmbeddingVersion != version {
				stale = append(stale, docID)
				break
			}
		}
	}
	return stale, nil
}

// reindexDocument re-embeds one document's passages into the new partition.
// Returns the number of passages processed.
func (r *Reindexer) reindexDocument(ctx context.Context, embeddingService driven.EmbeddingService, version, docID string) (int, error) {
	passages, err := r.passageStore.GetByDocument(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to load passages: %w", err)
	}
	if len(passages) == 0 {
		return 0, nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	embeddings, err := embedBatchWithRetry(ctx, embeddingService, texts)
	if err != nil {
		return 0, err
	}

	entries := make([]driven.VectorEntry, len(passages))
	for i, p := range passages {
		if err := r.passageStore.UpdateEmbedding(ctx, p.ID, version, embeddings[i]); err != nil {
			return i, fmt.Errorf("failed to store embedding: %w", err)
		}
		entries[i] = driven.VectorEntry{
			PassageID:  p.ID,
			DocumentID: docID,
			Embedding:  embeddings[i],
		}
	}

	if err := r.vectorIndex.ReplaceDocument(ctx, version, docID, entries); err != nil {
		return len(passages), fmt.Errorf("failed to index document: %w", err)
	}
	return len(passages), nil
}

// finish records the terminal state and drops the partial partition when the
// run did not complete
func (r *Reindexer) finish(ctx context.Context, version string, state domain.ReindexState, errMsg string) {
	if state != domain.ReindexStateCompleted {
		// Never drop a promoted partition
		if version != r.services.Config().ActiveEmbeddingVersion() {
			if err := r.vectorIndex.DropVersion(context.WithoutCancel(ctx), version); err != nil {
				r.logger.Warn("failed to drop partial index partition", "version", version, "error", err)
			}
		}
	}

	now := time.Now()
	r.mu.Lock()
	r.status.State = state
	r.status.Error = errMsg
	r.status.CompletedAt = &now
	r.mu.Unlock()

	r.logger.Info("reindex finished", "state", state, "to_version", version, "error", errMsg)
}
