package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

// Ensure IngestOrchestrator implements IngestService
var _ driving.IngestService = (*IngestOrchestrator)(nil)

const (
	// ingestLockTTL bounds how long one record ingestion may hold its lock
	ingestLockTTL = 30 * time.Second

	// lockPollInterval is how often a blocked ingestion re-tries the lock
	lockPollInterval = 100 * time.Millisecond

	// embedMaxAttempts bounds embedding retries within one ingestion
	embedMaxAttempts = 3

	// embedRetryBackoff is the initial backoff between embedding attempts
	embedRetryBackoff = 500 * time.Millisecond
)

// IngestOrchestrator implements IngestService.
// It runs the full pipeline for one record: normalise, idempotence check,
// chunk, embed, persist, index. Writes to the same external item are
// serialized through a distributed lock; unrelated items proceed in parallel.
type IngestOrchestrator struct {
	documentStore driven.DocumentStore
	passageStore  driven.PassageStore
	vectorIndex   driven.VectorIndex
	normaliserReg driven.NormaliserRegistry
	pipeline      driven.PostProcessorPipeline
	lock          driven.DistributedLock
	services      *runtime.Services
	logger        *slog.Logger
}

// IngestOrchestratorConfig holds dependencies for the ingest orchestrator
type IngestOrchestratorConfig struct {
	DocumentStore driven.DocumentStore
	PassageStore  driven.PassageStore
	VectorIndex   driven.VectorIndex
	NormaliserReg driven.NormaliserRegistry
	Pipeline      driven.PostProcessorPipeline
	Lock          driven.DistributedLock
	Services      *runtime.Services
	Logger        *slog.Logger
}

// NewIngestOrchestrator creates a new ingest orchestrator
func NewIngestOrchestrator(cfg IngestOrchestratorConfig) *IngestOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestOrchestrator{
		documentStore: cfg.DocumentStore,
		passageStore:  cfg.PassageStore,
		vectorIndex:   cfg.VectorIndex,
		normaliserReg: cfg.NormaliserReg,
		pipeline:      cfg.Pipeline,
		lock:          cfg.Lock,
		services:      cfg.Services,
		logger:        logger,
	}
}

// Ingest normalizes a raw record, upserts its document and replaces its passages
func (o *IngestOrchestrator) Ingest(ctx context.Context, record *domain.RawRecord) (*domain.Document, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	if !record.SourceKind.Valid() {
		return nil, fmt.Errorf("%w: unknown source kind %q", domain.ErrInvalidInput, record.SourceKind)
	}

	normaliser := o.normaliserReg.Get(record.SourceKind)
	if normaliser == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNormaliserNotFound, record.SourceKind)
	}

	doc, err := normaliser.Normalise(record)
	if err != nil {
		return nil, err
	}

	lockName := ingestLockName(doc.SourceKind, doc.ExternalID)
	if err := o.acquireLock(ctx, lockName); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), lockName); err != nil {
			o.logger.Warn("failed to release ingest lock", "lock", lockName, "error", err)
		}
	}()

	now := time.Now()

	// Reuse the document ID when this external item was seen before
	existing, err := o.documentStore.GetByExternalID(ctx, doc.SourceKind, doc.ExternalID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}

	if existing != nil {
		if existing.ContentHash == doc.ContentHash {
			// Unchanged content: no re-chunk, no re-embed
			o.logger.Debug("skipping unchanged record",
				"document_id", existing.ID,
				"source_kind", doc.SourceKind,
				"external_id", doc.ExternalID)
			return existing, nil
		}
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.ID = domain.GenerateID()
	}
	doc.IngestedAt = now

	chunks := o.pipeline.Process(doc.RawText, normaliser.ChunkPolicy())
	if len(chunks) == 0 {
		// The document is still ingested so deletion and re-ingestion keep
		// working; it just contributes no retrievable passages.
		o.logger.Warn("record produced no passages",
			"document_id", doc.ID,
			"external_id", doc.ExternalID,
			"error", domain.ErrChunking)
	}

	version := o.services.Config().ActiveEmbeddingVersion()

	passages := make([]*domain.Passage, len(chunks))
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		passages[i] = &domain.Passage{
			ID:         domain.PassageID(doc.ID, chunk.Position),
			DocumentID: doc.ID,
			Text:       chunk.Content,
			Position:   chunk.Position,
			StartChar:  chunk.StartOffset,
			EndChar:    chunk.EndOffset,
			CreatedAt:  now,
		}
		texts[i] = chunk.Content
	}

	if len(texts) > 0 {
		embeddings, err := o.embedWithRetry(ctx, texts)
		if err != nil {
			// Passages stay queryable-by-document but unindexed; a retry task
			// picks them up later
			o.logger.Warn("embedding failed, passages left unindexed",
				"document_id", doc.ID,
				"passages", len(passages),
				"error", err)
		} else {
			for i := range passages {
				passages[i].Embedding = embeddings[i]
				passages[i].EmbeddingVersion = version
				passages[i].Indexed = true
			}
		}
	}

	// Passage rows reference the document row, so a first-time document is
	// written before its passages. Its content hash is recorded only once
	// the passages are in place: until then a retry of the same record must
	// not short-circuit on the hash check.
	if existing == nil {
		stub := *doc
		stub.ContentHash = ""
		if err := o.documentStore.Save(ctx, &stub); err != nil {
			return nil, fmt.Errorf("failed to save document: %w", err)
		}
	}
	if err := o.passageStore.ReplaceForDocument(ctx, doc.ID, passages); err != nil {
		return nil, fmt.Errorf("failed to replace passages: %w", err)
	}
	if err := o.documentStore.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	if version != "" {
		if err := o.vectorIndex.ReplaceDocument(ctx, version, doc.ID, indexEntries(passages, version)); err != nil {
			o.logger.Warn("failed to update vector index", "document_id", doc.ID, "error", err)
		}
	}

	o.logger.Info("ingested record",
		"document_id", doc.ID,
		"source_kind", doc.SourceKind,
		"external_id", doc.ExternalID,
		"passages", len(passages),
		"updated", existing != nil)

	return doc, nil
}

// IngestDelete removes the document identified by (kind, externalID)
func (o *IngestOrchestrator) IngestDelete(ctx context.Context, del *domain.Deletion) error {
	if del == nil || !del.SourceKind.Valid() || del.ExternalID == "" {
		return fmt.Errorf("%w: invalid deletion request", domain.ErrInvalidInput)
	}

	lockName := ingestLockName(del.SourceKind, del.ExternalID)
	if err := o.acquireLock(ctx, lockName); err != nil {
		return err
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), lockName); err != nil {
			o.logger.Warn("failed to release ingest lock", "lock", lockName, "error", err)
		}
	}()

	doc, err := o.documentStore.GetByExternalID(ctx, del.SourceKind, del.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleting an unknown item is a no-op
			return nil
		}
		return fmt.Errorf("failed to look up document: %w", err)
	}

	if err := o.vectorIndex.DeleteDocument(ctx, doc.ID); err != nil {
		o.logger.Warn("failed to delete from vector index", "document_id", doc.ID, "error", err)
	}
	if err := o.passageStore.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	if err := o.documentStore.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	o.logger.Info("deleted record",
		"document_id", doc.ID,
		"source_kind", del.SourceKind,
		"external_id", del.ExternalID)

	return nil
}

// RetryUnindexed retries embedding for passages whose earlier attempts failed
func (o *IngestOrchestrator) RetryUnindexed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	pending, err := o.passageStore.ListUnindexed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unindexed passages: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	version := o.services.Config().ActiveEmbeddingVersion()
	if version == "" {
		return 0, domain.ErrNoEmbeddingService
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.Text
	}
	embeddings, err := o.embedWithRetry(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed pending passages: %w", err)
	}

	recovered := 0
	touched := make(map[string]bool)
	for i, p := range pending {
		if err := o.passageStore.UpdateEmbedding(ctx, p.ID, version, embeddings[i]); err != nil {
			o.logger.Warn("failed to store embedding", "passage_id", p.ID, "error", err)
			continue
		}
		recovered++
		touched[p.DocumentID] = true
	}

	// Refresh the affected documents in the vector index
	for docID := range touched {
		passages, err := o.passageStore.GetByDocument(ctx, docID)
		if err != nil {
			o.logger.Warn("failed to load passages for reindex", "document_id", docID, "error", err)
			continue
		}
		if err := o.vectorIndex.ReplaceDocument(ctx, version, docID, indexEntries(passages, version)); err != nil {
			o.logger.Warn("failed to update vector index", "document_id", docID, "error", err)
		}
	}

	o.logger.Info("retried unindexed passages", "recovered", recovered, "pending", len(pending))
	return recovered, nil
}

// acquireLock blocks until the named lock is acquired or ctx is done
func (o *IngestOrchestrator) acquireLock(ctx context.Context, name string) error {
	for {
		acquired, err := o.lock.Acquire(ctx, name, ingestLockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// embedWithRetry embeds texts with bounded retries and exponential backoff
func (o *IngestOrchestrator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	svc := o.services.EmbeddingService()
	if svc == nil {
		return nil, domain.ErrNoEmbeddingService
	}
	return embedBatchWithRetry(ctx, svc, texts)
}

// embedBatchWithRetry embeds one batch with bounded retries and exponential
// backoff, shared by ingestion and reindexing
func embedBatchWithRetry(ctx context.Context, svc driven.EmbeddingService, texts []string) ([][]float32, error) {
	backoff := embedRetryBackoff
	var lastErr error
	for attempt := 0; attempt < embedMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		embeddings, err := svc.Embed(ctx, texts)
		if err == nil {
			if len(embeddings) != len(texts) {
				return nil, fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrEmbedding, len(embeddings), len(texts))
			}
			return embeddings, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, lastErr)
}

// ingestLockName derives the lock name serializing writes to one external item
func ingestLockName(kind domain.SourceKind, externalID string) string {
	return fmt.Sprintf("ingest:%s:%s", kind, externalID)
}

// indexEntries builds vector index entries for the indexed passages of one version
func indexEntries(passages []*domain.Passage, version string) []driven.VectorEntry {
	var entries []driven.VectorEntry
	for _, p := range passages {
		if p.Indexed && p.EmbeddingVersion == version {
			entries = append(entries, driven.VectorEntry{
				PassageID:  p.ID,
				DocumentID: p.DocumentID,
				Embedding:  p.Embedding,
			})
		}
	}
	return entries
}
