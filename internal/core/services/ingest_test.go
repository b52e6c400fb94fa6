package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/persona-core/internal/normalisers"
	"github.com/custodia-labs/persona-core/internal/postprocessors"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

type ingestFixture struct {
	orchestrator *IngestOrchestrator
	documents    *mocks.MockDocumentStore
	passages     *mocks.MockPassageStore
	index        *mocks.MockVectorIndex
	embedding    *mocks.MockEmbeddingService
	lock         *mocks.MockDistributedLock
	services     *runtime.Services
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	services := runtime.NewServices(domain.NewRuntimeConfig("none"))
	embedding := mocks.NewMockEmbeddingService()
	services.SetEmbeddingService(embedding)

	f := &ingestFixture{
		documents: mocks.NewMockDocumentStore(),
		passages:  mocks.NewMockPassageStore(),
		index:     mocks.NewMockVectorIndex(),
		embedding: embedding,
		lock:      mocks.NewMockDistributedLock(),
		services:  services,
	}
	f.orchestrator = NewIngestOrchestrator(IngestOrchestratorConfig{
		DocumentStore: f.documents,
		PassageStore:  f.passages,
		VectorIndex:   f.index,
		NormaliserReg: normalisers.DefaultRegistry(),
		Pipeline:      postprocessors.DefaultPipeline(),
		Lock:          f.lock,
		Services:      services,
	})
	return f
}

func chatRecord(externalID, text string) *domain.RawRecord {
	return &domain.RawRecord{
		SourceKind: domain.SourceKindChat,
		ExternalID: externalID,
		Author:     "kevin",
		RawText:    text,
		Metadata:   map[string]string{"channel": "platform-eng"},
	}
}

func TestIngest_NewRecord(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected document ID to be assigned")
	}

	passages, err := f.passages.GetByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocument failed: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	if passages[0].ID != domain.PassageID(doc.ID, 0) {
		t.Errorf("unexpected passage ID %s", passages[0].ID)
	}
	if !passages[0].Indexed {
		t.Error("expected passage to be indexed")
	}
	if passages[0].EmbeddingVersion != f.embedding.Version() {
		t.Errorf("expected version %s, got %s", f.embedding.Version(), passages[0].EmbeddingVersion)
	}

	size, _ := f.index.Size(ctx, f.embedding.Version())
	if size != 1 {
		t.Errorf("expected 1 index entry, got %d", size)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	record := chatRecord("msg-1", "we shard by tenant id")
	first, err := f.orchestrator.Ingest(ctx, record)
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	callsAfterFirst := f.embedding.EmbedCalls()

	second, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected stable document ID, got %s and %s", first.ID, second.ID)
	}
	if f.embedding.EmbedCalls() != callsAfterFirst {
		t.Error("unchanged record must not be re-embedded")
	}
	count, _ := f.passages.Count(ctx)
	if count != 1 {
		t.Errorf("expected passage count unchanged at 1, got %d", count)
	}
}

func TestIngest_UpdateReplacesPassages(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	first, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "original take"))
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	second, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "revised take after the incident"))
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("update must reuse the document ID, got %s and %s", first.ID, second.ID)
	}

	passages, _ := f.passages.GetByDocument(ctx, second.ID)
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage after update, got %d", len(passages))
	}
	if passages[0].Text != "[#platform-eng] revised take after the incident" {
		t.Errorf("passage text not replaced: %q", passages[0].Text)
	}

	stored, _ := f.documents.Get(ctx, second.ID)
	if stored.ContentHash != domain.HashContent(stored.RawText) {
		t.Error("stored content hash is stale")
	}
}

func TestIngest_RetryAfterPassageReplaceFailure(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	if _, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "original take")); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	failNext := true
	f.passages.ReplaceFn = func(string, []*domain.Passage) error {
		if failNext {
			failNext = false
			return errors.New("connection reset")
		}
		return nil
	}

	if _, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "revised take after the incident")); err == nil {
		t.Fatal("expected the passage replace failure to surface")
	}

	// The identical record again: the stored hash must still reflect the old
	// content, so this retry re-chunks instead of short-circuiting
	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "revised take after the incident"))
	if err != nil {
		t.Fatalf("retry Ingest failed: %v", err)
	}

	passages, _ := f.passages.GetByDocument(ctx, doc.ID)
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage after retry, got %d", len(passages))
	}
	if passages[0].Text != "[#platform-eng] revised take after the incident" {
		t.Errorf("retry left stale passages: %q", passages[0].Text)
	}
	stored, _ := f.documents.Get(ctx, doc.ID)
	if stored.ContentHash != domain.HashContent(stored.RawText) {
		t.Error("stored content hash is stale")
	}
}

func TestIngest_NewRecordReplaceFailureThenRetry(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	failNext := true
	f.passages.ReplaceFn = func(string, []*domain.Passage) error {
		if failNext {
			failNext = false
			return errors.New("connection reset")
		}
		return nil
	}

	if _, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id")); err == nil {
		t.Fatal("expected the passage replace failure to surface")
	}

	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("retry Ingest failed: %v", err)
	}

	passages, _ := f.passages.GetByDocument(ctx, doc.ID)
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage after retry, got %d", len(passages))
	}
	stored, _ := f.documents.Get(ctx, doc.ID)
	if stored.ContentHash != domain.HashContent(stored.RawText) {
		t.Error("stored content hash is stale")
	}
}

func TestIngest_NormalizationFailure(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.orchestrator.Ingest(context.Background(), chatRecord("msg-1", "   "))
	if !errors.Is(err, domain.ErrNormalization) {
		t.Errorf("expected ErrNormalization, got %v", err)
	}

	count, _ := f.documents.Count(context.Background())
	if count != 0 {
		t.Error("failed normalization must not persist a document")
	}
}

func TestIngest_UnknownKind(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.orchestrator.Ingest(context.Background(), &domain.RawRecord{
		SourceKind: "email",
		ExternalID: "x",
		RawText:    "hello",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngest_EmbeddingFailureLeavesUnindexed(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.embedding.SetFailCount(embedMaxAttempts)
	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	passages, _ := f.passages.GetByDocument(ctx, doc.ID)
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	if passages[0].Indexed {
		t.Error("expected passage to be unindexed after embedding failure")
	}

	size, _ := f.index.Size(ctx, f.embedding.Version())
	if size != 0 {
		t.Errorf("expected no index entries, got %d", size)
	}
}

func TestRetryUnindexed(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.embedding.SetFailCount(embedMaxAttempts)
	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	recovered, err := f.orchestrator.RetryUnindexed(ctx, 10)
	if err != nil {
		t.Fatalf("RetryUnindexed failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered passage, got %d", recovered)
	}

	passages, _ := f.passages.GetByDocument(ctx, doc.ID)
	if !passages[0].Indexed {
		t.Error("expected passage to be indexed after retry")
	}
	size, _ := f.index.Size(ctx, f.embedding.Version())
	if size != 1 {
		t.Errorf("expected 1 index entry after retry, got %d", size)
	}

	// Nothing left to retry
	recovered, err = f.orchestrator.RetryUnindexed(ctx, 10)
	if err != nil {
		t.Fatalf("RetryUnindexed failed: %v", err)
	}
	if recovered != 0 {
		t.Errorf("expected 0 recovered, got %d", recovered)
	}
}

func TestIngestDelete(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	doc, err := f.orchestrator.Ingest(ctx, chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	err = f.orchestrator.IngestDelete(ctx, &domain.Deletion{
		SourceKind: domain.SourceKindChat,
		ExternalID: "msg-1",
	})
	if err != nil {
		t.Fatalf("IngestDelete failed: %v", err)
	}

	if _, err := f.documents.Get(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected document to be gone")
	}
	count, _ := f.passages.Count(ctx)
	if count != 0 {
		t.Errorf("expected 0 passages, got %d", count)
	}
	size, _ := f.index.Size(ctx, f.embedding.Version())
	if size != 0 {
		t.Errorf("expected 0 index entries, got %d", size)
	}
}

func TestIngestDelete_UnknownIsNoop(t *testing.T) {
	f := newIngestFixture(t)

	err := f.orchestrator.IngestDelete(context.Background(), &domain.Deletion{
		SourceKind: domain.SourceKindChat,
		ExternalID: "never-seen",
	})
	if err != nil {
		t.Errorf("deleting an unknown item must be a no-op, got %v", err)
	}
}

func TestIngest_ReleasesLock(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.orchestrator.Ingest(context.Background(), chatRecord("msg-1", "we shard by tenant id"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if f.lock.Held(ingestLockName(domain.SourceKindChat, "msg-1")) {
		t.Error("ingest lock must be released")
	}
}
