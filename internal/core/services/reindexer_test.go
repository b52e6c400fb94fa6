package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

type reindexFixture struct {
	reindexer *Reindexer
	documents *mocks.MockDocumentStore
	passages  *mocks.MockPassageStore
	index     *mocks.MockVectorIndex
	embedding *mocks.MockEmbeddingService
	services  *runtime.Services
}

func newReindexFixture(t *testing.T, docs int) *reindexFixture {
	t.Helper()

	services := runtime.NewServices(domain.NewRuntimeConfig("none"))
	embedding := mocks.NewMockEmbeddingService()
	services.SetEmbeddingService(embedding)

	f := &reindexFixture{
		documents: mocks.NewMockDocumentStore(),
		passages:  mocks.NewMockPassageStore(),
		index:     mocks.NewMockVectorIndex(),
		embedding: embedding,
		services:  services,
	}
	f.reindexer = NewReindexer(f.documents, f.passages, f.index, services, nil)

	ctx := context.Background()
	for i := 0; i < docs; i++ {
		id := domain.GenerateID()
		text := "document body " + id
		doc := &domain.Document{
			ID:          id,
			SourceKind:  domain.SourceKindOfficeDoc,
			ExternalID:  id,
			RawText:     text,
			ContentHash: domain.HashContent(text),
			UpdatedAt:   time.Now(),
		}
		if err := f.documents.Save(ctx, doc); err != nil {
			t.Fatalf("seed document: %v", err)
		}
		vec, _ := embedding.EmbedQuery(ctx, text)
		passage := &domain.Passage{
			ID:               domain.PassageID(id, 0),
			DocumentID:       id,
			Text:             text,
			EmbeddingVersion: embedding.Version(),
			Embedding:        vec,
			Indexed:          true,
		}
		if err := f.passages.ReplaceForDocument(ctx, id, []*domain.Passage{passage}); err != nil {
			t.Fatalf("seed passages: %v", err)
		}
		err := f.index.ReplaceDocument(ctx, embedding.Version(), id, []driven.VectorEntry{
			{PassageID: passage.ID, DocumentID: id, Embedding: vec},
		})
		if err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}
	return f
}

func waitForReindex(t *testing.T, r *Reindexer) *domain.ReindexStatus {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := r.ReindexStatus(context.Background())
		if err != nil {
			t.Fatalf("ReindexStatus failed: %v", err)
		}
		if !status.InProgress() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reindex did not finish in time")
	return nil
}

func TestReindex_PromotesNewVersion(t *testing.T) {
	f := newReindexFixture(t, 5)
	ctx := context.Background()

	oldVersion := f.embedding.Version()
	f.embedding.SetVersion("mock-embed-v2")

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	status := waitForReindex(t, f.reindexer)
	if status.State != domain.ReindexStateCompleted {
		t.Fatalf("expected completed, got %s (%s)", status.State, status.Error)
	}
	if status.PassagesDone != 5 {
		t.Errorf("expected 5 passages done, got %d", status.PassagesDone)
	}

	if got := f.services.Config().ActiveEmbeddingVersion(); got != "mock-embed-v2" {
		t.Errorf("active version not switched, got %s", got)
	}

	newSize, _ := f.index.Size(ctx, "mock-embed-v2")
	if newSize != 5 {
		t.Errorf("expected 5 entries in new partition, got %d", newSize)
	}
	oldSize, _ := f.index.Size(ctx, oldVersion)
	if oldSize != 0 {
		t.Errorf("old partition must be dropped after promote, got %d entries", oldSize)
	}

	count, _ := f.passages.CountIndexed(ctx, "mock-embed-v2")
	if count != 5 {
		t.Errorf("expected 5 passages stored under the new version, got %d", count)
	}
}

func TestReindex_AlreadyRunning(t *testing.T) {
	f := newReindexFixture(t, 200)

	if err := f.reindexer.Reindex(context.Background(), "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	err := f.reindexer.Reindex(context.Background(), "mock-embed-v3")
	if err != nil && !errors.Is(err, domain.ErrReindexInProgress) {
		t.Errorf("expected ErrReindexInProgress, got %v", err)
	}

	waitForReindex(t, f.reindexer)
}

func TestReindex_CancelKeepsActiveVersion(t *testing.T) {
	f := newReindexFixture(t, 500)
	ctx := context.Background()

	oldVersion := f.services.Config().ActiveEmbeddingVersion()

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	// Cancel may race completion on a small corpus; 500 docs gives it room
	err := f.reindexer.CancelReindex(ctx)

	status := waitForReindex(t, f.reindexer)
	if err == nil && status.State == domain.ReindexStateCancelled {
		if got := f.services.Config().ActiveEmbeddingVersion(); got != oldVersion {
			t.Errorf("cancelled reindex must not switch versions, got %s", got)
		}
		size, _ := f.index.Size(ctx, "mock-embed-v2")
		if size != 0 {
			t.Errorf("partial partition must be dropped, got %d entries", size)
		}
	}
}

func TestReindex_CancelDuringLastDocumentNotPromoted(t *testing.T) {
	f := newReindexFixture(t, 1)
	ctx := context.Background()

	oldVersion := f.services.Config().ActiveEmbeddingVersion()

	// Cancel while the only document is mid-flight, after the loop's own
	// cancellation check has already passed
	f.passages.UpdateFn = func(id, version string, embedding []float32) error {
		f.reindexer.mu.Lock()
		cancel := f.reindexer.cancel
		f.reindexer.mu.Unlock()
		cancel()
		return nil
	}

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	status := waitForReindex(t, f.reindexer)
	if status.State != domain.ReindexStateCancelled {
		t.Fatalf("expected cancelled, got %s (%s)", status.State, status.Error)
	}
	if got := f.services.Config().ActiveEmbeddingVersion(); got != oldVersion {
		t.Errorf("late cancel must not switch versions, got %s", got)
	}
	size, _ := f.index.Size(ctx, "mock-embed-v2")
	if size != 0 {
		t.Errorf("partial partition must be dropped, got %d entries", size)
	}
}

func TestReindex_DocumentFailureNotPromoted(t *testing.T) {
	f := newReindexFixture(t, 1)
	ctx := context.Background()

	oldVersion := f.services.Config().ActiveEmbeddingVersion()
	f.embedding.SetFailCount(embedMaxAttempts)

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	status := waitForReindex(t, f.reindexer)
	if status.State != domain.ReindexStateFailed {
		t.Fatalf("expected failed, got %s (%s)", status.State, status.Error)
	}
	if status.Errors != 1 {
		t.Errorf("expected 1 errored document, got %d", status.Errors)
	}
	if got := f.services.Config().ActiveEmbeddingVersion(); got != oldVersion {
		t.Errorf("failed reindex must not switch versions, got %s", got)
	}
	size, _ := f.index.Size(ctx, "mock-embed-v2")
	if size != 0 {
		t.Errorf("partial partition must be dropped, got %d entries", size)
	}
}

func TestReindex_TransientEmbedFailureRetried(t *testing.T) {
	f := newReindexFixture(t, 1)
	ctx := context.Background()

	f.embedding.SetFailCount(1)

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	status := waitForReindex(t, f.reindexer)
	if status.State != domain.ReindexStateCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", status.State, status.Error)
	}
	if f.embedding.EmbedCalls() < 2 {
		t.Errorf("expected the failed embed call to be retried, got %d calls", f.embedding.EmbedCalls())
	}
	size, _ := f.index.Size(ctx, "mock-embed-v2")
	if size != 1 {
		t.Errorf("expected 1 entry in new partition, got %d", size)
	}
}

func TestReindex_SweepsDocumentsIngestedDuringBuild(t *testing.T) {
	f := newReindexFixture(t, 2)
	ctx := context.Background()

	oldVersion := f.embedding.Version()
	lateID := domain.GenerateID()
	seeded := false

	// A concurrent ingestion lands mid-build, embedded under the version
	// that is active at that moment
	f.passages.UpdateFn = func(id, version string, embedding []float32) error {
		if seeded {
			return nil
		}
		seeded = true

		text := "late arrival " + lateID
		doc := &domain.Document{
			ID:          lateID,
			SourceKind:  domain.SourceKindChat,
			ExternalID:  lateID,
			RawText:     text,
			ContentHash: domain.HashContent(text),
			UpdatedAt:   time.Now(),
		}
		if err := f.documents.Save(ctx, doc); err != nil {
			return err
		}
		vec, _ := f.embedding.EmbedQuery(ctx, text)
		passage := &domain.Passage{
			ID:               domain.PassageID(lateID, 0),
			DocumentID:       lateID,
			Text:             text,
			EmbeddingVersion: oldVersion,
			Embedding:        vec,
			Indexed:          true,
		}
		if err := f.passages.ReplaceForDocument(ctx, lateID, []*domain.Passage{passage}); err != nil {
			return err
		}
		return f.index.ReplaceDocument(ctx, oldVersion, lateID, []driven.VectorEntry{
			{PassageID: passage.ID, DocumentID: lateID, Embedding: vec},
		})
	}

	if err := f.reindexer.Reindex(ctx, "mock-embed-v2"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	status := waitForReindex(t, f.reindexer)
	if status.State != domain.ReindexStateCompleted {
		t.Fatalf("expected completed, got %s (%s)", status.State, status.Error)
	}

	size, _ := f.index.Size(ctx, "mock-embed-v2")
	if size != 3 {
		t.Errorf("expected the late document in the new partition, got %d entries", size)
	}
	late, err := f.passages.Get(ctx, domain.PassageID(lateID, 0))
	if err != nil {
		t.Fatalf("late passage missing: %v", err)
	}
	if late.EmbeddingVersion != "mock-embed-v2" {
		t.Errorf("late document still on %s", late.EmbeddingVersion)
	}
}

func TestReindex_NoEmbeddingService(t *testing.T) {
	f := newReindexFixture(t, 1)
	f.services.SetEmbeddingService(nil)

	err := f.reindexer.Reindex(context.Background(), "v2")
	if !errors.Is(err, domain.ErrNoEmbeddingService) {
		t.Errorf("expected ErrNoEmbeddingService, got %v", err)
	}
}
