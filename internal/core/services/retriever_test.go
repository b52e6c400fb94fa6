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

type retrieverFixture struct {
	retriever *Retriever
	documents *mocks.MockDocumentStore
	passages  *mocks.MockPassageStore
	index     *mocks.MockVectorIndex
	embedding *mocks.MockEmbeddingService
	services  *runtime.Services
}

func newRetrieverFixture(t *testing.T) *retrieverFixture {
	t.Helper()

	services := runtime.NewServices(domain.NewRuntimeConfig("none"))
	embedding := mocks.NewMockEmbeddingService()
	services.SetEmbeddingService(embedding)

	f := &retrieverFixture{
		documents: mocks.NewMockDocumentStore(),
		passages:  mocks.NewMockPassageStore(),
		index:     mocks.NewMockVectorIndex(),
		embedding: embedding,
		services:  services,
	}
	f.retriever = NewRetriever(f.documents, f.passages, f.index, services, nil)
	return f
}

// seed stores a single-passage document whose embedding matches the given
// text exactly, so retrieval scores are under the test's control.
func (f *retrieverFixture) seed(t *testing.T, docID, text string, updatedAt time.Time) {
	t.Helper()
	ctx := context.Background()

	doc := &domain.Document{
		ID:          docID,
		SourceKind:  domain.SourceKindChat,
		ExternalID:  docID,
		RawText:     text,
		ContentHash: domain.HashContent(text),
		UpdatedAt:   updatedAt,
	}
	if err := f.documents.Save(ctx, doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	embedding, err := f.embedding.EmbedQuery(ctx, text)
	if err != nil {
		t.Fatalf("seed embedding: %v", err)
	}
	passage := &domain.Passage{
		ID:               domain.PassageID(docID, 0),
		DocumentID:       docID,
		Text:             text,
		EmbeddingVersion: f.embedding.Version(),
		Embedding:        embedding,
		Indexed:          true,
	}
	if err := f.passages.ReplaceForDocument(ctx, docID, []*domain.Passage{passage}); err != nil {
		t.Fatalf("seed passages: %v", err)
	}
	err = f.index.ReplaceDocument(ctx, f.embedding.Version(), docID, []driven.VectorEntry{
		{PassageID: passage.ID, DocumentID: docID, Embedding: embedding},
	})
	if err != nil {
		t.Fatalf("seed index: %v", err)
	}
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	f := newRetrieverFixture(t)

	result, err := f.retriever.Retrieve(context.Background(), "what did we decide about sharding?", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Empty() {
		t.Errorf("expected empty result, got %d hits", len(result.Results))
	}
	if result.TopScore() != 0 {
		t.Errorf("expected top score 0, got %f", result.TopScore())
	}
}

func TestRetrieve_NoEmbeddingService(t *testing.T) {
	f := newRetrieverFixture(t)
	f.services.SetEmbeddingService(nil)

	result, err := f.retriever.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Empty() {
		t.Error("expected empty result without embedding service")
	}
}

func TestRetrieve_EmptyQuestion(t *testing.T) {
	f := newRetrieverFixture(t)

	_, err := f.retriever.Retrieve(context.Background(), "  ", 5)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrieve_ExactMatchRanksFirst(t *testing.T) {
	f := newRetrieverFixture(t)
	now := time.Now()

	f.seed(t, "doc-a", "we shard the payments database by tenant id", now)
	f.seed(t, "doc-b", "the pager runbook lives in the wiki", now)

	result, err := f.retriever.Retrieve(context.Background(), "we shard the payments database by tenant id", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if result.Empty() {
		t.Fatal("expected results")
	}
	if result.Results[0].Document.ID != "doc-a" {
		t.Errorf("expected doc-a first, got %s", result.Results[0].Document.ID)
	}
	// The query embedding equals the passage embedding, both unit vectors
	if result.TopScore() < 0.99 {
		t.Errorf("expected near-1 top score, got %f", result.TopScore())
	}
	if result.EmbeddingVersion != f.embedding.Version() {
		t.Errorf("result must carry the serving version, got %q", result.EmbeddingVersion)
	}
}

func TestRetrieve_DedupesByDocument(t *testing.T) {
	f := newRetrieverFixture(t)
	ctx := context.Background()
	now := time.Now()

	text := "we shard the payments database by tenant id"
	f.seed(t, "doc-a", text, now)

	// Second passage of the same document with the same embedding
	embedding, _ := f.embedding.EmbedQuery(ctx, text)
	extra := &domain.Passage{
		ID:               domain.PassageID("doc-a", 1),
		DocumentID:       "doc-a",
		Text:             text,
		Position:         1,
		EmbeddingVersion: f.embedding.Version(),
		Embedding:        embedding,
		Indexed:          true,
	}
	first, _ := f.passages.Get(ctx, domain.PassageID("doc-a", 0))
	_ = f.passages.ReplaceForDocument(ctx, "doc-a", []*domain.Passage{first, extra})
	_ = f.index.ReplaceDocument(ctx, f.embedding.Version(), "doc-a", []driven.VectorEntry{
		{PassageID: first.ID, DocumentID: "doc-a", Embedding: first.Embedding},
		{PassageID: extra.ID, DocumentID: "doc-a", Embedding: embedding},
	})

	result, err := f.retriever.Retrieve(ctx, text, 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result after document dedupe, got %d", len(result.Results))
	}
}

func TestRetrieve_TieBreakByRecencyThenID(t *testing.T) {
	f := newRetrieverFixture(t)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	// Identical text means identical embeddings and identical scores
	text := "we shard the payments database by tenant id"
	f.seed(t, "doc-old", text, older)
	f.seed(t, "doc-new", text, newer)

	result, err := f.retriever.Retrieve(context.Background(), text, 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.Results[0].Document.ID != "doc-new" {
		t.Errorf("expected the more recent document first, got %s", result.Results[0].Document.ID)
	}
}

func TestRetrieve_DeterministicAcrossCalls(t *testing.T) {
	f := newRetrieverFixture(t)
	now := time.Now()

	// Identical text and timestamps give every document an identical score
	// and an identical recency, leaving only the ID tie-break
	text := "we shard the payments database by tenant id"
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		f.seed(t, id, text, now)
	}

	first, err := f.retriever.Retrieve(context.Background(), text, 5)
	if err != nil {
		t.Fatalf("first Retrieve failed: %v", err)
	}
	second, err := f.retriever.Retrieve(context.Background(), text, 5)
	if err != nil {
		t.Fatalf("second Retrieve failed: %v", err)
	}

	if len(first.Results) != len(second.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		if first.Results[i].Document.ID != second.Results[i].Document.ID {
			t.Errorf("result %d differs between calls: %s vs %s",
				i, first.Results[i].Document.ID, second.Results[i].Document.ID)
		}
	}
	for i := 1; i < len(first.Results); i++ {
		if first.Results[i-1].Document.ID >= first.Results[i].Document.ID {
			t.Errorf("tied results not in ID order: %s before %s",
				first.Results[i-1].Document.ID, first.Results[i].Document.ID)
		}
	}
}

func TestRetrieve_SkipsDeletedDocuments(t *testing.T) {
	f := newRetrieverFixture(t)
	ctx := context.Background()

	text := "we shard the payments database by tenant id"
	f.seed(t, "doc-a", text, time.Now())

	// Simulate a delete that raced ahead of the index update
	_ = f.passages.DeleteByDocument(ctx, "doc-a")
	_ = f.documents.Delete(ctx, "doc-a")

	result, err := f.retriever.Retrieve(ctx, text, 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Empty() {
		t.Error("hits for deleted documents must be skipped")
	}
}

func TestRetrieve_VersionIsolation(t *testing.T) {
	f := newRetrieverFixture(t)
	ctx := context.Background()

	text := "we shard the payments database by tenant id"
	f.seed(t, "doc-a", text, time.Now())

	// Entries under a different model version must never be consulted
	f.services.Config().SetActiveEmbeddingVersion("other-model-v2")

	result, err := f.retriever.Retrieve(ctx, text, 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Empty() {
		t.Error("expected no hits from a different version partition")
	}
	if result.EmbeddingVersion != "other-model-v2" {
		t.Errorf("unexpected result version %q", result.EmbeddingVersion)
	}
}

func TestRetrieve_LimitsToK(t *testing.T) {
	f := newRetrieverFixture(t)
	now := time.Now()

	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		f.seed(t, id, "notes about the payments service "+id, now)
	}

	result, err := f.retriever.Retrieve(context.Background(), "payments service", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(result.Results))
	}
}
