package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

func newSynthesizerFixture(t *testing.T) (*Synthesizer, *mocks.MockLLMService, *mocks.MockSettingsStore, *runtime.Services) {
	t.Helper()

	services := runtime.NewServices(domain.NewRuntimeConfig("none"))
	llm := mocks.NewMockLLMService()
	services.SetLLMService(llm)
	store := mocks.NewMockSettingsStore()

	return NewSynthesizer(store, services, nil), llm, store, services
}

func rankedResult(question string, score float64, docIDs ...string) *domain.RetrievalResult {
	result := &domain.RetrievalResult{
		Question:         question,
		EmbeddingVersion: "mock-embed-v1",
	}
	for i, id := range docIDs {
		result.Results = append(result.Results, &domain.RankedPassage{
			Passage: &domain.Passage{
				ID:         domain.PassageID(id, 0),
				DocumentID: id,
				Text:       "passage text from " + id,
			},
			Document: &domain.Document{ID: id, UpdatedAt: time.Now()},
			Score:    score - float64(i)*0.01,
		})
	}
	return result
}

func TestSynthesize_SufficientEvidence(t *testing.T) {
	s, llm, store, _ := newSynthesizerFixture(t)
	ctx := context.Background()

	_ = store.SavePersona(ctx, &domain.PersonaSettings{
		Name:        "Kevin",
		Description: "backend engineer on the payments team",
	})

	answer, err := s.Synthesize(ctx, rankedResult("how do we shard payments?", 0.9, "doc-a", "doc-b"))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !answer.Sufficient {
		t.Fatal("expected a sufficient answer")
	}
	if answer.Confidence < 0.89 || answer.Confidence > 0.91 {
		t.Errorf("unexpected confidence %f", answer.Confidence)
	}
	if len(answer.EvidenceDocumentIDs) != 2 {
		t.Fatalf("expected 2 evidence documents, got %d", len(answer.EvidenceDocumentIDs))
	}
	if answer.EvidenceDocumentIDs[0] != "doc-a" {
		t.Errorf("evidence must be in rank order, got %v", answer.EvidenceDocumentIDs)
	}

	requests := llm.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 LLM request, got %d", len(requests))
	}
	if requests[0].Persona == nil || requests[0].Persona.Name != "Kevin" {
		t.Error("persona settings must reach the LLM")
	}
}

func TestSynthesize_BelowThreshold(t *testing.T) {
	s, llm, _, services := newSynthesizerFixture(t)
	services.Config().SetConfidenceThreshold(0.5)

	answer, err := s.Synthesize(context.Background(), rankedResult("question", 0.3, "doc-a"))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if answer.Sufficient {
		t.Fatal("expected an insufficient-evidence answer")
	}
	if len(answer.EvidenceDocumentIDs) != 0 {
		t.Error("an insufficient answer must cite nothing")
	}
	if answer.Text == "" {
		t.Error("the non-answer still carries text")
	}
	if len(llm.Requests()) != 0 {
		t.Error("the LLM must not be called below the threshold")
	}
}

func TestSynthesize_EmptyRetrieval(t *testing.T) {
	s, _, _, _ := newSynthesizerFixture(t)

	answer, err := s.Synthesize(context.Background(), &domain.RetrievalResult{Question: "anything"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if answer.Sufficient {
		t.Error("empty retrieval must yield an insufficient answer")
	}
	if answer.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", answer.Confidence)
	}
}

func TestSynthesize_NoLLMFallsBackToExtractive(t *testing.T) {
	s, _, _, services := newSynthesizerFixture(t)
	services.SetLLMService(nil)

	answer, err := s.Synthesize(context.Background(), rankedResult("question", 0.9, "doc-a"))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !answer.Sufficient {
		t.Fatal("expected a sufficient answer")
	}
	if !strings.Contains(answer.Text, "passage text from doc-a") {
		t.Errorf("extractive answer must quote the evidence, got %q", answer.Text)
	}
}

func TestSynthesize_LLMFailureFallsBackToExtractive(t *testing.T) {
	s, llm, _, _ := newSynthesizerFixture(t)
	llm.SynthesizeFn = func(req driven.SynthesisRequest) (string, error) {
		return "", errors.New("upstream 500")
	}

	answer, err := s.Synthesize(context.Background(), rankedResult("question", 0.9, "doc-a"))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !answer.Sufficient {
		t.Fatal("a flaky LLM must not turn good evidence into a non-answer")
	}
	if !strings.Contains(answer.Text, "passage text from doc-a") {
		t.Errorf("expected extractive fallback, got %q", answer.Text)
	}
}

func TestSynthesize_CapsEvidence(t *testing.T) {
	s, llm, _, _ := newSynthesizerFixture(t)

	ids := []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7"}
	answer, err := s.Synthesize(context.Background(), rankedResult("question", 0.9, ids...))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(answer.EvidenceDocumentIDs) != maxEvidencePassages {
		t.Errorf("expected %d evidence documents, got %d", maxEvidencePassages, len(answer.EvidenceDocumentIDs))
	}
	if len(llm.Requests()[0].Evidence) != maxEvidencePassages {
		t.Errorf("expected evidence capped at %d passages", maxEvidencePassages)
	}
}
