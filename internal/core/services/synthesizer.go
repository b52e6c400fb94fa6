package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/runtime"
)

// maxEvidencePassages caps how many passages are handed to the LLM
const maxEvidencePassages = 5

// extractiveQuoteLimit truncates quoted passages in the extractive fallback
const extractiveQuoteLimit = 300

// Synthesizer turns a retrieval result into a first-person answer.
// Below the confidence threshold it returns the insufficient-evidence
// outcome instead of guessing; with no LLM configured it falls back to an
// extractive answer quoting the evidence directly.
type Synthesizer struct {
	settingsStore driven.SettingsStore
	services      *runtime.Services
	logger        *slog.Logger
}

// NewSynthesizer creates a new answer synthesizer
func NewSynthesizer(settingsStore driven.SettingsStore, services *runtime.Services, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		settingsStore: settingsStore,
		services:      services,
		logger:        logger,
	}
}

// Synthesize builds the answer for one question from its retrieval result
func (s *Synthesizer) Synthesize(ctx context.Context, result *domain.RetrievalResult) (*domain.Answer, error) {
	confidence := clamp01(result.TopScore())
	threshold := s.services.Config().ConfidenceThreshold()

	if result.Empty() || confidence < threshold {
		s.logger.Debug("insufficient evidence",
			"question_len", len(result.Question),
			"results", len(result.Results),
			"top_score", result.TopScore(),
			"threshold", threshold)
		return s.insufficientAnswer(result.Question, confidence), nil
	}

	evidence := result.Results
	if len(evidence) > maxEvidencePassages {
		evidence = evidence[:maxEvidencePassages]
	}

	persona, err := s.settingsStore.GetPersona(ctx)
	if err != nil {
		s.logger.Warn("failed to load persona settings", "error", err)
	}

	answer := &domain.Answer{
		Question:            result.Question,
		Confidence:          confidence,
		Sufficient:          true,
		EvidenceDocumentIDs: evidenceDocumentIDs(evidence),
	}

	llm := s.services.LLMService()
	if llm == nil {
		answer.Text = extractiveAnswer(evidence)
		return answer, nil
	}

	text, err := llm.Synthesize(ctx, driven.SynthesisRequest{
		Question: result.Question,
		Persona:  persona,
		Evidence: evidence,
	})
	if err != nil {
		// Degrade to the extractive answer rather than failing the question
		s.logger.Warn("llm synthesis failed, using extractive answer", "error", err)
		answer.Text = extractiveAnswer(evidence)
		return answer, nil
	}

	answer.Text = strings.TrimSpace(text)
	if answer.Text == "" {
		answer.Text = extractiveAnswer(evidence)
	}
	return answer, nil
}

// insufficientAnswer is the polite non-answer for weak or empty retrieval.
// It cites nothing and claims nothing.
func (s *Synthesizer) insufficientAnswer(question string, confidence float64) *domain.Answer {
	return &domain.Answer{
		Question:   question,
		Text:       "I am not sure I have actually worked on that. Nothing in my messages, tickets, commits or documents covers it, so I would rather not guess.",
		Confidence: confidence,
		Sufficient: false,
	}
}

// extractiveAnswer quotes the evidence directly, best passage first
func extractiveAnswer(evidence []*domain.RankedPassage) string {
	var b strings.Builder
	b.WriteString("From my own records:\n")
	for _, rp := range evidence {
		quote := strings.TrimSpace(rp.Passage.Text)
		if len(quote) > extractiveQuoteLimit {
			quote = quote[:extractiveQuoteLimit] + "..."
		}
		fmt.Fprintf(&b, "\n- %s", quote)
	}
	return b.String()
}

// evidenceDocumentIDs collects the unique document IDs behind the evidence,
// in rank order
func evidenceDocumentIDs(evidence []*domain.RankedPassage) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, rp := range evidence {
		if !seen[rp.Document.ID] {
			seen[rp.Document.ID] = true
			ids = append(ids, rp.Document.ID)
		}
	}
	return ids
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
