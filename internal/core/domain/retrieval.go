package domain

import "time"

// RankedPassage is one retrieval hit: a passage, its owning document and a
// similarity score. Transient, never persisted.
type RankedPassage struct {
	Passage  *Passage  `json:"passage"`
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
}

// RetrievalResult is the ordered output of the retriever: top-K passages,
// deduplicated by owning document, ranked descending by score.
type RetrievalResult struct {
	Question         string           `json:"question"`
	EmbeddingVersion string           `json:"embedding_version"`
	Results          []*RankedPassage `json:"results"`
	Took             time.Duration    `json:"took"`
}

// Empty reports whether retrieval found nothing.
func (r *RetrievalResult) Empty() bool {
	return len(r.Results) == 0
}

// TopScore returns the highest score, or 0 for an empty result.
func (r *RetrievalResult) TopScore() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return r.Results[0].Score
}

// Answer is the synthesizer's outcome for one question.
// Sufficient=false is the normal "insufficient evidence" outcome, not an
// error: the caller renders it as a polite non-answer. Every sufficient
// answer cites at least one document.
type Answer struct {
	Question            string   `json:"question"`
	Text                string   `json:"text"`
	Confidence          float64  `json:"confidence"`
	Sufficient          bool     `json:"sufficient"`
	EvidenceDocumentIDs []string `json:"evidence_document_ids"`
}
