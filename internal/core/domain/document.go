package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceKind identifies the kind of source record a document was built from
type SourceKind string

const (
	SourceKindChat      SourceKind = "chat"
	SourceKindTicket    SourceKind = "ticket"
	SourceKindCommit    SourceKind = "commit"
	SourceKindOfficeDoc SourceKind = "office-doc"
)

// Valid reports whether the source kind is one of the known kinds
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindChat, SourceKindTicket, SourceKindCommit, SourceKindOfficeDoc:
		return true
	}
	return false
}

// Document is the canonical representation of one ingested source record.
// ID is stable across re-ingestion of the same (SourceKind, ExternalID) pair:
// re-ingesting an existing external item updates the document in place.
type Document struct {
	ID          string            `json:"id"`
	SourceKind  SourceKind        `json:"source_kind"`
	ExternalID  string            `json:"external_id"` // ID in the source system
	Author      string            `json:"author"`
	RawText     string            `json:"raw_text"`
	ContentHash string            `json:"content_hash"` // SHA-256 of RawText
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	IngestedAt  time.Time         `json:"ingested_at"`
}

// HashContent computes the content hash used for idempotence checks.
// Re-ingesting a record whose hash is unchanged skips re-chunking.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Passage is a retrievable chunk of a document's text.
// Passages are owned by their document: re-chunking or deleting a document
// replaces or removes its whole passage set atomically.
type Passage struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	Text             string    `json:"text"`
	Position         int       `json:"position"` // Ordinal within the document
	StartChar        int       `json:"start_char"`
	EndChar          int       `json:"end_char"`
	EmbeddingVersion string    `json:"embedding_version,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	Indexed          bool      `json:"indexed"` // False when embedding failed and retry is pending
	CreatedAt        time.Time `json:"created_at"`
}

// PassageID derives the stable passage ID from its owning document and position.
func PassageID(documentID string, position int) string {
	return fmt.Sprintf("%s-p%d", documentID, position)
}

// DocumentWithPassages combines a document with its passages
type DocumentWithPassages struct {
	Document *Document  `json:"document"`
	Passages []*Passage `json:"passages"`
}
