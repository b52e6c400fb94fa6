package normalisers

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordNormaliser = (*ChatNormaliser)(nil)

// ChatNormaliser normalises chat messages (Slack, IRC and the like).
// One record is one message; a message is never split across passages.
type ChatNormaliser struct{}

// Kind returns the source kind this normaliser handles
func (n *ChatNormaliser) Kind() domain.SourceKind {
	return domain.SourceKindChat
}

// ChunkPolicy returns the chunking policy for chat messages.
// An empty separator marks the whole text as a single atomic unit.
func (n *ChatNormaliser) ChunkPolicy() driven.ChunkPolicy {
	return driven.ChunkPolicy{AtomicSeparator: ""}
}

// Normalise converts a raw chat record into a canonical document
func (n *ChatNormaliser) Normalise(record *domain.RawRecord) (*domain.Document, error) {
	if record.ExternalID == "" {
		return nil, fmt.Errorf("%w: chat record missing external ID", domain.ErrNormalization)
	}

	text := strings.TrimSpace(record.RawText)
	if text == "" {
		return nil, fmt.Errorf("%w: chat record %s has no text", domain.ErrNormalization, record.ExternalID)
	}

	metadata := copyMetadata(record.Metadata)
	if channel := metadata["channel"]; channel != "" {
		text = fmt.Sprintf("[#%s] %s", channel, text)
	}

	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return &domain.Document{
		SourceKind:  domain.SourceKindChat,
		ExternalID:  record.ExternalID,
		Author:      record.Author,
		RawText:     text,
		ContentHash: domain.HashContent(text),
		Metadata:    metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// copyMetadata returns a defensive copy, never nil
func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
