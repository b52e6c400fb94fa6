package normalisers

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordNormaliser = (*OfficeDocNormaliser)(nil)

// OfficeDocNormaliser normalises office documents (wiki pages, docs, slides)
// whose text has already been extracted upstream. Paragraphs are the atomic
// unit.
type OfficeDocNormaliser struct{}

// Kind returns the source kind this normaliser handles
func (n *OfficeDocNormaliser) Kind() domain.SourceKind {
	return domain.SourceKindOfficeDoc
}

// ChunkPolicy returns the chunking policy for office documents
func (n *OfficeDocNormaliser) ChunkPolicy() driven.ChunkPolicy {
	return driven.ChunkPolicy{AtomicSeparator: "\n\n"}
}

// Normalise converts a raw office document record into a canonical document
func (n *OfficeDocNormaliser) Normalise(record *domain.RawRecord) (*domain.Document, error) {
	if record.ExternalID == "" {
		return nil, fmt.Errorf("%w: office document missing external ID", domain.ErrNormalization)
	}

	metadata := copyMetadata(record.Metadata)

	var paragraphs []string
	if title := strings.TrimSpace(metadata["title"]); title != "" {
		paragraphs = append(paragraphs, title)
	}
	for _, p := range strings.Split(record.RawText, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("%w: office document %s has no content", domain.ErrNormalization, record.ExternalID)
	}

	text := strings.Join(paragraphs, "\n\n")

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
		SourceKind:  domain.SourceKindOfficeDoc,
		ExternalID:  record.ExternalID,
		Author:      record.Author,
		RawText:     text,
		ContentHash: domain.HashContent(text),
		Metadata:    metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
