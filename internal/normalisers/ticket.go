package normalisers

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordNormaliser = (*TicketNormaliser)(nil)

// TicketNormaliser normalises issue-tracker tickets (Jira, GitHub issues).
// Canonical text is the title followed by description and comment blocks,
// separated by blank lines. A comment block is the atomic unit.
type TicketNormaliser struct{}

// Kind returns the source kind this normaliser handles
func (n *TicketNormaliser) Kind() domain.SourceKind {
	return domain.SourceKindTicket
}

// ChunkPolicy returns the chunking policy for tickets
func (n *TicketNormaliser) ChunkPolicy() driven.ChunkPolicy {
	return driven.ChunkPolicy{AtomicSeparator: "\n\n"}
}

// Normalise converts a raw ticket record into a canonical document
func (n *TicketNormaliser) Normalise(record *domain.RawRecord) (*domain.Document, error) {
	if record.ExternalID == "" {
		return nil, fmt.Errorf("%w: ticket record missing external ID", domain.ErrNormalization)
	}

	metadata := copyMetadata(record.Metadata)

	var blocks []string
	if title := strings.TrimSpace(metadata["title"]); title != "" {
		blocks = append(blocks, title)
	}
	for _, block := range strings.Split(record.RawText, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: ticket record %s has no content", domain.ErrNormalization, record.ExternalID)
	}

	text := strings.Join(blocks, "\n\n")

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
		SourceKind:  domain.SourceKindTicket,
		ExternalID:  record.ExternalID,
		Author:      record.Author,
		RawText:     text,
		ContentHash: domain.HashContent(text),
		Metadata:    metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
