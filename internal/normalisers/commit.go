package normalisers

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordNormaliser = (*CommitNormaliser)(nil)

// CommitNormaliser normalises version-control commits.
// Canonical text is the commit message followed by the diff. The chunker
// splits on hunk headers so a diff hunk is never cut in half.
type CommitNormaliser struct{}

// Kind returns the source kind this normaliser handles
func (n *CommitNormaliser) Kind() domain.SourceKind {
	return domain.SourceKindCommit
}

// ChunkPolicy returns the chunking policy for commits
func (n *CommitNormaliser) ChunkPolicy() driven.ChunkPolicy {
	return driven.ChunkPolicy{AtomicSeparator: "\n@@"}
}

// Normalise converts a raw commit record into a canonical document
func (n *CommitNormaliser) Normalise(record *domain.RawRecord) (*domain.Document, error) {
	if record.ExternalID == "" {
		return nil, fmt.Errorf("%w: commit record missing external ID", domain.ErrNormalization)
	}

	metadata := copyMetadata(record.Metadata)
	if metadata["commit_hash"] == "" {
		metadata["commit_hash"] = record.ExternalID
	}

	text := strings.TrimSpace(record.RawText)
	if text == "" {
		return nil, fmt.Errorf("%w: commit record %s has no content", domain.ErrNormalization, record.ExternalID)
	}

	if repo := metadata["repository"]; repo != "" {
		header := repo
		if branch := metadata["branch"]; branch != "" {
			header = fmt.Sprintf("%s (%s)", repo, branch)
		}
		text = fmt.Sprintf("%s\n%s", header, text)
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
		SourceKind:  domain.SourceKindCommit,
		ExternalID:  record.ExternalID,
		Author:      record.Author,
		RawText:     text,
		ContentHash: domain.HashContent(text),
		Metadata:    metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
