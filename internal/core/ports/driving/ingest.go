package driving

import (
	"context"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// IngestService is the ingestion intake invoked by connectors.
// Connectors are external collaborators: they fetch raw records from the
// source systems and hand them here; the core does not know how they were
// obtained.
type IngestService interface {
	// Ingest normalizes a raw record, upserts its document and replaces its
	// passages. Idempotent: ingesting an identical record twice yields the
	// same document ID and leaves passage and embedding counts unchanged.
	// Returns a domain.ErrNormalization-wrapped error when required fields
	// are missing; the record is dropped from this attempt, not retried.
	Ingest(ctx context.Context, record *domain.RawRecord) (*domain.Document, error)

	// IngestDelete removes the document identified by (kind, externalID)
	// together with its passages and index entries. Deleting an unknown
	// item is a no-op.
	IngestDelete(ctx context.Context, del *domain.Deletion) error

	// RetryUnindexed retries embedding for passages whose earlier embedding
	// attempts failed. Returns the number of passages recovered.
	RetryUnindexed(ctx context.Context, limit int) (int, error)
}
