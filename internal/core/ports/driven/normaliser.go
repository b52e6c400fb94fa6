package driven

import (
	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// RecordNormaliser converts a raw source record into a canonical document.
// One normaliser is registered per source kind; it validates required fields
// (external id, text content) and fails with a domain.ErrNormalization-
// wrapped error when they are absent.
type RecordNormaliser interface {
	// Normalise builds the canonical document for a raw record. The
	// returned document carries no ID; the ingestion service assigns or
	// reuses one based on (SourceKind, ExternalID).
	Normalise(record *domain.RawRecord) (*domain.Document, error)

	// Kind returns the source kind this normaliser handles
	Kind() domain.SourceKind

	// ChunkPolicy declares how this kind's text may be split
	ChunkPolicy() ChunkPolicy
}

// NormaliserRegistry manages record normalisers, one per source kind.
type NormaliserRegistry interface {
	// Get retrieves the normaliser for a source kind.
	// Returns nil if none is registered.
	Get(kind domain.SourceKind) RecordNormaliser

	// Register registers a normaliser, replacing any prior one for its kind
	Register(normaliser RecordNormaliser)

	// Kinds returns all registered source kinds
	Kinds() []domain.SourceKind
}

// ChunkPolicy declares the splitting constraints a source kind imposes.
type ChunkPolicy struct {
	// AtomicSeparator delimits units that must never be split internally
	// (e.g. one chat message, one diff hunk). A unit longer than the
	// chunker's maximum passage length is kept whole as an oversized
	// passage rather than truncated.
	AtomicSeparator string
}

// PostProcessor applies post-processing to document content or chunks.
// Processors form a pipeline: Chunker -> WhitespaceNormalizer -> Deduplicator.
type PostProcessor interface {
	// Process applies post-processing to content chunks.
	// The first processor (Chunker) receives a single chunk with the full content.
	// Subsequent processors receive the chunks from the previous stage.
	Process(chunks []Chunk, policy ChunkPolicy) []Chunk

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	// Chunker should be 0, subsequent processors increment from there.
	Order() int
}

// Chunk represents a piece of document content for processing.
type Chunk struct {
	// Content is the text content of the chunk
	Content string

	// Position is the chunk index within the document (0-based)
	Position int

	// StartOffset is the character offset from document start
	StartOffset int

	// EndOffset is the character offset for chunk end
	EndOffset int
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order.
	// Input is the normalised document content plus the source kind's
	// chunk policy; output is the passages-to-be, ready for embedding.
	Process(content string, policy ChunkPolicy) []Chunk

	// Add adds a processor to the pipeline.
	// Processors are sorted by Order() before processing.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}
